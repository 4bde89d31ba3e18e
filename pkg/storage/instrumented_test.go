package storage_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/oneconcern/vkv/pkg/storage"
	"github.com/oneconcern/vkv/pkg/storage/localfs"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInstrumentedStore(t *testing.T) {
	tr := mocktracer.New()
	backend, err := localfs.New(afero.NewMemMapFs())
	require.NoError(t, err)

	bs := storage.Instrument(tr, zap.NewNop(), backend)
	assert.Equal(t, backend.String(), bs.String())

	parent := tr.StartSpan("commit")
	ctx := opentracing.ContextWithSpan(context.Background(), parent)

	require.NoError(t, bs.Put(ctx, "chunks/ab/abcd", bytes.NewBufferString("data"), storage.Exclusive))
	has, err := bs.Has(ctx, "chunks/ab/abcd")
	require.NoError(t, err)
	assert.True(t, has)
	_, err = bs.Get(ctx, "chunks/zz/missing")
	require.Error(t, err)
	parent.Finish()

	spans := tr.FinishedSpans()
	require.Len(t, spans, 4)
	assert.Equal(t, "storage.localfs@memory.Put", spans[0].OperationName)
	assert.Equal(t, "chunks/ab/abcd", spans[0].Tag("key"))
	assert.Equal(t, parent.Context().(mocktracer.MockSpanContext).SpanID, spans[0].ParentID)
	assert.Equal(t, "storage.localfs@memory.Has", spans[1].OperationName)
	assert.Equal(t, true, spans[2].Tag("error"))
}
