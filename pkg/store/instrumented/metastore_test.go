package instrumented

import (
	"context"
	"testing"
	"time"

	"github.com/oneconcern/vkv/pkg/model"
	"github.com/oneconcern/vkv/pkg/store/localfs"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracedMetaStore(t *testing.T) {
	tr := mocktracer.New()
	st := NewMetaStore("repo", tr, localfs.New(""))
	require.NoError(t, st.Initialize())
	defer st.Close()

	parent := tr.StartSpan("test")
	ctx := opentracing.ContextWithSpan(context.Background(), parent)

	root := &model.Snapshot{ID: model.NewSnapshotID(), Timestamp: time.Now()}
	require.NoError(t, st.CreateSnapshot(ctx, root))
	require.NoError(t, st.CreateBranch(ctx, "main", root.ID))
	_, err := st.GetTag(ctx, "missing")
	require.Error(t, err)
	parent.Finish()

	spans := tr.FinishedSpans()
	require.Len(t, spans, 4)
	assert.Equal(t, "repo create snapshot", spans[0].OperationName)
	assert.Equal(t, "repo create branch main", spans[1].OperationName)
	assert.Equal(t, "repo get tag missing", spans[2].OperationName)
	assert.Equal(t, true, spans[2].Tag("error"))
	assert.Nil(t, spans[1].Tag("error"))
	for _, span := range spans[:3] {
		assert.Equal(t, parent.Context().(mocktracer.MockSpanContext).SpanID, span.ParentID)
	}
}
