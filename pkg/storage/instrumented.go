// Copyright © 2018 One Concern

package storage

import (
	"context"
	"io"
	"strings"

	opentracing "github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

// Instrument a blob store with tracing spans and debug logs
func Instrument(tr opentracing.Tracer, logs *zap.Logger, store Store) Store {
	if tr == nil {
		tr = opentracing.NoopTracer{}
	}
	if logs == nil {
		logs = zap.NewNop()
	}
	return &instrumentedStore{
		tr:    tr,
		store: store,
		logs:  logs.With(zap.String("storage", store.String())),
	}
}

type instrumentedStore struct {
	store Store
	tr    opentracing.Tracer
	logs  *zap.Logger
}

func (i *instrumentedStore) opName(name string) string {
	return strings.Join([]string{"storage", i.String(), name}, ".")
}

func (i *instrumentedStore) spanFromContext(ctx context.Context, name string) opentracing.Span {
	parent := opentracing.SpanFromContext(ctx)
	if parent != nil {
		return i.tr.StartSpan(name, opentracing.ChildOf(parent.Context()))
	}
	return i.tr.StartSpan(name)
}

func (i *instrumentedStore) traced(ctx context.Context, op, key string, action func() error) error {
	span := i.spanFromContext(ctx, i.opName(op))
	defer span.Finish()
	if key != "" {
		span.SetTag("key", key)
	}

	err := action()
	if err != nil {
		span.SetTag("error", true)
		i.logs.Debug("storage "+strings.ToLower(op)+" failed", zap.String("key", key), zap.Error(err))
		return err
	}
	i.logs.Debug("storage "+strings.ToLower(op), zap.String("key", key))
	return nil
}

func (i *instrumentedStore) Has(ctx context.Context, key string) (has bool, err error) {
	err = i.traced(ctx, "Has", key, func() error { has, err = i.store.Has(ctx, key); return err })
	return
}

func (i *instrumentedStore) Get(ctx context.Context, key string) (rdr io.ReadCloser, err error) {
	err = i.traced(ctx, "Get", key, func() error { rdr, err = i.store.Get(ctx, key); return err })
	return
}

func (i *instrumentedStore) GetAt(ctx context.Context, key string) (rdr ReadAtCloser, err error) {
	err = i.traced(ctx, "GetAt", key, func() error { rdr, err = i.store.GetAt(ctx, key); return err })
	return
}

func (i *instrumentedStore) Put(ctx context.Context, key string, source io.Reader, exclusive bool) error {
	return i.traced(ctx, "Put", key, func() error { return i.store.Put(ctx, key, source, exclusive) })
}

func (i *instrumentedStore) Delete(ctx context.Context, key string) error {
	return i.traced(ctx, "Delete", key, func() error { return i.store.Delete(ctx, key) })
}

func (i *instrumentedStore) Keys(ctx context.Context) (keys []string, err error) {
	err = i.traced(ctx, "Keys", "", func() error { keys, err = i.store.Keys(ctx); return err })
	return
}

func (i *instrumentedStore) String() string {
	return i.store.String()
}
