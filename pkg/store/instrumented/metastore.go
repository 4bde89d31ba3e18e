// Package instrumented decorates metadata stores with tracing spans
package instrumented

import (
	"context"

	"github.com/oneconcern/vkv/pkg/model"
	"github.com/oneconcern/vkv/pkg/store"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

// NewMetaStore creates an instrumented metadata store
func NewMetaStore(name string, tr opentracing.Tracer, w store.MetaStore) store.MetaStore {
	if tr == nil {
		tr = opentracing.NoopTracer{}
	}
	return &instrumentedMeta{
		tr:   tr,
		w:    w,
		name: name,
	}
}

type instrumentedMeta struct {
	tr   opentracing.Tracer
	w    store.MetaStore
	name string
}

func (i *instrumentedMeta) Initialize() error { return i.w.Initialize() }
func (i *instrumentedMeta) Close() error      { return i.w.Close() }

func (i *instrumentedMeta) ListBranches(ctx context.Context) (result []string, err error) {
	traced(ctx, i.tr, i.name+" list branches", func() error { result, err = i.w.ListBranches(ctx); return err })
	return
}
func (i *instrumentedMeta) GetBranch(ctx context.Context, name string) (result model.SnapshotID, err error) {
	traced(ctx, i.tr, i.name+" get branch "+name, func() error { result, err = i.w.GetBranch(ctx, name); return err })
	return
}
func (i *instrumentedMeta) CreateBranch(ctx context.Context, name string, id model.SnapshotID) (err error) {
	traced(ctx, i.tr, i.name+" create branch "+name, func() error { err = i.w.CreateBranch(ctx, name, id); return err })
	return
}
func (i *instrumentedMeta) DeleteBranch(ctx context.Context, name string) (err error) {
	traced(ctx, i.tr, i.name+" delete branch "+name, func() error { err = i.w.DeleteBranch(ctx, name); return err })
	return
}

func (i *instrumentedMeta) ListTags(ctx context.Context) (result []string, err error) {
	traced(ctx, i.tr, i.name+" list tags", func() error { result, err = i.w.ListTags(ctx); return err })
	return
}
func (i *instrumentedMeta) GetTag(ctx context.Context, name string) (result model.SnapshotID, err error) {
	traced(ctx, i.tr, i.name+" get tag "+name, func() error { result, err = i.w.GetTag(ctx, name); return err })
	return
}
func (i *instrumentedMeta) CreateTag(ctx context.Context, name string, id model.SnapshotID) (err error) {
	traced(ctx, i.tr, i.name+" create tag "+name, func() error { err = i.w.CreateTag(ctx, name, id); return err })
	return
}

func (i *instrumentedMeta) GetSnapshot(ctx context.Context, id model.SnapshotID) (result *model.Snapshot, err error) {
	traced(ctx, i.tr, i.name+" get snapshot", func() error { result, err = i.w.GetSnapshot(ctx, id); return err })
	return
}
func (i *instrumentedMeta) CreateSnapshot(ctx context.Context, snapshot *model.Snapshot) (err error) {
	traced(ctx, i.tr, i.name+" create snapshot", func() error { err = i.w.CreateSnapshot(ctx, snapshot); return err })
	return
}
func (i *instrumentedMeta) Commit(ctx context.Context, branch string, expected model.SnapshotID, snapshot *model.Snapshot) (err error) {
	traced(ctx, i.tr, i.name+" commit on "+branch, func() error { err = i.w.Commit(ctx, branch, expected, snapshot); return err })
	return
}

func traced(ctx context.Context, tr opentracing.Tracer, name string, action func() error) {
	parent := opentracing.SpanFromContext(ctx)
	var opts []opentracing.StartSpanOption
	if parent != nil {
		opts = append(opts, opentracing.ChildOf(parent.Context()))
	}
	span := tr.StartSpan(name, opts...)
	defer span.Finish()
	if err := action(); err != nil {
		ext.Error.Set(span, true)
		span.LogKV("error", err.Error())
	}
}
