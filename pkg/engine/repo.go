package engine

import (
	"context"
	"iter"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/oneconcern/vkv/pkg/errors"
	"github.com/oneconcern/vkv/pkg/model"
	"github.com/oneconcern/vkv/pkg/status"
	"github.com/oneconcern/vkv/pkg/storage"
	storagelocalfs "github.com/oneconcern/vkv/pkg/storage/localfs"
	"github.com/oneconcern/vkv/pkg/store"
	"github.com/oneconcern/vkv/pkg/store/instrumented"
	"github.com/oneconcern/vkv/pkg/store/localfs"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	metaDir    = "meta"
	objectsDir = "objects"

	initialCommitMessage = "Repository initialized"
)

// Option for a repository
type Option func(*options)

type options struct {
	l            *zap.Logger
	tr           opentracing.Tracer
	cacheSize    int
	memTableSize int64
	meta         store.MetaStore
	objects      storage.Store
}

// Logger for the repository
func Logger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.l = l
		}
	}
}

// Tracer for the repository stores
func Tracer(tr opentracing.Tracer) Option {
	return func(o *options) {
		if tr != nil {
			o.tr = tr
		}
	}
}

// CacheSize sets the number of snapshot manifests kept in memory
func CacheSize(size int) Option {
	return func(o *options) {
		o.cacheSize = size
	}
}

// MemTableSize sets the size in bytes of the memtables of the metadata store
func MemTableSize(size int64) Option {
	return func(o *options) {
		o.memTableSize = size
	}
}

// WithMetaStore overrides the store for snapshots and refs
func WithMetaStore(meta store.MetaStore) Option {
	return func(o *options) {
		o.meta = meta
	}
}

// WithObjects overrides the store for chunks of content
func WithObjects(objects storage.Store) Option {
	return func(o *options) {
		o.objects = objects
	}
}

// Open a repository persisted in baseDir, and initialize it if empty
func Open(ctx context.Context, baseDir string, opts ...Option) (Repository, error) {
	if baseDir == "" {
		return nil, status.ErrEngine.Wrapf("a base directory is required for a persistent repository")
	}
	o := defaultOptions(opts)
	if o.meta == nil {
		o.meta = localfs.New(filepath.Join(baseDir, metaDir), localfs.Logger(o.l), localfs.CacheSize(o.cacheSize), localfs.MemTableSize(o.memTableSize))
	}
	if o.objects == nil {
		dir := filepath.Join(baseDir, objectsDir)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, status.ErrEngine.Wrap(err)
		}
		objects, err := storagelocalfs.New(afero.NewBasePathFs(afero.NewOsFs(), dir))
		if err != nil {
			return nil, status.ErrEngine.Wrap(err)
		}
		o.objects = objects
	}
	return newRepository(ctx, baseDir, o)
}

// NewInMemory creates a repository which lives in memory only
func NewInMemory(ctx context.Context, opts ...Option) (Repository, error) {
	o := defaultOptions(opts)
	if o.meta == nil {
		o.meta = localfs.New("", localfs.Logger(o.l), localfs.CacheSize(o.cacheSize), localfs.MemTableSize(o.memTableSize))
	}
	if o.objects == nil {
		objects, err := storagelocalfs.New(afero.NewMemMapFs())
		if err != nil {
			return nil, status.ErrEngine.Wrap(err)
		}
		o.objects = objects
	}
	return newRepository(ctx, "memory", o)
}

func defaultOptions(opts []Option) options {
	o := options{
		l:  zap.NewNop(),
		tr: opentracing.NoopTracer{},
	}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

func newRepository(ctx context.Context, name string, o options) (*repository, error) {
	r := &repository{
		name:    name,
		l:       o.l.With(zap.String("repo", name)),
		meta:    instrumented.NewMetaStore(name, o.tr, o.meta),
		objects: storage.Instrument(o.tr, o.l, o.objects),
	}
	if err := r.meta.Initialize(); err != nil {
		return nil, err
	}
	if err := r.bootstrap(ctx); err != nil {
		_ = r.meta.Close()
		return nil, err
	}
	return r, nil
}

type repository struct {
	name    string
	l       *zap.Logger
	meta    store.MetaStore
	objects storage.Store

	// commits hold gc shared while uploading content and moving their branch, Prune holds it exclusively
	gc sync.RWMutex
}

// bootstrap creates the initial empty snapshot and the default branch, unless they exist already
func (r *repository) bootstrap(ctx context.Context) error {
	_, err := r.meta.GetBranch(ctx, model.DefaultBranch)
	if err == nil || !errors.Is(err, status.ErrNotFound) {
		return err
	}

	hash, err := model.Entries{}.Hash()
	if err != nil {
		return status.ErrEngine.Wrap(err)
	}
	initial := &model.Snapshot{
		ID:        model.NewSnapshotID(),
		Message:   initialCommitMessage,
		Timestamp: time.Now().UTC(),
		TreeHash:  hash,
	}
	if err = r.meta.CreateSnapshot(ctx, initial); err != nil {
		return err
	}
	err = r.meta.CreateBranch(ctx, model.DefaultBranch, initial.ID)
	if errors.Is(err, status.ErrBranchExists) {
		// initialized concurrently
		return nil
	}
	if err == nil {
		r.l.Info("repository initialized", zap.String("snapshot", initial.ID.String()))
	}
	return err
}

func (r *repository) Resolve(ctx context.Context, ref model.VersionRef) (model.SnapshotID, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}

	switch ref.Kind {
	case model.VersionSnapshot:
		snapshot, err := r.meta.GetSnapshot(ctx, model.SnapshotID(ref.Name))
		if err != nil {
			return "", err
		}
		return snapshot.ID, nil
	case model.VersionBranch:
		return r.meta.GetBranch(ctx, ref.Name)
	case model.VersionTag:
		return r.meta.GetTag(ctx, ref.Name)
	}

	// a bare name is a snapshot id, a branch or a tag, in that order
	if id, err := model.ParseSnapshotID(ref.Name); err == nil {
		if _, err = r.meta.GetSnapshot(ctx, id); err == nil {
			return id, nil
		} else if !errors.Is(err, status.ErrNotFound) {
			return "", err
		}
	}
	id, err := r.meta.GetBranch(ctx, ref.Name)
	if err == nil || !errors.Is(err, status.ErrNotFound) {
		return id, err
	}
	id, err = r.meta.GetTag(ctx, ref.Name)
	if errors.Is(err, status.ErrNotFound) {
		return "", status.ErrNotFound.Wrapf("no snapshot, branch or tag named %q", ref.Name)
	}
	return id, err
}

func (r *repository) ReadonlySession(ctx context.Context, ref model.VersionRef) (Session, error) {
	id, err := r.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	snapshot, err := r.meta.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	r.l.Debug("opening read-only session", zap.Stringer("version", ref), zap.String("snapshot", id.String()))
	return newSession(r, "", snapshot), nil
}

func (r *repository) WritableSession(ctx context.Context, branch string) (Session, error) {
	if err := model.ValidateRefName(branch); err != nil {
		return nil, err
	}
	id, err := r.meta.GetBranch(ctx, branch)
	if err != nil {
		return nil, err
	}
	snapshot, err := r.meta.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	r.l.Debug("opening writable session", zap.String("branch", branch), zap.String("snapshot", id.String()))
	return newSession(r, branch, snapshot), nil
}

func (r *repository) CreateBranch(ctx context.Context, name string, from model.VersionRef) (model.SnapshotID, error) {
	if err := model.ValidateRefName(name); err != nil {
		return "", err
	}
	id, err := r.Resolve(ctx, from)
	if err != nil {
		return "", err
	}
	if err = r.meta.CreateBranch(ctx, name, id); err != nil {
		return "", err
	}
	r.l.Info("branch created", zap.String("branch", name), zap.String("snapshot", id.String()))
	return id, nil
}

func (r *repository) DeleteBranch(ctx context.Context, name string) error {
	if err := model.ValidateRefName(name); err != nil {
		return err
	}
	if name == model.DefaultBranch {
		return status.ErrInvalidRef.Wrapf("the default branch %q cannot be deleted", name)
	}
	if err := r.meta.DeleteBranch(ctx, name); err != nil {
		return err
	}
	r.l.Info("branch deleted", zap.String("branch", name))
	return nil
}

func (r *repository) CreateTag(ctx context.Context, name string, id model.SnapshotID) error {
	if err := model.ValidateRefName(name); err != nil {
		return err
	}
	if _, err := model.ParseSnapshotID(id.String()); err != nil {
		return err
	}
	if err := r.meta.CreateTag(ctx, name, id); err != nil {
		return err
	}
	r.l.Info("tag created", zap.String("tag", name), zap.String("snapshot", id.String()))
	return nil
}

func (r *repository) ListBranches(ctx context.Context) ([]string, error) {
	return r.meta.ListBranches(ctx)
}

func (r *repository) ListTags(ctx context.Context) ([]string, error) {
	return r.meta.ListTags(ctx)
}

func (r *repository) Ancestry(ctx context.Context, id model.SnapshotID) iter.Seq2[model.Snapshot, error] {
	return func(yield func(model.Snapshot, error) bool) {
		for next := id; !next.IsZero(); {
			if err := ctx.Err(); err != nil {
				yield(model.Snapshot{}, err)
				return
			}
			snapshot, err := r.meta.GetSnapshot(ctx, next)
			if err != nil {
				yield(model.Snapshot{}, err)
				return
			}
			if !yield(snapshot.Info(), nil) {
				return
			}
			next = snapshot.Parent
		}
	}
}

func (r *repository) Prune(ctx context.Context, keep ...model.SnapshotID) (int, error) {
	r.gc.Lock()
	defer r.gc.Unlock()

	roots, err := r.refTargets(ctx)
	if err != nil {
		return 0, err
	}
	roots = append(roots, keep...)

	live := make(map[string]struct{})
	visited := make(map[model.SnapshotID]struct{})
	for _, root := range roots {
		for next := root; !next.IsZero(); {
			if _, seen := visited[next]; seen {
				break
			}
			visited[next] = struct{}{}
			snapshot, err := r.meta.GetSnapshot(ctx, next)
			if err != nil {
				return 0, err
			}
			for _, entry := range snapshot.Entries {
				live[storage.PathForHash(entry.Hash)] = struct{}{}
			}
			next = snapshot.Parent
		}
	}

	keys, err := r.objects.Keys(ctx)
	if err != nil {
		return 0, status.ErrEngine.Wrapf("listing chunks: %w", err)
	}
	var (
		removed int
		errs    error
	)
	for _, key := range keys {
		if err = ctx.Err(); err != nil {
			return removed, err
		}
		key = filepath.ToSlash(key)
		if _, ok := live[key]; ok || key != storage.PathForHash(path.Base(key)) {
			continue
		}
		if err = r.objects.Delete(ctx, key); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		removed++
	}
	r.l.Info("pruned content",
		zap.Int("snapshots", len(visited)),
		zap.Int("chunks", len(keys)),
		zap.Int("removed", removed),
		zap.Int("failed", len(multierr.Errors(errs))),
	)
	if errs != nil {
		return removed, status.ErrEngine.Wrapf("pruning chunks: %w", errs)
	}
	return removed, nil
}

// refTargets resolves all branches and tags. Refs deleted meanwhile are skipped.
func (r *repository) refTargets(ctx context.Context) ([]model.SnapshotID, error) {
	var targets []model.SnapshotID
	for _, refs := range []struct {
		list func(context.Context) ([]string, error)
		get  func(context.Context, string) (model.SnapshotID, error)
	}{
		{list: r.meta.ListBranches, get: r.meta.GetBranch},
		{list: r.meta.ListTags, get: r.meta.GetTag},
	} {
		names, err := refs.list(ctx)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			id, err := refs.get(ctx, name)
			if errors.Is(err, status.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			targets = append(targets, id)
		}
	}
	return targets, nil
}

func (r *repository) Close() error {
	return r.meta.Close()
}
