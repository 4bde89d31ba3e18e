package engine

import (
	"context"
	"io"
	"iter"
	"sync"
	"time"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/oneconcern/vkv/pkg/errors"
	"github.com/oneconcern/vkv/pkg/model"
	"github.com/oneconcern/vkv/pkg/status"
	"github.com/oneconcern/vkv/pkg/storage"
	"go.uber.org/zap"
)

var (
	_ Session = &session{}
	_ Sizer   = &session{}
)

func treeFor(entries model.Entries) *iradix.Tree {
	txn := iradix.New().Txn()
	for _, entry := range entries {
		txn.Insert([]byte(entry.Path), entry)
	}
	return txn.Commit()
}

func newSession(r *repository, branch string, snapshot *model.Snapshot) *session {
	tree := treeFor(snapshot.Entries)
	return &session{
		repo:     r,
		branch:   branch,
		base:     snapshot,
		baseTree: tree,
		tree:     tree,
		touched:  make(map[string]struct{}),
		stage:    newStage(),
	}
}

// session tracks the working state as an immutable radix tree of entries.
//
// Listings iterate the root captured when they start, so they are not affected by later writes.
type session struct {
	repo   *repository
	branch string

	mu       sync.RWMutex
	base     *model.Snapshot
	baseTree *iradix.Tree
	tree     *iradix.Tree
	touched  map[string]struct{}
	stage    *stage
}

func (s *session) ReadOnly() bool { return s.branch == "" }

func (s *session) Branch() string { return s.branch }

func (s *session) SnapshotID() model.SnapshotID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.ID
}

func (s *session) entry(key string) (model.Entry, bool) {
	v, ok := s.tree.Get([]byte(key))
	if !ok {
		return model.Entry{}, false
	}
	return v.(model.Entry), true
}

func (s *session) Size(_ context.Context, key string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entry(key)
	if !ok {
		return 0, status.ErrNotFound.Wrapf("key %q", key)
	}
	return entry.Size, nil
}

func (s *session) Get(ctx context.Context, key string, rng model.ByteRange) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entry(key)
	var (
		pending []byte
		staged  bool
	)
	if ok {
		pending, staged = s.stage.get(entry.Hash)
	}
	s.mu.RUnlock()

	if !ok {
		return nil, status.ErrNotFound.Wrapf("key %q", key)
	}
	if staged {
		data, err := rng.Slice(pending)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), data...), nil
	}
	return s.read(ctx, entry, rng)
}

// read a range of a committed value from the chunk store
func (s *session) read(ctx context.Context, entry model.Entry, rng model.ByteRange) ([]byte, error) {
	if rng.IsFull() {
		return s.readAll(ctx, entry)
	}
	start, end, err := rng.Bounds(entry.Size)
	if err != nil {
		return nil, err
	}
	if start == end {
		return []byte{}, nil
	}

	rdr, err := s.repo.objects.GetAt(ctx, storage.PathForHash(entry.Hash))
	if err != nil {
		return nil, contentError(entry, err)
	}
	defer rdr.Close()

	buf := make([]byte, end-start)
	n, err := rdr.ReadAt(buf, int64(start))
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		return nil, status.ErrEngine.Wrapf("reading content of %q: %w", entry.Path, err)
	}
	return buf, nil
}

// contentError reports a failure to open committed content.
// A committed entry without content is a corruption, not a missing key.
func contentError(entry model.Entry, err error) error {
	if errors.Is(err, status.ErrNotFound) {
		return status.ErrEngine.Wrapf("content of %q is missing: %v", entry.Path, err)
	}
	return status.ErrEngine.Wrapf("reading content of %q: %w", entry.Path, err)
}

func (s *session) readAll(ctx context.Context, entry model.Entry) ([]byte, error) {
	if entry.Size == 0 {
		return []byte{}, nil
	}
	rdr, err := s.repo.objects.Get(ctx, storage.PathForHash(entry.Hash))
	if err != nil {
		return nil, contentError(entry, err)
	}
	defer rdr.Close()

	data, err := io.ReadAll(rdr)
	if err != nil {
		return nil, status.ErrEngine.Wrapf("reading content of %q: %w", entry.Path, err)
	}
	if uint64(len(data)) != entry.Size {
		return nil, status.ErrEngine.Wrapf("content of %q: expected %d bytes, got %d", entry.Path, entry.Size, len(data))
	}
	return data, nil
}

func (s *session) Set(_ context.Context, key string, value []byte) error {
	if s.ReadOnly() {
		return status.ErrReadOnlySession.Wrapf("cannot set %q", key)
	}
	hash := model.ContentHash(value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage.put(hash, value)
	s.tree, _, _ = s.tree.Insert([]byte(key), model.Entry{
		Path:  key,
		Hash:  hash,
		Size:  uint64(len(value)),
		Mtime: time.Now().UTC(),
	})
	s.touched[key] = struct{}{}
	return nil
}

func (s *session) Delete(_ context.Context, key string) error {
	if s.ReadOnly() {
		return status.ErrReadOnlySession.Wrapf("cannot delete %q", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted bool
	s.tree, _, deleted = s.tree.Delete([]byte(key))
	if deleted {
		s.touched[key] = struct{}{}
	}
	return nil
}

func (s *session) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	s.mu.RLock()
	root := s.tree.Root()
	s.mu.RUnlock()

	return func(yield func(string, error) bool) {
		it := root.Iterator()
		it.SeekPrefix([]byte(prefix))
		for key, _, ok := it.Next(); ok; key, _, ok = it.Next() {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(string(key), nil) {
				return
			}
		}
	}
}

func (s *session) HasUncommittedChanges() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasChanges()
}

// hasChanges compares the touched keys with the base snapshot
func (s *session) hasChanges() bool {
	for key := range s.touched {
		current, inCurrent := s.tree.Get([]byte(key))
		previous, inBase := s.baseTree.Get([]byte(key))
		if inCurrent != inBase {
			return true
		}
		if inCurrent && current.(model.Entry).Hash != previous.(model.Entry).Hash {
			return true
		}
	}
	return false
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *session) reset() {
	s.tree = s.baseTree
	s.touched = make(map[string]struct{})
	s.stage.clear()
}

func (s *session) Commit(ctx context.Context, message string) (model.SnapshotID, error) {
	if s.ReadOnly() {
		return "", status.ErrReadOnlySession.Wrapf("cannot commit")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasChanges() {
		return "", status.ErrEmptyCommit.Wrapf("on branch %q", s.branch)
	}

	entries := make(model.Entries, 0, s.tree.Len())
	hashes := make([]string, 0, len(s.touched))
	s.tree.Root().Walk(func(_ []byte, v interface{}) bool {
		entry := v.(model.Entry)
		entries = append(entries, entry)
		if _, ok := s.stage.get(entry.Hash); ok {
			hashes = append(hashes, entry.Hash)
		}
		return false
	})
	s.repo.gc.RLock()
	defer s.repo.gc.RUnlock()
	if err := s.stage.flush(ctx, s.repo.objects, hashes); err != nil {
		return "", err
	}

	hash, err := entries.Hash()
	if err != nil {
		return "", status.ErrEngine.Wrap(err)
	}
	snapshot := &model.Snapshot{
		ID:        model.NewSnapshotID(),
		Parent:    s.base.ID,
		Message:   message,
		Timestamp: time.Now().UTC(),
		TreeHash:  hash,
		Entries:   entries,
	}

	if err = s.repo.meta.Commit(ctx, s.branch, s.base.ID, snapshot); err != nil {
		if errors.Is(err, status.ErrConflict) {
			s.repo.l.Warn("commit rejected", zap.String("branch", s.branch), zap.String("base", s.base.ID.String()), zap.Error(err))
		}
		return "", err
	}

	s.repo.l.Info("commit",
		zap.String("branch", s.branch),
		zap.String("snapshot", snapshot.ID.String()),
		zap.String("parent", snapshot.Parent.String()),
		zap.Int("entries", len(entries)),
	)
	s.base = snapshot
	s.baseTree = s.tree
	s.touched = make(map[string]struct{})
	s.stage.clear()
	return snapshot.ID, nil
}
