// Package localfs implements the metadata store on top of an embedded badger database.
package localfs

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v3"
	lru "github.com/hashicorp/golang-lru"
	"github.com/oneconcern/vkv/pkg/errors"
	"github.com/oneconcern/vkv/pkg/model"
	"github.com/oneconcern/vkv/pkg/status"
	"github.com/oneconcern/vkv/pkg/store"
	"go.uber.org/zap"
)

const (
	// DefaultCacheSize is the number of snapshot manifests kept in memory
	DefaultCacheSize = 64

	// inMemoryTableSize keeps the footprint of in-memory databases small
	inMemoryTableSize = 8 << 20
)

// Option for the metadata store
type Option func(*metaStore)

// Logger for the metadata store, also used by badger
func Logger(l *zap.Logger) Option {
	return func(m *metaStore) {
		if l != nil {
			m.l = l
		}
	}
}

// CacheSize sets the number of snapshot manifests kept in memory
func CacheSize(size int) Option {
	return func(m *metaStore) {
		if size > 0 {
			m.cacheSize = size
		}
	}
}

// MemTableSize sets the size of badger memtables, in bytes
func MemTableSize(size int64) Option {
	return func(m *metaStore) {
		if size > 0 {
			m.memTableSize = size
		}
	}
}

// New creates a metadata store persisted in baseDir.
//
// An empty baseDir keeps everything in memory.
func New(baseDir string, opts ...Option) store.MetaStore {
	m := &metaStore{
		baseDir:   baseDir,
		l:         zap.NewNop(),
		cacheSize: DefaultCacheSize,
	}
	for _, apply := range opts {
		apply(m)
	}
	return m
}

type metaStore struct {
	baseDir      string
	l            *zap.Logger
	cacheSize    int
	memTableSize int64
	db           *badger.DB
	snapshots    *lru.Cache
	init         sync.Once
	close        sync.Once
	closed       atomic.Bool
}

func (m *metaStore) String() string {
	if m.baseDir == "" {
		return "badger@memory"
	}
	return "badger@" + m.baseDir
}

func (m *metaStore) Initialize() error {
	var err error
	m.init.Do(func() {
		var bopts badger.Options
		if m.baseDir == "" {
			bopts = badger.DefaultOptions("").WithInMemory(true).WithMemTableSize(inMemoryTableSize)
		} else {
			if err = os.MkdirAll(m.baseDir, 0700); err != nil {
				err = status.ErrEngine.Wrap(err)
				return
			}
			bopts = badger.DefaultOptions(m.baseDir)
		}
		if m.memTableSize > 0 {
			bopts = bopts.WithMemTableSize(m.memTableSize)
		}
		bopts = bopts.WithLogger(badgerLogger{l: m.l.Named("badger").Sugar()})

		if m.db, err = badger.Open(bopts); err != nil {
			err = status.ErrEngine.Wrapf("opening metadata store %s: %w", m, err)
			return
		}
		m.snapshots, err = lru.New(m.cacheSize)
	})
	return err
}

func (m *metaStore) Close() error {
	var err error
	m.close.Do(func() {
		m.closed.Store(true)
		if m.db != nil {
			if err = m.db.Close(); err != nil {
				err = status.ErrEngine.Wrap(err)
			}
		}
	})
	return err
}

func (m *metaStore) view(fn func(*badger.Txn) error) error {
	if m.closed.Load() || m.db == nil {
		return status.ErrClosed
	}
	return m.db.View(fn)
}

func (m *metaStore) update(fn func(*badger.Txn) error) error {
	if m.closed.Load() || m.db == nil {
		return status.ErrClosed
	}
	return m.db.Update(fn)
}

// listKeys returns the names stored under a key prefix, sorted
func (m *metaStore) listKeys(prefix []byte) ([]string, error) {
	var result []string
	err := m.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			result = append(result, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err, "listing")
	}
	sort.Strings(result)
	return result, nil
}

func (m *metaStore) getRef(key []byte, what string) (model.SnapshotID, error) {
	var id model.SnapshotID
	err := m.view(func(txn *badger.Txn) error {
		var e error
		id, e = refValue(txn, key, what)
		return e
	})
	return id, err
}

// createRef sets a ref which must not exist yet
func (m *metaStore) createRef(key []byte, id model.SnapshotID, exists error) error {
	err := m.update(func(txn *badger.Txn) error {
		if _, e := txn.Get(key); e == nil {
			return exists
		} else if e != badger.ErrKeyNotFound {
			return e
		}
		if _, e := snapshotValue(txn, id); e != nil {
			return e
		}
		return txn.Set(key, []byte(id))
	})
	return m.rewrite(err, string(key))
}

// rewrite maps badger errors while keeping errors already in the status taxonomy
func (m *metaStore) rewrite(err error, what string) error {
	var known *errors.Error
	if err == nil || errors.As(err, &known) {
		return err
	}
	return mapError(err, what)
}

func (m *metaStore) ListBranches(_ context.Context) ([]string, error) {
	return m.listKeys(branchPref[:])
}

func (m *metaStore) GetBranch(_ context.Context, name string) (model.SnapshotID, error) {
	return m.getRef(branchKey(name), fmt.Sprintf("branch %q", name))
}

func (m *metaStore) CreateBranch(_ context.Context, name string, id model.SnapshotID) error {
	return m.createRef(branchKey(name), id, status.ErrBranchExists.Wrapf("%q", name))
}

func (m *metaStore) DeleteBranch(_ context.Context, name string) error {
	err := m.update(func(txn *badger.Txn) error {
		if _, e := txn.Get(branchKey(name)); e != nil {
			return e
		}
		return txn.Delete(branchKey(name))
	})
	return m.rewrite(err, fmt.Sprintf("branch %q", name))
}

func (m *metaStore) ListTags(_ context.Context) ([]string, error) {
	return m.listKeys(tagPref[:])
}

func (m *metaStore) GetTag(_ context.Context, name string) (model.SnapshotID, error) {
	return m.getRef(tagKey(name), fmt.Sprintf("tag %q", name))
}

func (m *metaStore) CreateTag(_ context.Context, name string, id model.SnapshotID) error {
	return m.createRef(tagKey(name), id, status.ErrTagExists.Wrapf("%q", name))
}

// GetSnapshot returns a snapshot manifest. The result is shared and must not be mutated.
//
// Manifests are verified against their tree hash when loaded from the database.
func (m *metaStore) GetSnapshot(_ context.Context, id model.SnapshotID) (*model.Snapshot, error) {
	if m.closed.Load() {
		return nil, status.ErrClosed
	}
	if m.snapshots != nil {
		if cached, ok := m.snapshots.Get(id); ok {
			return cached.(*model.Snapshot), nil
		}
	}

	var snapshot *model.Snapshot
	err := m.view(func(txn *badger.Txn) error {
		var e error
		snapshot, e = snapshotValue(txn, id)
		return e
	})
	if err != nil {
		return nil, err
	}
	if err = snapshot.Verify(); err != nil {
		m.l.Error("corrupted snapshot manifest", zap.String("snapshot", id.String()), zap.Error(err))
		return nil, err
	}
	m.snapshots.Add(id, snapshot)
	return snapshot, nil
}

func (m *metaStore) putSnapshot(txn *badger.Txn, snapshot *model.Snapshot) error {
	key := snapshotKey(snapshot.ID)
	if _, err := txn.Get(key); err == nil {
		return status.ErrEngine.Wrapf("snapshot %q is immutable", snapshot.ID)
	} else if err != badger.ErrKeyNotFound {
		return err
	}
	if !snapshot.Parent.IsZero() {
		if _, err := txn.Get(snapshotKey(snapshot.Parent)); err != nil {
			return mapError(err, fmt.Sprintf("parent snapshot %q", snapshot.Parent))
		}
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return status.ErrEngine.Wrapf("json marshal failed: %w", err)
	}
	return txn.Set(key, data)
}

func (m *metaStore) CreateSnapshot(_ context.Context, snapshot *model.Snapshot) error {
	if snapshot == nil || snapshot.ID.IsZero() {
		return status.ErrInvalidRef.Wrapf("snapshot id is required")
	}
	err := m.update(func(txn *badger.Txn) error {
		return m.putSnapshot(txn, snapshot)
	})
	return m.rewrite(err, fmt.Sprintf("snapshot %q", snapshot.ID))
}

func (m *metaStore) Commit(_ context.Context, branch string, expected model.SnapshotID, snapshot *model.Snapshot) error {
	if snapshot == nil || snapshot.ID.IsZero() {
		return status.ErrInvalidRef.Wrapf("snapshot id is required")
	}
	what := fmt.Sprintf("branch %q", branch)
	err := m.update(func(txn *badger.Txn) error {
		tip, e := refValue(txn, branchKey(branch), what)
		if errors.Is(e, status.ErrNotFound) {
			return status.ErrConflict.Wrapf("%s was deleted", what)
		}
		if e != nil {
			return e
		}
		if tip != expected {
			return status.ErrConflict.Wrapf("%s moved from %s to %s", what, expected, tip)
		}
		if e = m.putSnapshot(txn, snapshot); e != nil {
			return e
		}
		return txn.Set(branchKey(branch), []byte(snapshot.ID))
	})
	return m.rewrite(err, what)
}
