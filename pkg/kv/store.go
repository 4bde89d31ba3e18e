package kv

import (
	"context"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/oneconcern/vkv/pkg/engine"
	"github.com/oneconcern/vkv/pkg/errors"
	"github.com/oneconcern/vkv/pkg/model"
	"github.com/oneconcern/vkv/pkg/status"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store is a key/value store over the active session of a versioned repository
type Store struct {
	repo        engine.Repository
	l           *zap.Logger
	metrics     *metrics
	reg         prometheus.Registerer
	emptyCommit EmptyCommitPolicy
	afterCommit AfterCommitPolicy
	ownsRepo    bool

	initial  model.VersionRef
	writable bool

	mu      sync.RWMutex
	session engine.Session
	closed  bool
}

// New store, opening a writable session on the default branch unless told otherwise
func New(ctx context.Context, repo engine.Repository, opts ...Option) (*Store, error) {
	s := &Store{
		repo:     repo,
		l:        zap.NewNop(),
		initial:  model.BranchVersion(model.DefaultBranch),
		writable: true,
	}
	for _, apply := range opts {
		apply(s)
	}
	metrics, err := newMetrics(s.reg)
	if err != nil {
		return nil, err
	}
	s.metrics = metrics

	session, err := s.open(ctx, s.initial, s.writable)
	if err != nil {
		return nil, err
	}
	s.session = session
	return s, nil
}

// open a new session, leaving the active one untouched
func (s *Store) open(ctx context.Context, ref model.VersionRef, writable bool) (engine.Session, error) {
	var (
		session engine.Session
		err     error
	)
	if writable {
		if ref.Kind != model.VersionBranch && ref.Kind != model.VersionAny {
			return nil, status.ErrInvalidRef.Wrapf("writable sessions require a branch, not %s", ref)
		}
		session, err = s.repo.WritableSession(ctx, ref.Name)
	} else {
		session, err = s.repo.ReadonlySession(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	s.metrics.sessionOpened(writable)
	s.l.Info("session opened",
		zap.Stringer("version", ref),
		zap.Bool("writable", writable),
		zap.String("snapshot", session.SnapshotID().String()),
	)
	return session, nil
}

// reading runs a read under the shared lock
func (s *Store) reading(fn func(engine.Session) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return status.ErrClosed
	}
	return fault(fn(s.session))
}

// writing runs a mutation under the exclusive lock
func (s *Store) writing(fn func(engine.Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return status.ErrClosed
	}
	return fault(fn(s.session))
}

// fault wraps errors from outside the status taxonomy as engine failures
func fault(err error) error {
	var known *errors.Error
	if err == nil || errors.As(err, &known) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return status.ErrEngine.Wrap(err)
}

func (s *Store) done(op, key string, start time.Time, found bool, err error) {
	s.metrics.observe(op, start, found, err)
	if ce := s.l.Check(zap.DebugLevel, op); ce != nil {
		ce.Write(zap.String("key", key), zap.Bool("found", found), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	}
}

// getRange reads a range, reporting absent keys with found = false
func (s *Store) getRange(ctx context.Context, op, key string, rng model.ByteRange) (value []byte, found bool, err error) {
	start := time.Now()
	defer func() { s.done(op, key, start, found, err) }()

	native, err := nativeKey(key)
	if err != nil {
		return nil, false, err
	}
	err = s.reading(func(session engine.Session) error {
		var e error
		value, e = session.Get(ctx, native, rng)
		return e
	})
	return absent(value, err)
}

func absent[T any](value T, err error) (T, bool, error) {
	var zero T
	switch {
	case err == nil:
		return value, true, nil
	case errors.Is(err, status.ErrNotFound):
		return zero, false, nil
	default:
		return zero, false, err
	}
}

// Get the value of a key
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.getRange(ctx, "get", key, model.FullRange)
}

// GetRange reads length bytes from offset, or up to the end when length is nil.
//
// A range overrunning the end of the value is clamped. An offset beyond the end fails with status.ErrRange.
func (s *Store) GetRange(ctx context.Context, key string, offset uint64, length *uint64) ([]byte, bool, error) {
	rng := model.RangeFrom(offset)
	if length != nil {
		rng = model.RangeOf(offset, *length)
	}
	return s.getRange(ctx, "get_range", key, rng)
}

// GetPartialValues reads several ranges of the same value concurrently.
//
// Results are in the order of the requested ranges.
func (s *Store) GetPartialValues(ctx context.Context, key string, ranges []model.ByteRange) (values [][]byte, found bool, err error) {
	start := time.Now()
	defer func() { s.done("get_partial_values", key, start, found, err) }()

	native, err := nativeKey(key)
	if err != nil {
		return nil, false, err
	}
	err = s.reading(func(session engine.Session) error {
		if len(ranges) == 0 {
			_, e := sizeOf(ctx, session, native)
			values = [][]byte{}
			return e
		}
		values = make([][]byte, len(ranges))
		grp, gctx := errgroup.WithContext(ctx)
		for i, rng := range ranges {
			grp.Go(func() error {
				value, e := session.Get(gctx, native, rng)
				values[i] = value
				return e
			})
		}
		return grp.Wait()
	})
	return absent(values, err)
}

// Set the value of a key
func (s *Store) Set(ctx context.Context, key string, value []byte) (err error) {
	start := time.Now()
	defer func() { s.done("set", key, start, true, err) }()

	native, err := nativeKey(key)
	if err != nil {
		return err
	}
	return s.writing(func(session engine.Session) error {
		return session.Set(ctx, native, value)
	})
}

// Delete a key. Deleting an absent key succeeds.
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { s.done("delete", key, start, true, err) }()

	native, err := nativeKey(key)
	if err != nil {
		return err
	}
	return s.writing(func(session engine.Session) error {
		return session.Delete(ctx, native)
	})
}

// ErasePrefix deletes all keys under a prefix
func (s *Store) ErasePrefix(ctx context.Context, prefix string) (err error) {
	start := time.Now()
	defer func() { s.done("erase_prefix", prefix, start, true, err) }()

	native, err := nativePrefix(prefix)
	if err != nil {
		return err
	}
	return s.writing(func(session engine.Session) error {
		var keys []string
		for key, e := range session.List(ctx, native) {
			if e != nil {
				return e
			}
			keys = append(keys, key)
		}
		for _, key := range keys {
			if e := session.Delete(ctx, key); e != nil {
				return e
			}
		}
		return nil
	})
}

// Exists tells if a key is present
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, found, err := s.size(ctx, "exists", key)
	return found, err
}

// Size of the value of a key
func (s *Store) Size(ctx context.Context, key string) (uint64, bool, error) {
	return s.size(ctx, "size", key)
}

func (s *Store) size(ctx context.Context, op, key string) (size uint64, found bool, err error) {
	start := time.Now()
	defer func() { s.done(op, key, start, found, err) }()

	native, err := nativeKey(key)
	if err != nil {
		return 0, false, err
	}
	err = s.reading(func(session engine.Session) error {
		var e error
		size, e = sizeOf(ctx, session, native)
		return e
	})
	return absent(size, err)
}

func sizeOf(ctx context.Context, session engine.Session, native string) (uint64, error) {
	if sizer, ok := session.(engine.Sizer); ok {
		return sizer.Size(ctx, native)
	}
	value, err := session.Get(ctx, native, model.FullRange)
	return uint64(len(value)), err
}

// SizePrefix sums the sizes of the values under a prefix
func (s *Store) SizePrefix(ctx context.Context, prefix string) (total uint64, err error) {
	start := time.Now()
	defer func() { s.done("size_prefix", prefix, start, true, err) }()

	native, err := nativePrefix(prefix)
	if err != nil {
		return 0, err
	}
	err = s.reading(func(session engine.Session) error {
		for key, e := range session.List(ctx, native) {
			if e != nil {
				return e
			}
			size, e := sizeOf(ctx, session, key)
			if e != nil {
				return e
			}
			total += size
		}
		return nil
	})
	return total, err
}

// TotalSize sums the sizes of all values
func (s *Store) TotalSize(ctx context.Context) (uint64, error) {
	return s.SizePrefix(ctx, "")
}

// List all keys, in lexicographic order
func (s *Store) List(ctx context.Context) iter.Seq2[string, error] {
	return s.list(ctx, "list", "")
}

// ListPrefix lists the keys starting with a prefix. The prefix is empty or ends with "/".
func (s *Store) ListPrefix(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return s.list(ctx, "list_prefix", prefix)
}

// list captures the state of the session when called: later changes are not reflected
func (s *Store) list(ctx context.Context, op, prefix string) iter.Seq2[string, error] {
	start := time.Now()
	native, err := nativePrefix(prefix)
	var keys iter.Seq2[string, error]
	if err == nil {
		err = s.reading(func(session engine.Session) error {
			keys = session.List(ctx, native)
			return nil
		})
	}
	s.done(op, prefix, start, true, err)

	return func(yield func(string, error) bool) {
		if err != nil {
			yield("", err)
			return
		}
		for key, e := range keys {
			if e != nil {
				yield("", fault(e))
				return
			}
			if !yield(logicalKey(key), nil) {
				return
			}
		}
	}
}

// ListDir lists the immediate children of a prefix, without recursing.
//
// Keys are listed as is, and intermediate directories as prefixes ending with "/".
func (s *Store) ListDir(ctx context.Context, prefix string) iter.Seq2[string, error] {
	keys := s.list(ctx, "list_dir", prefix)

	return func(yield func(string, error) bool) {
		var last string
		for key, err := range keys {
			if err != nil {
				yield("", err)
				return
			}
			child := key
			if i := strings.Index(key[len(prefix):], sep); i >= 0 {
				child = key[:len(prefix)+i+1]
				if child == last {
					// keys sharing a prefix are listed contiguously
					continue
				}
			}
			last = child
			if !yield(child, nil) {
				return
			}
		}
	}
}
