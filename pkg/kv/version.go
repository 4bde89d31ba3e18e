package kv

import (
	"context"
	"iter"
	"time"

	"github.com/oneconcern/vkv/pkg/engine"
	"github.com/oneconcern/vkv/pkg/model"
	"github.com/oneconcern/vkv/pkg/status"
	"go.uber.org/zap"
)

// Commit the pending changes as a new snapshot on the current branch.
//
// On status.ErrConflict the active session is left unchanged: the caller must check out the branch again
// and reapply its changes.
func (s *Store) Commit(ctx context.Context, message string) (id model.SnapshotID, err error) {
	start := time.Now()
	defer func() { s.done("commit", message, start, true, err) }()

	err = s.writing(func(session engine.Session) error {
		if session.ReadOnly() {
			return status.ErrReadOnlySession.Wrapf("cannot commit on snapshot %s", session.SnapshotID())
		}
		if !session.HasUncommittedChanges() && s.emptyCommit == AllowEmptyCommit {
			id = session.SnapshotID()
		} else {
			var e error
			if id, e = session.Commit(ctx, message); e != nil {
				return e
			}
			s.l.Info("committed", zap.String("branch", session.Branch()), zap.String("snapshot", id.String()))
		}

		if s.afterCommit == AfterCommitWritable {
			return nil
		}
		next, e := s.open(ctx, model.SnapshotVersion(id), false)
		if e != nil {
			// the commit is durable, the branch session stays active
			s.l.Warn("could not reopen committed snapshot", zap.String("snapshot", id.String()), zap.Error(e))
			return nil
		}
		s.session = next
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Checkout replaces the active session with one at another version.
//
// The new session is read-only, unless Writable is passed with a branch. Pending changes are discarded.
func (s *Store) Checkout(ctx context.Context, ref model.VersionRef, opts ...CheckoutOption) (err error) {
	start := time.Now()
	defer func() { s.done("checkout", ref.String(), start, true, err) }()

	var o checkoutOptions
	for _, apply := range opts {
		apply(&o)
	}
	if err = ref.Validate(); err != nil {
		return err
	}

	return s.writing(func(session engine.Session) error {
		next, e := s.open(ctx, ref, o.writable)
		if e != nil {
			return e
		}
		if session.HasUncommittedChanges() {
			s.l.Warn("checkout discards uncommitted changes",
				zap.String("snapshot", session.SnapshotID().String()),
				zap.Stringer("version", ref),
			)
		}
		s.session = next
		return nil
	})
}

// NewBranch creates a branch at a version. The zero version stands for the current snapshot.
func (s *Store) NewBranch(ctx context.Context, name string, from model.VersionRef) (id model.SnapshotID, err error) {
	start := time.Now()
	defer func() { s.done("new_branch", name, start, true, err) }()

	err = s.writing(func(session engine.Session) error {
		if from == (model.VersionRef{}) {
			from = model.SnapshotVersion(session.SnapshotID())
		}
		var e error
		id, e = s.repo.CreateBranch(ctx, name, from)
		return e
	})
	return id, err
}

// DeleteBranch removes a branch.
//
// Neither the default branch nor the branch of the active session can be deleted.
func (s *Store) DeleteBranch(ctx context.Context, name string) (err error) {
	start := time.Now()
	defer func() { s.done("delete_branch", name, start, true, err) }()

	return s.writing(func(session engine.Session) error {
		if !session.ReadOnly() && session.Branch() == name {
			return status.ErrInvalidRef.Wrapf("cannot delete the current branch %q", name)
		}
		return s.repo.DeleteBranch(ctx, name)
	})
}

// Tag a snapshot. The zero id stands for the current snapshot.
func (s *Store) Tag(ctx context.Context, name string, id model.SnapshotID) (err error) {
	start := time.Now()
	defer func() { s.done("tag", name, start, true, err) }()

	return s.writing(func(session engine.Session) error {
		if id.IsZero() {
			id = session.SnapshotID()
		}
		return s.repo.CreateTag(ctx, name, id)
	})
}

// CurrentBranch returns the branch of a writable session, and false when read-only
func (s *Store) CurrentBranch() (branch string, ok bool) {
	_ = s.reading(func(session engine.Session) error {
		branch, ok = session.Branch(), !session.ReadOnly()
		return nil
	})
	return
}

// SnapshotID of the active session
func (s *Store) SnapshotID() (id model.SnapshotID) {
	_ = s.reading(func(session engine.Session) error {
		id = session.SnapshotID()
		return nil
	})
	return
}

// CurrentVersion is the branch of a writable session, or the snapshot of a read-only one
func (s *Store) CurrentVersion() (ref model.VersionRef) {
	_ = s.reading(func(session engine.Session) error {
		if session.ReadOnly() {
			ref = model.SnapshotVersion(session.SnapshotID())
		} else {
			ref = model.BranchVersion(session.Branch())
		}
		return nil
	})
	return
}

// HasUncommittedChanges tells if the session holds pending changes
func (s *Store) HasUncommittedChanges() (dirty bool) {
	_ = s.reading(func(session engine.Session) error {
		dirty = session.HasUncommittedChanges()
		return nil
	})
	return
}

// Reset discards the pending changes
func (s *Store) Reset() error {
	return s.writing(func(session engine.Session) error {
		session.Reset()
		return nil
	})
}

// ListBranches of the repository
func (s *Store) ListBranches(ctx context.Context) (branches []string, err error) {
	err = s.reading(func(engine.Session) error {
		var e error
		branches, e = s.repo.ListBranches(ctx)
		return e
	})
	return
}

// ListTags of the repository
func (s *Store) ListTags(ctx context.Context) (tags []string, err error) {
	err = s.reading(func(engine.Session) error {
		var e error
		tags, e = s.repo.ListTags(ctx)
		return e
	})
	return
}

// Log walks the history of the current snapshot, most recent first
func (s *Store) Log(ctx context.Context) iter.Seq2[model.Snapshot, error] {
	var history iter.Seq2[model.Snapshot, error]
	err := s.reading(func(session engine.Session) error {
		history = s.repo.Ancestry(ctx, session.SnapshotID())
		return nil
	})

	return func(yield func(model.Snapshot, error) bool) {
		if err != nil {
			yield(model.Snapshot{}, err)
			return
		}
		for snapshot, e := range history {
			if !yield(snapshot, fault(e)) || e != nil {
				return
			}
		}
	}
}

// Prune removes the content which neither the history of a branch or tag, nor the active session refer to.
// It returns the number of chunks removed.
//
// Other stores sharing the repository must not be pinned to snapshots only they refer to.
func (s *Store) Prune(ctx context.Context) (removed int, err error) {
	start := time.Now()
	defer func() { s.done("prune", "", start, true, err) }()

	err = s.reading(func(session engine.Session) error {
		var e error
		removed, e = s.repo.Prune(ctx, session.SnapshotID())
		return e
	})
	return removed, err
}

// Close the store. Any later operation fails with status.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if s.session.HasUncommittedChanges() {
		s.l.Warn("closing with uncommitted changes", zap.String("snapshot", s.session.SnapshotID().String()))
	}
	s.closed = true
	s.session = nil
	if s.ownsRepo {
		return s.repo.Close()
	}
	return nil
}
