// Package engine implements a versioned, transactional key/value engine.
//
// A Repository holds immutable snapshots and named refs pointing to them: branches move on commit, tags never do.
// Reads and writes go through a Session, opened either read-only at any version, or writable at the tip of a branch.
//
// Pending writes live in the session until Commit, which atomically appends a new snapshot to the branch.
// A commit fails with status.ErrConflict when the branch advanced since the session was opened.
package engine

import (
	"context"
	"iter"

	"github.com/oneconcern/vkv/pkg/model"
)

// Repository manages the versions of a store
type Repository interface {
	// ReadonlySession opens a session pinned to a version
	ReadonlySession(context.Context, model.VersionRef) (Session, error)

	// WritableSession opens a session at the tip of a branch
	WritableSession(context.Context, string) (Session, error)

	// CreateBranch creates a branch pointing to the resolved version
	CreateBranch(context.Context, string, model.VersionRef) (model.SnapshotID, error)

	// DeleteBranch removes a branch. Its snapshots remain reachable by id until pruned.
	DeleteBranch(context.Context, string) error

	// CreateTag creates an immutable tag pointing to a snapshot
	CreateTag(context.Context, string, model.SnapshotID) error

	Resolve(context.Context, model.VersionRef) (model.SnapshotID, error)
	ListBranches(context.Context) ([]string, error)
	ListTags(context.Context) ([]string, error)

	// Ancestry walks the history of a snapshot, from the snapshot itself to the initial one
	Ancestry(context.Context, model.SnapshotID) iter.Seq2[model.Snapshot, error]

	// Prune removes the stored content no longer referred to by the history of any branch, tag
	// or kept snapshot, and returns the number of chunks removed.
	//
	// Commits in the same process wait for the end of a prune.
	Prune(ctx context.Context, keep ...model.SnapshotID) (int, error)

	Close() error
}

// Session is a view of the repository at one version, with pending changes.
//
// Keys are opaque to a session: they are compared as bytes and listed in lexicographic order.
// A session is safe for concurrent use.
type Session interface {
	ReadOnly() bool

	// Branch is the branch a writable session commits to. It is empty for read-only sessions.
	Branch() string

	// SnapshotID is the snapshot the session was opened on, or last committed
	SnapshotID() model.SnapshotID

	// Get the bytes of a value. A missing key is reported as status.ErrNotFound.
	Get(context.Context, string, model.ByteRange) ([]byte, error)
	Set(context.Context, string, []byte) error

	// Delete a key. Deleting a missing key is not an error.
	Delete(context.Context, string) error

	// List keys starting with a prefix, as of the time List is called
	List(context.Context, string) iter.Seq2[string, error]

	Commit(context.Context, string) (model.SnapshotID, error)
	HasUncommittedChanges() bool

	// Reset discards all pending changes
	Reset()
}

// Sizer is implemented by sessions able to tell the size of a value without reading it
type Sizer interface {
	Size(context.Context, string) (uint64, error)
}
