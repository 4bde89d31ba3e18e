// Package store describes the persistence of version metadata: snapshot manifests and refs (branches and tags).
package store

import (
	"context"

	"github.com/oneconcern/vkv/pkg/model"
)

// Store contains the common methods between all stores
type Store interface {
	Initialize() error
	Close() error
}

// A RefStore manages the named pointers to snapshots.
//
// Branches move, tags never do.
type RefStore interface {
	ListBranches(context.Context) ([]string, error)
	GetBranch(context.Context, string) (model.SnapshotID, error)
	CreateBranch(context.Context, string, model.SnapshotID) error
	DeleteBranch(context.Context, string) error

	ListTags(context.Context) ([]string, error)
	GetTag(context.Context, string) (model.SnapshotID, error)
	CreateTag(context.Context, string, model.SnapshotID) error
}

// A SnapshotStore manages immutable snapshot manifests
type SnapshotStore interface {
	GetSnapshot(context.Context, model.SnapshotID) (*model.Snapshot, error)
	CreateSnapshot(context.Context, *model.Snapshot) error
}

// A MetaStore persists all version metadata for a repository
type MetaStore interface {
	Store
	RefStore
	SnapshotStore

	// Commit stores a new snapshot and advances a branch to it, atomically.
	//
	// The branch must still point to the expected snapshot, otherwise status.ErrConflict is returned
	// and nothing is written.
	Commit(ctx context.Context, branch string, expected model.SnapshotID, snapshot *model.Snapshot) error
}
