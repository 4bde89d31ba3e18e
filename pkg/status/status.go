// Package status declares the error kinds returned by the versioned engine
// and by the key/value adapter built on top of it.
//
// NOTE: such constants are located in a separate package to avoid
// creating undue cyclical dependencies between pkg/kv, pkg/engine and
// the metadata stores.
package status

import "github.com/oneconcern/vkv/pkg/errors"

var (
	// ErrInvalidKey indicates a malformed logical path. It is raised before any engine call.
	ErrInvalidKey = errors.New("invalid key")

	// ErrNotFound indicates an absent key, snapshot or ref.
	//
	// The adapter reports absent keys as a normal outcome and never returns this error from Get, GetRange or Size.
	ErrNotFound = errors.New("not found")

	// ErrRange indicates a byte range starting beyond the end of the stored value
	ErrRange = errors.New("byte range out of bounds")

	// ErrReadOnlySession indicates a mutation attempted on a read-only session
	ErrReadOnlySession = errors.New("session is read-only")

	// ErrConflict indicates that the branch advanced since the session was opened
	ErrConflict = errors.New("branch advanced concurrently: conflict")

	// ErrEmptyCommit indicates a commit without any pending change
	ErrEmptyCommit = errors.New("nothing to commit")

	// ErrBranchExists indicates a branch name collision
	ErrBranchExists = errors.New("branch already exists")

	// ErrTagExists indicates a tag name collision. Tags never move.
	ErrTagExists = errors.New("tag already exists")

	// ErrInvalidRef indicates a malformed branch, tag or snapshot name
	ErrInvalidRef = errors.New("invalid version reference")

	// ErrEngine wraps any lower level I/O, corruption or serialization fault
	ErrEngine = errors.New("engine failure")

	// ErrClosed indicates an operation on a disposed adapter or engine
	ErrClosed = errors.New("store is closed")

	// ErrNotSupported indicates a request the engine cannot serve
	ErrNotSupported = errors.New("not supported")
)
