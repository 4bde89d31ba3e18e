// Copyright © 2018 One Concern

package storage

import (
	"context"
	"io"
)

const (
	// Exclusive puts fail when the target object already exists
	Exclusive = true
	// OverWrite puts silently replace an existing object
	OverWrite = false
)

// ReadAtCloser reads an object at random offsets. It must be closed after use.
type ReadAtCloser interface {
	io.ReaderAt
	io.Closer
}

// Store implementations know how to write blobs to a K/V model.
//
// Typically this is something file system-like. Examples are S3, local FS, NFS, ...
// Implementations of this interface are assumed to be fairly simple.
//
// A missing object is reported as status.ErrNotFound.
type Store interface {
	String() string
	Has(context.Context, string) (bool, error)
	Get(context.Context, string) (io.ReadCloser, error)
	GetAt(context.Context, string) (ReadAtCloser, error)
	Put(context.Context, string, io.Reader, bool) error
	Delete(context.Context, string) error
	Keys(context.Context) ([]string, error)
}

// PathForHash lays out content-addressed keys in a 2-level fan out, e.g. "chunks/ab/abcdef..."
func PathForHash(hash string) string {
	const prefix = "chunks/"
	if len(hash) < 2 {
		return prefix + hash
	}
	return prefix + hash[:2] + "/" + hash
}
