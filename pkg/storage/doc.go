// Copyright © 2018 One Concern

// Package storage provides interface to handle the backend storage of chunk blobs.
//
// Blobs are immutable and content-addressed: their key is derived from the hash of their content.
//
// This package supports the following backends:
//   - local file system, or any afero.Fs (e.g. an in-memory file system for tests)
package storage
