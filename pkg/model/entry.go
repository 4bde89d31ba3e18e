package model

import (
	"encoding/hex"
	"sort"
	"time"

	units "github.com/docker/go-units"
	blake2b "github.com/minio/blake2b-simd"
)

// Entry of a snapshot manifest: a key and the address of its content
type Entry struct {
	Path  string    `json:"path" yaml:"path"`
	Hash  string    `json:"hash" yaml:"hash"`
	Size  uint64    `json:"size" yaml:"size"`
	Mtime time.Time `json:"mtime" yaml:"mtime"`
	_     struct{}
}

// Entries represent a collection of entries
type Entries []Entry

// ContentHash computes the content address of a value
func ContentHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Hash the entries into a single tree hash.
//
// The hash does not depend on the order of the entries.
func (entries Entries) Hash() (string, error) {
	hasher, err := blake2b.New(&blake2b.Config{
		Size: 64,
		Tree: &blake2b.Tree{
			Fanout:        0,
			MaxDepth:      2,
			LeafSize:      5 * units.MiB,
			NodeOffset:    0,
			NodeDepth:     1,
			InnerHashSize: 64,
			IsLastNode:    true,
		},
	})
	if err != nil {
		return "", err
	}

	for _, entry := range entries.Sorted() {
		//#nosec
		_, _ = hasher.Write([]byte(entry.Path))
		_, _ = hasher.Write([]byte{0})
		_, _ = hasher.Write([]byte(entry.Hash))
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Sorted returns a copy of the entries, ordered by path
func (entries Entries) Sorted() Entries {
	sorted := make(Entries, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	return sorted
}
