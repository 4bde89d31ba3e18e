package model

import (
	"time"

	"github.com/oneconcern/vkv/pkg/status"
)

// Snapshot represents an immutable version of the store, with its full manifest
type Snapshot struct {
	ID        SnapshotID `json:"id" yaml:"id"`
	Parent    SnapshotID `json:"parent,omitempty" yaml:"parent,omitempty"`
	Message   string     `json:"message,omitempty" yaml:"message,omitempty"`
	Timestamp time.Time  `json:"timestamp" yaml:"timestamp"`
	TreeHash  string     `json:"tree" yaml:"tree"`
	Entries   Entries    `json:"entries,omitempty" yaml:"entries,omitempty"`
	_         struct{}
}

// Info returns a copy of the snapshot descriptor, without the manifest
func (s *Snapshot) Info() Snapshot {
	return Snapshot{
		ID:        s.ID,
		Parent:    s.Parent,
		Message:   s.Message,
		Timestamp: s.Timestamp,
		TreeHash:  s.TreeHash,
	}
}

// Verify the tree hash of the snapshot against its manifest
func (s *Snapshot) Verify() error {
	hash, err := s.Entries.Hash()
	if err != nil {
		return status.ErrEngine.Wrap(err)
	}
	if hash != s.TreeHash {
		return status.ErrEngine.Wrapf("snapshot %s: tree hash mismatch", s.ID)
	}
	return nil
}
