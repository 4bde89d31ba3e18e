package model

import (
	"testing"

	"github.com/oneconcern/vkv/pkg/errors"
	"github.com/oneconcern/vkv/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotVerify(t *testing.T) {
	entries := Entries{{Path: "/a", Hash: ContentHash([]byte("x")), Size: 1}}
	hash, err := entries.Hash()
	require.NoError(t, err)

	snapshot := &Snapshot{ID: NewSnapshotID(), TreeHash: hash, Entries: entries}
	require.NoError(t, snapshot.Verify())

	snapshot.Entries = append(Entries{{Path: "/b", Hash: ContentHash([]byte("y")), Size: 1}}, entries...)
	err = snapshot.Verify()
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrEngine))
	assert.Contains(t, err.Error(), "tree hash mismatch")

	info := snapshot.Info()
	assert.Empty(t, info.Entries)
	assert.Equal(t, snapshot.TreeHash, info.TreeHash)
}
