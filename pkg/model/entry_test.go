package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntriesHash(t *testing.T) {
	a := Entries{
		{Path: "/zarr.json", Hash: ContentHash([]byte("{}"))},
		{Path: "/array/c/0/0", Hash: ContentHash([]byte{1, 2, 3})},
	}
	b := Entries{a[1], a[0]}

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb, "tree hash should not depend on ordering")

	c := Entries{a[0]}
	hc, err := c.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)

	assert.Equal(t, "/array/c/0/0", a.Sorted()[0].Path)
	assert.Equal(t, "/zarr.json", a[0].Path, "Sorted should not reorder the receiver")
}

func TestContentHash(t *testing.T) {
	assert.Len(t, ContentHash([]byte("x")), 64)
	assert.Equal(t, ContentHash([]byte("x")), ContentHash([]byte("x")))
	assert.NotEqual(t, ContentHash([]byte("x")), ContentHash([]byte("y")))
}
