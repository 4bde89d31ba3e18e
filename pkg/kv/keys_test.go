package kv

import (
	"testing"

	"github.com/oneconcern/vkv/pkg/errors"
	"github.com/oneconcern/vkv/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNativeKey(t *testing.T) {
	for _, key := range []string{"zarr.json", "a/b/c", "group/array/c/0/0", "é/ü", "a.b/.zattrs"} {
		native, err := nativeKey(key)
		require.NoError(t, err, key)
		assert.Equal(t, "/"+key, native)
		assert.Equal(t, key, logicalKey(native))
	}

	for _, key := range []string{"", "/a", "a/", "a//b", "a/./b", "../a", "a/..", "a\\b", "a\x00b", "a\nb", string([]byte{0xff, 0xfe})} {
		_, err := nativeKey(key)
		assert.True(t, errors.Is(err, status.ErrInvalidKey), "expected %q to be rejected", key)
	}
}

func TestNativePrefix(t *testing.T) {
	native, err := nativePrefix("")
	require.NoError(t, err)
	assert.Equal(t, "/", native)

	native, err = nativePrefix("a/b/")
	require.NoError(t, err)
	assert.Equal(t, "/a/b/", native)

	for _, prefix := range []string{"a", "/", "/a/", "a//", "./"} {
		_, err = nativePrefix(prefix)
		assert.True(t, errors.Is(err, status.ErrInvalidKey), "expected %q to be rejected", prefix)
	}
}
