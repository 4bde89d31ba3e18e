package model

import (
	"testing"

	"github.com/oneconcern/vkv/pkg/errors"
	"github.com/oneconcern/vkv/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteRangeSlice(t *testing.T) {
	value := []byte("0123456789")

	for _, toPin := range []struct {
		name     string
		rng      ByteRange
		expected string
	}{
		{name: "full", rng: FullRange, expected: "0123456789"},
		{name: "from offset", rng: RangeFrom(4), expected: "456789"},
		{name: "bounded", rng: RangeOf(2, 3), expected: "234"},
		{name: "clamped", rng: RangeOf(7, 100), expected: "789"},
		{name: "at end", rng: RangeFrom(10), expected: ""},
		{name: "empty length", rng: RangeOf(3, 0), expected: ""},
		{name: "suffix", rng: LastBytes(3), expected: "789"},
		{name: "suffix larger than value", rng: LastBytes(30), expected: "0123456789"},
		{name: "suffix from the end", rng: RangeFromEnd(0, 2), expected: "89"},
	} {
		fixture := toPin
		t.Run(fixture.name, func(t *testing.T) {
			b, err := fixture.rng.Slice(value)
			require.NoError(t, err)
			assert.Equal(t, fixture.expected, string(b))
		})
	}
}

func TestByteRangeOutOfBounds(t *testing.T) {
	_, err := RangeFrom(11).Slice([]byte("0123456789"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrRange))

	_, err = RangeOf(1, 1).Slice(nil)
	assert.True(t, errors.Is(err, status.ErrRange))
}

func TestByteRangeFromEndWithOffset(t *testing.T) {
	_, _, err := RangeFromEnd(2, 3).Bounds(10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotSupported))
	assert.False(t, errors.Is(err, status.ErrRange))
}

func TestByteRangeString(t *testing.T) {
	assert.True(t, FullRange.IsFull())
	assert.False(t, RangeOf(0, 1).IsFull())
	assert.Equal(t, "bytes=0-", FullRange.String())
	assert.Equal(t, "bytes=2+3", RangeOf(2, 3).String())
	assert.Equal(t, "bytes=-4", LastBytes(4).String())
	assert.Equal(t, "bytes=-2-4", RangeFromEnd(2, 4).String())
}
