package model

import (
	"testing"

	"github.com/oneconcern/vkv/pkg/errors"
	"github.com/oneconcern/vkv/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotID(t *testing.T) {
	a := NewSnapshotID()
	b := NewSnapshotID()
	require.NotEqual(t, a, b)
	assert.False(t, a.IsZero())
	assert.True(t, SnapshotID("").IsZero())

	parsed, err := ParseSnapshotID(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	_, err = ParseSnapshotID("main")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrInvalidRef))
}

func TestParseVersionRef(t *testing.T) {
	id := NewSnapshotID()

	for _, toPin := range []struct {
		input    string
		expected VersionRef
	}{
		{input: "main", expected: VersionRef{Kind: VersionAny, Name: "main"}},
		{input: "branch:dev/feature", expected: BranchVersion("dev/feature")},
		{input: "tag:v1.0", expected: TagVersion("v1.0")},
		{input: "snapshot:" + id.String(), expected: SnapshotVersion(id)},
	} {
		fixture := toPin
		t.Run(fixture.input, func(t *testing.T) {
			ref, err := ParseVersionRef(fixture.input)
			require.NoError(t, err)
			assert.Equal(t, fixture.expected, ref)
			assert.Equal(t, fixture.input, ref.String())
		})
	}

	for _, bad := range []string{"", "  ", "tag:", "branch:/x", "a//b", "snapshot:nope", "white space", "x:y"} {
		_, err := ParseVersionRef(bad)
		assert.Truef(t, errors.Is(err, status.ErrInvalidRef), "expected %q to be rejected", bad)
	}
}
