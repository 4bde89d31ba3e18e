package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathForHash(t *testing.T) {
	assert.Equal(t, "chunks/ab/abcdef", PathForHash("abcdef"))
	assert.Equal(t, "chunks/a", PathForHash("a"))
}
