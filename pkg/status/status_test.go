package status

import (
	"fmt"
	"testing"

	"github.com/oneconcern/vkv/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestSentinelsAreDistinct(t *testing.T) {
	all := []error{
		ErrInvalidKey, ErrNotFound, ErrRange, ErrReadOnlySession, ErrConflict, ErrEmptyCommit,
		ErrBranchExists, ErrTagExists, ErrInvalidRef, ErrEngine, ErrClosed, ErrNotSupported,
	}
	for i, a := range all {
		for j, b := range all {
			assert.Equalf(t, i == j, errors.Is(a, b), "%v vs %v", a, b)
		}
	}
}

func TestEngineFailureKeepsDiagnostic(t *testing.T) {
	cause := fmt.Errorf("checksum mismatch on chunk %d", 42)
	err := ErrEngine.Wrap(cause)
	assert.True(t, errors.Is(err, ErrEngine))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "checksum mismatch on chunk 42")
}
