package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesSentinelByCode(t *testing.T) {
	err := NotFound("video not found")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrPermissionDenied))
}

func TestWrappedErrorKeepsCode(t *testing.T) {
	inner := Storage("failed to grant permission", errors.New("driver: bad connection"))
	wrapped := fmt.Errorf("grant: %w", inner)

	assert.Equal(t, CodeStorageFailure, CodeOf(wrapped))
	assert.True(t, errors.Is(wrapped, ErrStorageFailure))
	// The driver detail stays inside the chain, not in the user message.
	assert.Equal(t, "failed to grant permission", MessageOf(wrapped))
}

func TestCodeOfUnclassifiedError(t *testing.T) {
	err := errors.New("something broke")
	assert.Equal(t, CodeStorageFailure, CodeOf(err))
	assert.Equal(t, "internal error", MessageOf(err))
}

func TestStorageUnwrapsToCause(t *testing.T) {
	cause := errors.New("timeout")
	err := Storage("failed to read cache", cause)
	assert.True(t, errors.Is(err, cause))
}
