package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigError_IsConfiguration(t *testing.T) {
	err := NewConfigError("CHUNK_OVERLAP", "must be smaller than max size (got %d >= %d)", 200, 100)

	assert.True(t, IsConfiguration(err))
	assert.False(t, IsTransient(err))
	assert.Equal(t, "configuration error: CHUNK_OVERLAP: must be smaller than max size (got 200 >= 100)", err.Error())

	wrapped := fmt.Errorf("startup: %w", err)
	assert.True(t, IsConfiguration(wrapped))

	var cfgErr *ConfigError
	assert.True(t, errors.As(wrapped, &cfgErr))
	assert.Equal(t, "CHUNK_OVERLAP", cfgErr.Field)
}

func TestServiceError_IsTransientAndUnwraps(t *testing.T) {
	err := NewServiceError("embedding", "embed query", context.DeadlineExceeded)

	assert.True(t, IsTransient(err))
	assert.False(t, IsConfiguration(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "embedding: embed query failed")
}

func TestNewServiceError_KeepsConfigurationErrors(t *testing.T) {
	cfgErr := NewConfigError("OPENAI_EMBEDDING_DIMENSION", "expected 1536, got 3072")

	err := NewServiceError("embedding", "embed query", fmt.Errorf("embed: %w", cfgErr))

	assert.True(t, IsConfiguration(err))
	assert.False(t, IsTransient(err))
}

func TestNewServiceError_Nil(t *testing.T) {
	assert.NoError(t, NewServiceError("completion", "generate", nil))
}
