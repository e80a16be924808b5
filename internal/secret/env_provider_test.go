package secret

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvProvider_CanResolve(t *testing.T) {
	provider := NewEnvProvider()

	assert.True(t, provider.CanResolve("env"))
	assert.False(t, provider.CanResolve("keyring"))
	assert.True(t, provider.IsAvailable())
}

func TestEnvProvider_Resolve(t *testing.T) {
	provider := NewEnvProvider()
	ctx := context.Background()

	t.Run("existing environment variable", func(t *testing.T) {
		t.Setenv("LOGINFRONT_TEST_SECRET", "test-secret-value")

		result, err := provider.Resolve(ctx, Ref{Type: "env", Name: "LOGINFRONT_TEST_SECRET"})
		assert.NoError(t, err)
		assert.Equal(t, "test-secret-value", result)
	})

	t.Run("empty environment variable", func(t *testing.T) {
		t.Setenv("LOGINFRONT_EMPTY", "")

		_, err := provider.Resolve(ctx, Ref{Type: "env", Name: "LOGINFRONT_EMPTY"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not found or empty")
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := provider.Resolve(ctx, Ref{Type: "keyring", Name: "x"})
		assert.Error(t, err)
	})
}

func TestEnvProvider_StoreAndDeleteUnsupported(t *testing.T) {
	provider := NewEnvProvider()
	assert.Error(t, provider.Store(context.Background(), Ref{Type: "env", Name: "X"}, "v"))
	assert.Error(t, provider.Delete(context.Background(), Ref{Type: "env", Name: "X"}))
}
