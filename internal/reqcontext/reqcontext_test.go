package reqcontext

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestIsValidRequestID(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{"UUID format", "a1b2c3d4-e5f6-7890-abcd-ef1234567890", true},
		{"Simple alphanumeric", "abc123", true},
		{"With underscores", "request_123_abc", true},
		{"Max length (256)", strings.Repeat("a", 256), true},
		{"Empty string", "", false},
		{"Too long (257)", strings.Repeat("a", 257), false},
		{"Contains space", "request 123", false},
		{"Contains angle brackets", "<script>", false},
		{"Contains newline", "abc\ndef", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidRequestID(tt.id))
		})
	}
}

func TestGetOrGenerateRequestID(t *testing.T) {
	assert.Equal(t, "client-supplied", GetOrGenerateRequestID("client-supplied"))

	generated := GetOrGenerateRequestID("bad id with spaces")
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)
	assert.NotEqual(t, GenerateRequestID(), GenerateRequestID())
}

func TestRequestIDContext(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))

	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", GetRequestID(ctx))
}

func TestLoggerContext(t *testing.T) {
	fallback := zap.NewExample()
	assert.Same(t, fallback, Logger(context.Background(), fallback))
	assert.NotNil(t, Logger(context.Background(), nil))

	scoped := zap.NewNop().Named("scoped")
	ctx := WithLogger(context.Background(), scoped)
	assert.Same(t, scoped, Logger(ctx, fallback))
}
