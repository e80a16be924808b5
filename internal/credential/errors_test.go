package credential

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKindSentinel(t *testing.T) {
	tests := []struct {
		kind     Kind
		sentinel error
		label    string
	}{
		{KindTransport, ErrTransport, "transport_failure"},
		{KindAuth, ErrAuth, "auth_failure"},
		{KindNotFound, ErrNotFound, "not_found"},
		{KindMalformed, ErrMalformed, "malformed_response"},
		{KindStoreUnavailable, ErrStoreUnavailable, "store_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			err := NewError(tt.kind, "op", errors.New("boom"))
			assert.True(t, errors.Is(err, tt.sentinel))
			assert.Equal(t, tt.label, tt.kind.String())

			wrapped := fmt.Errorf("step failed: %w", err)
			assert.True(t, errors.Is(wrapped, tt.sentinel))
			assert.Equal(t, tt.kind, KindOf(wrapped))
		})
	}
}

func TestError_DoesNotMatchOtherSentinels(t *testing.T) {
	err := NewError(KindAuth, "get_admin_token", nil)
	assert.False(t, errors.Is(err, ErrTransport))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "get_admin_token: auth_failure", err.Error())
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Errorf(KindTransport, "resolve_client", "GET clients: %w", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "resolve_client: transport_failure: GET clients: connection refused")
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, "unknown", KindUnknown.String())
}
