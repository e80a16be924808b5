// Package credential holds the client secret value shared between the
// lifecycle manager and the request path, plus the failure taxonomy used by
// every component that talks to the identity provider or the secret store.
package credential

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide how to react without
// inspecting error strings.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindAuth
	KindNotFound
	KindMalformed
	KindStoreUnavailable
)

// String returns the stable label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport_failure"
	case KindAuth:
		return "auth_failure"
	case KindNotFound:
		return "not_found"
	case KindMalformed:
		return "malformed_response"
	case KindStoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per Kind. Match with errors.Is.
var (
	ErrTransport        = errors.New("transport failure")
	ErrAuth             = errors.New("authentication failure")
	ErrNotFound         = errors.New("not found")
	ErrMalformed        = errors.New("malformed response")
	ErrStoreUnavailable = errors.New("secret store unavailable")
)

func (k Kind) sentinel() error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindAuth:
		return ErrAuth
	case KindNotFound:
		return ErrNotFound
	case KindMalformed:
		return ErrMalformed
	case KindStoreUnavailable:
		return ErrStoreUnavailable
	default:
		return nil
	}
}

// Error is a classified failure of a single operation.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "get_admin_token"
	Err  error  // underlying cause, may be nil
}

// NewError builds a classified error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
