// Package secret expands ${type:name} references in configuration values,
// e.g. ${env:ADMIN_PASSWORD} or ${keyring:vault-token}.
package secret

import (
	"context"
)

// Ref is a parsed secret reference.
type Ref struct {
	Type     string // env or keyring
	Name     string // variable name or keyring item
	Original string // reference text as written
}

// Provider resolves references of one type.
type Provider interface {
	// CanResolve returns true if this provider can handle the given secret type
	CanResolve(secretType string) bool

	// Resolve retrieves the actual secret value
	Resolve(ctx context.Context, ref Ref) (string, error)

	// Store saves a secret (if supported by the provider)
	Store(ctx context.Context, ref Ref, value string) error

	// Delete removes a secret (if supported by the provider)
	Delete(ctx context.Context, ref Ref) error

	// IsAvailable checks if the provider is available on the current system
	IsAvailable() bool
}

// Resolver manages secret resolution using multiple providers
type Resolver struct {
	providers map[string]Provider
}
