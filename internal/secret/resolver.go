package secret

import (
	"context"
	"fmt"
)

// NewResolver creates a resolver with the env and keyring providers.
func NewResolver() *Resolver {
	r := &Resolver{
		providers: make(map[string]Provider),
	}

	r.RegisterProvider(SecretTypeEnv, NewEnvProvider())
	r.RegisterProvider(SecretTypeKeyring, NewKeyringProvider())

	return r
}

// RegisterProvider registers a new secret provider
func (r *Resolver) RegisterProvider(secretType string, provider Provider) {
	r.providers[secretType] = provider
}

// Resolve resolves a single secret reference
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (string, error) {
	provider, err := r.provider(ref.Type)
	if err != nil {
		return "", err
	}
	if !provider.CanResolve(ref.Type) {
		return "", fmt.Errorf("provider cannot resolve secret type: %s", ref.Type)
	}
	return provider.Resolve(ctx, ref)
}

// Store stores a secret using the appropriate provider
func (r *Resolver) Store(ctx context.Context, ref Ref, value string) error {
	provider, err := r.provider(ref.Type)
	if err != nil {
		return err
	}
	return provider.Store(ctx, ref, value)
}

// Delete deletes a secret using the appropriate provider
func (r *Resolver) Delete(ctx context.Context, ref Ref) error {
	provider, err := r.provider(ref.Type)
	if err != nil {
		return err
	}
	return provider.Delete(ctx, ref)
}

// ExpandFields expands references in each field in place. It stops at the
// first failure so a missing secret fails startup.
func (r *Resolver) ExpandFields(ctx context.Context, fields map[string]*string) error {
	for name, field := range fields {
		if field == nil || !IsRef(*field) {
			continue
		}
		expanded, err := r.ExpandRefs(ctx, *field)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*field = expanded
	}
	return nil
}

func (r *Resolver) provider(secretType string) (Provider, error) {
	provider, exists := r.providers[secretType]
	if !exists {
		return nil, fmt.Errorf("no provider for secret type: %s", secretType)
	}
	if !provider.IsAvailable() {
		return nil, fmt.Errorf("provider for %s is not available on this system", secretType)
	}
	return provider, nil
}
