// Package store mirrors the current client secret into a versioned secret
// store. Writes are create-or-update at a fixed logical location.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smart-mcp-proxy/loginfront/internal/credential"
)

// Default location of the mirrored secret.
const (
	DefaultMount = "secret"
	DefaultPath  = "loginfront/client-secret"
	DefaultKey   = "client_secret"
)

// Operation names used in classified errors.
const (
	OpAuthenticate = "store_authenticate"
	OpPersist      = "store_persist"
)

// SecretStore persists secrets. Implementations must be safe for sequential
// use by a single writer; the rotation manager never calls Persist
// concurrently.
type SecretStore interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Persist writes secret as the newest version at the store's location.
	Persist(ctx context.Context, secret credential.Secret) (*WriteResult, error)
}

// WriteResult describes a completed write.
type WriteResult struct {
	Backend   string
	Path      string
	Version   int
	WrittenAt time.Time
}

// Location is where the secret lives inside the store.
type Location struct {
	Mount string
	Path  string
	Key   string
}

// WithDefaults fills empty fields with the package defaults.
func (l Location) WithDefaults() Location {
	if l.Mount == "" {
		l.Mount = DefaultMount
	}
	if l.Path == "" {
		l.Path = DefaultPath
	}
	if l.Key == "" {
		l.Key = DefaultKey
	}
	l.Mount = strings.Trim(l.Mount, "/")
	l.Path = strings.Trim(l.Path, "/")
	return l
}

// String renders the location as mount/path#key.
func (l Location) String() string {
	return fmt.Sprintf("%s/%s#%s", l.Mount, l.Path, l.Key)
}

func validateSecret(secret credential.Secret) error {
	if !secret.IsSet() {
		return credential.Errorf(credential.KindMalformed, OpPersist, "refusing to persist an empty secret")
	}
	return nil
}
