package credential

import (
	"sync/atomic"
	"time"
)

// Secret is a client secret together with the time it was obtained from the
// identity provider.
type Secret struct {
	Value      string
	ObtainedAt time.Time
}

// IsSet reports whether the secret carries a value.
func (s Secret) IsSet() bool {
	return s.Value != ""
}

// String never prints the value so a Secret can be passed to loggers safely.
func (s Secret) String() string {
	if !s.IsSet() {
		return "<unset>"
	}
	return "<redacted obtained_at=" + s.ObtainedAt.UTC().Format(time.RFC3339) + ">"
}

// Reader is the read-only view of the cache handed to request handlers.
type Reader interface {
	Read() Secret
}

// Cache holds the currently active client secret. Reads never block; a swap
// replaces the whole value in one atomic store.
type Cache struct {
	current atomic.Pointer[Secret]
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Read returns the last installed secret, or the zero Secret before the first
// successful swap.
func (c *Cache) Read() Secret {
	p := c.current.Load()
	if p == nil {
		return Secret{}
	}
	return *p
}

// Swap installs s as the current secret. An unset secret is ignored so a
// failed cycle can never blank the cache; the return value reports whether
// the swap happened.
func (c *Cache) Swap(s Secret) bool {
	if !s.IsSet() {
		return false
	}
	v := s
	c.current.Store(&v)
	return true
}

var _ Reader = (*Cache)(nil)
