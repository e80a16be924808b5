package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate returns the first validation error, if any.
func (c *Config) Validate() error {
	if errs := c.ValidateDetailed(); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errs[0])
	}
	return nil
}

// ValidateDetailed checks every field needed to run the login front end.
func (c *Config) ValidateDetailed() []ValidationError {
	errs := c.ValidateProvider()

	if !isValidListenAddr(c.Listen) {
		errs = append(errs, ValidationError{"listen", fmt.Sprintf("invalid listen address %q, expected host:port", c.Listen)})
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, ValidationError{"http-timeout", "must be positive"})
	}

	if c.Provider.ClientID == "" {
		errs = append(errs, ValidationError{"provider.client-id", "is required"})
	}
	if c.Provider.PublicURL != "" && !isHTTPURL(c.Provider.PublicURL) {
		errs = append(errs, ValidationError{"provider.public-url", "must be an http(s) URL"})
	}

	if c.Admin.Username == "" {
		errs = append(errs, ValidationError{"admin.username", "is required"})
	}
	if c.Admin.Password == "" {
		errs = append(errs, ValidationError{"admin.password", "is required"})
	}
	if c.Admin.Realm == "" {
		errs = append(errs, ValidationError{"admin.realm", "is required"})
	}

	switch c.Store.Backend {
	case StoreBackendVault:
		if c.Vault.Address == "" {
			errs = append(errs, ValidationError{"vault.address", "is required for the vault store backend"})
		} else if !isHTTPURL(c.Vault.Address) {
			errs = append(errs, ValidationError{"vault.address", "must be an http(s) URL"})
		}
		if c.Vault.Token == "" {
			errs = append(errs, ValidationError{"vault.token", "is required for the vault store backend"})
		}
	case StoreBackendBolt:
	default:
		errs = append(errs, ValidationError{"store.backend", fmt.Sprintf("unknown backend %q, expected vault or bolt", c.Store.Backend)})
	}
	if c.Store.MaxAttempts < 1 {
		errs = append(errs, ValidationError{"store.max-attempts", "must be at least 1"})
	}
	if c.Store.RetryDelay < 0 {
		errs = append(errs, ValidationError{"store.retry-delay", "must not be negative"})
	}

	if c.Bootstrap.MaxAttempts < 1 {
		errs = append(errs, ValidationError{"bootstrap.max-attempts", "must be at least 1"})
	}
	if c.Bootstrap.RetryDelay < 0 {
		errs = append(errs, ValidationError{"bootstrap.retry-delay", "must not be negative"})
	}

	if c.Rotation.Enabled {
		if c.Rotation.Interval <= 0 {
			errs = append(errs, ValidationError{"rotation.interval", "must be positive when rotation is enabled"})
		}
		if c.Rotation.RecoveryInterval <= 0 {
			errs = append(errs, ValidationError{"rotation.recovery-interval", "must be positive when rotation is enabled"})
		}
	}

	if c.Logging != nil && c.Logging.Level != "" && !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{"logging.level", fmt.Sprintf("unknown level %q", c.Logging.Level)})
	}

	if c.TLS.Enabled && (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, ValidationError{"tls.cert-file", "cert-file and key-file must be set together"})
	}

	if c.Tracing.Enabled {
		if c.Tracing.OTLPEndpoint == "" {
			errs = append(errs, ValidationError{"tracing.otlp-endpoint", "is required when tracing is enabled"})
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			errs = append(errs, ValidationError{"tracing.sample-rate", "must be between 0 and 1"})
		}
	}

	return errs
}

// ValidateProvider checks only what is needed to probe the provider.
func (c *Config) ValidateProvider() []ValidationError {
	var errs []ValidationError
	if c.Provider.BaseURL == "" {
		errs = append(errs, ValidationError{"provider.base-url", "is required"})
	} else if !isHTTPURL(c.Provider.BaseURL) {
		errs = append(errs, ValidationError{"provider.base-url", "must be an http(s) URL"})
	}
	if c.Provider.Realm == "" {
		errs = append(errs, ValidationError{"provider.realm", "is required"})
	}
	if c.Probe.MaxAttempts < 1 {
		errs = append(errs, ValidationError{"probe.max-attempts", "must be at least 1"})
	}
	if c.Probe.Delay < 0 {
		errs = append(errs, ValidationError{"probe.delay", "must not be negative"})
	}
	return errs
}

// isValidListenAddr accepts host:port and :port forms with a port in 0-65535.
func isValidListenAddr(addr string) bool {
	if addr == "" {
		return false
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.ContainsAny(host, " /") {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 0 && n <= 65535
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
