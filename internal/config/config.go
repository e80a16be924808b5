// Package config loads loginfront settings from defaults, an optional config
// file, LOGINFRONT_* environment variables and command-line flags.
package config

import (
	"context"
	"time"

	"github.com/smart-mcp-proxy/loginfront/internal/secret"
)

const (
	defaultListen     = "127.0.0.1:5000"
	DefaultDataDir    = ".loginfront"
	DefaultHealthPath = "/health/ready"

	StoreBackendVault = "vault"
	StoreBackendBolt  = "bolt"
)

// Config is the full application configuration.
type Config struct {
	Listen      string        `json:"listen" mapstructure:"listen"`
	DataDir     string        `json:"data_dir" mapstructure:"data-dir"`
	HTTPTimeout time.Duration `json:"http_timeout" mapstructure:"http-timeout"`

	Provider  ProviderConfig  `json:"provider" mapstructure:"provider"`
	Admin     AdminConfig     `json:"admin" mapstructure:"admin"`
	Store     StoreConfig     `json:"store" mapstructure:"store"`
	Vault     VaultConfig     `json:"vault" mapstructure:"vault"`
	Probe     ProbeConfig     `json:"probe" mapstructure:"probe"`
	Bootstrap BootstrapConfig `json:"bootstrap" mapstructure:"bootstrap"`
	Rotation  RotationConfig  `json:"rotation" mapstructure:"rotation"`

	// Logging configuration
	Logging *LogConfig `json:"logging,omitempty" mapstructure:"logging"`

	TLS TLSConfig `json:"tls" mapstructure:"tls"`

	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// ProviderConfig locates the identity provider and the login client.
type ProviderConfig struct {
	BaseURL    string `json:"base_url" mapstructure:"base-url"`     // back channel, e.g. http://keycloak:8080
	PublicURL  string `json:"public_url" mapstructure:"public-url"` // browser redirects; defaults to base-url
	Realm      string `json:"realm" mapstructure:"realm"`
	ClientID   string `json:"client_id" mapstructure:"client-id"`
	HealthPath string `json:"health_path" mapstructure:"health-path"`
}

// AdminConfig is the administrative identity used to read and rotate the secret.
type AdminConfig struct {
	Realm    string `json:"realm" mapstructure:"realm"`
	ClientID string `json:"client_id" mapstructure:"client-id"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"-" mapstructure:"password"`
}

// StoreConfig selects the secret mirror and its retry policy.
type StoreConfig struct {
	Backend     string        `json:"backend" mapstructure:"backend"`
	Mount       string        `json:"mount" mapstructure:"mount"`
	Path        string        `json:"path" mapstructure:"path"`
	Key         string        `json:"key" mapstructure:"key"`
	MaxAttempts int           `json:"max_attempts" mapstructure:"max-attempts"`
	RetryDelay  time.Duration `json:"retry_delay" mapstructure:"retry-delay"`
}

// VaultConfig holds Vault connection settings.
type VaultConfig struct {
	Address   string `json:"address" mapstructure:"address"`
	Token     string `json:"-" mapstructure:"token"`
	Namespace string `json:"namespace,omitempty" mapstructure:"namespace"`
}

// ProbeConfig controls the provider readiness wait.
type ProbeConfig struct {
	MaxAttempts int           `json:"max_attempts" mapstructure:"max-attempts"`
	Delay       time.Duration `json:"delay" mapstructure:"delay"`
}

// BootstrapConfig controls retries of the startup fetch.
type BootstrapConfig struct {
	MaxAttempts int           `json:"max_attempts" mapstructure:"max-attempts"`
	RetryDelay  time.Duration `json:"retry_delay" mapstructure:"retry-delay"`
}

// RotationConfig controls periodic regeneration.
type RotationConfig struct {
	Enabled          bool          `json:"enabled" mapstructure:"enabled"`
	Interval         time.Duration `json:"interval" mapstructure:"interval"`
	RecoveryInterval time.Duration `json:"recovery_interval" mapstructure:"recovery-interval"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level         string `json:"level" mapstructure:"level"`
	EnableFile    bool   `json:"enable_file" mapstructure:"enable-file"`
	EnableConsole bool   `json:"enable_console" mapstructure:"enable-console"`
	Filename      string `json:"filename" mapstructure:"filename"`
	LogDir        string `json:"log_dir,omitempty" mapstructure:"log-dir"` // Custom log directory
	MaxSize       int    `json:"max_size" mapstructure:"max-size"`         // MB
	MaxBackups    int    `json:"max_backups" mapstructure:"max-backups"`   // number of backup files
	MaxAge        int    `json:"max_age" mapstructure:"max-age"`           // days
	Compress      bool   `json:"compress" mapstructure:"compress"`
	JSONFormat    bool   `json:"json_format" mapstructure:"json-format"`
}

// TLSConfig enables HTTPS on the login listener. Without a key pair a local
// CA and server certificate are generated under CertDir.
type TLSConfig struct {
	Enabled  bool     `json:"enabled" mapstructure:"enabled"`
	CertDir  string   `json:"cert_dir,omitempty" mapstructure:"cert-dir"` // default: <data-dir>/certs
	CertFile string   `json:"cert_file,omitempty" mapstructure:"cert-file"`
	KeyFile  string   `json:"key_file,omitempty" mapstructure:"key-file"`
	Hosts    []string `json:"hosts,omitempty" mapstructure:"hosts"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName  string  `json:"service_name" mapstructure:"service-name"`
	OTLPEndpoint string  `json:"otlp_endpoint" mapstructure:"otlp-endpoint"`
	SampleRate   float64 `json:"sample_rate" mapstructure:"sample-rate"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		HTTPTimeout: 10 * time.Second,
		Provider: ProviderConfig{
			HealthPath: DefaultHealthPath,
		},
		Admin: AdminConfig{
			Realm:    "master",
			ClientID: "admin-cli",
		},
		Store: StoreConfig{
			Backend:     StoreBackendVault,
			Mount:       "secret",
			Path:        "loginfront/client-secret",
			Key:         "client_secret",
			MaxAttempts: 3,
			RetryDelay:  2 * time.Second,
		},
		Probe: ProbeConfig{
			MaxAttempts: 30,
			Delay:       2 * time.Second,
		},
		Bootstrap: BootstrapConfig{
			MaxAttempts: 10,
			RetryDelay:  5 * time.Second,
		},
		Rotation: RotationConfig{
			Enabled:          true,
			Interval:         time.Hour,
			RecoveryInterval: 5 * time.Minute,
		},
		Logging: &LogConfig{
			Level:         "info",
			EnableConsole: true,
			Filename:      "main.log",
			MaxSize:       10,
			MaxBackups:    5,
			MaxAge:        30,
			Compress:      true,
		},
		Tracing: TracingConfig{
			ServiceName:  "loginfront",
			OTLPEndpoint: "localhost:4318",
			SampleRate:   1.0,
		},
	}
}

// PublicURL returns the provider address browsers should be sent to.
func (c *Config) PublicURL() string {
	if c.Provider.PublicURL != "" {
		return c.Provider.PublicURL
	}
	return c.Provider.BaseURL
}

// ExpandSecrets replaces ${env:...} and ${keyring:...} references in the
// credential fields.
func (c *Config) ExpandSecrets(ctx context.Context, resolver *secret.Resolver) error {
	return resolver.ExpandFields(ctx, map[string]*string{
		"admin.password": &c.Admin.Password,
		"vault.token":    &c.Vault.Token,
	})
}
