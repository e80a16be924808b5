package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "LOGINFRONT"
	// ConfigKey holds the optional config file path.
	ConfigKey = "config"
)

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"config":            ConfigKey,
	"listen":            "listen",
	"data-dir":          "data-dir",
	"provider-url":      "provider.base-url",
	"public-url":        "provider.public-url",
	"realm":             "provider.realm",
	"client-id":         "provider.client-id",
	"store-backend":     "store.backend",
	"vault-addr":        "vault.address",
	"rotation":          "rotation.enabled",
	"rotation-interval": "rotation.interval",
	"log-level":         "logging.level",
	"log-to-file":       "logging.enable-file",
	"log-dir":           "logging.log-dir",
	"log-json":          "logging.json-format",
	"tracing":           "tracing.enabled",
	"tls":               "tls.enabled",
}

// NewViper returns a viper instance with every key defaulted so that
// LOGINFRONT_* environment variables are honoured on Unmarshal.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	SetDefaults(v, DefaultConfig())
	v.SetDefault(ConfigKey, "")
	return v
}

// SetDefaults registers cfg's values as viper defaults.
func SetDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("listen", cfg.Listen)
	v.SetDefault("data-dir", cfg.DataDir)
	v.SetDefault("http-timeout", cfg.HTTPTimeout)

	v.SetDefault("provider.base-url", cfg.Provider.BaseURL)
	v.SetDefault("provider.public-url", cfg.Provider.PublicURL)
	v.SetDefault("provider.realm", cfg.Provider.Realm)
	v.SetDefault("provider.client-id", cfg.Provider.ClientID)
	v.SetDefault("provider.health-path", cfg.Provider.HealthPath)

	v.SetDefault("admin.realm", cfg.Admin.Realm)
	v.SetDefault("admin.client-id", cfg.Admin.ClientID)
	v.SetDefault("admin.username", cfg.Admin.Username)
	v.SetDefault("admin.password", cfg.Admin.Password)

	v.SetDefault("store.backend", cfg.Store.Backend)
	v.SetDefault("store.mount", cfg.Store.Mount)
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("store.key", cfg.Store.Key)
	v.SetDefault("store.max-attempts", cfg.Store.MaxAttempts)
	v.SetDefault("store.retry-delay", cfg.Store.RetryDelay)

	v.SetDefault("vault.address", cfg.Vault.Address)
	v.SetDefault("vault.token", cfg.Vault.Token)
	v.SetDefault("vault.namespace", cfg.Vault.Namespace)

	v.SetDefault("probe.max-attempts", cfg.Probe.MaxAttempts)
	v.SetDefault("probe.delay", cfg.Probe.Delay)
	v.SetDefault("bootstrap.max-attempts", cfg.Bootstrap.MaxAttempts)
	v.SetDefault("bootstrap.retry-delay", cfg.Bootstrap.RetryDelay)

	v.SetDefault("rotation.enabled", cfg.Rotation.Enabled)
	v.SetDefault("rotation.interval", cfg.Rotation.Interval)
	v.SetDefault("rotation.recovery-interval", cfg.Rotation.RecoveryInterval)

	if cfg.Logging != nil {
		v.SetDefault("logging.level", cfg.Logging.Level)
		v.SetDefault("logging.enable-file", cfg.Logging.EnableFile)
		v.SetDefault("logging.enable-console", cfg.Logging.EnableConsole)
		v.SetDefault("logging.filename", cfg.Logging.Filename)
		v.SetDefault("logging.log-dir", cfg.Logging.LogDir)
		v.SetDefault("logging.max-size", cfg.Logging.MaxSize)
		v.SetDefault("logging.max-backups", cfg.Logging.MaxBackups)
		v.SetDefault("logging.max-age", cfg.Logging.MaxAge)
		v.SetDefault("logging.compress", cfg.Logging.Compress)
		v.SetDefault("logging.json-format", cfg.Logging.JSONFormat)
	}

	v.SetDefault("tls.enabled", cfg.TLS.Enabled)
	v.SetDefault("tls.cert-dir", cfg.TLS.CertDir)
	v.SetDefault("tls.cert-file", cfg.TLS.CertFile)
	v.SetDefault("tls.key-file", cfg.TLS.KeyFile)
	v.SetDefault("tls.hosts", cfg.TLS.Hosts)

	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.service-name", cfg.Tracing.ServiceName)
	v.SetDefault("tracing.otlp-endpoint", cfg.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample-rate", cfg.Tracing.SampleRate)
}

// BindFlags binds every known flag present in fs to its configuration key.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load builds the configuration from v. A config file named by the "config"
// key is read first; environment variables and bound flags override it.
func Load(v *viper.Viper) (*Config, error) {
	if path := v.GetString(ConfigKey); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set data directory if not specified
	if cfg.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(homeDir, DefaultDataDir)
	}

	if cfg.TLS.CertDir == "" {
		cfg.TLS.CertDir = filepath.Join(cfg.DataDir, "certs")
	}

	cfg.Provider.BaseURL = strings.TrimRight(cfg.Provider.BaseURL, "/")
	cfg.Provider.PublicURL = strings.TrimRight(cfg.Provider.PublicURL, "/")
	if cfg.Provider.PublicURL == "" {
		cfg.Provider.PublicURL = cfg.Provider.BaseURL
	}

	return cfg, nil
}

// EnsureDataDir creates the data directory if it does not exist.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", c.DataDir, err)
	}
	return nil
}
