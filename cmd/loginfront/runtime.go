package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/loginfront/internal/config"
	"github.com/smart-mcp-proxy/loginfront/internal/credential"
	"github.com/smart-mcp-proxy/loginfront/internal/idp"
	"github.com/smart-mcp-proxy/loginfront/internal/logs"
	"github.com/smart-mcp-proxy/loginfront/internal/observability"
	"github.com/smart-mcp-proxy/loginfront/internal/rotation"
	"github.com/smart-mcp-proxy/loginfront/internal/secret"
	"github.com/smart-mcp-proxy/loginfront/internal/store"
)

const healthCheckTimeout = 5 * time.Second

// runtime holds everything a command needs to drive the credential lifecycle.
type runtime struct {
	cfg        *config.Config
	logger     *zap.Logger
	sanitizer  *logs.SecretSanitizer
	obs        *observability.Manager
	httpClient *http.Client
	prober     *idp.Prober
	manager    *rotation.Manager
	storeCheck observability.HealthChecker

	closers []func() error
}

// setupLogging loads the configuration, builds the sanitizing logger and
// resolves secret references. Credentials are registered with the sanitizer
// before anything can log them.
func setupLogging(ctx context.Context, cfg *config.Config) (*zap.Logger, *logs.SecretSanitizer, error) {
	logger, sanitizer, err := logs.SetupLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	if err := cfg.ExpandSecrets(ctx, secret.NewResolver()); err != nil {
		return logger, sanitizer, withExitCode(ExitCodeConfigError, fmt.Errorf("failed to resolve secrets: %w", err))
	}
	sanitizer.RegisterSecret(cfg.Admin.Password)
	sanitizer.RegisterSecret(cfg.Vault.Token)

	return logger, sanitizer, nil
}

// newRuntime validates cfg and wires the provider clients, the secret mirror
// and the lifecycle manager. Call Close when done.
func newRuntime(cfg *config.Config, logger *zap.Logger, sanitizer *logs.SecretSanitizer) (*runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, withExitCode(ExitCodeConfigError, err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:        cfg,
		logger:     logger,
		sanitizer:  sanitizer,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}

	obs, err := observability.NewManager(logger.Sugar(), observability.Config{
		HealthTimeout: healthCheckTimeout,
		Metrics:       true,
		Tracing: observability.TracingConfig{
			Enabled:        cfg.Tracing.Enabled,
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: version,
			OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
			SampleRate:     cfg.Tracing.SampleRate,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	rt.obs = obs
	rt.closers = append(rt.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return obs.Close(ctx)
	})

	idpCfg := idpConfig(cfg)
	rt.prober = idp.NewProber(idpCfg, rt.httpClient, logger)
	admin := idp.NewAdminClient(idpCfg, rt.httpClient, logger)

	backend, err := rt.openStore()
	if err != nil {
		rt.Close()
		return nil, err
	}
	mirror := store.NewRetryingStore(backend, cfg.Store.MaxAttempts, cfg.Store.RetryDelay, obs.Metrics(), logger)

	rt.manager = rotation.NewManager(rotationConfig(cfg), rt.prober, admin, mirror, credential.NewCache(), logger,
		rotation.WithRecorder(obs.Metrics()),
		rotation.WithSecretListener(func(s credential.Secret) {
			sanitizer.RegisterSecret(s.Value)
		}),
	)

	return rt, nil
}

// openStore opens the configured mirror backend and its health checker.
func (rt *runtime) openStore() (store.SecretStore, error) {
	cfg := rt.cfg
	loc := store.Location{Mount: cfg.Store.Mount, Path: cfg.Store.Path, Key: cfg.Store.Key}

	switch cfg.Store.Backend {
	case config.StoreBackendBolt:
		bs, err := store.OpenBoltStore(cfg.DataDir, loc, rt.logger)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, bs.Close)
		rt.storeCheck = observability.NewDatabaseHealthChecker("secret_store", bs)
		return bs, nil
	default:
		vs, err := store.NewVaultStore(store.VaultConfig{
			Address:   cfg.Vault.Address,
			Token:     cfg.Vault.Token,
			Namespace: cfg.Vault.Namespace,
			Timeout:   cfg.HTTPTimeout,
			Location:  loc,
		}, rt.logger)
		if err != nil {
			return nil, withExitCode(ExitCodeConfigError, err)
		}
		rt.storeCheck = observability.NewComponentHealthChecker("secret_store", vs.Check)
		return vs, nil
	}
}

// registerHealth wires /healthz and /readyz: the lifecycle gates both, the
// provider and the mirror are reported as auxiliary components.
func (rt *runtime) registerHealth() {
	lifecycle := observability.NewLifecycleHealthChecker(rt.manager)
	rt.obs.RegisterHealthChecker(lifecycle)
	rt.obs.RegisterReadinessChecker(lifecycle)
	rt.obs.RegisterAuxiliaryChecker(observability.NewComponentHealthChecker("identity_provider", rt.prober.Check))
	if rt.storeCheck != nil {
		rt.obs.RegisterAuxiliaryChecker(rt.storeCheck)
	}
}

// Close releases the store and flushes telemetry. Errors are logged.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn("Shutdown step failed", zap.Error(err))
		}
	}
	rt.closers = nil
}

func idpConfig(cfg *config.Config) idp.Config {
	return idp.Config{
		BaseURL:       cfg.Provider.BaseURL,
		Realm:         cfg.Provider.Realm,
		AdminRealm:    cfg.Admin.Realm,
		AdminClientID: cfg.Admin.ClientID,
		AdminUsername: cfg.Admin.Username,
		AdminPassword: cfg.Admin.Password,
		HealthPath:    cfg.Provider.HealthPath,
		Timeout:       cfg.HTTPTimeout,
	}
}

func rotationConfig(cfg *config.Config) rotation.Config {
	return rotation.Config{
		ClientID:             cfg.Provider.ClientID,
		ProbeMaxAttempts:     cfg.Probe.MaxAttempts,
		ProbeDelay:           cfg.Probe.Delay,
		BootstrapMaxAttempts: cfg.Bootstrap.MaxAttempts,
		BootstrapRetryDelay:  cfg.Bootstrap.RetryDelay,
		RotationEnabled:      cfg.Rotation.Enabled,
		Interval:             cfg.Rotation.Interval,
		RecoveryInterval:     cfg.Rotation.RecoveryInterval,
	}
}
