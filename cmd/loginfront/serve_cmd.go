package main

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/loginfront/internal/config"
	"github.com/smart-mcp-proxy/loginfront/internal/httpapi"
	"github.com/smart-mcp-proxy/loginfront/internal/tlslocal"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the login front end and the credential lifecycle (default)",
		Long: `Start the HTTP login front end. The client secret is bootstrapped in the
background once the identity provider is ready; until then /healthz reports
unhealthy and logins answer 503.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, sanitizer, err := setupLogging(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting loginfront",
		zap.String("version", version),
		zap.String("listen", cfg.Listen),
		zap.String("provider", cfg.Provider.BaseURL),
		zap.String("realm", cfg.Provider.Realm),
		zap.String("client_id", cfg.Provider.ClientID),
		zap.String("store_backend", cfg.Store.Backend),
		zap.Bool("rotation_enabled", cfg.Rotation.Enabled))

	rt, err := newRuntime(cfg, logger, sanitizer)
	if err != nil {
		logger.Error("Failed to initialize", zap.Error(err))
		return err
	}
	defer rt.Close()
	rt.registerHealth()

	if err := rt.manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start credential manager: %w", err)
	}
	defer rt.manager.Stop()

	auth := httpapi.NewAuthenticator(httpapi.LoginConfig{
		BaseURL:  cfg.Provider.BaseURL,
		Realm:    cfg.Provider.Realm,
		ClientID: cfg.Provider.ClientID,
		Timeout:  cfg.HTTPTimeout,
	}, rt.manager.Secrets(), rt.httpClient, logger)

	srv := httpapi.NewServer(auth, httpapi.Options{
		PublicURL: cfg.PublicURL(),
		Realm:     cfg.Provider.Realm,
		Recorder:  rt.obs.Metrics(),
	}, rt.obs, logger)

	ln, err := openListener(cfg, logger)
	if err != nil {
		return err
	}
	if err := srv.Serve(ctx, ln); err != nil {
		logger.Error("HTTP server failed", zap.Error(err))
		return fmt.Errorf("failed to serve on %s: %w", cfg.Listen, err)
	}

	logger.Info("Shutting down")
	return nil
}

// openListener binds the login address, wrapped in TLS when enabled.
func openListener(cfg *config.Config, logger *zap.Logger) (net.Listener, error) {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}
	if !cfg.TLS.Enabled {
		return ln, nil
	}

	tlsCfg, err := tlslocal.ServerTLSConfig(tlslocal.Options{
		Dir:      cfg.TLS.CertDir,
		CertFile: cfg.TLS.CertFile,
		KeyFile:  cfg.TLS.KeyFile,
		Hosts:    cfg.TLS.Hosts,
	})
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("failed to set up TLS: %w", err)
	}
	if cfg.TLS.CertFile == "" {
		logger.Info("Serving HTTPS with a locally generated certificate",
			zap.String("ca_certificate", tlslocal.CAPath(cfg.TLS.CertDir)))
	}
	return tls.NewListener(ln, tlsCfg), nil
}
