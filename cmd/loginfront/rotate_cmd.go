package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/loginfront/internal/cli/output"
	"github.com/smart-mcp-proxy/loginfront/internal/rotation"
)

func newRotateCommand() *cobra.Command {
	var (
		out       outputFlags
		fetchOnly bool
	)

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Bootstrap the client secret and regenerate it once",
		Long: `Run one credential cycle outside the server: wait for the provider, fetch
the current secret and, unless --fetch-only is set, regenerate it and mirror the
new value to the configured store.

Regenerating invalidates the secret held by running instances until their next
cycle. Use --fetch-only to verify the admin credentials without side effects.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			rt, err := newRuntime(cfg, logger, sanitizer)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.manager.Bootstrap(ctx); err != nil {
				code := output.ErrCodeBootstrapFailed
				if errors.Is(err, rotation.ErrProviderUnavailable) {
					code = output.ErrCodeProviderUnreachable
				}
				se := output.NewStructuredError(code, err.Error()).
					WithGuidance("check provider reachability and the admin credentials").
					WithContext("phase", string(rt.manager.Phase()))
				return withExitCode(ExitCodeUnhealthy, out.printError(cmd.ErrOrStderr(), se))
			}

			if !fetchOnly {
				if err := rt.manager.RotateOnce(ctx); err != nil {
					se := output.NewStructuredError(output.ErrCodeRotationFailed, err.Error()).
						WithGuidance("the previously fetched secret is still valid")
					return withExitCode(ExitCodeGeneralError, out.printError(cmd.ErrOrStderr(), se))
				}
				logger.Info("Client secret regenerated", zap.String("client_id", cfg.Provider.ClientID))
			}

			return out.printResult(cmd.OutOrStdout(), lifecycleView{rt.manager.Status()})
		},
	}

	out.register(cmd)
	cmd.Flags().BoolVar(&fetchOnly, "fetch-only", false, "Fetch the current secret without regenerating it")
	return cmd
}
