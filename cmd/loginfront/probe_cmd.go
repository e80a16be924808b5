package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/smart-mcp-proxy/loginfront/internal/cli/output"
	"github.com/smart-mcp-proxy/loginfront/internal/idp"
)

type probeResult struct {
	URL   string `json:"url" yaml:"url"`
	Ready bool   `json:"ready" yaml:"ready"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

func (p probeResult) Table() ([]string, [][]string) {
	row := []string{p.URL, strconv.FormatBool(p.Ready), p.Error}
	return []string{"URL", "READY", "ERROR"}, [][]string{row}
}

func newProbeCommand() *cobra.Command {
	var (
		out  outputFlags
		wait bool
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check whether the identity provider is ready",
		Long: `Probe the provider's health endpoint once, or with --wait keep probing with the
configured attempts and delay. Exits non-zero when the provider is not ready.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if errs := cfg.ValidateProvider(); len(errs) > 0 {
				return withExitCode(ExitCodeConfigError, fmt.Errorf("invalid configuration: %w", errs[0]))
			}

			logger, _, err := commandLogger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			prober := idp.NewProber(idpConfig(cfg), &http.Client{Timeout: cfg.HTTPTimeout}, logger)
			res := probeResult{URL: prober.URL()}

			if wait {
				res.Ready = prober.WaitUntilReady(cmd.Context(), cfg.Probe.MaxAttempts, cfg.Probe.Delay)
				if !res.Ready {
					res.Error = fmt.Sprintf("not ready after %d attempts", cfg.Probe.MaxAttempts)
				}
			} else if err := prober.Check(cmd.Context()); err != nil {
				res.Error = err.Error()
			} else {
				res.Ready = true
			}

			if err := out.printResult(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Ready {
				se := output.NewStructuredError(output.ErrCodeProviderUnreachable, res.Error).
					WithContext("url", res.URL)
				return withExitCode(ExitCodeUnhealthy, se)
			}
			return nil
		},
	}

	out.register(cmd)
	cmd.Flags().BoolVar(&wait, "wait", false, "Retry with the configured probe attempts and delay")
	return cmd
}
