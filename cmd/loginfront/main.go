package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smart-mcp-proxy/loginfront/internal/config"
)

var version = "v0.1.0" // injected by -ldflags during build

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		code := exitCodeFor(err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code != ExitCodeGeneralError {
			fmt.Fprintf(os.Stderr, "Exit code %d: %s\n", code, exitCodeDescription(code))
		}
		os.Exit(code)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "loginfront",
		Short: "Login front end for a Keycloak realm with managed client secret rotation",
		Long: `loginfront serves a username/password login backed by a Keycloak realm.
It fetches the confidential client's secret through the admin API at startup,
regenerates it on a schedule and mirrors every new secret to Vault or a local
bolt database.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	addConfigFlags(rootCmd)

	rootCmd.AddCommand(
		newServeCommand(),
		newRotateCommand(),
		newProbeCommand(),
		newStatusCommand(),
		newSecretsCommand(),
	)
	return rootCmd
}

// addConfigFlags registers the persistent flags that map onto configuration
// keys. Unset flags never override the config file or environment.
func addConfigFlags(cmd *cobra.Command) {
	d := config.DefaultConfig()
	fs := cmd.PersistentFlags()

	fs.StringP("config", "c", "", "Configuration file path (yaml, json or toml)")
	fs.StringP("listen", "l", d.Listen, "Listen address for the login front end")
	fs.StringP("data-dir", "d", "", "Data directory path (default: ~/"+config.DefaultDataDir+")")
	fs.String("provider-url", "", "Identity provider base URL for back-channel calls")
	fs.String("public-url", "", "Identity provider URL used in browser redirects (default: provider-url)")
	fs.String("realm", "", "Realm that holds the login client")
	fs.String("client-id", "", "Public client id of the confidential login client")
	fs.String("store-backend", d.Store.Backend, "Secret mirror backend (vault, bolt)")
	fs.String("vault-addr", "", "Vault address")
	fs.Bool("rotation", d.Rotation.Enabled, "Enable periodic client secret regeneration")
	fs.Duration("rotation-interval", d.Rotation.Interval, "Time between secret regenerations")
	fs.String("log-level", d.Logging.Level, "Log level (debug, info, warn, error)")
	fs.Bool("log-to-file", d.Logging.EnableFile, "Enable logging to file in standard OS location")
	fs.String("log-dir", "", "Custom log directory path (overrides standard OS location)")
	fs.Bool("log-json", d.Logging.JSONFormat, "Write file logs as JSON")
	fs.Bool("tracing", d.Tracing.Enabled, "Export OpenTelemetry traces over OTLP/HTTP")
	fs.Bool("tls", d.TLS.Enabled, "Serve HTTPS (generates a local CA unless tls.cert-file is set)")
}

// loadConfig resolves the configuration for cmd: defaults, config file,
// LOGINFRONT_* environment and flags, in increasing precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.NewViper()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, withExitCode(ExitCodeConfigError, err)
	}
	return cfg, nil
}
