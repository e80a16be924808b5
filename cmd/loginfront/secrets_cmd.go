package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/smart-mcp-proxy/loginfront/internal/cli/output"
	"github.com/smart-mcp-proxy/loginfront/internal/secret"
)

const keyringTimeout = 30 * time.Second

func newSecretsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage credentials stored in the OS keyring",
		Long: `Store the admin password or Vault token in the operating system keyring
(Keychain on macOS, Secret Service on Linux, WinCred on Windows) and reference
them from the configuration as ${keyring:<name>}.`,
	}
	cmd.AddCommand(newSecretsSetCommand(), newSecretsGetCommand(), newSecretsDeleteCommand())
	return cmd
}

func newSecretsSetCommand() *cobra.Command {
	var fromEnv string

	cmd := &cobra.Command{
		Use:   "set <name> [value]",
		Short: "Store a secret in the keyring",
		Long:  "Store a secret in the OS keyring. Without a value it is read from stdin.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			var value string
			switch {
			case len(args) == 2:
				value = args[1]
			case fromEnv != "":
				value = os.Getenv(fromEnv)
				if value == "" {
					return fmt.Errorf("environment variable %s is not set or empty", fromEnv)
				}
			default:
				v, err := readSecretValue(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return fmt.Errorf("failed to read secret value: %w", err)
				}
				value = v
			}
			if value == "" {
				return errors.New("secret value cannot be empty")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), keyringTimeout)
			defer cancel()

			ref := secret.Ref{Type: secret.SecretTypeKeyring, Name: name}
			if err := secret.NewResolver().Store(ctx, ref, value); err != nil {
				return keyringError("store", name, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Secret '%s' stored in keyring\n", name)
			fmt.Fprintf(cmd.OutOrStdout(), "Use in config: ${%s:%s}\n", secret.SecretTypeKeyring, name)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromEnv, "from-env", "", "Read value from environment variable")
	return cmd
}

func newSecretsGetCommand() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Show a keyring secret (masked by default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), keyringTimeout)
			defer cancel()

			ref := secret.Ref{Type: secret.SecretTypeKeyring, Name: args[0]}
			value, err := secret.NewResolver().Resolve(ctx, ref)
			if err != nil {
				return keyringError("read", args[0], err)
			}
			if !reveal {
				value = secret.Mask(value)
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print the value unmasked")
	return cmd
}

func newSecretsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret from the keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), keyringTimeout)
			defer cancel()

			ref := secret.Ref{Type: secret.SecretTypeKeyring, Name: args[0]}
			if err := secret.NewResolver().Delete(ctx, ref); err != nil {
				return keyringError("delete", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Secret '%s' deleted from keyring\n", args[0])
			return nil
		},
	}
}

func keyringError(action, name string, err error) error {
	return output.NewStructuredError(output.ErrCodeKeyringFailed,
		fmt.Sprintf("failed to %s secret %q: %v", action, name, err)).
		WithGuidance("the OS keyring may be locked or unavailable; use ${env:NAME} references instead")
}

// readSecretValue prompts without echo on a terminal and otherwise reads
// the first line of in.
func readSecretValue(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) { // #nosec G115 -- file descriptors fit in int
		fmt.Fprint(prompt, "Enter secret value: ")
		b, err := term.ReadPassword(int(f.Fd())) // #nosec G115 -- file descriptors fit in int
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
