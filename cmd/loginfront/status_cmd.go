package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/smart-mcp-proxy/loginfront/internal/cli/output"
	"github.com/smart-mcp-proxy/loginfront/internal/observability"
	"github.com/smart-mcp-proxy/loginfront/internal/reqcontext"
)

// healthView renders a /healthz response as one row per component.
type healthView struct {
	observability.Response `yaml:",inline"`
}

func (v healthView) Table() ([]string, [][]string) {
	phase := ""
	if p, ok := v.Details["phase"]; ok {
		phase = fmt.Sprint(p)
	}
	rows := [][]string{{"loginfront", v.Status, phase}}
	for _, c := range v.Components {
		rows = append(rows, []string{c.Name, c.Status, c.Error})
	}
	for _, c := range v.Auxiliary {
		rows = append(rows, []string{c.Name + " (aux)", c.Status, c.Error})
	}
	return []string{"COMPONENT", "STATUS", "DETAIL"}, rows
}

func newStatusCommand() *cobra.Command {
	var (
		out     outputFlags
		baseURL string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running instance",
		Long: `Query /healthz of a running instance and print the lifecycle phase together
with the identity provider and secret store checks. Exits non-zero when the
instance is unreachable or unhealthy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := baseURL
			if target == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				target = instanceURL(cfg.Listen)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, requestID, err := fetchHealth(ctx, strings.TrimRight(target, "/")+"/healthz")
			if err != nil {
				se := output.NewStructuredError(output.ErrCodeInstanceNotRunning, err.Error()).
					WithGuidance("is loginfront running and listening on this address?").
					WithRecoveryCommand("loginfront serve").
					WithRequestID(requestID)
				return withExitCode(ExitCodeUnhealthy, out.printError(cmd.ErrOrStderr(), se))
			}

			if err := out.printResult(cmd.OutOrStdout(), healthView{*resp}); err != nil {
				return err
			}
			if resp.Status != observability.StatusHealthy {
				return withExitCode(ExitCodeUnhealthy, fmt.Errorf("instance is %s", resp.Status))
			}
			return nil
		},
	}

	out.register(cmd)
	cmd.Flags().StringVar(&baseURL, "url", "", "Base URL of the instance (default: derived from --listen)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout")
	return cmd
}

// instanceURL turns a listen address into a URL reachable from this host.
func instanceURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// fetchHealth reads a health response. 503 bodies are decoded too: they
// carry the reason the instance is unhealthy.
func fetchHealth(ctx context.Context, url string) (*observability.Response, string, error) {
	requestID := reqcontext.GenerateRequestID()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, requestID, err
	}
	req.Header.Set(reqcontext.RequestIDHeader, requestID)

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, requestID, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusServiceUnavailable {
		return nil, requestID, fmt.Errorf("unexpected HTTP %d from %s", res.StatusCode, url)
	}

	var body observability.Response
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&body); err != nil {
		return nil, requestID, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &body, requestID, nil
}
