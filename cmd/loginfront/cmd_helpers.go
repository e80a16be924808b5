package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/loginfront/internal/cli/output"
	"github.com/smart-mcp-proxy/loginfront/internal/logs"
	"github.com/smart-mcp-proxy/loginfront/internal/rotation"
)

// outputFlags is shared by commands that print a result.
type outputFlags struct {
	format string
	json   bool
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.format, "output", "o", "", "Output format (table, json, yaml)")
	cmd.Flags().BoolVar(&o.json, "json", false, "Shorthand for --output=json")
}

func (o *outputFlags) formatter() (output.Formatter, error) {
	return output.NewFormatter(output.ResolveFormat(o.format, o.json))
}

// printResult writes data in the selected format.
func (o *outputFlags) printResult(w io.Writer, data any) error {
	f, err := o.formatter()
	if err != nil {
		return err
	}
	out, err := f.Format(data)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

// printError renders a structured error on w and returns it for the exit code.
func (o *outputFlags) printError(w io.Writer, se output.StructuredError) error {
	f, err := o.formatter()
	if err != nil {
		return err
	}
	if out, ferr := f.FormatError(se); ferr == nil {
		_, _ = io.WriteString(w, out)
	}
	return se
}

// commandLogger builds a console logger for one-shot commands. It stays at
// warn unless --log-level was given.
func commandLogger(cmd *cobra.Command) (*zap.Logger, *logs.SecretSanitizer, error) {
	level := ""
	if cmd.Flags().Changed("log-level") {
		level, _ = cmd.Flags().GetString("log-level")
	}
	return logs.SetupCommandLogger(false, level, false, "")
}

// lifecycleView renders a lifecycle snapshot as FIELD/VALUE rows.
type lifecycleView struct {
	rotation.Status `yaml:",inline"`
}

func (v lifecycleView) Table() ([]string, [][]string) {
	s := v.Status
	rows := [][]string{
		{"phase", string(s.Phase)},
		{"healthy", strconv.FormatBool(s.Healthy())},
		{"secret_cached", strconv.FormatBool(s.SecretCached)},
		{"secret_obtained_at", formatTime(s.SecretObtainedAt)},
		{"rotation_enabled", strconv.FormatBool(s.RotationEnabled)},
	}
	if !s.NextRotation.IsZero() {
		rows = append(rows, []string{"next_rotation", formatTime(s.NextRotation)})
	}
	if c := s.LastCycle; c != nil {
		rows = append(rows,
			[]string{"last_cycle", fmt.Sprintf("%s #%d %s (%s)", c.Kind, c.Attempt, c.Result, c.Duration.Round(time.Millisecond))})
		if c.Error != "" {
			rows = append(rows, []string{"last_cycle_error", c.Error})
		}
	}
	if w := s.LastStoreWrite; w != nil {
		result := "ok"
		if w.Error != "" {
			result = w.Error
		}
		rows = append(rows, []string{"last_store_write", fmt.Sprintf("%s v%d %s", w.Backend, w.Version, result)})
	}
	if s.UnhealthyReason != "" {
		rows = append(rows, []string{"unhealthy_reason", s.UnhealthyReason})
	}
	return []string{"FIELD", "VALUE"}, rows
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}
