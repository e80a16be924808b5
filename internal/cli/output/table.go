package output

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"
)

const (
	colorRed   = "\033[31m"
	colorReset = "\033[0m"
)

// TableFormatter formats output as an aligned, human-readable table.
type TableFormatter struct {
	NoColor   bool
	Condensed bool // plain output for pipes and files
}

// Format renders Tabular values as a table and anything else with %v.
func (f *TableFormatter) Format(data any) (string, error) {
	if t, ok := data.(Tabular); ok {
		headers, rows := t.Table()
		return f.FormatTable(headers, rows)
	}
	return fmt.Sprintf("%v\n", data), nil
}

// FormatError renders an error with its guidance and suggested command.
func (f *TableFormatter) FormatError(err StructuredError) (string, error) {
	var buf bytes.Buffer

	prefix := "Error"
	if err.Code != "" && !f.Condensed {
		prefix = fmt.Sprintf("Error [%s]", err.Code)
	}
	if f.NoColor || f.Condensed {
		fmt.Fprintf(&buf, "%s: %s\n", prefix, err.Message)
	} else {
		fmt.Fprintf(&buf, "%s%s:%s %s\n", colorRed, prefix, colorReset, err.Message)
	}
	if err.Guidance != "" {
		fmt.Fprintf(&buf, "  Guidance: %s\n", err.Guidance)
	}
	if err.RecoveryCommand != "" {
		fmt.Fprintf(&buf, "  Try: %s\n", err.RecoveryCommand)
	}
	return buf.String(), nil
}

// FormatTable renders headers and rows aligned in columns.
func (f *TableFormatter) FormatTable(headers []string, rows [][]string) (string, error) {
	if len(rows) == 0 {
		return "No results found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(headers, "\t"))
	if !f.Condensed {
		dashes := make([]string, len(headers))
		for i, h := range headers {
			dashes[i] = strings.Repeat("-", len(h))
		}
		fmt.Fprintln(w, strings.Join(dashes, "\t"))
	}
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	if err := w.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) // #nosec G115 -- file descriptors fit in int
}
