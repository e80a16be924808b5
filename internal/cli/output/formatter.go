// Package output renders CLI command results as a table, JSON or YAML.
package output

import (
	"fmt"
	"os"
	"strings"
)

// EnvFormat selects the default output format when no flag is given.
const EnvFormat = "LOGINFRONT_OUTPUT"

// Tabular is implemented by results that know how to lay themselves out as
// rows. The table formatter uses it; JSON and YAML marshal the value itself.
type Tabular interface {
	Table() (headers []string, rows [][]string)
}

// Formatter formats structured data for CLI output.
type Formatter interface {
	Format(data any) (string, error)
	FormatError(err StructuredError) (string, error)
	FormatTable(headers []string, rows [][]string) (string, error)
}

// NewFormatter creates a formatter for table, json or yaml (case-insensitive).
func NewFormatter(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case "json":
		return &JSONFormatter{Indent: true}, nil
	case "yaml", "yml":
		return &YAMLFormatter{}, nil
	case "table", "":
		return &TableFormatter{
			NoColor:   os.Getenv("NO_COLOR") != "",
			Condensed: !stdoutIsTerminal(),
		}, nil
	default:
		return nil, NewStructuredError(ErrCodeInvalidOutputFormat,
			fmt.Sprintf("unknown output format: %s (valid: table, json, yaml)", format))
	}
}

// ResolveFormat picks the format: explicit flag, then --json, then the
// environment, then table.
func ResolveFormat(outputFlag string, jsonFlag bool) string {
	if outputFlag != "" {
		return outputFlag
	}
	if jsonFlag {
		return "json"
	}
	if env := os.Getenv(EnvFormat); env != "" {
		return env
	}
	return "table"
}

// rowsToRecords turns a table into one map per row keyed by header.
func rowsToRecords(headers []string, rows [][]string) []map[string]string {
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		rec := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		out = append(out, rec)
	}
	return out
}
