package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents the supported output formats for CLI commands.
type OutputFormat string

const (
	// OutputFormatTable formats output as a kubectl-style plain table
	OutputFormatTable OutputFormat = "table"
	// OutputFormatWide formats output as a table with additional columns
	OutputFormatWide OutputFormat = "wide"
	// OutputFormatJSON formats output as indented JSON
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML formats output as YAML
	OutputFormatYAML OutputFormat = "yaml"
)

// ValidOutputFormats contains all valid output format values.
var ValidOutputFormats = []OutputFormat{
	OutputFormatTable,
	OutputFormatWide,
	OutputFormatJSON,
	OutputFormatYAML,
}

// ValidateOutputFormat returns an error listing the valid formats when format is not one of them.
func ValidateOutputFormat(format string) error {
	for _, f := range ValidOutputFormats {
		if OutputFormat(format) == f {
			return nil
		}
	}
	valid := make([]string, len(ValidOutputFormats))
	for i, f := range ValidOutputFormats {
		valid[i] = string(f)
	}
	return fmt.Errorf("invalid output format %q, valid formats are: %s", format, strings.Join(valid, ", "))
}

// Printer writes command results in the selected format.
type Printer struct {
	Format    OutputFormat
	NoHeaders bool
	Out       io.Writer
}

// NewPrinter creates a printer from the common flags.
func NewPrinter(flags *CommandFlags, out io.Writer) (*Printer, error) {
	if err := ValidateOutputFormat(flags.OutputFormat); err != nil {
		return nil, err
	}
	return &Printer{Format: OutputFormat(flags.OutputFormat), NoHeaders: flags.NoHeaders, Out: out}, nil
}

// Print writes data as JSON or YAML, or renders table for the table formats.
// table may be nil when data has no tabular form; it is then printed as YAML.
func (p *Printer) Print(data any, table *Table) error {
	switch p.Format {
	case OutputFormatJSON:
		return outputJSON(p.Out, data)
	case OutputFormatYAML:
		return outputYAML(p.Out, data)
	}
	if table == nil {
		return outputYAML(p.Out, data)
	}
	table.Render(p.Out, p.NoHeaders, p.Format == OutputFormatWide)
	return nil
}

func outputJSON(w io.Writer, data any) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format as JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(jsonData))
	return err
}

func outputYAML(w io.Writer, data any) error {
	yamlData, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to format as YAML: %w", err)
	}
	_, err = w.Write(yamlData)
	return err
}
