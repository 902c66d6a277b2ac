// Package cli holds the output helpers shared by converge's commands:
// output formats, tables rendered with go-pretty, and the common flags.
package cli
