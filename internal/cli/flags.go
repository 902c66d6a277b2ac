package cli

import (
	"github.com/spf13/cobra"

	"converge/internal/config"
)

// CommandFlags holds the flag values shared by converge's offline commands.
type CommandFlags struct {
	// OutputFormat specifies the desired output format (table, wide, json, yaml)
	OutputFormat string
	// NoHeaders suppresses the header row in table output
	NoHeaders bool
	// ConfigPath specifies the configuration directory
	ConfigPath string
}

// RegisterCommonFlags registers --output/-o, --no-headers and --config-path.
func RegisterCommonFlags(cmd *cobra.Command, flags *CommandFlags) {
	RegisterOutputFlags(cmd, flags)
	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config-path", config.GetDefaultConfigPathOrPanic(), "Configuration directory")
}

// RegisterOutputFlags registers only --output/-o and --no-headers.
func RegisterOutputFlags(cmd *cobra.Command, flags *CommandFlags) {
	cmd.PersistentFlags().StringVarP(&flags.OutputFormat, "output", "o", string(OutputFormatTable), "Output format (table, wide, json, yaml)")
	cmd.PersistentFlags().BoolVar(&flags.NoHeaders, "no-headers", false, "Suppress header row in table output")
}
