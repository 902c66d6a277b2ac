package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"converge/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeInvalidDefinitions indicates that controller definitions failed validation.
	ExitCodeInvalidDefinitions = 2
	// ExitCodeUnavailable indicates that a running operator could not be reached.
	ExitCodeUnavailable = 3
)

// rootCmd represents the base command for the converge application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "converge",
	Short: "Run declarative reconciliation loops for custom resources",
	Long: `converge is a Kubernetes operator that drives reconciliation loops for
custom resources. Controllers are declared in YAML: each names a primary kind
and a graph of dependent resources rendered from templates. converge creates,
updates and deletes the dependents in dependency order, gates them on readiness,
retries failures with backoff and cleans up in reverse order on deletion.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
	// Offline commands only surface errors from the packages they call; run
	// initializes logging from its configuration.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.InitForCLI(logging.LevelError, cmd.ErrOrStderr())
	},
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "converge version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var invalid *InvalidDefinitionsError
	if errors.As(err, &invalid) {
		return ExitCodeInvalidDefinitions
	}

	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		return ExitCodeUnavailable
	}

	return ExitCodeError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
