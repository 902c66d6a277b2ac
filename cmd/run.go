package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"converge/internal/app"
)

// runDebug enables debug logging regardless of the configured log level.
var runDebug bool

// runConfigPath is the directory holding config.yaml and the controllers/ directory.
var runConfigPath string

// runKubeconfig selects the cluster to reconcile against.
var runKubeconfig string

// runCmd starts the operator.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the converge operator",
	Long: `Runs the converge operator until interrupted.

Configuration is read from config.yaml in the configuration directory
(default ~/.config/converge); missing settings take their defaults. Every
*.yaml file in the controllers directory (controllersDir, default
<config-path>/controllers) defines one controller. Invalid definitions are
reported and skipped.

The cluster is selected by --kubeconfig, then the in-cluster configuration,
then $KUBECONFIG and ~/.kube/config.

While running, converge serves Prometheus metrics on metricsAddr (/metrics)
and health endpoints on healthAddr (/healthz, /readyz, /statusz). SIGINT or
SIGTERM stops it gracefully: running reconciliations finish first.`,
	Args: cobra.NoArgs,
	RunE: runOperator,
}

// runOperator is the main entry point for the run command
func runOperator(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(runDebug, runConfigPath, runKubeconfig)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Enable debug logging")
	runCmd.Flags().StringVar(&runConfigPath, "config-path", "", "Configuration directory (default ~/.config/converge)")
	runCmd.Flags().StringVar(&runKubeconfig, "kubeconfig", "", "Path to a kubeconfig file")
}
