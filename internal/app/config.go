package app

import (
	"converge/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug enables debug logging regardless of logLevel in config.yaml
	Debug bool

	// ConfigPath is the directory holding config.yaml and the controller definitions
	ConfigPath string

	// Kubeconfig selects the cluster. Empty uses in-cluster config or $KUBECONFIG.
	Kubeconfig string

	// Operator configuration, loaded from ConfigPath when nil
	ConvergeConfig *config.ConvergeConfig
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath, kubeconfig string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
		Kubeconfig: kubeconfig,
	}
}
