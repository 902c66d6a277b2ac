package app

import (
	"context"
	"fmt"
	"os"

	"converge/internal/config"
	"converge/pkg/logging"
)

// Application bootstraps and runs the converge operator.
//
// Initialization happens in two phases: NewApplication loads configuration,
// initializes logging, connects to the cluster and registers controllers;
// Run starts everything and blocks until shutdown.
//
//	cfg := app.NewConfig(false, "/etc/converge", "")
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication creates and initializes a new application instance.
// A nil cfg.ConvergeConfig is loaded from cfg.ConfigPath (the user config
// directory when empty); an explicit --debug overrides the configured log level.
func NewApplication(cfg *Config) (*Application, error) {
	if err := loadConfig(cfg); err != nil {
		return nil, err
	}

	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// loadConfig fills cfg.ConvergeConfig and initializes logging from it.
func loadConfig(cfg *Config) error {
	// Log to stderr at the requested level until the configuration says otherwise.
	bootLevel := logging.LevelInfo
	if cfg.Debug {
		bootLevel = logging.LevelDebug
	}
	logging.InitForCLI(bootLevel, os.Stderr)

	if cfg.ConvergeConfig == nil {
		if cfg.ConfigPath == "" {
			cfg.ConfigPath = config.GetDefaultConfigPathOrPanic()
		}
		cc, err := config.LoadConfig(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load configuration from path: %s", cfg.ConfigPath)
			return fmt.Errorf("failed to load configuration from path %s: %w", cfg.ConfigPath, err)
		}
		cfg.ConvergeConfig = &cc
	}

	level, err := logging.ParseLevel(cfg.ConvergeConfig.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if cfg.Debug {
		level = logging.LevelDebug
	}
	logging.Init(level, logging.Format(cfg.ConvergeConfig.LogFormat), os.Stderr)
	return nil
}

// Run starts the operator and blocks until ctx is cancelled or a shutdown
// signal arrives.
func (a *Application) Run(ctx context.Context) error {
	return runOperator(ctx, a.config, a.services)
}
