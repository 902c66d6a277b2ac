package config

import "time"

// ConvergeConfig is the top-level configuration of the converge operator.
type ConvergeConfig struct {
	// Workers is the default number of primaries reconciled concurrently per controller.
	Workers int `yaml:"workers,omitempty"`

	// Namespace restricts the watches to one namespace. Empty watches all namespaces.
	Namespace string `yaml:"namespace,omitempty"`

	LogLevel  string `yaml:"logLevel,omitempty"`  // debug, info, warn or error
	LogFormat string `yaml:"logFormat,omitempty"` // text or json

	MetricsAddr string `yaml:"metricsAddr,omitempty"` // Address serving /metrics (default: :8080)
	HealthAddr  string `yaml:"healthAddr,omitempty"`  // Address serving /healthz, /readyz and /statusz (default: :8081)

	RateLimit RateLimitConfig `yaml:"rateLimit,omitempty"`
	Retry     RetryConfig     `yaml:"retry,omitempty"`

	// ResyncPeriod re-reconciles every primary after each successful attempt. Zero disables it.
	ResyncPeriod time.Duration `yaml:"resyncPeriod,omitempty"`

	// ControllersDir holds the declarative controller definitions. Relative
	// paths are resolved against the configuration directory.
	ControllersDir string `yaml:"controllersDir,omitempty"`

	// Leaderless must be true: the operator runs without leader election.
	Leaderless bool `yaml:"leaderless"`
}

// RateLimitConfig caps the global rate of reconciliation starts.
type RateLimitConfig struct {
	QPS   float64 `yaml:"qps,omitempty"`
	Burst int     `yaml:"burst,omitempty"`
}

// RetryConfig bounds retries of failed reconciliations.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"maxAttempts,omitempty"`
	InitialBackoff time.Duration `yaml:"initialBackoff,omitempty"`
	MaxBackoff     time.Duration `yaml:"maxBackoff,omitempty"`
	Jitter         float64       `yaml:"jitter,omitempty"`
}
