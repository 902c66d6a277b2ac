package config

import "time"

const (
	// DefaultMetricsAddr is where /metrics is served.
	DefaultMetricsAddr = ":8080"

	// DefaultHealthAddr is where /healthz, /readyz and /statusz are served.
	DefaultHealthAddr = ":8081"

	// DefaultControllersDir is the subdirectory holding controller definitions.
	DefaultControllersDir = "controllers"
)

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() ConvergeConfig {
	return ConvergeConfig{
		Workers:     2,
		LogLevel:    "info",
		LogFormat:   "text",
		MetricsAddr: DefaultMetricsAddr,
		HealthAddr:  DefaultHealthAddr,
		RateLimit: RateLimitConfig{
			QPS:   20,
			Burst: 50,
		},
		Retry: RetryConfig{
			MaxAttempts:    5,
			InitialBackoff: time.Second,
			MaxBackoff:     5 * time.Minute,
			Jitter:         0.1,
		},
		ResyncPeriod:   10 * time.Minute,
		ControllersDir: DefaultControllersDir,
		Leaderless:     true,
	}
}
