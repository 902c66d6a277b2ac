// Package config provides configuration management for converge.
//
// Configuration is loaded from a single directory. The default directory is
// ~/.config/converge; commands accept --config-path to use another one.
//
// # Configuration Directory
//
// The directory contains:
//   - config.yaml (operator configuration, optional)
//   - controllers/ (declarative controller definitions, one YAML file each)
//
// # Configuration Structure
//
//	workers: 2                 # concurrent primaries per controller
//	namespace: ""              # watch a single namespace; empty watches all
//	logLevel: info             # debug, info, warn, error
//	logFormat: text            # text or json
//	metricsAddr: ":8080"       # serves /metrics
//	healthAddr: ":8081"        # serves /healthz, /readyz, /statusz
//	rateLimit:
//	  qps: 20                  # global reconciliation starts per second
//	  burst: 50
//	retry:
//	  maxAttempts: 5
//	  initialBackoff: 1s
//	  maxBackoff: 5m
//	  jitter: 0.1
//	resyncPeriod: 10m
//	controllersDir: controllers
//	leaderless: true           # required; there is no leader election
//
// Missing fields keep their defaults. The loaded configuration is validated
// and errors are reported as ConfigurationError values carrying the file and,
// for YAML syntax errors, the line.
package config
