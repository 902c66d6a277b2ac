// Package logging provides the structured logging used across converge.
//
// It is a thin layer over Go's standard slog package that adds a subsystem
// attribute to every line and keeps call sites short:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//
//	logging.Info("Dispatcher", "Started with %d workers", n)
//	logging.Debug("Workflow", "Node %s skipped: %s", name, reason)
//	logging.Error("Finalizer", err, "Failed to remove finalizer from %s", id)
//
// For code paths that log several lines about the same object, With returns a
// Logger carrying fixed attributes:
//
//	log := logging.With("Controller", "resource", id.String(), "reconcileID", rid)
//	log.Info("Reconciled in %s", time.Since(start))
//
// # Controller-Runtime Integration
//
// Init also installs a logr bridge (logr.FromSlogHandler) as the
// controller-runtime logger, so informers, caches and client-go write through
// the same handler and level filter as the engine itself. Logr returns such a
// logger for components that take a logr.Logger directly.
//
// # Formats
//
// Text output (the default) is meant for terminals; JSON output is meant for
// log aggregation when running inside a cluster.
package logging
