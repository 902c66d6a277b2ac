// Package metrics exposes reconciliation metrics.
//
// Prometheus collectors are registered on controller-runtime's metrics.Registry
// at init, so they are served together with the client-go and cache metrics.
// Observer implements dispatch.Observer and additionally records workflow
// dependent outcomes, primary status writes and event source health.
package metrics
