// Package app wires the converge operator together.
//
// NewApplication runs the bootstrap sequence:
//
//  1. Load config.yaml from the configuration directory (defaults when absent)
//  2. Initialize logging, including the logr bridge used by controller-runtime
//  3. Connect to the cluster (kubeconfig flag, in-cluster config or $KUBECONFIG)
//  4. Create the controller manager with the global rate limit, retry policy,
//     Kubernetes Event recorder and Prometheus observer
//  5. Load every controller definition from controllersDir, build and register it
//
// Run then starts the cluster cache, the controllers and two HTTP listeners:
// metricsAddr serves /metrics, healthAddr serves /healthz, /readyz and
// /statusz (per-resource dispatch state and reconcile counters as JSON).
// SIGINT and SIGTERM trigger a graceful shutdown. When started by systemd the
// operator reports READY=1 once the cache has synced.
package app
