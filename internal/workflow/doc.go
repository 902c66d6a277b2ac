// Package workflow reconciles the dependent resources of a primary resource.
//
// A Workflow is a validated, immutable DAG of dependent resource definitions.
// Each definition wraps a Dependent, which computes the desired state of one
// secondary resource from the primary and observes its current state, plus
// whichever of the Creator, Updater, Deleter, Matcher and ReadyChecker
// capabilities it implements. The operational Mode of a definition selects
// which of those capabilities the engine may use.
//
// # Reconcile
//
// Reconcile walks the graph level by level, parents before children, running
// the nodes of one level concurrently. For each node:
//
//  1. If any dependency is not ready, the node is skipped and reported as not
//     ready, so unreadiness propagates to every descendant.
//  2. If a ReconcileWhen condition is set and false, the node is not
//     reconciled; an existing resource is deleted when the mode allows it.
//  3. Otherwise desired and observed state are compared: delete when desired
//     is absent, create when observed is absent, update when they differ, or
//     do nothing.
//  4. Readiness is evaluated with the ReadyWhen predicate when one is set,
//     else with the dependent's ReadyChecker, else as "exists and matches".
//
// A node error marks only that node's descendants as skipped; sibling
// branches continue, and the pass reports a partial failure.
//
// # Cleanup
//
// Cleanup runs delete-mode semantics in reverse order: a node is deleted only
// after all of its dependents are. Absent resources count as deleted, and
// nodes whose mode cannot delete, or which are garbage collected through
// owner references, have nothing to do.
//
// # Dependents
//
// KubernetesDependent manages a cluster object through the cached reader and
// the client writer. ExternalDependent manages state in an external system,
// opening a connection per call and always releasing it; Polled builds a
// read-only dependent whose observed state comes from an event.PollingSource.
package workflow
