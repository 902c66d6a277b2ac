// Package controller glues the engine together for one primary kind.
//
// A Controller owns an event.Manager with a watch on the primary, optional
// watches on secondary kinds and any extra sources, and a dispatch.Dispatcher
// that serializes reconciliation per primary. Each attempt runs:
//
//  1. fetch the primary from the cache; if it is gone, forget it
//  2. if it is being deleted: workflow cleanup, then Cleaner, then remove the finalizer
//  3. otherwise: ensure the finalizer, reconcile the workflow, run the
//     Reconciler (only when every dependent succeeded), apply its
//     UpdateControl and merge-patch the engine status
//
// Primaries that implement v1alpha1.StatusAccessor or ConditionsAccessor, or
// are unstructured, get the Ready, Reconciled and RetriesExhausted conditions
// and the per-dependent status.
//
// A Manager runs many controllers, shares one start rate limiter between
// them, and serves their health.
package controller
