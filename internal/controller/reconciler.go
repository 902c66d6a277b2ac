package controller

import (
	"context"

	"sigs.k8s.io/controller-runtime/pkg/client"

	"converge/internal/workflow"
)

// Reconciler contains the primary-specific logic that runs after the
// dependents of a primary were reconciled successfully. Secondary state is
// available through rc.
type Reconciler[P client.Object] interface {
	Reconcile(ctx context.Context, primary P, rc *workflow.Context) (UpdateControl, error)
}

// Cleaner is implemented by reconcilers that must act before a deleting
// primary is released. It runs after the dependents were cleaned up.
type Cleaner[P client.Object] interface {
	Cleanup(ctx context.Context, primary P, rc *workflow.Context) (DeleteControl, error)
}

// ErrorStatusHandler is implemented by reconcilers that record failures in
// their own status fields. Returning true forces a status patch.
type ErrorStatusHandler[P client.Object] interface {
	UpdateErrorStatus(primary P, rc *workflow.Context, err error) bool
}

// ReconcilerFunc adapts a function to Reconciler.
type ReconcilerFunc[P client.Object] func(ctx context.Context, primary P, rc *workflow.Context) (UpdateControl, error)

// Reconcile calls f.
func (f ReconcilerFunc[P]) Reconcile(ctx context.Context, primary P, rc *workflow.Context) (UpdateControl, error) {
	return f(ctx, primary, rc)
}

// NoopReconciler leaves everything to the workflow.
type NoopReconciler[P client.Object] struct{}

// Reconcile returns NoUpdate.
func (NoopReconciler[P]) Reconcile(context.Context, P, *workflow.Context) (UpdateControl, error) {
	return NoUpdate(), nil
}
