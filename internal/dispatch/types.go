package dispatch

import (
	"context"
	"time"

	"converge/internal/event"
	"converge/internal/resource"
)

// Request is one reconciliation attempt for a resource.
type Request struct {
	// ID is the primary resource to reconcile.
	ID resource.ID

	// Attempt is the attempt number, starting at 1. It counts consecutive
	// failures plus one.
	Attempt int

	// LastError is the error from the previous attempt, if any.
	LastError error

	// Trigger is the (latest coalesced) event that caused this attempt.
	Trigger event.Event

	// ReconcileID correlates the log lines of this attempt.
	ReconcileID string
}

// Result is the outcome of an attempt.
type Result struct {
	// Err marks the attempt as failed; it is retried with backoff.
	Err error

	// RequeueAfter schedules another attempt after a successful one.
	RequeueAfter time.Duration

	// Forget drops every piece of per-ID state, e.g. because the primary is gone.
	Forget bool
}

// ReconcileFunc runs one attempt. It is never called concurrently for the same ID.
type ReconcileFunc func(ctx context.Context, req Request) Result

// TerminalFunc is called once when the retry budget of an ID is exhausted.
type TerminalFunc func(ctx context.Context, id resource.ID, err *TerminalError)

// Observer receives dispatch metrics.
type Observer interface {
	ObserveReconcile(controller, result string, duration time.Duration)
	ObserveRetry(controller string, attempt int, delay time.Duration)
	ObserveTerminal(controller string)
	ObserveQueueDepth(controller string, depth int)
}

type nopObserver struct{}

func (nopObserver) ObserveReconcile(string, string, time.Duration) {}
func (nopObserver) ObserveRetry(string, int, time.Duration)        {}
func (nopObserver) ObserveTerminal(string)                         {}
func (nopObserver) ObserveQueueDepth(string, int)                  {}

// Reconcile outcome labels passed to Observer.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultRequeue = "requeue"
)
