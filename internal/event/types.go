package event

import (
	"context"
	"fmt"
	"time"

	"converge/internal/resource"
)

// Operation describes what caused an event.
type Operation string

const (
	OperationCreate Operation = "Create"
	OperationUpdate Operation = "Update"
	OperationDelete Operation = "Delete"
	OperationPoll   Operation = "Poll"
	OperationResync Operation = "Resync"
	OperationManual Operation = "Manual"
)

// Event is a trigger for one primary resource. Events for the same ID are
// idempotently collapsible.
type Event struct {
	// ID is the primary resource to reconcile.
	ID resource.ID

	// Version is the resource version of the object that caused the event, if known.
	Version string

	// Operation describes the change.
	Operation Operation

	// Source is the name of the source that emitted the event.
	Source string

	// Timestamp is when the change was observed.
	Timestamp time.Time
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s (source %s)", e.Operation, e.ID, e.Source)
}

// Handler receives events. Submit must not block on reconciliation.
type Handler interface {
	Submit(Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Event)

// Submit calls f(e).
func (f HandlerFunc) Submit(e Event) { f(e) }

// Source produces events.
type Source interface {
	// Name identifies the source within a Manager.
	Name() string

	// Start begins delivering events to h. It must not block.
	Start(ctx context.Context, h Handler) error

	// Stop stops delivering events.
	Stop() error

	// Health reports whether the source is currently working.
	Health() Health
}

// Health is the observable health signal of a source.
type Health struct {
	Healthy bool
	Message string

	// ConsecutiveFailures counts failures since the last success.
	ConsecutiveFailures int

	// LastSuccess is the time of the last successful watch sync or poll.
	LastSuccess time.Time
}

// Healthy is a convenience constructor.
func Healthy() Health {
	return Health{Healthy: true, LastSuccess: time.Now()}
}
