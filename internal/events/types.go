package events

import (
	"time"
)

// EventType represents the type/severity of a Kubernetes Event.
type EventType string

const (
	// EventTypeNormal indicates normal, non-problematic events.
	EventTypeNormal EventType = "Normal"

	// EventTypeWarning indicates events that may require attention.
	EventTypeWarning EventType = "Warning"
)

// EventReason represents the reason code for an event.
type EventReason string

// Dependent resource events
const (
	// ReasonDependentCreated indicates a dependent resource was created.
	ReasonDependentCreated EventReason = "DependentCreated"

	// ReasonDependentUpdated indicates a dependent resource was brought back to its desired state.
	ReasonDependentUpdated EventReason = "DependentUpdated"

	// ReasonDependentDeleted indicates a dependent resource was deleted.
	ReasonDependentDeleted EventReason = "DependentDeleted"

	// ReasonDependentFailed indicates an operation on a dependent resource failed.
	ReasonDependentFailed EventReason = "DependentFailed"
)

// Primary resource events
const (
	// ReasonReady indicates every dependent of the primary became ready.
	ReasonReady EventReason = "Ready"

	// ReasonReconcileFailed indicates an attempt failed and will be retried.
	ReasonReconcileFailed EventReason = "ReconcileFailed"

	// ReasonRetriesExhausted indicates the retry budget was used up.
	ReasonRetriesExhausted EventReason = "RetriesExhausted"

	// ReasonFinalizerAdded indicates the engine's finalizer was added.
	ReasonFinalizerAdded EventReason = "FinalizerAdded"

	// ReasonCleanupPending indicates deletion waits for dependents to disappear.
	ReasonCleanupPending EventReason = "CleanupPending"

	// ReasonFinalizerRemoved indicates cleanup finished and the primary was released.
	ReasonFinalizerRemoved EventReason = "FinalizerRemoved"
)

// EventData holds contextual information for event message templating.
type EventData struct {
	// Name is the name of the object involved in the event.
	Name string

	// Namespace is the namespace of the object involved in the event.
	Namespace string

	// Kind is the kind of the object involved in the event.
	Kind string

	// Dependent is the workflow node name for dependent events.
	Dependent string

	// Finalizer is the finalizer name for finalizer events.
	Finalizer string

	// Error contains error information for failure events.
	Error string

	// Duration is the duration of an operation.
	Duration time.Duration

	// Attempts is the attempt count for failure events.
	Attempts int
}

// getEventType returns the appropriate EventType for a given EventReason.
func getEventType(reason EventReason) EventType {
	switch reason {
	case ReasonDependentFailed,
		ReasonReconcileFailed,
		ReasonRetriesExhausted:
		return EventTypeWarning
	default:
		return EventTypeNormal
	}
}
