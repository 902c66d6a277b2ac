package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Condition types written by the engine.
const (
	// ConditionReady is True when every dependent of the primary reports ready.
	ConditionReady = "Ready"

	// ConditionReconciled is True when the last reconciliation pass succeeded.
	ConditionReconciled = "Reconciled"

	// ConditionRetriesExhausted is True once automatic retrying has stopped for the
	// current generation. It is cleared by the next successful reconciliation.
	ConditionRetriesExhausted = "RetriesExhausted"
)

// Condition reasons written by the engine.
const (
	ReasonDependentsReady    = "DependentsReady"
	ReasonDependentsNotReady = "DependentsNotReady"
	ReasonReconcileSucceeded = "ReconcileSucceeded"
	ReasonReconcileFailed    = "ReconcileFailed"
	ReasonPartialFailure     = "PartialFailure"
	ReasonMaxAttempts        = "MaxAttemptsReached"
	ReasonRetrying           = "Retrying"
)

// DependentState is the per-pass outcome of one dependent resource.
type DependentState string

const (
	DependentCreated   DependentState = "Created"
	DependentUpdated   DependentState = "Updated"
	DependentDeleted   DependentState = "Deleted"
	DependentUnchanged DependentState = "Unchanged"
	DependentSkipped   DependentState = "Skipped"
	DependentFailed    DependentState = "Failed"
)

// DependentStatus reports the last observed state of one dependent resource.
type DependentStatus struct {
	// Name is the dependent's name within the workflow.
	Name string `json:"name" yaml:"name"`

	// State is the action taken in the last pass.
	State DependentState `json:"state" yaml:"state"`

	// Ready mirrors the dependent's readiness as seen by its own dependents.
	Ready bool `json:"ready" yaml:"ready"`

	// Message carries the error or skip reason, if any.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Status is the engine-managed part of a primary resource's status.
type Status struct {
	// ObservedGeneration is the metadata.generation last reconciled successfully.
	ObservedGeneration int64 `json:"observedGeneration,omitempty" yaml:"observedGeneration,omitempty"`

	// Conditions represent the latest available observations of the primary's state.
	Conditions []metav1.Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`

	// Dependents lists the per-dependent outcome of the last workflow pass.
	Dependents []DependentStatus `json:"dependents,omitempty" yaml:"dependents,omitempty"`

	// RetryCount is the number of consecutive failed attempts.
	RetryCount int `json:"retryCount,omitempty" yaml:"retryCount,omitempty"`

	// LastError is the message of the most recent failure.
	LastError string `json:"lastError,omitempty" yaml:"lastError,omitempty"`
}

// DeepCopyInto copies the receiver into out.
func (in *Status) DeepCopyInto(out *Status) {
	*out = *in
	if in.Conditions != nil {
		out.Conditions = make([]metav1.Condition, len(in.Conditions))
		for i := range in.Conditions {
			in.Conditions[i].DeepCopyInto(&out.Conditions[i])
		}
	}
	if in.Dependents != nil {
		out.Dependents = make([]DependentStatus, len(in.Dependents))
		copy(out.Dependents, in.Dependents)
	}
}

// DeepCopy returns a deep copy of the receiver.
func (in *Status) DeepCopy() *Status {
	if in == nil {
		return nil
	}
	out := new(Status)
	in.DeepCopyInto(out)
	return out
}
