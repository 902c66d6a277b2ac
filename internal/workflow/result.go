package workflow

import (
	"errors"
	"time"

	"converge/pkg/apis/converge/v1alpha1"
)

// NodeResult is the outcome of one dependent in a pass.
type NodeResult struct {
	Name  string
	State v1alpha1.DependentState
	// Ready is the readiness seen by the node's dependents.
	Ready bool
	// Deleted is set by cleanup once the resource is confirmed gone.
	Deleted  bool
	Message  string
	Err      error
	Duration time.Duration
}

// Result is the outcome of a Reconcile or Cleanup pass.
type Result struct {
	ExecutionID string
	Cleanup     bool
	// Nodes are in processing order.
	Nodes    []NodeResult
	Started  time.Time
	Duration time.Duration
}

// Err joins the node errors of the pass. A non-nil Err with some nodes
// succeeded is a partial failure; it is retried like any other error.
func (r *Result) Err() error {
	var errs []error
	for _, n := range r.Nodes {
		if n.Err != nil {
			errs = append(errs, n.Err)
		}
	}
	return errors.Join(errs...)
}

// Failed returns the names of failed nodes.
func (r *Result) Failed() []string {
	var names []string
	for _, n := range r.Nodes {
		if n.Err != nil {
			names = append(names, n.Name)
		}
	}
	return names
}

// Node returns the outcome of the named node.
func (r *Result) Node(name string) (NodeResult, bool) {
	for _, n := range r.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeResult{}, false
}

// Ready reports whether every node is ready.
func (r *Result) Ready() bool {
	for _, n := range r.Nodes {
		if !n.Ready {
			return false
		}
	}
	return true
}

// NotReady returns the names of nodes that are not ready.
func (r *Result) NotReady() []string {
	var names []string
	for _, n := range r.Nodes {
		if !n.Ready {
			names = append(names, n.Name)
		}
	}
	return names
}

// Complete reports whether a cleanup pass deleted everything it had to.
func (r *Result) Complete() bool {
	for _, n := range r.Nodes {
		if !n.Deleted {
			return false
		}
	}
	return true
}

// Writes counts the nodes that created, updated or deleted a resource.
func (r *Result) Writes() int {
	n := 0
	for _, node := range r.Nodes {
		switch node.State {
		case v1alpha1.DependentCreated, v1alpha1.DependentUpdated, v1alpha1.DependentDeleted:
			n++
		}
	}
	return n
}

// Statuses converts the pass into the status surface of the primary.
func (r *Result) Statuses() []v1alpha1.DependentStatus {
	out := make([]v1alpha1.DependentStatus, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		msg := n.Message
		if n.Err != nil {
			msg = n.Err.Error()
		}
		out = append(out, v1alpha1.DependentStatus{
			Name:    n.Name,
			State:   n.State,
			Ready:   n.Ready,
			Message: msg,
		})
	}
	return out
}
