// Package v1alpha1 contains the status surface shared by primary resources
// reconciled by converge.
//
// The engine does not define any custom resource of its own. Instead a primary
// resource embeds Status in its .status sub-object (or, for unstructured
// primaries, carries the same fields under .status) and the engine writes the
// outcome of every reconciliation there:
//
//	status:
//	  observedGeneration: 4
//	  retryCount: 0
//	  conditions:
//	  - type: Ready
//	    status: "True"
//	    reason: DependentsReady
//	  - type: Reconciled
//	    status: "True"
//	    reason: ReconcileSucceeded
//	  dependents:
//	  - name: config
//	    state: Synced
//	    ready: true
//
// Terminal failures, once the retry budget is exhausted, are reported through
// the RetriesExhausted condition.
//
// +kubebuilder:object:generate=true
// +groupName=converge.io
package v1alpha1
