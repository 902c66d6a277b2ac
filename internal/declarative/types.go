package declarative

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// ControllerDefinition declares a controller whose dependents are templated
// manifests.
type ControllerDefinition struct {
	// Name identifies the controller. Required.
	Name string `json:"name"`

	// Description is shown by the CLI.
	Description string `json:"description,omitempty"`

	// Primary is the kind reconciled by the controller.
	Primary KindReference `json:"primary"`

	// Finalizer overrides the default <name>.converge.io/finalizer.
	Finalizer string `json:"finalizer,omitempty"`

	Workers      int              `json:"workers,omitempty"`
	ResyncPeriod *metav1.Duration `json:"resyncPeriod,omitempty"`
	Retry        *RetryDefinition `json:"retry,omitempty"`

	// Values are made available to templates as .values.
	Values map[string]any `json:"values,omitempty"`

	// FileTrigger reconciles primaries when their file in a directory changes.
	FileTrigger *FileTrigger `json:"fileTrigger,omitempty"`

	Dependents []DependentDefinition `json:"dependents"`

	// Status fields are rendered after every successful pass and written to
	// the primary's status.
	Status map[string]any `json:"status,omitempty"`

	path string
}

// KindReference names a cluster kind.
type KindReference struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`
}

// GroupVersionKind parses the reference.
func (k KindReference) GroupVersionKind() schema.GroupVersionKind {
	return schema.FromAPIVersionAndKind(k.APIVersion, k.Kind)
}

func (k KindReference) String() string {
	return k.APIVersion + ", Kind=" + k.Kind
}

// RetryDefinition overrides the operator's retry policy.
type RetryDefinition struct {
	MaxAttempts    int             `json:"maxAttempts"`
	InitialBackoff metav1.Duration `json:"initialBackoff"`
	MaxBackoff     metav1.Duration `json:"maxBackoff"`
	Jitter         float64         `json:"jitter,omitempty"`
}

// FileTrigger watches Dir. A file <name>.yaml triggers the primary <name> in
// Namespace; <namespace>/<name>.yaml triggers it in that namespace. The file
// content is available to templates as .file.
type FileTrigger struct {
	Dir       string `json:"dir"`
	Namespace string `json:"namespace,omitempty"`
}

// DependentDefinition declares one dependent.
type DependentDefinition struct {
	Name string `json:"name"`

	KindReference `json:",inline"`

	// Mode is one of ReadOnly, CreateOnly, CreateUpdate, CreateUpdateDelete.
	// Defaults to CreateUpdateDelete.
	Mode string `json:"mode,omitempty"`

	DependsOn []string `json:"dependsOn,omitempty"`

	ReadyWhen *ReadyWhen `json:"readyWhen,omitempty"`

	// ReconcileWhen is a template that must render to a boolean. While it
	// renders false the dependent is removed.
	ReconcileWhen string `json:"reconcileWhen,omitempty"`

	// GarbageCollected dependents are left to the cluster's garbage collector
	// on deletion of the primary.
	GarbageCollected bool `json:"garbageCollected,omitempty"`

	// ClusterScoped dependents get no namespace and no owner reference.
	ClusterScoped bool `json:"clusterScoped,omitempty"`

	// Template renders the manifest. An empty rendering means the dependent is
	// not wanted.
	Template string `json:"template"`
}

// ReadyWhen decides when a dependent is ready. Without it a dependent is
// ready once it matches its manifest.
type ReadyWhen struct {
	// Exists makes the dependent ready as soon as it exists.
	Exists bool `json:"exists,omitempty"`

	// Matches maps dotted field paths of the observed object, e.g.
	// status.phase, to the values they must have.
	Matches map[string]string `json:"matches,omitempty"`
}

// Path returns the file the definition was loaded from, if any.
func (d *ControllerDefinition) Path() string { return d.path }
