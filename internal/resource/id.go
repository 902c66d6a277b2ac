package resource

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// ID identifies a primary resource.
type ID struct {
	Kind      string `json:"kind"`
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name"`
}

// New returns the ID for a namespaced (or, with an empty namespace, cluster-scoped) resource.
func New(kind, namespace, name string) ID {
	return ID{Kind: kind, Namespace: namespace, Name: name}
}

// ForObject returns the ID of obj, using kind as the ID's kind.
func ForObject(kind string, obj client.Object) ID {
	return ID{Kind: kind, Namespace: obj.GetNamespace(), Name: obj.GetName()}
}

// String returns kind/namespace/name, or kind/name for cluster-scoped resources.
func (id ID) String() string {
	if id.Namespace != "" {
		return id.Kind + "/" + id.Namespace + "/" + id.Name
	}
	return id.Kind + "/" + id.Name
}

// Key returns the namespace/name lookup key used by cluster clients.
func (id ID) Key() types.NamespacedName {
	return types.NamespacedName{Namespace: id.Namespace, Name: id.Name}
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Parse is the inverse of String.
func Parse(s string) (ID, error) {
	parts := strings.Split(s, "/")
	switch len(parts) {
	case 2:
		if parts[0] == "" || parts[1] == "" {
			break
		}
		return ID{Kind: parts[0], Name: parts[1]}, nil
	case 3:
		if parts[0] == "" || parts[1] == "" || parts[2] == "" {
			break
		}
		return ID{Kind: parts[0], Namespace: parts[1], Name: parts[2]}, nil
	}
	return ID{}, fmt.Errorf("invalid resource id %q: expected kind/name or kind/namespace/name", s)
}
