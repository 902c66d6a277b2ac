package event

import (
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"converge/internal/resource"
)

// Mapper maps a watched object to the primary resources that must be reconciled
// when it changes.
type Mapper interface {
	Map(obj client.Object) []resource.ID
}

// MapperFunc adapts a function to Mapper.
type MapperFunc func(obj client.Object) []resource.ID

// Map calls f(obj).
func (f MapperFunc) Map(obj client.Object) []resource.ID { return f(obj) }

// PrimaryMapper maps a primary object to itself.
func PrimaryMapper(kind string) Mapper {
	return MapperFunc(func(obj client.Object) []resource.ID {
		return []resource.ID{resource.ForObject(kind, obj)}
	})
}

// OwnerReferenceMapper maps an object to the owners of the given group kind
// listed in its owner references. When controllerOnly is set only the
// controlling owner is considered.
func OwnerReferenceMapper(owner schema.GroupKind, kind string, controllerOnly bool) Mapper {
	return MapperFunc(func(obj client.Object) []resource.ID {
		var ids []resource.ID
		for _, ref := range obj.GetOwnerReferences() {
			if controllerOnly && (ref.Controller == nil || !*ref.Controller) {
				continue
			}
			gv, err := schema.ParseGroupVersion(ref.APIVersion)
			if err != nil {
				continue
			}
			if gv.Group != owner.Group || ref.Kind != owner.Kind {
				continue
			}
			ids = append(ids, resource.New(kind, obj.GetNamespace(), ref.Name))
		}
		return ids
	})
}

// LabelMapper maps an object to the primary named by its labels. The namespace
// label is optional; without it the object's own namespace is used.
func LabelMapper(kind, nameLabel, namespaceLabel string) Mapper {
	return MapperFunc(func(obj client.Object) []resource.ID {
		labels := obj.GetLabels()
		name := labels[nameLabel]
		if name == "" {
			return nil
		}
		namespace := obj.GetNamespace()
		if namespaceLabel != "" {
			if ns, ok := labels[namespaceLabel]; ok {
				namespace = ns
			}
		}
		return []resource.ID{resource.New(kind, namespace, name)}
	})
}
