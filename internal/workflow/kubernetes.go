package workflow

import (
	"context"
	"fmt"
	"reflect"

	"k8s.io/apimachinery/pkg/api/equality"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	"converge/internal/cluster"
)

// DesiredFunc computes the desired state of a dependent. Returning ok false
// with a non-nil object that carries only the identity asks for that object
// to be deleted.
type DesiredFunc[T any] func(ctx context.Context, rc *Context) (desired T, ok bool, err error)

// KubernetesDependent manages one cluster object per primary. It observes
// through the cluster's cached reader, writes through its client, and sets
// the primary as controller owner on create.
type KubernetesDependent[T client.Object] struct {
	cluster cluster.Cluster
	desired DesiredFunc[T]
	owned   bool
	match   func(observed, desired T) bool
}

// NewKubernetesDependent creates a dependent whose desired object comes from fn.
func NewKubernetesDependent[T client.Object](c cluster.Cluster, fn DesiredFunc[T]) *KubernetesDependent[T] {
	return &KubernetesDependent[T]{cluster: c, desired: fn, owned: true}
}

// WithoutOwnerReference disables the controller owner reference, e.g. for
// objects in another namespace than the primary.
func (k *KubernetesDependent[T]) WithoutOwnerReference() *KubernetesDependent[T] {
	k.owned = false
	return k
}

// WithMatcher replaces the default equality.Semantic.DeepDerivative match.
func (k *KubernetesDependent[T]) WithMatcher(fn func(observed, desired T) bool) *KubernetesDependent[T] {
	k.match = fn
	return k
}

func (k *KubernetesDependent[T]) Desired(ctx context.Context, rc *Context) (T, bool, error) {
	return k.desired(ctx, rc)
}

func (k *KubernetesDependent[T]) Observe(ctx context.Context, rc *Context, desired T) (T, bool, error) {
	var zero T
	if isNilObject(desired) {
		return zero, false, nil
	}
	obj, err := newObjectLike(desired)
	if err != nil {
		return zero, false, err
	}
	if err := k.cluster.Reader().Get(ctx, client.ObjectKeyFromObject(desired), obj); err != nil {
		if cluster.IsNotFound(err) {
			return zero, false, nil
		}
		return zero, false, err
	}
	return obj, true, nil
}

func (k *KubernetesDependent[T]) Create(ctx context.Context, rc *Context, desired T) (T, error) {
	var zero T
	obj := desired.DeepCopyObject().(T)
	if k.owned {
		if err := controllerutil.SetControllerReference(rc.Primary(), obj, k.cluster.Scheme()); err != nil {
			return zero, fmt.Errorf("setting owner reference: %w", err)
		}
	}
	if err := k.cluster.Writer().Create(ctx, obj); err != nil {
		return zero, err
	}
	return obj, nil
}

// Update replaces the object with the desired one, carrying over the
// observed resource version so a concurrent change fails with a conflict.
// Labels, annotations, owner references and finalizers set by others are kept.
func (k *KubernetesDependent[T]) Update(ctx context.Context, rc *Context, observed, desired T) (T, error) {
	var zero T
	obj := desired.DeepCopyObject().(T)
	obj.SetResourceVersion(observed.GetResourceVersion())
	obj.SetLabels(mergeStrings(observed.GetLabels(), obj.GetLabels()))
	obj.SetAnnotations(mergeStrings(observed.GetAnnotations(), obj.GetAnnotations()))
	if len(obj.GetOwnerReferences()) == 0 {
		obj.SetOwnerReferences(observed.GetOwnerReferences())
	}
	if len(obj.GetFinalizers()) == 0 {
		obj.SetFinalizers(observed.GetFinalizers())
	}
	if k.owned {
		if err := controllerutil.SetControllerReference(rc.Primary(), obj, k.cluster.Scheme()); err != nil {
			return zero, fmt.Errorf("setting owner reference: %w", err)
		}
	}
	if err := k.cluster.Writer().Update(ctx, obj); err != nil {
		return zero, err
	}
	return obj, nil
}

func (k *KubernetesDependent[T]) Delete(ctx context.Context, _ *Context, observed T) error {
	err := k.cluster.Writer().Delete(ctx, observed, client.PropagationPolicy(metav1.DeletePropagationBackground))
	return cluster.IgnoreNotFound(err)
}

func (k *KubernetesDependent[T]) Match(observed, desired T) bool {
	if k.match != nil {
		return k.match(observed, desired)
	}
	// Semantic equality compares timestamps even when unset in desired.
	d := desired.DeepCopyObject().(T)
	d.SetCreationTimestamp(observed.GetCreationTimestamp())
	return equality.Semantic.DeepDerivative(d, observed)
}

func isNilObject(obj client.Object) bool {
	if obj == nil {
		return true
	}
	v := reflect.ValueOf(obj)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// newObjectLike returns an empty object of the same type as obj. Unstructured
// objects keep their GroupVersionKind so readers know what to fetch.
func newObjectLike[T client.Object](obj T) (T, error) {
	var zero T
	if u, ok := any(obj).(*unstructured.Unstructured); ok {
		out := &unstructured.Unstructured{}
		out.SetGroupVersionKind(u.GroupVersionKind())
		return any(out).(T), nil
	}
	t := reflect.TypeOf(obj)
	if t.Kind() != reflect.Pointer {
		return zero, fmt.Errorf("object type %s is not a pointer", t)
	}
	out, ok := reflect.New(t.Elem()).Interface().(T)
	if !ok {
		return zero, fmt.Errorf("cannot allocate %s", t)
	}
	return out, nil
}

func mergeStrings(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
