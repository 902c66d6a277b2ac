package v1alpha1

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

// ConditionsAccessor is implemented by primaries that only expose conditions.
type ConditionsAccessor interface {
	GetConditions() []metav1.Condition
	SetConditions([]metav1.Condition)
}

// StatusAccessor is implemented by primaries that embed Status.
type StatusAccessor interface {
	GetConvergeStatus() Status
	SetConvergeStatus(Status)
}

// AccessorFor returns a StatusAccessor for obj. Typed primaries implement
// StatusAccessor or ConditionsAccessor themselves; unstructured primaries are
// adapted by reading and writing the well-known fields under .status.
func AccessorFor(obj runtime.Object) (StatusAccessor, bool) {
	switch o := obj.(type) {
	case StatusAccessor:
		return o, true
	case ConditionsAccessor:
		return conditionsOnly{o}, true
	case *unstructured.Unstructured:
		return unstructuredStatus{o}, true
	default:
		return nil, false
	}
}

type conditionsOnly struct {
	ConditionsAccessor
}

func (c conditionsOnly) GetConvergeStatus() Status {
	return Status{Conditions: c.GetConditions()}
}

func (c conditionsOnly) SetConvergeStatus(s Status) {
	c.SetConditions(s.Conditions)
}

type unstructuredStatus struct {
	obj *unstructured.Unstructured
}

func (u unstructuredStatus) GetConvergeStatus() Status {
	var s Status
	raw, ok, err := unstructured.NestedMap(u.obj.Object, "status")
	if err != nil || !ok {
		return s
	}
	_ = runtime.DefaultUnstructuredConverter.FromUnstructured(raw, &s)
	return s
}

func (u unstructuredStatus) SetConvergeStatus(s Status) {
	raw, err := runtime.DefaultUnstructuredConverter.ToUnstructured(&s)
	if err != nil {
		return
	}
	existing, _, _ := unstructured.NestedMap(u.obj.Object, "status")
	if existing == nil {
		existing = map[string]interface{}{}
	}
	// Only the engine-owned keys are replaced; anything else a reconciler put
	// under .status is kept.
	for _, key := range []string{"observedGeneration", "conditions", "dependents", "retryCount", "lastError"} {
		if v, ok := raw[key]; ok {
			existing[key] = v
		} else {
			delete(existing, key)
		}
	}
	if err := unstructured.SetNestedMap(u.obj.Object, existing, "status"); err != nil {
		panic(fmt.Sprintf("setting status on %s: %v", u.obj.GetName(), err))
	}
}

// SetCondition sets or updates a condition on s, keeping LastTransitionTime
// stable when the status does not change.
func (s *Status) SetCondition(condType string, status metav1.ConditionStatus, reason, message string, generation int64) bool {
	return meta.SetStatusCondition(&s.Conditions, metav1.Condition{
		Type:               condType,
		Status:             status,
		Reason:             reason,
		Message:            message,
		ObservedGeneration: generation,
	})
}

// IsConditionTrue reports whether the condition of the given type is True.
func (s *Status) IsConditionTrue(condType string) bool {
	return meta.IsStatusConditionTrue(s.Conditions, condType)
}

// RemoveCondition drops the condition of the given type.
func (s *Status) RemoveCondition(condType string) bool {
	return meta.RemoveStatusCondition(&s.Conditions, condType)
}
