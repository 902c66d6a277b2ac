package controller

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/api/equality"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"converge/internal/dispatch"
	"converge/internal/workflow"
	"converge/pkg/apis/converge/v1alpha1"
)

// Primaries without a status accessor are left alone by these helpers.

func setSucceeded(obj client.Object, res *workflow.Result) {
	acc, ok := v1alpha1.AccessorFor(obj)
	if !ok {
		return
	}
	st := acc.GetConvergeStatus()
	gen := obj.GetGeneration()

	setReady(&st, res, gen)
	st.SetCondition(v1alpha1.ConditionReconciled, metav1.ConditionTrue, v1alpha1.ReasonReconcileSucceeded, "", gen)
	st.RemoveCondition(v1alpha1.ConditionRetriesExhausted)
	st.Dependents = res.Statuses()
	st.ObservedGeneration = gen
	st.RetryCount = 0
	st.LastError = ""
	acc.SetConvergeStatus(st)
}

func setFailed(obj client.Object, attempt int, res *workflow.Result, err error) {
	acc, ok := v1alpha1.AccessorFor(obj)
	if !ok {
		return
	}
	st := acc.GetConvergeStatus()
	gen := obj.GetGeneration()

	reason := v1alpha1.ReasonReconcileFailed
	if res != nil && len(res.Failed()) > 0 {
		reason = v1alpha1.ReasonPartialFailure
	}
	st.SetCondition(v1alpha1.ConditionReconciled, metav1.ConditionFalse, reason, err.Error(), gen)
	if res != nil {
		setReady(&st, res, gen)
		st.Dependents = res.Statuses()
	}
	st.RetryCount = attempt
	st.LastError = err.Error()
	acc.SetConvergeStatus(st)
}

func setExhausted(obj client.Object, terr *dispatch.TerminalError) {
	acc, ok := v1alpha1.AccessorFor(obj)
	if !ok {
		return
	}
	st := acc.GetConvergeStatus()
	gen := obj.GetGeneration()

	msg := fmt.Sprintf("gave up after %d attempts: %v", terr.Attempts, terr.Err)
	st.SetCondition(v1alpha1.ConditionRetriesExhausted, metav1.ConditionTrue, v1alpha1.ReasonMaxAttempts, msg, gen)
	st.SetCondition(v1alpha1.ConditionReconciled, metav1.ConditionFalse, v1alpha1.ReasonMaxAttempts, terr.Err.Error(), gen)
	st.RetryCount = terr.Attempts
	st.LastError = terr.Err.Error()
	acc.SetConvergeStatus(st)
}

func setReady(st *v1alpha1.Status, res *workflow.Result, gen int64) {
	if res.Ready() {
		st.SetCondition(v1alpha1.ConditionReady, metav1.ConditionTrue, v1alpha1.ReasonDependentsReady, "", gen)
		return
	}
	st.SetCondition(v1alpha1.ConditionReady, metav1.ConditionFalse, v1alpha1.ReasonDependentsNotReady,
		"waiting for "+strings.Join(res.NotReady(), ", "), gen)
}

func isReady(obj client.Object) bool {
	acc, ok := v1alpha1.AccessorFor(obj)
	if !ok {
		return false
	}
	st := acc.GetConvergeStatus()
	return st.IsConditionTrue(v1alpha1.ConditionReady)
}

func statusChanged(original, updated client.Object) bool {
	a, ok := v1alpha1.AccessorFor(original)
	if !ok {
		return false
	}
	b, _ := v1alpha1.AccessorFor(updated)
	return !equality.Semantic.DeepEqual(a.GetConvergeStatus(), b.GetConvergeStatus())
}
