package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"converge/internal/dispatch"
	"converge/internal/event"
	"converge/pkg/apis/converge/v1alpha1"
)

func TestObserver_Reconcile(t *testing.T) {
	const controller = "test-observer-reconcile"
	o := NewObserver(nil)

	o.ObserveReconcile(controller, dispatch.ResultSuccess, 10*time.Millisecond)
	o.ObserveReconcile(controller, dispatch.ResultRequeue, 10*time.Millisecond)
	o.ObserveReconcile(controller, dispatch.ResultError, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(reconcileTotal.WithLabelValues(controller, dispatch.ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(reconcileTotal.WithLabelValues(controller, dispatch.ResultError)))

	view, ok := o.Summary().GetControllerMetrics(controller)
	require.True(t, ok)
	assert.Equal(t, int64(3), view.ReconcileAttempts)
	assert.Equal(t, int64(2), view.ReconcileSuccesses)
	assert.Equal(t, int64(1), view.ReconcileFailures)
}

func TestObserver_RetriesAndTerminal(t *testing.T) {
	const controller = "test-observer-retries"
	o := NewObserver(nil)

	o.ObserveRetry(controller, 1, 100*time.Millisecond)
	o.ObserveRetry(controller, 2, 200*time.Millisecond)
	o.ObserveTerminal(controller)
	o.ObserveQueueDepth(controller, 7)

	assert.Equal(t, 2.0, testutil.ToFloat64(retriesTotal.WithLabelValues(controller)))
	assert.Equal(t, 1.0, testutil.ToFloat64(terminalFailuresTotal.WithLabelValues(controller)))
	assert.Equal(t, 7.0, testutil.ToFloat64(queueDepth.WithLabelValues(controller)))
	assert.Equal(t, int64(1), o.Summary().GetSummary().TotalTerminalFailures)
}

func TestObserver_Dependents(t *testing.T) {
	const controller = "test-observer-dependents"
	o := NewObserver(nil)

	o.ObserveDependents(controller, []v1alpha1.DependentStatus{
		{Name: "config", State: v1alpha1.DependentCreated},
		{Name: "db", State: v1alpha1.DependentFailed},
	})
	o.ObserveDependents(controller, []v1alpha1.DependentStatus{
		{Name: "config", State: v1alpha1.DependentCreated},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(dependentActionsTotal.WithLabelValues(controller, "config", "Created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(dependentActionsTotal.WithLabelValues(controller, "db", "Failed")))
}

func TestObserver_Sources(t *testing.T) {
	const controller = "test-observer-sources"
	o := NewObserver(nil)

	o.ObserveSources(controller, map[string]event.Health{
		"informer/Widget": {Healthy: true},
		"poll/schema":     {Healthy: false, ConsecutiveFailures: 4},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(sourceHealthy.WithLabelValues(controller, "informer/Widget")))
	assert.Equal(t, 0.0, testutil.ToFloat64(sourceHealthy.WithLabelValues(controller, "poll/schema")))
	assert.Equal(t, 4.0, testutil.ToFloat64(sourceConsecutiveFailures.WithLabelValues(controller, "poll/schema")))
}

func TestReconcilerMetrics_Summary(t *testing.T) {
	m := NewReconcilerMetrics()

	m.RecordReconcile("b", true)
	m.RecordReconcile("a", false)
	m.RecordReconcile("a", true)
	m.RecordStatusSync("a", "demo", nil)
	m.RecordStatusSync("a", "demo", errors.New("conflict"))

	summary := m.GetSummary()
	assert.Equal(t, int64(3), summary.TotalReconcileAttempts)
	assert.Equal(t, int64(1), summary.TotalReconcileFailures)
	assert.InDelta(t, 1.0/3.0, summary.ReconcileFailureRate, 1e-9)
	assert.InDelta(t, 0.5, summary.StatusSyncFailureRate, 1e-9)

	require.Len(t, summary.PerController, 2)
	assert.Equal(t, "a", summary.PerController[0].Controller)
	assert.Equal(t, int64(1), summary.PerController[0].StatusSyncFailures)
	assert.False(t, summary.PerController[0].LastFailureAt.IsZero())

	_, ok := m.GetControllerMetrics("missing")
	assert.False(t, ok)
}
