package controller

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"converge/internal/cluster"
	"converge/internal/cluster/clustertest"
	"converge/internal/dispatch"
	"converge/internal/event"
	"converge/internal/events"
	"converge/internal/resource"
	"converge/internal/workflow"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

func fastRetry(maxAttempts int) dispatch.RetryPolicy {
	return dispatch.RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     dispatch.Backoff{Initial: 10 * time.Millisecond, Max: 100 * time.Millisecond},
	}
}

func newWidget() *clustertest.Widget { return &clustertest.Widget{} }

func widgetID(name string) resource.ID {
	return resource.New(clustertest.WidgetKind, "default", name)
}

// configMapDependent renders a ConfigMap named <primary>-<suffix> carrying the widget size.
func configMapDependent(c cluster.Cluster, suffix string) *workflow.KubernetesDependent[*corev1.ConfigMap] {
	return workflow.NewKubernetesDependent(c, func(_ context.Context, rc *workflow.Context) (*corev1.ConfigMap, bool, error) {
		w, _ := workflow.PrimaryAs[*clustertest.Widget](rc)
		return &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{
				Name:      w.Name + "-" + suffix,
				Namespace: w.Namespace,
			},
			Data: map[string]string{"size": strconv.Itoa(w.Spec.Size)},
		}, true, nil
	})
}

// widgetWorkflow manages config and app, where app depends on config.
func widgetWorkflow(t *testing.T, c cluster.Cluster) *workflow.Workflow {
	t.Helper()
	wf, err := workflow.NewWithConfig(workflow.Config{Name: "widgets"},
		workflow.Define[*corev1.ConfigMap]("config", configMapDependent(c, "config")),
		workflow.Define[*corev1.ConfigMap]("app", configMapDependent(c, "app"), workflow.DependsOn("config")),
	)
	require.NoError(t, err)
	return wf
}

func newWidgetController(t *testing.T, c cluster.Cluster, opts Options[*clustertest.Widget]) *Controller[*clustertest.Widget] {
	t.Helper()
	ctl, err := New(c, newWidget, opts)
	require.NoError(t, err)
	return ctl
}

type harness struct {
	cluster  *clustertest.Cluster
	manager  *Manager
	recorder *events.MemoryRecorder
}

// run starts a manager with the given controllers and stops it when the test ends.
func run(t *testing.T, c *clustertest.Cluster, regs ...Registration) *harness {
	t.Helper()
	rec := events.NewMemoryRecorder()
	mgr := NewManager(c, ManagerOptions{
		Workers:  2,
		Retry:    fastRetry(3),
		Recorder: rec,
	})
	for _, r := range regs {
		require.NoError(t, mgr.Register(r))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	require.Eventually(t, mgr.Running, waitFor, tick)

	return &harness{cluster: c, manager: mgr, recorder: rec}
}

func (h *harness) create(t *testing.T, w *clustertest.Widget) {
	t.Helper()
	require.NoError(t, h.cluster.Writer().Create(context.Background(), w))
}

// widget returns the stored widget, or nil when it does not exist.
func (h *harness) widget(t *testing.T, name string) *clustertest.Widget {
	t.Helper()
	var w clustertest.Widget
	err := h.cluster.Raw().Get(context.Background(), client.ObjectKey{Namespace: "default", Name: name}, &w)
	if cluster.IsNotFound(err) {
		return nil
	}
	require.NoError(t, err)
	return &w
}

// update changes the stored widget through the eventing client, retrying on
// conflicts with the controller's own writes.
func (h *harness) update(t *testing.T, name string, fn func(*clustertest.Widget)) {
	t.Helper()
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		w := h.widget(t, name)
		require.NotNil(t, w)
		fn(w)
		return h.cluster.Writer().Update(context.Background(), w)
	})
	require.NoError(t, err)
}

func (h *harness) delete(t *testing.T, name string) {
	t.Helper()
	w := h.widget(t, name)
	require.NotNil(t, w)
	require.NoError(t, h.cluster.Writer().Delete(context.Background(), w))
}

func (h *harness) configMap(t *testing.T, name string) *corev1.ConfigMap {
	t.Helper()
	var cm corev1.ConfigMap
	err := h.cluster.Raw().Get(context.Background(), client.ObjectKey{Namespace: "default", Name: name}, &cm)
	if cluster.IsNotFound(err) {
		return nil
	}
	require.NoError(t, err)
	return &cm
}

// flakyDependent is an external dependent whose fetch fails while broken is set.
type flakyDependent struct {
	broken atomic.Bool
	value  atomic.Value
}

func newFlakyDependent(broken bool) *flakyDependent {
	f := &flakyDependent{}
	f.broken.Store(broken)
	return f
}

func (f *flakyDependent) dependent() *workflow.ExternalDependent[string, workflow.NoConnection] {
	return workflow.NewExternalDependent("remote", workflow.ExternalFuncs[string, workflow.NoConnection]{
		Desired: func(context.Context, *workflow.Context) (string, bool, error) {
			return "wanted", true, nil
		},
		Fetch: func(context.Context, *workflow.Context, workflow.NoConnection) (string, bool, error) {
			if f.broken.Load() {
				return "", false, errRemoteUnavailable
			}
			v, ok := f.value.Load().(string)
			return v, ok, nil
		},
		Create: func(_ context.Context, _ *workflow.Context, _ workflow.NoConnection, desired string) (string, error) {
			f.value.Store(desired)
			return desired, nil
		},
	})
}

type unhealthySource struct{}

func (unhealthySource) Name() string                                { return "poll/remote" }
func (unhealthySource) Start(context.Context, event.Handler) error { return nil }
func (unhealthySource) Stop() error                                 { return nil }
func (unhealthySource) Health() event.Health {
	return event.Health{Healthy: false, Message: "fetch failed", ConsecutiveFailures: 3}
}
