package declarative

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"converge/internal/cluster"
	"converge/internal/cluster/clustertest"
	"converge/internal/controller"
	"converge/internal/dispatch"
	"converge/internal/resource"
	"converge/internal/workflow"
	"converge/pkg/apis/converge/v1alpha1"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

const conditionalDefinition = `
name: conditional
primary:
  apiVersion: test.converge.io/v1
  kind: Widget
dependents:
  - name: big
    apiVersion: v1
    kind: ConfigMap
    reconcileWhen: '{{ gt (int .primary.spec.size) 3 }}'
    template: |
      metadata:
        name: {{ .name }}-big
  - name: message
    apiVersion: v1
    kind: ConfigMap
    template: |
      {{- if dig "spec" "message" "" .primary }}
      metadata:
        name: {{ .name }}-message
      data:
        text: {{ .primary.spec.message | quote }}
      {{- end }}
`

func parse(t *testing.T, text string) *ControllerDefinition {
	t.Helper()
	def, err := Parse([]byte(text), filepath.Join(t.TempDir(), "def.yaml"))
	require.NoError(t, err)
	return def
}

type harness struct {
	cluster *clustertest.Cluster
}

func start(t *testing.T, defs ...*ControllerDefinition) *harness {
	t.Helper()
	c := clustertest.New(nil)
	mgr := controller.NewManager(c, controller.ManagerOptions{
		Workers: 2,
		Retry: dispatch.RetryPolicy{
			MaxAttempts: 3,
			Backoff:     dispatch.Backoff{Initial: 10 * time.Millisecond, Max: 100 * time.Millisecond},
		},
	})
	for _, def := range defs {
		ctl, err := Build(c, def)
		require.NoError(t, err)
		require.NoError(t, mgr.Register(ctl))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	require.Eventually(t, mgr.Running, waitFor, tick)
	return &harness{cluster: c}
}

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

func TestBuild_RendersDependentsAndStatus(t *testing.T) {
	def := parse(t, widgetDefinition)
	def.FileTrigger = nil
	def.Status = map[string]any{"phase": "Ready-{{ .primary.spec.size }}"}
	h := start(t, def)

	require.NoError(t, h.cluster.Writer().Create(context.Background(), clustertest.NewWidget("default", "demo", 3)))

	require.Eventually(t, func() bool {
		w := h.widget(t, "demo")
		return w != nil && w.Status.Phase == "Ready-3" &&
			meta.IsStatusConditionTrue(w.Status.Conditions, v1alpha1.ConditionReady)
	}, waitFor, tick)

	cfg := h.configMap(t, "demo-config")
	require.NotNil(t, cfg)
	assert.Equal(t, "3", cfg.Data["size"])
	require.Len(t, cfg.OwnerReferences, 1)
	assert.Equal(t, "demo", cfg.OwnerReferences[0].Name)

	app := h.configMap(t, "demo-app")
	require.NotNil(t, app)
	assert.Equal(t, "demo-config", app.Data["config"])

	w := h.widget(t, "demo")
	assert.Contains(t, w.Finalizers, "widgets.converge.io/finalizer")

	h.update(t, "demo", func(w *clustertest.Widget) { w.Spec.Size = 7 })
	require.Eventually(t, func() bool {
		cm := h.configMap(t, "demo-config")
		return cm != nil && cm.Data["size"] == "7"
	}, waitFor, tick)
	// CreateOnly dependents are left as they were created.
	assert.Equal(t, "demo-config", h.configMap(t, "demo-app").Data["config"])

	require.NoError(t, h.cluster.Writer().Delete(context.Background(), h.widget(t, "demo")))
	require.Eventually(t, func() bool {
		return h.widget(t, "demo") == nil && h.configMap(t, "demo-config") == nil
	}, waitFor, tick)
	// CreateOnly dependents are never deleted by the controller.
	assert.NotNil(t, h.configMap(t, "demo-app"))
}

func TestBuild_ConditionalDependents(t *testing.T) {
	h := start(t, parse(t, conditionalDefinition))

	require.NoError(t, h.cluster.Writer().Create(context.Background(), clustertest.NewWidget("default", "demo", 2)))
	require.Eventually(t, func() bool {
		w := h.widget(t, "demo")
		return w != nil && meta.IsStatusConditionTrue(w.Status.Conditions, v1alpha1.ConditionReconciled)
	}, waitFor, tick)
	assert.Nil(t, h.configMap(t, "demo-big"))
	assert.Nil(t, h.configMap(t, "demo-message"))

	h.update(t, "demo", func(w *clustertest.Widget) {
		w.Spec.Size = 5
		w.Spec.Message = "hello"
	})
	require.Eventually(t, func() bool {
		return h.configMap(t, "demo-big") != nil && h.configMap(t, "demo-message") != nil
	}, waitFor, tick)
	assert.Equal(t, "hello", h.configMap(t, "demo-message").Data["text"])

	// The message template renders nothing again, so the remembered object goes.
	h.update(t, "demo", func(w *clustertest.Widget) {
		w.Spec.Size = 1
		w.Spec.Message = ""
	})
	require.Eventually(t, func() bool {
		return h.configMap(t, "demo-big") == nil && h.configMap(t, "demo-message") == nil
	}, waitFor, tick)
}

func TestBuild_FailingTemplateReportsError(t *testing.T) {
	def := parse(t, `
name: broken
primary: {apiVersion: test.converge.io/v1, kind: Widget}
dependents:
  - name: config
    apiVersion: v1
    kind: ConfigMap
    template: |
      metadata:
        name: {{ .primary.spec.missing }}
`)
	h := start(t, def)
	require.NoError(t, h.cluster.Writer().Create(context.Background(), clustertest.NewWidget("default", "demo", 1)))

	require.Eventually(t, func() bool {
		w := h.widget(t, "demo")
		return w != nil && meta.IsStatusConditionTrue(w.Status.Conditions, v1alpha1.ConditionRetriesExhausted)
	}, waitFor, tick)
	w := h.widget(t, "demo")
	assert.Contains(t, w.Status.LastError, "config")
	assert.Equal(t, 3, w.Status.RetryCount)
}

func TestManifest_Decode(t *testing.T) {
	primary := &unstructured.Unstructured{}
	primary.SetGroupVersionKind(clustertest.GroupVersion.WithKind("Widget"))
	primary.SetNamespace("apps")
	primary.SetName("web")
	rc := workflow.NewContext(primary, resource.New("Widget", "apps", "web"), 1, "r1")

	def := &ControllerDefinition{Name: "widgets", Primary: KindReference{APIVersion: "test.converge.io/v1", Kind: "Widget"}}
	cm := KindReference{APIVersion: "v1", Kind: "ConfigMap"}
	ns := KindReference{APIVersion: "v1", Kind: "Namespace"}

	tests := []struct {
		name     string
		spec     DependentDefinition
		rendered string
		check    func(t *testing.T, obj Object)
		wantErr  string
	}{
		{
			name:     "defaults kind and namespace",
			spec:     DependentDefinition{Name: "cm", KindReference: cm},
			rendered: "metadata:\n  name: web-config\ndata:\n  replicas: \"3\"\n",
			check: func(t *testing.T, obj Object) {
				assert.Equal(t, "ConfigMap", obj.GetKind())
				assert.Equal(t, "v1", obj.GetAPIVersion())
				assert.Equal(t, "apps", obj.GetNamespace())
			},
		},
		{
			name:     "integers stay integers",
			spec:     DependentDefinition{Name: "cm", KindReference: cm},
			rendered: "metadata: {name: web}\nspec: {replicas: 3}\n",
			check: func(t *testing.T, obj Object) {
				v, _, _ := unstructured.NestedFieldNoCopy(obj.Object, "spec", "replicas")
				assert.Equal(t, int64(3), v)
			},
		},
		{
			name:     "cluster scoped gets owner labels",
			spec:     DependentDefinition{Name: "ns", KindReference: ns, ClusterScoped: true},
			rendered: "metadata: {name: web, namespace: apps}\n",
			check: func(t *testing.T, obj Object) {
				assert.Empty(t, obj.GetNamespace())
				assert.Equal(t, map[string]string{
					OwnerNameLabel:      "web",
					OwnerNamespaceLabel: "apps",
					OwnerKindLabel:      "Widget",
				}, obj.GetLabels())
			},
		},
		{
			name:     "kind mismatch",
			spec:     DependentDefinition{Name: "cm", KindReference: cm},
			rendered: "kind: Secret\nmetadata: {name: web}\n",
			wantErr:  "rendered kind Secret, declared ConfigMap",
		},
		{
			name:     "foreign namespace",
			spec:     DependentDefinition{Name: "cm", KindReference: cm},
			rendered: "metadata: {name: web, namespace: other}\n",
			wantErr:  "outside the primary's namespace",
		},
		{
			name:     "no name",
			spec:     DependentDefinition{Name: "cm", KindReference: cm},
			rendered: "data: {a: b}\n",
			wantErr:  "no metadata.name",
		},
		{
			name:     "not an object",
			spec:     DependentDefinition{Name: "cm", KindReference: cm},
			rendered: "- a\n- b\n",
			wantErr:  "not an object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := tt.spec
			m := &manifest{builder: newBuilder(nil, def), spec: &spec}
			obj, err := m.decode(tt.rendered, rc)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, obj)
		})
	}
}

func TestReadiness(t *testing.T) {
	obj := &unstructured.Unstructured{Object: map[string]any{
		"status": map[string]any{"phase": "Running", "replicas": int64(2)},
	}}

	tests := []struct {
		name string
		rw   ReadyWhen
		want bool
	}{
		{name: "exists", rw: ReadyWhen{Exists: true}, want: true},
		{name: "all match", rw: ReadyWhen{Matches: map[string]string{"status.phase": "Running", "status.replicas": "2"}}, want: true},
		{name: "value differs", rw: ReadyWhen{Matches: map[string]string{"status.phase": "Pending"}}, want: false},
		{name: "field missing", rw: ReadyWhen{Matches: map[string]string{"status.ready": "true"}}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rw := tt.rw
			got, err := readiness(&rw)(context.Background(), nil, obj)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOwnerMapper(t *testing.T) {
	mapper := ownerMapper(clustertest.GroupVersion.WithKind("Widget").GroupKind(), "Widget")

	labelled := &unstructured.Unstructured{}
	labelled.SetLabels(map[string]string{OwnerNameLabel: "web", OwnerNamespaceLabel: "apps", OwnerKindLabel: "Widget"})
	assert.Equal(t, []resource.ID{resource.New("Widget", "apps", "web")}, mapper.Map(labelled))

	foreign := &unstructured.Unstructured{}
	foreign.SetLabels(map[string]string{OwnerNameLabel: "web", OwnerKindLabel: "Gadget"})
	assert.Empty(t, mapper.Map(foreign))
}

func TestTriggerFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "apps"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "web.yaml"), []byte("image: nginx\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "apps", "api.yaml"), []byte("image: api\n"), 0o644))

	b := newBuilder(nil, &ControllerDefinition{FileTrigger: &FileTrigger{Dir: dir}})

	got, err := b.triggerFile("default", "web")
	require.NoError(t, err)
	assert.Equal(t, "nginx", got["image"])

	got, err = b.triggerFile("apps", "api")
	require.NoError(t, err)
	assert.Equal(t, "api", got["image"])

	got, err = b.triggerFile("apps", "web")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWorkflowOrder(t *testing.T) {
	wf, err := Workflow(parse(t, widgetDefinition))
	require.NoError(t, err)
	assert.Equal(t, []string{"config", "app"}, wf.Order())
	assert.Equal(t, []string{"app", "config"}, wf.CleanupOrder())
}
