package declarative

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utiljson "k8s.io/apimachinery/pkg/util/json"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/yaml"

	"converge/internal/cluster"
	"converge/internal/controller"
	"converge/internal/event"
	"converge/internal/finalizer"
	"converge/internal/resource"
	"converge/internal/template"
	"converge/internal/workflow"
)

// Labels set on cluster-scoped dependents, which cannot carry an owner
// reference to a namespaced primary.
const (
	OwnerNameLabel      = "converge.io/owner-name"
	OwnerNamespaceLabel = "converge.io/owner-namespace"
	OwnerKindLabel      = "converge.io/owner-kind"
)

// Object is the type of primaries and dependents of declarative controllers.
type Object = *unstructured.Unstructured

// Build turns a definition into a controller on c.
func Build(c cluster.Cluster, def *ControllerDefinition) (*controller.Controller[Object], error) {
	b := newBuilder(c, def)
	wf, err := b.workflow()
	if err != nil {
		return nil, fmt.Errorf("controller %s: %w", def.Name, err)
	}

	opts := controller.Options[Object]{
		Config: controller.Config{
			Name:          def.Name,
			Kind:          def.Primary.Kind,
			FinalizerName: def.Finalizer,
			ResyncPeriod:  def.resyncPeriod(),
			Workers:       def.Workers,
		},
		Reconciler: &statusReconciler{builder: b},
		Workflow:   wf,
		Watches:    b.watches(),
	}
	if def.Retry != nil {
		opts.Config.Retry = def.Retry.policy()
	}
	if t := def.FileTrigger; t != nil {
		src, err := event.NewFileSource(event.FileOptions{
			Name:             "file/" + def.Name,
			Dir:              t.Dir,
			Kind:             def.Primary.Kind,
			DefaultNamespace: b.triggerNamespace(),
		})
		if err != nil {
			return nil, fmt.Errorf("controller %s: %w", def.Name, err)
		}
		opts.Sources = append(opts.Sources, src)
	}

	return controller.New(c, b.newPrimary, opts)
}

// Workflow builds only the dependent graph of def, e.g. to show its order.
func Workflow(def *ControllerDefinition) (*workflow.Workflow, error) {
	return newBuilder(nil, def).workflow()
}

type builder struct {
	cluster cluster.Cluster
	def     *ControllerDefinition
	engine  *template.Engine
}

func newBuilder(c cluster.Cluster, def *ControllerDefinition) *builder {
	return &builder{cluster: c, def: def, engine: template.New()}
}

func (b *builder) newPrimary() Object {
	u := &unstructured.Unstructured{}
	u.SetGroupVersionKind(b.def.Primary.GroupVersionKind())
	return u
}

func (b *builder) workflow() (*workflow.Workflow, error) {
	defs := make([]*workflow.Definition, 0, len(b.def.Dependents))
	for i := range b.def.Dependents {
		d, err := b.dependent(&b.def.Dependents[i])
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return workflow.NewWithConfig(workflow.Config{Name: b.def.Name}, defs...)
}

func (b *builder) dependent(spec *DependentDefinition) (*workflow.Definition, error) {
	mode, err := workflow.ParseMode(spec.Mode)
	if err != nil {
		return nil, fmt.Errorf("dependent %s: %w", spec.Name, err)
	}

	m := &manifest{builder: b, spec: spec}
	kd := workflow.NewKubernetesDependent[Object](b.cluster, m.desired)
	if spec.ClusterScoped {
		kd = kd.WithoutOwnerReference()
	}
	m.KubernetesDependent = kd

	opts := []workflow.Option{workflow.WithMode(mode)}
	if len(spec.DependsOn) > 0 {
		opts = append(opts, workflow.DependsOn(spec.DependsOn...))
	}
	if spec.GarbageCollected {
		opts = append(opts, workflow.GarbageCollected())
	}
	if spec.ReadyWhen != nil {
		opts = append(opts, workflow.ReadyWhen(readiness(spec.ReadyWhen)))
	}
	if spec.ReconcileWhen != "" {
		opts = append(opts, workflow.ReconcileWhen(b.condition(spec)))
	}
	return workflow.Define[Object](spec.Name, m, opts...), nil
}

// watches returns one watch per distinct dependent kind.
func (b *builder) watches() []controller.Watch {
	owner := b.def.Primary.GroupVersionKind().GroupKind()
	seen := make(map[schema.GroupVersionKind]bool)
	var out []controller.Watch
	for _, dep := range b.def.Dependents {
		gvk := dep.GroupVersionKind()
		if seen[gvk] {
			continue
		}
		seen[gvk] = true
		proto := &unstructured.Unstructured{}
		proto.SetGroupVersionKind(gvk)
		out = append(out, controller.Watch{
			Object: proto,
			Mapper: ownerMapper(owner, b.def.Primary.Kind),
		})
	}
	return out
}

// ownerMapper follows the controller owner reference, or the owner labels of
// cluster-scoped dependents.
func ownerMapper(owner schema.GroupKind, kind string) event.Mapper {
	byRef := event.OwnerReferenceMapper(owner, kind, true)
	byLabel := event.LabelMapper(kind, OwnerNameLabel, OwnerNamespaceLabel)
	return event.MapperFunc(func(obj client.Object) []resource.ID {
		if ids := byRef.Map(obj); len(ids) > 0 {
			return ids
		}
		if obj.GetLabels()[OwnerKindLabel] != kind {
			return nil
		}
		return byLabel.Map(obj)
	})
}

func (b *builder) triggerNamespace() string {
	if b.def.FileTrigger != nil && b.def.FileTrigger.Namespace != "" {
		return b.def.FileTrigger.Namespace
	}
	return "default"
}

// data is what templates see.
func (b *builder) data(rc *workflow.Context) (map[string]any, error) {
	primary, ok := workflow.PrimaryAs[Object](rc)
	if !ok {
		return nil, fmt.Errorf("primary is %T, not unstructured", rc.Primary())
	}
	dependents := make(map[string]any)
	for _, dep := range b.def.Dependents {
		if obj, ok := workflow.Secondary[Object](rc, dep.Name); ok {
			dependents[dep.Name] = obj.Object
		}
	}
	file, err := b.triggerFile(primary.GetNamespace(), primary.GetName())
	if err != nil {
		return nil, err
	}
	values := b.def.Values
	if values == nil {
		values = map[string]any{}
	}
	return map[string]any{
		"primary":    primary.Object,
		"name":       primary.GetName(),
		"namespace":  primary.GetNamespace(),
		"values":     values,
		"dependents": dependents,
		"file":       file,
	}, nil
}

// triggerFile reads the file that triggers the primary, if any.
func (b *builder) triggerFile(namespace, name string) (map[string]any, error) {
	out := map[string]any{}
	t := b.def.FileTrigger
	if t == nil {
		return out, nil
	}
	candidates := []string{filepath.Join(t.Dir, namespace, name+".yaml")}
	if namespace == b.triggerNamespace() {
		candidates = append(candidates, filepath.Join(t.Dir, name+".yaml"))
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading trigger file: %w", err)
		}
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("parsing trigger file %s: %w", path, err)
		}
		if out == nil {
			out = map[string]any{}
		}
		return out, nil
	}
	return out, nil
}

func (b *builder) condition(spec *DependentDefinition) workflow.Condition {
	name := spec.Name + "/reconcileWhen"
	return func(_ context.Context, rc *workflow.Context) (bool, error) {
		data, err := b.data(rc)
		if err != nil {
			return false, err
		}
		out, err := b.engine.Render(name, spec.ReconcileWhen, data)
		if err != nil {
			return false, err
		}
		ok, err := strconv.ParseBool(strings.TrimSpace(out))
		if err != nil {
			return false, fmt.Errorf("%s rendered %q, want a boolean", name, out)
		}
		return ok, nil
	}
}

func readiness(rw *ReadyWhen) func(context.Context, *workflow.Context, Object) (bool, error) {
	return func(_ context.Context, _ *workflow.Context, observed Object) (bool, error) {
		if rw.Exists {
			return true, nil
		}
		for path, want := range rw.Matches {
			got, found, err := unstructured.NestedFieldNoCopy(observed.Object, strings.Split(path, ".")...)
			if err != nil || !found {
				return false, nil
			}
			if fmt.Sprint(got) != want {
				return false, nil
			}
		}
		return true, nil
	}
}

// manifest is a dependent rendered from a template. It remembers the last
// rendered identity per primary so an object can still be found for deletion
// once its template renders nothing or fails during cleanup.
type manifest struct {
	*workflow.KubernetesDependent[Object]

	builder *builder
	spec    *DependentDefinition

	identities sync.Map // resource.ID -> Object
}

func (m *manifest) desired(_ context.Context, rc *workflow.Context) (Object, bool, error) {
	data, err := m.builder.data(rc)
	if err != nil {
		return nil, false, err
	}
	out, err := m.builder.engine.Render(m.spec.Name, m.spec.Template, data)
	if err != nil {
		if id, ok := m.identity(rc); ok && finalizer.IsDeleting(rc.Primary()) {
			return id, false, nil
		}
		return nil, false, err
	}
	if strings.TrimSpace(out) == "" {
		id, _ := m.identity(rc)
		return id, false, nil
	}

	obj, err := m.decode(out, rc)
	if err != nil {
		return nil, false, err
	}
	m.identities.Store(rc.ID(), identityOf(obj))
	return obj, true, nil
}

func (m *manifest) decode(rendered string, rc *workflow.Context) (Object, error) {
	raw, err := yaml.YAMLToJSON([]byte(rendered))
	if err != nil {
		return nil, fmt.Errorf("dependent %s rendered invalid YAML: %w", m.spec.Name, err)
	}
	var fields map[string]any
	if err := utiljson.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("dependent %s rendered %q, not an object", m.spec.Name, strings.TrimSpace(rendered))
	}
	obj := &unstructured.Unstructured{Object: fields}

	gvk := m.spec.GroupVersionKind()
	if got := obj.GetAPIVersion(); got != "" && got != m.spec.APIVersion {
		return nil, fmt.Errorf("dependent %s rendered apiVersion %s, declared %s", m.spec.Name, got, m.spec.APIVersion)
	}
	if got := obj.GetKind(); got != "" && got != m.spec.Kind {
		return nil, fmt.Errorf("dependent %s rendered kind %s, declared %s", m.spec.Name, got, m.spec.Kind)
	}
	obj.SetGroupVersionKind(gvk)
	if obj.GetName() == "" {
		return nil, fmt.Errorf("dependent %s rendered no metadata.name", m.spec.Name)
	}

	primary := rc.Primary()
	if m.spec.ClusterScoped {
		obj.SetNamespace("")
		labels := obj.GetLabels()
		if labels == nil {
			labels = map[string]string{}
		}
		labels[OwnerNameLabel] = primary.GetName()
		labels[OwnerNamespaceLabel] = primary.GetNamespace()
		labels[OwnerKindLabel] = m.builder.def.Primary.Kind
		obj.SetLabels(labels)
		return obj, nil
	}
	switch obj.GetNamespace() {
	case "":
		obj.SetNamespace(primary.GetNamespace())
	case primary.GetNamespace():
	default:
		return nil, fmt.Errorf("dependent %s rendered namespace %s, outside the primary's namespace %s",
			m.spec.Name, obj.GetNamespace(), primary.GetNamespace())
	}
	return obj, nil
}

func (m *manifest) identity(rc *workflow.Context) (Object, bool) {
	v, ok := m.identities.Load(rc.ID())
	if !ok {
		return nil, false
	}
	return v.(Object).DeepCopy(), true
}

// Forget drops the remembered identity of a primary that is gone.
func (m *manifest) Forget(id resource.ID) {
	m.identities.Delete(id)
}

func identityOf(obj Object) Object {
	id := &unstructured.Unstructured{}
	id.SetGroupVersionKind(obj.GroupVersionKind())
	id.SetNamespace(obj.GetNamespace())
	id.SetName(obj.GetName())
	return id
}

// statusReconciler renders the definition's status fields into the
// primary's status after the dependents converged.
type statusReconciler struct {
	builder *builder
}

func (s *statusReconciler) Reconcile(_ context.Context, primary Object, rc *workflow.Context) (controller.UpdateControl, error) {
	if len(s.builder.def.Status) == 0 {
		return controller.NoUpdate(), nil
	}
	data, err := s.builder.data(rc)
	if err != nil {
		return controller.NoUpdate(), err
	}
	rendered, err := s.builder.engine.Replace(s.builder.def.Status, data)
	if err != nil {
		return controller.NoUpdate(), fmt.Errorf("rendering status: %w", err)
	}
	fields := rendered.(map[string]any)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := unstructured.SetNestedField(primary.Object, fields[k], "status", k); err != nil {
			return controller.NoUpdate(), fmt.Errorf("setting status.%s: %w", k, err)
		}
	}
	return controller.UpdateStatus(), nil
}
