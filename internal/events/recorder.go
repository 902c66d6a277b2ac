package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"converge/internal/cluster"
	"converge/pkg/logging"
)

// Recorder records an event about obj.
type Recorder interface {
	Record(ctx context.Context, obj client.Object, reason EventReason, data EventData) error
}

// KubernetesRecorder creates corev1.Event objects through the cluster client.
type KubernetesRecorder struct {
	cluster   cluster.Cluster
	component string
	templates *MessageTemplateEngine
}

var _ Recorder = (*KubernetesRecorder)(nil)

// NewKubernetesRecorder creates a recorder reporting as component.
func NewKubernetesRecorder(c cluster.Cluster, component string) *KubernetesRecorder {
	if component == "" {
		component = "converge"
	}
	return &KubernetesRecorder{
		cluster:   c,
		component: component,
		templates: NewMessageTemplateEngine(),
	}
}

// Templates returns the recorder's message templates.
func (r *KubernetesRecorder) Templates() *MessageTemplateEngine {
	return r.templates
}

// Record creates an Event for obj. Cluster-scoped objects get their events in
// the default namespace.
func (r *KubernetesRecorder) Record(ctx context.Context, obj client.Object, reason EventReason, data EventData) error {
	gvk, err := cluster.KindOf(r.cluster, obj)
	if err != nil {
		return fmt.Errorf("failed to get GroupVersionKind for object: %w", err)
	}
	data = fill(data, obj, gvk.Kind)

	message := r.templates.Render(reason, data)
	eventType := string(getEventType(reason))

	logging.Debug("events", "Generating %s event for %s %s/%s: reason=%s, message=%s",
		eventType, gvk.Kind, obj.GetNamespace(), obj.GetName(), reason, message)

	namespace := obj.GetNamespace()
	if namespace == "" {
		namespace = metav1.NamespaceDefault
	}
	now := metav1.NewTime(time.Now())
	event := &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: obj.GetName() + "-",
			Namespace:    namespace,
		},
		InvolvedObject: corev1.ObjectReference{
			APIVersion:      gvk.GroupVersion().String(),
			Kind:            gvk.Kind,
			Name:            obj.GetName(),
			Namespace:       obj.GetNamespace(),
			UID:             obj.GetUID(),
			ResourceVersion: obj.GetResourceVersion(),
		},
		Reason:              string(reason),
		Message:             message,
		Type:                eventType,
		Source:              corev1.EventSource{Component: r.component},
		ReportingController: r.component,
		FirstTimestamp:      now,
		LastTimestamp:       now,
		Count:               1,
	}

	if err := r.cluster.Writer().Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create Kubernetes Event: %w", err)
	}
	return nil
}

// Recorded is one event kept by MemoryRecorder.
type Recorded struct {
	Kind      string
	Namespace string
	Name      string
	Reason    EventReason
	Type      EventType
	Message   string
}

// MemoryRecorder keeps events in memory.
type MemoryRecorder struct {
	templates *MessageTemplateEngine

	mu     sync.Mutex
	events []Recorded
}

var _ Recorder = (*MemoryRecorder)(nil)

// NewMemoryRecorder creates an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{templates: NewMessageTemplateEngine()}
}

// Record stores the event. It never fails.
func (m *MemoryRecorder) Record(_ context.Context, obj client.Object, reason EventReason, data EventData) error {
	kind := obj.GetObjectKind().GroupVersionKind().Kind
	data = fill(data, obj, kind)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Recorded{
		Kind:      kind,
		Namespace: obj.GetNamespace(),
		Name:      obj.GetName(),
		Reason:    reason,
		Type:      getEventType(reason),
		Message:   m.templates.Render(reason, data),
	})
	return nil
}

// Events returns a copy of every recorded event in order.
func (m *MemoryRecorder) Events() []Recorded {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Recorded, len(m.events))
	copy(out, m.events)
	return out
}

// Reasons returns the reasons of every recorded event in order.
func (m *MemoryRecorder) Reasons() []EventReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventReason, len(m.events))
	for i, e := range m.events {
		out[i] = e.Reason
	}
	return out
}

// Count returns how many events with reason were recorded.
func (m *MemoryRecorder) Count(reason EventReason) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Reason == reason {
			n++
		}
	}
	return n
}

// Reset drops every recorded event.
func (m *MemoryRecorder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// NopRecorder discards events.
type NopRecorder struct{}

// Record does nothing.
func (NopRecorder) Record(context.Context, client.Object, EventReason, EventData) error { return nil }

func fill(data EventData, obj client.Object, kind string) EventData {
	if data.Name == "" {
		data.Name = obj.GetName()
	}
	if data.Namespace == "" {
		data.Namespace = obj.GetNamespace()
	}
	if data.Kind == "" {
		data.Kind = kind
	}
	return data
}
