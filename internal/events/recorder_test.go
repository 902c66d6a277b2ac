package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"converge/internal/cluster/clustertest"
)

func TestMessageTemplateEngine_Render(t *testing.T) {
	engine := NewMessageTemplateEngine()

	tests := []struct {
		name   string
		reason EventReason
		data   EventData
		want   string
	}{
		{
			name:   "dependent created",
			reason: ReasonDependentCreated,
			data:   EventData{Kind: "Widget", Name: "demo", Dependent: "config"},
			want:   "Created dependent config of Widget demo",
		},
		{
			name:   "failure with error",
			reason: ReasonDependentFailed,
			data:   EventData{Kind: "Widget", Name: "demo", Dependent: "db", Error: "connection refused"},
			want:   "Dependent db of Widget demo failed: connection refused",
		},
		{
			name:   "failure without error",
			reason: ReasonDependentFailed,
			data:   EventData{Kind: "Widget", Name: "demo", Dependent: "db"},
			want:   "Dependent db of Widget demo failed",
		},
		{
			name:   "two conditionals",
			reason: ReasonReconcileFailed,
			data:   EventData{Kind: "Widget", Name: "demo", Attempts: 2, Error: "boom"},
			want:   "Reconciliation of Widget demo failed on attempt 2: boom",
		},
		{
			name:   "only the second conditional",
			reason: ReasonRetriesExhausted,
			data:   EventData{Kind: "Widget", Name: "demo", Error: "boom"},
			want:   "Giving up on Widget demo: boom",
		},
		{
			name:   "duration",
			reason: ReasonReady,
			data:   EventData{Kind: "Widget", Name: "demo", Duration: 2 * time.Second},
			want:   "Widget demo is ready after 2s",
		},
		{
			name:   "unknown reason",
			reason: EventReason("Custom"),
			data:   EventData{Namespace: "default", Name: "demo"},
			want:   "Event: Custom for default/demo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.Render(tt.reason, tt.data))
		})
	}
}

func TestMessageTemplateEngine_SetTemplate(t *testing.T) {
	engine := NewMessageTemplateEngine()
	engine.SetTemplate(ReasonReady, "{{.Name}} up")

	tmpl, ok := engine.GetTemplate(ReasonReady)
	require.True(t, ok)
	assert.Equal(t, "{{.Name}} up", tmpl)
	assert.Equal(t, "demo up", engine.Render(ReasonReady, EventData{Name: "demo"}))
}

func TestGetEventType(t *testing.T) {
	assert.Equal(t, EventTypeWarning, getEventType(ReasonRetriesExhausted))
	assert.Equal(t, EventTypeWarning, getEventType(ReasonDependentFailed))
	assert.Equal(t, EventTypeNormal, getEventType(ReasonFinalizerRemoved))
}

func TestKubernetesRecorder(t *testing.T) {
	c := clustertest.New(nil)
	w := clustertest.NewWidget("default", "demo", 1)
	require.NoError(t, c.Raw().Create(context.Background(), w))

	rec := NewKubernetesRecorder(c, "")
	require.NoError(t, rec.Record(context.Background(), w, ReasonDependentFailed, EventData{
		Dependent: "db",
		Error:     "timeout",
	}))

	var list corev1.EventList
	require.NoError(t, c.Raw().List(context.Background(), &list, client.InNamespace("default")))
	require.Len(t, list.Items, 1)

	ev := list.Items[0]
	assert.Equal(t, "DependentFailed", ev.Reason)
	assert.Equal(t, "Warning", ev.Type)
	assert.Equal(t, "Dependent db of Widget demo failed: timeout", ev.Message)
	assert.Equal(t, "Widget", ev.InvolvedObject.Kind)
	assert.Equal(t, clustertest.GroupVersion.String(), ev.InvolvedObject.APIVersion)
	assert.Equal(t, "demo", ev.InvolvedObject.Name)
	assert.Equal(t, "converge", ev.Source.Component)
}

func TestKubernetesRecorder_CreateFailure(t *testing.T) {
	c := clustertest.New(nil)
	c.BeforeWrite(func(_ context.Context, verb clustertest.Verb, _ client.Object) error {
		return errors.New("forbidden")
	})

	rec := NewKubernetesRecorder(c, "test")
	err := rec.Record(context.Background(), clustertest.NewWidget("default", "demo", 1), ReasonReady, EventData{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")
}

func TestMemoryRecorder(t *testing.T) {
	rec := NewMemoryRecorder()
	w := clustertest.NewWidget("default", "demo", 1)

	require.NoError(t, rec.Record(context.Background(), w, ReasonFinalizerAdded, EventData{Finalizer: "f"}))
	require.NoError(t, rec.Record(context.Background(), w, ReasonDependentCreated, EventData{Dependent: "a"}))
	require.NoError(t, rec.Record(context.Background(), w, ReasonDependentCreated, EventData{Dependent: "b"}))

	assert.Equal(t, []EventReason{ReasonFinalizerAdded, ReasonDependentCreated, ReasonDependentCreated}, rec.Reasons())
	assert.Equal(t, 2, rec.Count(ReasonDependentCreated))

	events := rec.Events()
	assert.Equal(t, "Added finalizer f to Widget demo", events[0].Message)
	assert.Equal(t, EventTypeNormal, events[0].Type)

	rec.Reset()
	assert.Empty(t, rec.Events())
}

func TestNopRecorder(t *testing.T) {
	var rec Recorder = NopRecorder{}
	assert.NoError(t, rec.Record(context.Background(), clustertest.NewWidget("default", "demo", 1), ReasonReady, EventData{}))
}
