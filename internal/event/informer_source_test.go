package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/utils/ptr"

	"converge/internal/cluster/clustertest"
	"converge/internal/resource"
)

func ownedConfigMap(name, owner string) *corev1.ConfigMap {
	return &corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{
		Namespace: "default",
		Name:      name,
		OwnerReferences: []metav1.OwnerReference{{
			APIVersion: clustertest.GroupVersion.String(),
			Kind:       clustertest.WidgetKind,
			Name:       owner,
			UID:        types.UID("uid-" + owner),
			Controller: ptr.To(true),
		}},
	}}
}

func TestInformerSourcePrimaryEvents(t *testing.T) {
	ctx := context.Background()
	c := clustertest.New(nil)

	src, err := NewInformerSource(c, InformerOptions{
		Object: &clustertest.Widget{},
		Mapper: PrimaryMapper(clustertest.WidgetKind),
	})
	require.NoError(t, err)
	assert.Equal(t, "informer/Widget", src.Name())
	assert.False(t, src.Health().Healthy)

	rec := &collector{}
	require.NoError(t, src.Start(ctx, rec))
	assert.True(t, src.Health().Healthy)

	w := clustertest.NewWidget("default", "a", 1)
	require.NoError(t, c.Writer().Create(ctx, w))

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, resource.New(clustertest.WidgetKind, "default", "a"), events[0].ID)
	assert.Equal(t, OperationCreate, events[0].Operation)
	assert.Equal(t, w.ResourceVersion, events[0].Version)

	// A redelivered version is dropped.
	c.EmitAdd(w)
	assert.Equal(t, 1, rec.len())

	require.NoError(t, c.Writer().Delete(ctx, w))
	events = rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, OperationDelete, events[1].Operation)

	require.NoError(t, src.Stop())
	require.NoError(t, c.Writer().Create(ctx, clustertest.NewWidget("default", "b", 1)))
	assert.Equal(t, 2, rec.len())
}

func TestInformerSourceWatchFailure(t *testing.T) {
	ctx := context.Background()
	c := clustertest.New(nil)

	src, err := NewInformerSource(c, InformerOptions{
		Object: &clustertest.Widget{},
		Mapper: PrimaryMapper(clustertest.WidgetKind),
	})
	require.NoError(t, err)

	m := NewManager("widgets")
	require.NoError(t, m.Register(src))
	require.NoError(t, m.Start(ctx, &collector{}))
	defer m.Stop()
	require.NoError(t, m.Check(nil))

	forbidden := apierrors.NewForbidden(schema.GroupResource{Group: clustertest.GroupVersion.Group, Resource: "widgets"}, "", errors.New("rbac revoked"))
	require.NoError(t, c.FailWatch(&clustertest.Widget{}, forbidden))
	require.NoError(t, c.FailWatch(&clustertest.Widget{}, forbidden))

	h := src.Health()
	assert.False(t, h.Healthy)
	assert.Equal(t, 2, h.ConsecutiveFailures)
	assert.Contains(t, h.Message, "forbidden")

	err = m.Check(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "informer/Widget")

	// Other kinds keep their own signal.
	require.NoError(t, c.FailWatch(&corev1.ConfigMap{}, forbidden))
	require.NoError(t, c.RecoverWatch(&clustertest.Widget{}))
	assert.True(t, src.Health().Healthy)
	assert.NoError(t, m.Check(nil))
}

func TestInformerSourceGenerationFilter(t *testing.T) {
	c := clustertest.New(nil)
	src, err := NewInformerSource(c, InformerOptions{
		Object:                &clustertest.Widget{},
		Mapper:                PrimaryMapper(clustertest.WidgetKind),
		GenerationChangedOnly: true,
	})
	require.NoError(t, err)
	rec := &collector{}
	require.NoError(t, src.Start(context.Background(), rec))

	old := clustertest.NewWidget("default", "a", 1)
	old.Generation = 1
	old.ResourceVersion = "10"

	statusOnly := old.DeepCopy()
	statusOnly.ResourceVersion = "11"
	statusOnly.Status.Phase = "Ready"
	c.EmitUpdate(old, statusOnly)
	assert.Zero(t, rec.len(), "status-only update must be filtered")

	specChange := statusOnly.DeepCopy()
	specChange.ResourceVersion = "12"
	specChange.Generation = 2
	c.EmitUpdate(statusOnly, specChange)
	assert.Equal(t, 1, rec.len())

	deleting := specChange.DeepCopy()
	deleting.ResourceVersion = "13"
	now := metav1.Now()
	deleting.DeletionTimestamp = &now
	c.EmitUpdate(specChange, deleting)
	assert.Equal(t, 2, rec.len(), "deletion start must pass the filter")

	// Stale version after a newer one is dropped.
	c.EmitUpdate(old, specChange)
	assert.Equal(t, 2, rec.len())
}

func TestInformerSourceOwnerIndex(t *testing.T) {
	ctx := context.Background()
	c := clustertest.New(nil)

	src, err := NewInformerSource(c, InformerOptions{
		Name:   "configmaps",
		Object: &corev1.ConfigMap{},
		Mapper: OwnerReferenceMapper(
			schema.GroupKind{Group: clustertest.GroupVersion.Group, Kind: clustertest.WidgetKind},
			clustertest.WidgetKind, true),
	})
	require.NoError(t, err)
	rec := &collector{}
	require.NoError(t, src.Start(ctx, rec))

	owner := resource.New(clustertest.WidgetKind, "default", "w1")
	cm := ownedConfigMap("cm", "w1")
	require.NoError(t, c.Writer().Create(ctx, cm))
	assert.Equal(t, []resource.ID{owner}, rec.ids())

	cmID := resource.New("ConfigMap", "default", "cm")
	assert.Equal(t, []resource.ID{owner}, src.OwnersOf(cmID))

	// The owner reference is removed; the former owner is still told.
	rec.reset()
	cm.OwnerReferences = nil
	require.NoError(t, c.Writer().Update(ctx, cm))
	assert.Equal(t, []resource.ID{owner}, rec.ids())
	assert.Empty(t, src.OwnersOf(cmID))

	// A tombstone without owner references still maps through the index.
	rec.reset()
	cm2 := ownedConfigMap("cm2", "w2")
	require.NoError(t, c.Writer().Create(ctx, cm2))
	rec.reset()
	bare := cm2.DeepCopy()
	bare.OwnerReferences = nil
	c.EmitTombstone(bare)
	assert.Equal(t, []resource.ID{resource.New(clustertest.WidgetKind, "default", "w2")}, rec.ids())
}

func TestLabelMapper(t *testing.T) {
	m := LabelMapper("Widget", "converge.io/owner", "converge.io/owner-namespace")

	cm := &corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{
		Namespace: "ns1",
		Name:      "x",
		Labels:    map[string]string{"converge.io/owner": "w"},
	}}
	assert.Equal(t, []resource.ID{resource.New("Widget", "ns1", "w")}, m.Map(cm))

	cm.Labels["converge.io/owner-namespace"] = "ns2"
	assert.Equal(t, []resource.ID{resource.New("Widget", "ns2", "w")}, m.Map(cm))

	cm.Labels = nil
	assert.Empty(t, m.Map(cm))
}

func TestNewInformerSourceValidation(t *testing.T) {
	c := clustertest.New(nil)
	_, err := NewInformerSource(c, InformerOptions{Mapper: PrimaryMapper("Widget")})
	assert.Error(t, err)
	_, err = NewInformerSource(c, InformerOptions{Object: &clustertest.Widget{}})
	assert.Error(t, err)
}
