package clustertest

import (
	"context"

	"k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime"
	toolscache "k8s.io/client-go/tools/cache"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// eventingClient forwards writes to the fake client and replays their effect
// to informers.
type eventingClient struct {
	client.WithWatch
	cluster *Cluster
}

func (e *eventingClient) Create(ctx context.Context, obj client.Object, opts ...client.CreateOption) error {
	if err := e.cluster.runHooks(ctx, VerbCreate, obj); err != nil {
		return err
	}
	if err := e.WithWatch.Create(ctx, obj, opts...); err != nil {
		return err
	}
	e.cluster.recordWrite(VerbCreate, obj)
	e.notify(nil, obj)
	return nil
}

func (e *eventingClient) Update(ctx context.Context, obj client.Object, opts ...client.UpdateOption) error {
	if err := e.cluster.runHooks(ctx, VerbUpdate, obj); err != nil {
		return err
	}
	old := e.current(ctx, obj)
	if err := e.WithWatch.Update(ctx, obj, opts...); err != nil {
		return err
	}
	e.bumpGeneration(ctx, old, obj)
	e.cluster.recordWrite(VerbUpdate, obj)
	e.notify(old, obj)
	return nil
}

func (e *eventingClient) Patch(ctx context.Context, obj client.Object, patch client.Patch, opts ...client.PatchOption) error {
	if err := e.cluster.runHooks(ctx, VerbPatch, obj); err != nil {
		return err
	}
	old := e.current(ctx, obj)
	if err := e.WithWatch.Patch(ctx, obj, patch, opts...); err != nil {
		return err
	}
	e.bumpGeneration(ctx, old, obj)
	e.cluster.recordWrite(VerbPatch, obj)
	e.notify(old, obj)
	return nil
}

func (e *eventingClient) Delete(ctx context.Context, obj client.Object, opts ...client.DeleteOption) error {
	if err := e.cluster.runHooks(ctx, VerbDelete, obj); err != nil {
		return err
	}
	old := e.current(ctx, obj)
	if err := e.WithWatch.Delete(ctx, obj, opts...); err != nil {
		return err
	}
	e.cluster.recordWrite(VerbDelete, obj)
	e.notify(old, obj)
	return nil
}

func (e *eventingClient) Status() client.SubResourceWriter {
	return &statusWriter{SubResourceWriter: e.WithWatch.Status(), client: e}
}

// current returns a copy of the stored object, or nil when absent.
func (e *eventingClient) current(ctx context.Context, obj client.Object) client.Object {
	cur, ok := obj.DeepCopyObject().(client.Object)
	if !ok {
		return nil
	}
	if err := e.WithWatch.Get(ctx, client.ObjectKeyFromObject(obj), cur); err != nil {
		return nil
	}
	return cur
}

// notify compares the stored state after a write with old and emits the
// matching notification. A write that makes the object disappear (a delete
// without finalizers, or removing the last finalizer from a deleting object)
// is a delete.
func (e *eventingClient) notify(old, written client.Object) {
	inf := e.cluster.existingInformer(written)
	if inf == nil {
		return
	}
	now := e.current(context.Background(), written)

	switch {
	case old == nil && now != nil:
		inf.deliver(func(h toolscache.ResourceEventHandler) { h.OnAdd(now.DeepCopyObject(), false) })
	case old != nil && now == nil:
		inf.deliver(func(h toolscache.ResourceEventHandler) { h.OnDelete(old) })
	case old != nil && now != nil:
		if sameVersion(old, now) {
			return
		}
		inf.deliver(func(h toolscache.ResourceEventHandler) { h.OnUpdate(old, now.DeepCopyObject()) })
	}
}

// bumpGeneration increments metadata.generation when a write changed anything
// outside metadata and status, as the API server does. Objects without a
// generation are left alone. written is refreshed so the caller holds the
// final resource version.
func (e *eventingClient) bumpGeneration(ctx context.Context, old, written client.Object) {
	if old == nil || old.GetGeneration() == 0 {
		return
	}
	now := e.current(ctx, written)
	if now == nil || !specChanged(old, now) {
		return
	}
	now.SetGeneration(old.GetGeneration() + 1)
	if err := e.WithWatch.Update(ctx, now); err != nil {
		return
	}
	_ = e.WithWatch.Get(ctx, client.ObjectKeyFromObject(written), written)
}

func specChanged(a, b client.Object) bool {
	ua, errA := runtime.DefaultUnstructuredConverter.ToUnstructured(a)
	ub, errB := runtime.DefaultUnstructuredConverter.ToUnstructured(b)
	if errA != nil || errB != nil {
		return true
	}
	for _, key := range []string{"metadata", "status", "apiVersion", "kind"} {
		delete(ua, key)
		delete(ub, key)
	}
	return !equality.Semantic.DeepEqual(ua, ub)
}

func sameVersion(a, b client.Object) bool {
	ma, errA := meta.Accessor(a)
	mb, errB := meta.Accessor(b)
	if errA != nil || errB != nil {
		return false
	}
	return ma.GetResourceVersion() == mb.GetResourceVersion()
}

type statusWriter struct {
	client.SubResourceWriter
	client *eventingClient
}

func (s *statusWriter) Update(ctx context.Context, obj client.Object, opts ...client.SubResourceUpdateOption) error {
	if err := s.client.cluster.runHooks(ctx, VerbStatusUpdate, obj); err != nil {
		return err
	}
	old := s.client.current(ctx, obj)
	if err := s.SubResourceWriter.Update(ctx, obj, opts...); err != nil {
		return err
	}
	s.client.cluster.recordWrite(VerbStatusUpdate, obj)
	s.client.notify(old, obj)
	return nil
}

func (s *statusWriter) Patch(ctx context.Context, obj client.Object, patch client.Patch, opts ...client.SubResourcePatchOption) error {
	if err := s.client.cluster.runHooks(ctx, VerbStatusPatch, obj); err != nil {
		return err
	}
	old := s.client.current(ctx, obj)
	if err := s.SubResourceWriter.Patch(ctx, obj, patch, opts...); err != nil {
		return err
	}
	s.client.cluster.recordWrite(VerbStatusPatch, obj)
	s.client.notify(old, obj)
	return nil
}

var _ client.Client = (*eventingClient)(nil)
