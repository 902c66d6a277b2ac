package cluster

import (
	"context"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	toolscache "k8s.io/client-go/tools/cache"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/apiutil"
)

// Informer delivers watch notifications for one kind.
type Informer interface {
	AddEventHandler(handler toolscache.ResourceEventHandler) (toolscache.ResourceEventHandlerRegistration, error)
	RemoveEventHandler(handle toolscache.ResourceEventHandlerRegistration) error
	HasSynced() bool

	// WatchError returns a *WatchError while the watch keeps failing.
	WatchError() error
}

// Cluster is the cluster API collaborator used by the engine.
type Cluster interface {
	// Reader reads from the local cache. Reads may be momentarily stale after a write.
	Reader() client.Reader

	// Writer creates, updates, patches and deletes objects. Its reads go through the cache.
	Writer() client.Client

	// APIReader reads directly from the API server. It is used to refetch an
	// object after an optimistic-concurrency conflict.
	APIReader() client.Reader

	// Informer returns the shared informer for obj's kind, creating it if needed.
	Informer(ctx context.Context, obj client.Object) (Informer, error)

	// Scheme returns the scheme used to resolve kinds.
	Scheme() *runtime.Scheme

	// Start runs the cache until ctx is cancelled.
	Start(ctx context.Context) error

	// WaitForSync blocks until all informers have synced or ctx ends.
	WaitForSync(ctx context.Context) bool
}

// KindOf resolves the GroupVersionKind of obj using the cluster's scheme.
// Unstructured objects carry their own kind.
func KindOf(c Cluster, obj runtime.Object) (schema.GroupVersionKind, error) {
	return apiutil.GVKForObject(obj, c.Scheme())
}
