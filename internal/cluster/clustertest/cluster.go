package clustertest

import (
	"context"
	"fmt"
	"sync"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	toolscache "k8s.io/client-go/tools/cache"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/apiutil"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"converge/internal/cluster"
)

// Verb names a write operation.
type Verb string

const (
	VerbCreate       Verb = "create"
	VerbUpdate       Verb = "update"
	VerbPatch        Verb = "patch"
	VerbDelete       Verb = "delete"
	VerbStatusUpdate Verb = "status-update"
	VerbStatusPatch  Verb = "status-patch"
)

// WriteHook runs before every write. A non-nil error fails the write.
type WriteHook func(ctx context.Context, verb Verb, obj client.Object) error

// Option configures New.
type Option func(*fake.ClientBuilder)

// WithObjects seeds the fake store.
func WithObjects(objs ...client.Object) Option {
	return func(b *fake.ClientBuilder) {
		b.WithObjects(objs...)
	}
}

// WithStatusSubresource enables the status subresource for the given types.
// Widget always has it.
func WithStatusSubresource(objs ...client.Object) Option {
	return func(b *fake.ClientBuilder) {
		b.WithStatusSubresource(objs...)
	}
}

// Cluster is an in-memory cluster.Cluster.
type Cluster struct {
	scheme *runtime.Scheme
	raw    client.WithWatch
	writer *eventingClient

	mu        sync.Mutex
	informers map[schema.GroupVersionKind]*Informer
	hooks     []WriteHook
	writes    map[Verb]int
	writeLog  []Write

	watchErrs *cluster.WatchErrors
}

// Write records one successful write.
type Write struct {
	Verb      Verb
	Kind      string
	Namespace string
	Name      string
}

var _ cluster.Cluster = (*Cluster)(nil)

// New builds a Cluster on the fake client. A nil scheme means Scheme().
func New(scheme *runtime.Scheme, opts ...Option) *Cluster {
	if scheme == nil {
		scheme = Scheme()
	}
	b := fake.NewClientBuilder().
		WithScheme(scheme).
		WithStatusSubresource(&Widget{})
	for _, opt := range opts {
		opt(b)
	}

	c := &Cluster{
		scheme:    scheme,
		raw:       b.Build(),
		informers: make(map[schema.GroupVersionKind]*Informer),
		writes:    make(map[Verb]int),
		watchErrs: cluster.NewWatchErrors(),
	}
	c.writer = &eventingClient{WithWatch: c.raw, cluster: c}
	return c
}

func (c *Cluster) Reader() client.Reader    { return c.raw }
func (c *Cluster) Writer() client.Client    { return c.writer }
func (c *Cluster) APIReader() client.Reader { return c.raw }
func (c *Cluster) Scheme() *runtime.Scheme  { return c.scheme }

// Raw returns the underlying fake client. Writes through it do not produce
// notifications, which makes it useful for simulating changes the engine is
// not told about.
func (c *Cluster) Raw() client.WithWatch { return c.raw }

// Start blocks until ctx ends.
func (c *Cluster) Start(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// WaitForSync always succeeds; the fake store is synced by construction.
func (c *Cluster) WaitForSync(context.Context) bool { return true }

// Informer returns the informer for obj's kind.
func (c *Cluster) Informer(_ context.Context, obj client.Object) (cluster.Informer, error) {
	gvk, err := apiutil.GVKForObject(obj, c.scheme)
	if err != nil {
		return nil, err
	}
	return c.informerFor(gvk), nil
}

func (c *Cluster) informerFor(gvk schema.GroupVersionKind) *Informer {
	c.mu.Lock()
	defer c.mu.Unlock()
	inf, ok := c.informers[gvk]
	if !ok {
		inf = &Informer{cluster: c, gvk: gvk}
		c.informers[gvk] = inf
	}
	return inf
}

func (c *Cluster) existingInformer(obj runtime.Object) *Informer {
	gvk, err := apiutil.GVKForObject(obj, c.scheme)
	if err != nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.informers[gvk]
}

// FailWatch makes the watch of obj's kind report err, as a reflector does
// when its watch keeps failing after the initial sync.
func (c *Cluster) FailWatch(obj runtime.Object, err error) error {
	gvk, gvkErr := apiutil.GVKForObject(obj, c.scheme)
	if gvkErr != nil {
		return gvkErr
	}
	c.watchErrs.Record(gvk, err)
	return nil
}

// RecoverWatch clears the failures set by FailWatch.
func (c *Cluster) RecoverWatch(obj runtime.Object) error {
	gvk, err := apiutil.GVKForObject(obj, c.scheme)
	if err != nil {
		return err
	}
	c.watchErrs.Clear(gvk)
	return nil
}

// BeforeWrite registers a hook that runs before every write through Writer.
func (c *Cluster) BeforeWrite(hook WriteHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// Writes returns the number of successful writes, optionally restricted to verbs.
func (c *Cluster) Writes(verbs ...Verb) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(verbs) == 0 {
		return len(c.writeLog)
	}
	n := 0
	for _, v := range verbs {
		n += c.writes[v]
	}
	return n
}

// WriteLog returns every successful write in order.
func (c *Cluster) WriteLog() []Write {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Write, len(c.writeLog))
	copy(out, c.writeLog)
	return out
}

// ResetWrites clears the write counters.
func (c *Cluster) ResetWrites() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = make(map[Verb]int)
	c.writeLog = nil
}

func (c *Cluster) runHooks(ctx context.Context, verb Verb, obj client.Object) error {
	c.mu.Lock()
	hooks := make([]WriteHook, len(c.hooks))
	copy(hooks, c.hooks)
	c.mu.Unlock()

	for _, h := range hooks {
		if err := h(ctx, verb, obj); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cluster) recordWrite(verb Verb, obj client.Object) {
	kind := obj.GetObjectKind().GroupVersionKind().Kind
	if gvk, err := apiutil.GVKForObject(obj, c.scheme); err == nil {
		kind = gvk.Kind
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes[verb]++
	c.writeLog = append(c.writeLog, Write{Verb: verb, Kind: kind, Namespace: obj.GetNamespace(), Name: obj.GetName()})
}

// EmitAdd delivers an add notification for obj.
func (c *Cluster) EmitAdd(obj client.Object) {
	c.informerFor(c.mustKind(obj)).deliver(func(h toolscache.ResourceEventHandler) {
		h.OnAdd(obj.DeepCopyObject(), false)
	})
}

// EmitUpdate delivers an update notification.
func (c *Cluster) EmitUpdate(oldObj, newObj client.Object) {
	c.informerFor(c.mustKind(newObj)).deliver(func(h toolscache.ResourceEventHandler) {
		h.OnUpdate(oldObj.DeepCopyObject(), newObj.DeepCopyObject())
	})
}

// EmitDelete delivers a delete notification.
func (c *Cluster) EmitDelete(obj client.Object) {
	c.informerFor(c.mustKind(obj)).deliver(func(h toolscache.ResourceEventHandler) {
		h.OnDelete(obj.DeepCopyObject())
	})
}

// EmitTombstone delivers a delete notification wrapped in DeletedFinalStateUnknown,
// as an informer does when it missed the actual delete.
func (c *Cluster) EmitTombstone(obj client.Object) {
	key := obj.GetName()
	if obj.GetNamespace() != "" {
		key = obj.GetNamespace() + "/" + key
	}
	c.informerFor(c.mustKind(obj)).deliver(func(h toolscache.ResourceEventHandler) {
		h.OnDelete(toolscache.DeletedFinalStateUnknown{Key: key, Obj: obj.DeepCopyObject()})
	})
}

func (c *Cluster) mustKind(obj runtime.Object) schema.GroupVersionKind {
	gvk, err := apiutil.GVKForObject(obj, c.scheme)
	if err != nil {
		panic(fmt.Sprintf("clustertest: unknown kind for %T: %v", obj, err))
	}
	return gvk
}

// list returns every stored object of gvk.
func (c *Cluster) list(gvk schema.GroupVersionKind) ([]runtime.Object, error) {
	listGVK := gvk.GroupVersion().WithKind(gvk.Kind + "List")

	var list client.ObjectList
	if c.scheme.Recognizes(listGVK) {
		obj, err := c.scheme.New(listGVK)
		if err != nil {
			return nil, err
		}
		l, ok := obj.(client.ObjectList)
		if !ok {
			return nil, fmt.Errorf("%s is not a list", listGVK)
		}
		list = l
	} else {
		ul := &unstructured.UnstructuredList{}
		ul.SetGroupVersionKind(listGVK)
		list = ul
	}

	if err := c.raw.List(context.Background(), list); err != nil {
		return nil, err
	}
	return extractList(list)
}
