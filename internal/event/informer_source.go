package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	toolscache "k8s.io/client-go/tools/cache"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"converge/internal/cluster"
	"converge/internal/resource"
	"converge/pkg/logging"
)

// InformerOptions configures an InformerSource.
type InformerOptions struct {
	// Name identifies the source. Defaults to "informer/<kind>".
	Name string

	// Object is a prototype of the watched kind, e.g. &corev1.ConfigMap{}.
	Object client.Object

	// Mapper maps watched objects to primaries. Required.
	Mapper Mapper

	// GenerationChangedOnly drops updates that do not change metadata.generation
	// (status-only and metadata-only writes), except those that start deletion.
	// Meant for primary watches, so the engine's own status writes do not
	// retrigger reconciliation.
	GenerationChangedOnly bool
}

// InformerSource turns informer notifications for one kind into events.
type InformerSource struct {
	cluster cluster.Cluster
	opts    InformerOptions
	kind    string

	versions *resource.VersionTracker

	mu           sync.Mutex
	owners       map[resource.ID][]resource.ID
	informer     cluster.Informer
	registration toolscache.ResourceEventHandlerRegistration
	handler      Handler
	running      bool
}

var _ Source = (*InformerSource)(nil)

// NewInformerSource creates a source watching opts.Object's kind on c.
func NewInformerSource(c cluster.Cluster, opts InformerOptions) (*InformerSource, error) {
	if opts.Object == nil {
		return nil, fmt.Errorf("informer source requires an object prototype")
	}
	if opts.Mapper == nil {
		return nil, fmt.Errorf("informer source requires a mapper")
	}
	gvk, err := cluster.KindOf(c, opts.Object)
	if err != nil {
		return nil, fmt.Errorf("resolving kind of %T: %w", opts.Object, err)
	}
	if opts.Name == "" {
		opts.Name = "informer/" + gvk.Kind
	}
	return &InformerSource{
		cluster:  c,
		opts:     opts,
		kind:     gvk.Kind,
		versions: resource.NewVersionTracker(),
		owners:   make(map[resource.ID][]resource.ID),
	}, nil
}

// Name returns the source name.
func (s *InformerSource) Name() string { return s.opts.Name }

// Start registers the event handler on the shared informer.
func (s *InformerSource) Start(ctx context.Context, h Handler) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.handler = h
	s.running = true
	s.mu.Unlock()

	informer, err := s.cluster.Informer(ctx, s.opts.Object)
	if err != nil {
		s.setStopped()
		return fmt.Errorf("failed to get informer for %s: %w", s.kind, err)
	}

	registration, err := informer.AddEventHandler(toolscache.ResourceEventHandlerFuncs{
		AddFunc:    s.handleAdd,
		UpdateFunc: s.handleUpdate,
		DeleteFunc: s.handleDelete,
	})
	if err != nil {
		s.setStopped()
		return fmt.Errorf("failed to add event handler for %s: %w", s.kind, err)
	}

	s.mu.Lock()
	s.informer = informer
	s.registration = registration
	s.mu.Unlock()

	logging.Debug("InformerSource", "Source %s watching %s", s.opts.Name, s.kind)
	return nil
}

func (s *InformerSource) setStopped() {
	s.mu.Lock()
	s.running = false
	s.handler = nil
	s.mu.Unlock()
}

// Stop removes the event handler.
func (s *InformerSource) Stop() error {
	s.mu.Lock()
	informer, registration := s.informer, s.registration
	s.informer, s.registration = nil, nil
	s.running = false
	s.handler = nil
	s.mu.Unlock()

	if informer != nil && registration != nil {
		if err := informer.RemoveEventHandler(registration); err != nil {
			return fmt.Errorf("failed to remove event handler for %s: %w", s.kind, err)
		}
	}
	return nil
}

// Health is healthy once the handler has received the informer's initial list
// and for as long as the watch is not failing.
func (s *InformerSource) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case !s.running:
		return Health{Message: "not started"}
	case s.registration == nil || !s.registration.HasSynced():
		return Health{Message: "waiting for initial sync"}
	}

	if err := s.informer.WatchError(); err != nil {
		h := Health{Message: err.Error()}
		var we *cluster.WatchError
		if errors.As(err, &we) {
			h.ConsecutiveFailures = we.Failures
		}
		return h
	}
	return Healthy()
}

// OwnersOf returns the primaries last mapped from the watched object id.
func (s *InformerSource) OwnersOf(id resource.ID) []resource.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]resource.ID(nil), s.owners[id]...)
}

func (s *InformerSource) handleAdd(obj interface{}) {
	o, ok := obj.(client.Object)
	if !ok {
		logging.Warn("InformerSource", "Failed to extract metadata from add event on %s", s.opts.Name)
		return
	}
	id := resource.ForObject(s.kind, o)
	if s.versions.Observe(id, o.GetResourceVersion()) != resource.Fresh {
		return
	}

	owners := s.remap(id, s.opts.Mapper.Map(o))
	s.emit(owners, o.GetResourceVersion(), OperationCreate)
}

func (s *InformerSource) handleUpdate(oldObj, newObj interface{}) {
	oldO, okOld := oldObj.(client.Object)
	newO, okNew := newObj.(client.Object)
	if !okOld || !okNew {
		logging.Warn("InformerSource", "Failed to extract metadata from update event on %s", s.opts.Name)
		return
	}
	id := resource.ForObject(s.kind, newO)

	// Periodic resyncs redeliver the same version.
	if oldO.GetResourceVersion() == newO.GetResourceVersion() {
		return
	}
	if s.versions.Observe(id, newO.GetResourceVersion()) != resource.Fresh {
		return
	}

	previous := s.OwnersOf(id)
	current := s.remap(id, s.opts.Mapper.Map(newO))

	if s.opts.GenerationChangedOnly && !generationChanged(oldO, newO) {
		return
	}

	// An owner that was dropped from the mapping must still learn about it.
	s.emit(unionIDs(previous, current, s.opts.Mapper.Map(oldO)), newO.GetResourceVersion(), OperationUpdate)
}

func (s *InformerSource) handleDelete(obj interface{}) {
	// Handle DeletedFinalStateUnknown for objects deleted while the watch was down
	if tombstone, ok := obj.(toolscache.DeletedFinalStateUnknown); ok {
		obj = tombstone.Obj
	}
	o, ok := obj.(client.Object)
	if !ok {
		logging.Warn("InformerSource", "Failed to extract metadata from delete event on %s", s.opts.Name)
		return
	}
	id := resource.ForObject(s.kind, o)

	s.mu.Lock()
	indexed := s.owners[id]
	delete(s.owners, id)
	s.mu.Unlock()
	s.versions.Forget(id)

	s.emit(unionIDs(indexed, s.opts.Mapper.Map(o)), o.GetResourceVersion(), OperationDelete)
}

// remap replaces the owner index entry for id and returns the new owners.
func (s *InformerSource) remap(id resource.ID, owners []resource.ID) []resource.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(owners) == 0 {
		delete(s.owners, id)
		return nil
	}
	s.owners[id] = owners
	return owners
}

func (s *InformerSource) emit(ids []resource.ID, version string, op Operation) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return
	}

	now := time.Now()
	for _, id := range ids {
		h.Submit(Event{
			ID:        id,
			Version:   version,
			Operation: op,
			Source:    s.opts.Name,
			Timestamp: now,
		})
	}
}

func generationChanged(oldObj, newObj client.Object) bool {
	if newObj.GetGeneration() == 0 {
		// Kinds without generation tracking.
		return true
	}
	if oldObj.GetGeneration() != newObj.GetGeneration() {
		return true
	}
	return oldObj.GetDeletionTimestamp().IsZero() != newObj.GetDeletionTimestamp().IsZero()
}

func unionIDs(sets ...[]resource.ID) []resource.ID {
	seen := make(map[resource.ID]struct{})
	var out []resource.ID
	for _, set := range sets {
		for _, id := range set {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
