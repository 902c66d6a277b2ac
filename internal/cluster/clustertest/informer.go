package clustertest

import (
	"fmt"
	"sync"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	toolscache "k8s.io/client-go/tools/cache"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Informer is a synchronous in-memory informer. Handlers are called on the
// goroutine performing the write.
type Informer struct {
	cluster *Cluster
	gvk     schema.GroupVersionKind

	mu       sync.Mutex
	handlers []*registration
}

type registration struct {
	// Embedded so registration keeps satisfying the interface as it grows;
	// only HasSynced is ever called on it.
	toolscache.ResourceEventHandlerRegistration

	handler toolscache.ResourceEventHandler
}

func (r *registration) HasSynced() bool { return true }

// AddEventHandler registers handler and replays every existing object as an add,
// like a shared informer does for late handlers.
func (i *Informer) AddEventHandler(handler toolscache.ResourceEventHandler) (toolscache.ResourceEventHandlerRegistration, error) {
	reg := &registration{handler: handler}

	existing, err := i.cluster.list(i.gvk)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", i.gvk.Kind, err)
	}

	i.mu.Lock()
	i.handlers = append(i.handlers, reg)
	i.mu.Unlock()

	for _, obj := range existing {
		handler.OnAdd(obj, true)
	}
	return reg, nil
}

// RemoveEventHandler unregisters a handler returned by AddEventHandler.
func (i *Informer) RemoveEventHandler(handle toolscache.ResourceEventHandlerRegistration) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for idx, reg := range i.handlers {
		if toolscache.ResourceEventHandlerRegistration(reg) == handle {
			i.handlers = append(i.handlers[:idx], i.handlers[idx+1:]...)
			return nil
		}
	}
	return fmt.Errorf("handler not registered")
}

// HasSynced is always true.
func (i *Informer) HasSynced() bool { return true }

// WatchError reports failures set with Cluster.FailWatch.
func (i *Informer) WatchError() error { return i.cluster.watchErrs.Err(i.gvk) }

func (i *Informer) deliver(fn func(toolscache.ResourceEventHandler)) {
	i.mu.Lock()
	handlers := make([]*registration, len(i.handlers))
	copy(handlers, i.handlers)
	i.mu.Unlock()

	for _, reg := range handlers {
		fn(reg.handler)
	}
}

func extractList(list client.ObjectList) ([]runtime.Object, error) {
	return meta.ExtractList(list)
}
