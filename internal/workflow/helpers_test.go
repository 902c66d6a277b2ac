package workflow

import (
	"context"
	"fmt"
	"sync"

	"converge/internal/cluster/clustertest"
	"converge/internal/resource"
)

// memStore is an external system holding one string per dependent.
type memStore struct {
	mu      sync.Mutex
	objects map[string]string
	calls   []string
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string]string)}
}

func (s *memStore) log(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *memStore) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// writes returns the create, update and delete calls in order.
func (s *memStore) writes() []string {
	var out []string
	for _, c := range s.callLog() {
		if len(c) > 7 && (c[:7] == "create:" || c[:7] == "update:" || c[:7] == "delete:") {
			out = append(out, c)
		}
	}
	return out
}

func (s *memStore) get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.objects[name]
	return v, ok
}

func (s *memStore) set(name, v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = v
}

// memDependent is a fully capable dependent over memStore.
type memDependent struct {
	name  string
	store *memStore
	// value computes the desired state; nil means "<name>-v1".
	value    func(rc *Context) (string, bool)
	err      error
	panicMsg string
}

func (d *memDependent) Desired(_ context.Context, rc *Context) (string, bool, error) {
	d.store.log("desired:" + d.name)
	if d.panicMsg != "" {
		panic(d.panicMsg)
	}
	if d.err != nil {
		return "", false, d.err
	}
	if d.value == nil {
		return d.name + "-v1", true, nil
	}
	v, ok := d.value(rc)
	return v, ok, nil
}

func (d *memDependent) Observe(_ context.Context, _ *Context, _ string) (string, bool, error) {
	v, ok := d.store.get(d.name)
	return v, ok, nil
}

func (d *memDependent) Create(_ context.Context, _ *Context, desired string) (string, error) {
	d.store.log("create:" + d.name)
	d.store.set(d.name, desired)
	return desired, nil
}

func (d *memDependent) Update(_ context.Context, _ *Context, _, desired string) (string, error) {
	d.store.log("update:" + d.name)
	d.store.set(d.name, desired)
	return desired, nil
}

func (d *memDependent) Delete(_ context.Context, _ *Context, _ string) error {
	d.store.log("delete:" + d.name)
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	delete(d.store.objects, d.name)
	return nil
}

// readOnlyDependent observes but cannot write.
type readOnlyDependent struct{}

func (readOnlyDependent) Desired(context.Context, *Context) (string, bool, error) {
	return "", true, nil
}

func (readOnlyDependent) Observe(context.Context, *Context, string) (string, bool, error) {
	return "external", true, nil
}

func mem(store *memStore, name string) *memDependent {
	return &memDependent{name: name, store: store}
}

func testContext() *Context {
	w := clustertest.NewWidget("default", "demo", 1)
	return NewContext(w, resource.ForObject(clustertest.WidgetKind, w), 1, "test-reconcile")
}

func mustWorkflow(defs ...*Definition) *Workflow {
	w, err := New(defs...)
	if err != nil {
		panic(fmt.Sprintf("building workflow: %v", err))
	}
	return w
}
