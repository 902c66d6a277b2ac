package workflow

import (
	"sort"
	"sync"

	"sigs.k8s.io/controller-runtime/pkg/client"

	"converge/internal/resource"
)

// Context is the request-scoped state of one reconciliation of a primary. It
// is shared by the reconciler and every dependent of the pass.
type Context struct {
	primary     client.Object
	id          resource.ID
	attempt     int
	reconcileID string

	mu          sync.RWMutex
	secondaries map[string]any
	results     map[string]NodeResult
}

// NewContext creates the context for one attempt.
func NewContext(primary client.Object, id resource.ID, attempt int, reconcileID string) *Context {
	return &Context{
		primary:     primary,
		id:          id,
		attempt:     attempt,
		reconcileID: reconcileID,
		secondaries: make(map[string]any),
		results:     make(map[string]NodeResult),
	}
}

// Primary returns the primary resource being reconciled.
func (rc *Context) Primary() client.Object { return rc.primary }

// ID returns the identity of the primary.
func (rc *Context) ID() resource.ID { return rc.id }

// Attempt returns the 1-based attempt number.
func (rc *Context) Attempt() int { return rc.attempt }

// ReconcileID correlates logs of this attempt.
func (rc *Context) ReconcileID() string { return rc.reconcileID }

// PrimaryAs returns the primary as P.
func PrimaryAs[P client.Object](rc *Context) (P, bool) {
	p, ok := rc.primary.(P)
	return p, ok
}

// Secondary returns the observed state of the named dependent, once it has
// been reconciled in this pass.
func Secondary[T any](rc *Context, name string) (T, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	v, ok := rc.secondaries[name].(T)
	return v, ok
}

// SecondaryOf returns the observed state of the only dependent of type T. It
// reports false when there is none or more than one.
func SecondaryOf[T any](rc *Context) (T, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	var (
		found T
		n     int
	)
	for _, v := range rc.secondaries {
		if typed, ok := v.(T); ok {
			found = typed
			n++
		}
	}
	if n != 1 {
		var zero T
		return zero, false
	}
	return found, true
}

// Result returns the outcome of a dependent in the current pass.
func (rc *Context) Result(name string) (NodeResult, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	r, ok := rc.results[name]
	return r, ok
}

// Results returns the outcomes so far, sorted by name.
func (rc *Context) Results() []NodeResult {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]NodeResult, 0, len(rc.results))
	for _, r := range rc.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (rc *Context) setSecondary(name string, v any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.secondaries[name] = v
}

func (rc *Context) dropSecondary(name string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.secondaries, name)
}

func (rc *Context) setResult(r NodeResult) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.results[r.Name] = r
}
