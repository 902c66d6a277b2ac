package dispatch

import (
	"sort"
	"sync"
	"time"

	"converge/internal/resource"
)

// State is the dispatch state of one resource.
type State string

const (
	// StatePending means an event is queued.
	StatePending State = "Pending"
	// StateReconciling means an attempt is running.
	StateReconciling State = "Reconciling"
	// StateSynced means the last attempt succeeded.
	StateSynced State = "Synced"
	// StateError means the last attempt failed and a retry is scheduled.
	StateError State = "Error"
	// StateFailed means the retry budget is exhausted; waiting for a new event.
	StateFailed State = "Failed"
)

// Status is the dispatch status of one resource.
type Status struct {
	ID                resource.ID `json:"id"`
	State             State       `json:"state"`
	LastError         string      `json:"lastError,omitempty"`
	RetryCount        int         `json:"retryCount"`
	Reconciles        int         `json:"reconciles"`
	LastReconcileTime *time.Time  `json:"lastReconcileTime,omitempty"`
	NextAttempt       *time.Time  `json:"nextAttempt,omitempty"`
}

type statusTracker struct {
	mu       sync.RWMutex
	statuses map[resource.ID]*Status
}

func newStatusTracker() *statusTracker {
	return &statusTracker{statuses: make(map[resource.ID]*Status)}
}

func (t *statusTracker) update(id resource.ID, state State, errMsg string, fn func(*Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	status, ok := t.statuses[id]
	if !ok {
		status = &Status{ID: id}
		t.statuses[id] = status
	}

	status.State = state
	status.LastError = errMsg

	switch state {
	case StateSynced:
		now := time.Now()
		status.LastReconcileTime = &now
		status.RetryCount = 0
	case StateReconciling:
		status.Reconciles++
		status.NextAttempt = nil
	case StateError:
		status.RetryCount++
	}
	if fn != nil {
		fn(status)
	}
}

// pending marks id pending unless an attempt is already running for it.
func (t *statusTracker) pending(id resource.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	status, ok := t.statuses[id]
	if !ok {
		t.statuses[id] = &Status{ID: id, State: StatePending}
		return
	}
	if status.State != StateReconciling {
		status.State = StatePending
	}
}

func (t *statusTracker) get(id resource.ID) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.statuses[id]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

func (t *statusTracker) all() []Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Status, 0, len(t.statuses))
	for _, s := range t.statuses {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (t *statusTracker) remove(id resource.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.statuses, id)
}
