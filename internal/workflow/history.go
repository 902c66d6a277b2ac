package workflow

import (
	"sync"
	"time"

	"converge/internal/resource"
	"converge/pkg/apis/converge/v1alpha1"
)

// DefaultHistorySize is the number of execution records kept per primary.
const DefaultHistorySize = 10

// ExecutionStatus summarizes a pass.
type ExecutionStatus string

const (
	ExecutionSucceeded ExecutionStatus = "Succeeded"
	ExecutionPartial   ExecutionStatus = "PartialFailure"
	ExecutionPending   ExecutionStatus = "Pending"
)

// NodeRecord is the stored outcome of one dependent.
type NodeRecord struct {
	Name       string                  `json:"name"`
	State      v1alpha1.DependentState `json:"state"`
	Ready      bool                    `json:"ready"`
	Deleted    bool                    `json:"deleted,omitempty"`
	Message    string                  `json:"message,omitempty"`
	Error      string                  `json:"error,omitempty"`
	DurationMs int64                   `json:"durationMs"`
}

// ExecutionRecord is the stored outcome of one pass.
type ExecutionRecord struct {
	ExecutionID string          `json:"executionId"`
	Workflow    string          `json:"workflow"`
	Resource    string          `json:"resource"`
	Cleanup     bool            `json:"cleanup"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   time.Time       `json:"startedAt"`
	DurationMs  int64           `json:"durationMs"`
	Nodes       []NodeRecord    `json:"nodes"`
	Error       string          `json:"error,omitempty"`
}

// History keeps the most recent execution records per primary.
type History struct {
	size int

	mu      sync.RWMutex
	records map[resource.ID][]ExecutionRecord
}

// NewHistory creates a history keeping size records per primary.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size, records: make(map[resource.ID][]ExecutionRecord)}
}

// Record stores the outcome of a pass, evicting the oldest record when full.
func (h *History) Record(id resource.ID, workflow string, res *Result) ExecutionRecord {
	rec := ExecutionRecord{
		ExecutionID: res.ExecutionID,
		Workflow:    workflow,
		Resource:    id.String(),
		Cleanup:     res.Cleanup,
		Status:      ExecutionSucceeded,
		StartedAt:   res.Started,
		DurationMs:  res.Duration.Milliseconds(),
		Nodes:       make([]NodeRecord, 0, len(res.Nodes)),
	}
	for _, n := range res.Nodes {
		nr := NodeRecord{
			Name:       n.Name,
			State:      n.State,
			Ready:      n.Ready,
			Deleted:    n.Deleted,
			Message:    n.Message,
			DurationMs: n.Duration.Milliseconds(),
		}
		if n.Err != nil {
			nr.Error = n.Err.Error()
		}
		rec.Nodes = append(rec.Nodes, nr)
	}
	switch {
	case res.Err() != nil:
		rec.Status = ExecutionPartial
		rec.Error = res.Err().Error()
	case res.Cleanup && !res.Complete(), !res.Cleanup && !res.Ready():
		rec.Status = ExecutionPending
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	list := append(h.records[id], rec)
	if len(list) > h.size {
		list = append([]ExecutionRecord(nil), list[len(list)-h.size:]...)
	}
	h.records[id] = list
	return rec
}

// List returns the records of a primary, oldest first.
func (h *History) List(id resource.ID) []ExecutionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]ExecutionRecord(nil), h.records[id]...)
}

// Last returns the most recent record of a primary.
func (h *History) Last(id resource.ID) (ExecutionRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := h.records[id]
	if len(list) == 0 {
		return ExecutionRecord{}, false
	}
	return list[len(list)-1], true
}

// Forget drops the records of a primary.
func (h *History) Forget(id resource.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.records, id)
}
