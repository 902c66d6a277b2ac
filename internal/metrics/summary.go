package metrics

import (
	"sort"
	"sync"
	"time"

	"converge/pkg/logging"
)

// ReconcilerMetrics tracks reconciliation counters per controller in memory.
//
// It backs the operator's status summary (the `converge run` log line on
// shutdown and the /statusz endpoint); the Prometheus collectors carry the
// same signals for scraping.
type ReconcilerMetrics struct {
	mu sync.RWMutex

	controllers map[string]*controllerMetrics

	totalReconcileAttempts   int64
	totalReconcileSuccesses  int64
	totalReconcileFailures   int64
	totalTerminalFailures    int64
	totalStatusSyncAttempts  int64
	totalStatusSyncSuccesses int64
	totalStatusSyncFailures  int64
}

type controllerMetrics struct {
	Controller          string
	ReconcileAttempts   int64
	ReconcileSuccesses  int64
	ReconcileFailures   int64
	TerminalFailures    int64
	StatusSyncAttempts  int64
	StatusSyncSuccesses int64
	StatusSyncFailures  int64
	LastReconcileAt     time.Time
	LastSuccessAt       time.Time
	LastFailureAt       time.Time
	LastStatusSyncAt    time.Time
}

// NewReconcilerMetrics creates a new ReconcilerMetrics instance.
func NewReconcilerMetrics() *ReconcilerMetrics {
	return &ReconcilerMetrics{
		controllers: make(map[string]*controllerMetrics),
	}
}

func (m *ReconcilerMetrics) getOrCreate(controller string) *controllerMetrics {
	if cm, exists := m.controllers[controller]; exists {
		return cm
	}
	cm := &controllerMetrics{Controller: controller}
	m.controllers[controller] = cm
	return cm
}

// RecordReconcile records the outcome of one attempt.
func (m *ReconcilerMetrics) RecordReconcile(controller string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cm := m.getOrCreate(controller)
	now := time.Now()
	cm.ReconcileAttempts++
	cm.LastReconcileAt = now
	m.totalReconcileAttempts++
	if success {
		cm.ReconcileSuccesses++
		cm.LastSuccessAt = now
		m.totalReconcileSuccesses++
		return
	}
	cm.ReconcileFailures++
	cm.LastFailureAt = now
	m.totalReconcileFailures++
}

// RecordTerminal records an exhausted retry budget.
func (m *ReconcilerMetrics) RecordTerminal(controller string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getOrCreate(controller).TerminalFailures++
	m.totalTerminalFailures++
}

// RecordStatusSync records a status write of a primary. A nil err is a success.
func (m *ReconcilerMetrics) RecordStatusSync(controller, resourceName string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cm := m.getOrCreate(controller)
	cm.StatusSyncAttempts++
	cm.LastStatusSyncAt = time.Now()
	m.totalStatusSyncAttempts++

	if err == nil {
		cm.StatusSyncSuccesses++
		m.totalStatusSyncSuccesses++
		return
	}
	cm.StatusSyncFailures++
	m.totalStatusSyncFailures++

	logging.Warn("ReconcilerMetrics", "Status sync failure for %s %s: %v (failures: %d)",
		controller, resourceName, err, cm.StatusSyncFailures)
}

// ReconcilerMetricsSummary provides a summary of reconciliation metrics.
type ReconcilerMetricsSummary struct {
	TotalReconcileAttempts   int64                  `json:"total_reconcile_attempts"`
	TotalReconcileSuccesses  int64                  `json:"total_reconcile_successes"`
	TotalReconcileFailures   int64                  `json:"total_reconcile_failures"`
	TotalTerminalFailures    int64                  `json:"total_terminal_failures"`
	TotalStatusSyncAttempts  int64                  `json:"total_status_sync_attempts"`
	TotalStatusSyncSuccesses int64                  `json:"total_status_sync_successes"`
	TotalStatusSyncFailures  int64                  `json:"total_status_sync_failures"`
	PerController            []ControllerMetricView `json:"per_controller"`
	StatusSyncFailureRate    float64                `json:"status_sync_failure_rate"`
	ReconcileFailureRate     float64                `json:"reconcile_failure_rate"`
}

// ControllerMetricView is a read-only view of one controller's counters.
type ControllerMetricView struct {
	Controller          string    `json:"controller"`
	ReconcileAttempts   int64     `json:"reconcile_attempts"`
	ReconcileSuccesses  int64     `json:"reconcile_successes"`
	ReconcileFailures   int64     `json:"reconcile_failures"`
	TerminalFailures    int64     `json:"terminal_failures"`
	StatusSyncAttempts  int64     `json:"status_sync_attempts"`
	StatusSyncSuccesses int64     `json:"status_sync_successes"`
	StatusSyncFailures  int64     `json:"status_sync_failures"`
	LastReconcileAt     time.Time `json:"last_reconcile_at,omitempty"`
	LastSuccessAt       time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       time.Time `json:"last_failure_at,omitempty"`
	LastStatusSyncAt    time.Time `json:"last_status_sync_at,omitempty"`
}

// GetSummary returns a snapshot of every counter.
func (m *ReconcilerMetrics) GetSummary() ReconcilerMetricsSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := ReconcilerMetricsSummary{
		TotalReconcileAttempts:   m.totalReconcileAttempts,
		TotalReconcileSuccesses:  m.totalReconcileSuccesses,
		TotalReconcileFailures:   m.totalReconcileFailures,
		TotalTerminalFailures:    m.totalTerminalFailures,
		TotalStatusSyncAttempts:  m.totalStatusSyncAttempts,
		TotalStatusSyncSuccesses: m.totalStatusSyncSuccesses,
		TotalStatusSyncFailures:  m.totalStatusSyncFailures,
		PerController:            make([]ControllerMetricView, 0, len(m.controllers)),
	}
	if m.totalReconcileAttempts > 0 {
		summary.ReconcileFailureRate = float64(m.totalReconcileFailures) / float64(m.totalReconcileAttempts)
	}
	if m.totalStatusSyncAttempts > 0 {
		summary.StatusSyncFailureRate = float64(m.totalStatusSyncFailures) / float64(m.totalStatusSyncAttempts)
	}
	for _, cm := range m.controllers {
		summary.PerController = append(summary.PerController, cm.view())
	}
	sort.Slice(summary.PerController, func(i, j int) bool {
		return summary.PerController[i].Controller < summary.PerController[j].Controller
	})
	return summary
}

// GetControllerMetrics returns the counters of one controller.
func (m *ReconcilerMetrics) GetControllerMetrics(controller string) (ControllerMetricView, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cm, ok := m.controllers[controller]
	if !ok {
		return ControllerMetricView{}, false
	}
	return cm.view(), true
}

func (cm *controllerMetrics) view() ControllerMetricView {
	return ControllerMetricView{
		Controller:          cm.Controller,
		ReconcileAttempts:   cm.ReconcileAttempts,
		ReconcileSuccesses:  cm.ReconcileSuccesses,
		ReconcileFailures:   cm.ReconcileFailures,
		TerminalFailures:    cm.TerminalFailures,
		StatusSyncAttempts:  cm.StatusSyncAttempts,
		StatusSyncSuccesses: cm.StatusSyncSuccesses,
		StatusSyncFailures:  cm.StatusSyncFailures,
		LastReconcileAt:     cm.LastReconcileAt,
		LastSuccessAt:       cm.LastSuccessAt,
		LastFailureAt:       cm.LastFailureAt,
		LastStatusSyncAt:    cm.LastStatusSyncAt,
	}
}
