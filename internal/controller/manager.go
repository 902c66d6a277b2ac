package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"converge/internal/cluster"
	"converge/internal/dispatch"
	"converge/internal/events"
	"converge/internal/metrics"
	"converge/pkg/logging"
)

// DefaultHealthInterval is how often source health is exported as metrics.
const DefaultHealthInterval = 30 * time.Second

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// RateLimit caps the global rate of reconciliation starts across all controllers.
	RateLimit dispatch.RateLimit

	// Workers, Retry and ResyncPeriod are defaults for controllers that leave them unset.
	Workers      int
	Retry        dispatch.RetryPolicy
	ResyncPeriod time.Duration

	// Recorder records Kubernetes Events. Defaults to events.NopRecorder.
	Recorder events.Recorder

	// Observer receives metrics. Defaults to a fresh metrics.Observer.
	Observer *metrics.Observer

	// HealthInterval overrides DefaultHealthInterval.
	HealthInterval time.Duration
}

// Manager runs a set of controllers against one cluster.
type Manager struct {
	cluster cluster.Cluster
	opts    ManagerOptions
	env     environment

	mu          sync.RWMutex
	controllers []Registration
	names       map[string]bool
	ctx         context.Context
	running     bool
	stopped     bool
}

// NewManager creates a manager. Nothing runs until Start.
func NewManager(c cluster.Cluster, opts ManagerOptions) *Manager {
	if opts.Recorder == nil {
		opts.Recorder = events.NopRecorder{}
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NewObserver(nil)
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = DefaultHealthInterval
	}
	return &Manager{
		cluster: c,
		opts:    opts,
		env: environment{
			limiter:  dispatch.NewRateLimiter(opts.RateLimit),
			recorder: opts.Recorder,
			observer: opts.Observer,
			defaults: Config{Workers: opts.Workers, Retry: opts.Retry, ResyncPeriod: opts.ResyncPeriod},
		},
		names: make(map[string]bool),
	}
}

// Register adds a controller. Names must be unique. A controller registered
// after Start is started immediately.
func (m *Manager) Register(r Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return fmt.Errorf("manager is stopped")
	}
	name := r.Name()
	if m.names[name] {
		return fmt.Errorf("controller %q already registered", name)
	}
	if err := r.bind(m.env); err != nil {
		return err
	}
	if m.running {
		if err := r.start(m.ctx); err != nil {
			return err
		}
	}
	m.names[name] = true
	m.controllers = append(m.controllers, r)
	logging.Info("Manager", "Registered controller %s", name)
	return nil
}

// Start starts every controller and blocks until ctx ends, then stops them.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running || m.stopped {
		m.mu.Unlock()
		return fmt.Errorf("manager already started")
	}
	m.ctx = ctx
	started := make([]Registration, 0, len(m.controllers))
	for _, r := range m.controllers {
		if err := r.start(ctx); err != nil {
			m.mu.Unlock()
			for _, s := range started {
				s.stop()
			}
			return fmt.Errorf("starting controller %s: %w", r.Name(), err)
		}
		started = append(started, r)
	}
	m.running = true
	m.mu.Unlock()

	logging.Info("Manager", "Started %d controllers", len(started))

	ticker := time.NewTicker(m.opts.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return nil
		case <-ticker.C:
			m.exportHealth()
		}
	}
}

// Stop stops every controller. Running reconciliations finish first.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.running = false
	controllers := append([]Registration(nil), m.controllers...)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, r := range controllers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.stop()
		}()
	}
	wg.Wait()
	logging.Info("Manager", "Stopped %d controllers", len(controllers))
}

// Running reports whether the manager has started and not yet stopped.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Controllers returns the registered controller names in registration order.
func (m *Manager) Controllers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.controllers))
	for i, r := range m.controllers {
		names[i] = r.Name()
	}
	return names
}

// Statuses returns the dispatch statuses per controller.
func (m *Manager) Statuses() map[string][]dispatch.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]dispatch.Status, len(m.controllers))
	for _, r := range m.controllers {
		out[r.Name()] = r.Statuses()
	}
	return out
}

// Summary returns the in-memory reconciliation counters.
func (m *Manager) Summary() metrics.ReconcilerMetricsSummary {
	return m.opts.Observer.Summary().GetSummary()
}

// Check is a healthz checker: it fails when any event source is unhealthy.
func (m *Manager) Check(req *http.Request) error {
	m.mu.RLock()
	controllers := append([]Registration(nil), m.controllers...)
	m.mu.RUnlock()

	var errs []error
	for _, r := range controllers {
		if err := r.Check(req); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ready is a readyz checker: it fails until the manager runs and the
// cluster cache has synced.
func (m *Manager) Ready(req *http.Request) error {
	if !m.Running() {
		return fmt.Errorf("controllers are not running")
	}
	ctx := context.Background()
	if req != nil {
		ctx = req.Context()
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if !m.cluster.WaitForSync(ctx) {
		return fmt.Errorf("cluster cache is not synced")
	}
	return nil
}

func (m *Manager) exportHealth() {
	m.mu.RLock()
	controllers := append([]Registration(nil), m.controllers...)
	m.mu.RUnlock()

	sort.Slice(controllers, func(i, j int) bool { return controllers[i].Name() < controllers[j].Name() })
	for _, r := range controllers {
		m.opts.Observer.ObserveSources(r.Name(), r.sourceHealth())
	}
}
