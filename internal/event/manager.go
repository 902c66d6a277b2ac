package event

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"converge/pkg/logging"
)

// Manager owns the event sources of one controller.
type Manager struct {
	name string

	mu      sync.RWMutex
	sources map[string]Source
	order   []string
	handler Handler
	ctx     context.Context
	running bool
}

// NewManager creates an empty manager. name is used in logs and health reports.
func NewManager(name string) *Manager {
	return &Manager{
		name:    name,
		sources: make(map[string]Source),
	}
}

// Register adds a source. Names must be unique. A source registered after
// Start is started immediately.
func (m *Manager) Register(src Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := src.Name()
	if _, exists := m.sources[name]; exists {
		return fmt.Errorf("event source %q already registered with %s", name, m.name)
	}
	if m.running {
		if err := src.Start(m.ctx, m.handler); err != nil {
			return fmt.Errorf("failed to start event source %q: %w", name, err)
		}
	}
	m.sources[name] = src
	m.order = append(m.order, name)
	logging.Debug("EventSources", "Registered source %s with %s", name, m.name)
	return nil
}

// Unregister stops and removes a source.
func (m *Manager) Unregister(name string) error {
	m.mu.Lock()
	src, ok := m.sources[name]
	if ok {
		delete(m.sources, name)
		for i, n := range m.order {
			if n == name {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	running := m.running
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("event source %q not registered with %s", name, m.name)
	}
	if running {
		return src.Stop()
	}
	return nil
}

// Source returns a registered source by name.
func (m *Manager) Source(name string) (Source, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.sources[name]
	return src, ok
}

// Start starts every source in registration order, delivering events to h.
// If one fails, the ones already started are stopped again.
func (m *Manager) Start(ctx context.Context, h Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	started := make([]Source, 0, len(m.order))
	for _, name := range m.order {
		src := m.sources[name]
		if err := src.Start(ctx, h); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				if stopErr := started[i].Stop(); stopErr != nil {
					logging.Warn("EventSources", "Failed to stop %s during rollback: %v", started[i].Name(), stopErr)
				}
			}
			return fmt.Errorf("failed to start event source %q: %w", name, err)
		}
		started = append(started, src)
	}

	m.ctx = ctx
	m.handler = h
	m.running = true
	logging.Info("EventSources", "Started %d event sources for %s", len(started), m.name)
	return nil
}

// Stop stops every source in reverse registration order.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	sources := make([]Source, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		sources = append(sources, m.sources[m.order[i]])
	}
	m.mu.Unlock()

	var errs []error
	for _, src := range sources {
		if err := src.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Health returns the health of every source by name.
func (m *Manager) Health() map[string]Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Health, len(m.sources))
	for name, src := range m.sources {
		out[name] = src.Health()
	}
	return out
}

// Check is a healthz.Checker reporting every unhealthy source.
func (m *Manager) Check(_ *http.Request) error {
	var unhealthy []string
	for name, h := range m.Health() {
		if !h.Healthy {
			unhealthy = append(unhealthy, fmt.Sprintf("%s (%s)", name, h.Message))
		}
	}
	if len(unhealthy) == 0 {
		return nil
	}
	sort.Strings(unhealthy)
	return fmt.Errorf("%s: unhealthy event sources: %s", m.name, strings.Join(unhealthy, ", "))
}
