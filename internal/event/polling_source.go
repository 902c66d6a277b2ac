package event

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/util/wait"

	"converge/internal/resource"
	"converge/pkg/logging"
)

// Fetcher reads the current state of the external resource belonging to a primary.
// Implementations acquire any connection they need per call and release it
// before returning.
type Fetcher[T any] func(ctx context.Context, id resource.ID) (T, error)

// PollingOptions configures a PollingSource.
type PollingOptions[T any] struct {
	// Name identifies the source. Required.
	Name string

	// Period between polls of one primary. Defaults to 30s.
	Period time.Duration

	// Fetch reads the external state. Required.
	Fetch Fetcher[T]

	// Equal compares snapshots. Defaults to equality.Semantic.DeepEqual.
	Equal func(a, b T) bool

	// Backoff governs retries after a failed poll. Duration defaults to Period/4
	// and Cap to 10*Period.
	Backoff wait.Backoff

	// FailureThreshold is the number of consecutive failures of one primary
	// after which the source reports unhealthy. Defaults to 3.
	FailureThreshold int
}

// PollingSource polls an external system per primary resource on its own timer.
// Only a change relative to the last snapshot produces an event.
type PollingSource[T any] struct {
	opts  PollingOptions[T]
	group singleflight.Group

	mu        sync.Mutex
	handler   Handler
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	targets   map[resource.ID]*pollTarget
	snapshots map[resource.ID]T
}

type pollTarget struct {
	cancel      context.CancelFunc
	failures    int
	lastErr     error
	lastSuccess time.Time
}

var _ Source = (*PollingSource[int])(nil)

// NewPollingSource creates a polling source. Primaries are added with Track.
func NewPollingSource[T any](opts PollingOptions[T]) (*PollingSource[T], error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("polling source requires a name")
	}
	if opts.Fetch == nil {
		return nil, fmt.Errorf("polling source %s requires a fetch function", opts.Name)
	}
	if opts.Period <= 0 {
		opts.Period = 30 * time.Second
	}
	if opts.Equal == nil {
		opts.Equal = func(a, b T) bool { return equality.Semantic.DeepEqual(a, b) }
	}
	if opts.Backoff.Duration <= 0 {
		opts.Backoff.Duration = opts.Period / 4
	}
	if opts.Backoff.Factor <= 0 {
		opts.Backoff.Factor = 2
	}
	if opts.Backoff.Cap <= 0 {
		opts.Backoff.Cap = 10 * opts.Period
	}
	if opts.Backoff.Steps <= 0 {
		opts.Backoff.Steps = 1 << 30
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 3
	}
	return &PollingSource[T]{
		opts:      opts,
		targets:   make(map[resource.ID]*pollTarget),
		snapshots: make(map[resource.ID]T),
	}, nil
}

// Name returns the source name.
func (p *PollingSource[T]) Name() string { return p.opts.Name }

// Start enables polling. Targets tracked before Start begin polling now.
func (p *PollingSource[T]) Start(ctx context.Context, h Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil {
		return nil
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.handler = h
	for id, t := range p.targets {
		p.startLocked(id, t)
	}
	logging.Debug("PollingSource", "Source %s started with period %s", p.opts.Name, p.opts.Period)
	return nil
}

// Stop cancels every poll loop and waits for them to exit.
func (p *PollingSource[T]) Stop() error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.ctx, p.cancel = nil, nil
	p.handler = nil
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// Track starts polling the external state of id. It is idempotent.
func (p *PollingSource[T]) Track(id resource.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.targets[id]; ok {
		return
	}
	t := &pollTarget{}
	p.targets[id] = t
	if p.ctx != nil {
		p.startLocked(id, t)
	}
}

// Untrack stops polling id and drops its snapshot.
func (p *PollingSource[T]) Untrack(id resource.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.targets[id]; ok && t.cancel != nil {
		t.cancel()
	}
	delete(p.targets, id)
	delete(p.snapshots, id)
}

// Tracked returns the IDs currently polled, sorted.
func (p *PollingSource[T]) Tracked() []resource.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]resource.ID, 0, len(p.targets))
	for id := range p.targets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Latest returns the last snapshot for id.
func (p *PollingSource[T]) Latest(id resource.ID) (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.snapshots[id]
	return v, ok
}

// Refresh fetches the external state of id now and, while id is tracked,
// stores it as the snapshot without emitting an event; the caller is already
// reconciling id. Concurrent refreshes and polls of the same id share one fetch.
func (p *PollingSource[T]) Refresh(ctx context.Context, id resource.ID) (T, error) {
	v, _, err := p.fetch(ctx, id)
	return v, err
}

// fetch performs one deduplicated fetch and updates the snapshot. changed
// reports whether the value differs from the previous snapshot. The snapshot
// is stored only if the target the fetch started under is still tracked, so a
// fetch racing with Untrack cannot leave a stale value behind.
func (p *PollingSource[T]) fetch(ctx context.Context, id resource.ID) (T, bool, error) {
	type outcome struct {
		value   T
		changed bool
	}

	res, err, _ := p.group.Do(id.String(), func() (interface{}, error) {
		p.mu.Lock()
		target := p.targets[id]
		p.mu.Unlock()

		v, err := p.opts.Fetch(ctx, id)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		prev, had := p.snapshots[id]
		changed := !had || !p.opts.Equal(prev, v)
		if target != nil && p.targets[id] == target {
			p.snapshots[id] = v
		}
		return outcome{value: v, changed: changed}, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	o := res.(outcome)
	return o.value, o.changed, nil
}

func (p *PollingSource[T]) startLocked(id resource.ID, t *pollTarget) {
	ctx, cancel := context.WithCancel(p.ctx)
	t.cancel = cancel
	p.wg.Add(1)
	go p.loop(ctx, id)
}

func (p *PollingSource[T]) loop(ctx context.Context, id resource.ID) {
	defer p.wg.Done()

	backoff := p.opts.Backoff
	delay := p.opts.Period
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		_, changed, err := p.fetch(ctx, id)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			failures := p.recordFailure(id, err)
			delay = backoff.Step()
			logging.Warn("PollingSource", "Poll of %s by %s failed (%d consecutive), retrying in %s: %v",
				id, p.opts.Name, failures, delay, err)
		} else {
			p.recordSuccess(id)
			backoff = p.opts.Backoff
			delay = p.opts.Period
			if changed {
				p.emit(id)
			}
		}
		timer.Reset(delay)
	}
}

func (p *PollingSource[T]) recordFailure(id resource.ID, err error) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.targets[id]
	if !ok {
		return 0
	}
	t.failures++
	t.lastErr = err
	return t.failures
}

func (p *PollingSource[T]) recordSuccess(id resource.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.targets[id]; ok {
		t.failures = 0
		t.lastErr = nil
		t.lastSuccess = time.Now()
	}
}

func (p *PollingSource[T]) emit(id resource.ID) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h == nil {
		return
	}
	h.Submit(Event{
		ID:        id,
		Operation: OperationPoll,
		Source:    p.opts.Name,
		Timestamp: time.Now(),
	})
}

// Health is unhealthy while any tracked primary has failed FailureThreshold
// times in a row.
func (p *PollingSource[T]) Health() Health {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := Health{Healthy: true}
	var failing []string
	for id, t := range p.targets {
		if t.lastSuccess.After(h.LastSuccess) {
			h.LastSuccess = t.lastSuccess
		}
		if t.failures > h.ConsecutiveFailures {
			h.ConsecutiveFailures = t.failures
		}
		if t.failures >= p.opts.FailureThreshold {
			failing = append(failing, fmt.Sprintf("%s: %v", id, t.lastErr))
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		h.Healthy = false
		h.Message = "polling failing for " + strings.Join(failing, "; ")
	}
	return h
}
