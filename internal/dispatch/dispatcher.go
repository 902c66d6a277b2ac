package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"converge/internal/event"
	"converge/internal/resource"
	"converge/pkg/logging"
)

// Options configures a Dispatcher.
type Options struct {
	// Name identifies the controller in logs and metrics.
	Name string

	// Workers is the size of the worker pool. Defaults to 2.
	Workers int

	// Retry bounds retries. Defaults to DefaultRetryPolicy.
	Retry RetryPolicy

	// ResyncPeriod, when set, schedules a resync after every successful attempt
	// that did not request its own requeue.
	ResyncPeriod time.Duration

	// Limiter caps the global start rate. Nil means unlimited.
	Limiter *RateLimiter

	// OnTerminal is called when an ID exhausts its retries.
	OnTerminal TerminalFunc

	// Observer receives metrics. Nil means none.
	Observer Observer
}

// Dispatcher runs a ReconcileFunc for submitted events, serialized per ID.
type Dispatcher struct {
	opts      Options
	reconcile ReconcileFunc

	queue    *delayedQueue
	attempts *attemptStore
	status   *statusTracker

	mu sync.Mutex
	// ctx is handed to reconciliations and cancelled after they finished;
	// stopCtx ends waiting for work as soon as Stop is called.
	ctx        context.Context
	cancelFunc context.CancelFunc
	stopCtx    context.Context
	stopFunc   context.CancelFunc
	wg         sync.WaitGroup
	running    bool
	stopped    bool
}

// New creates a dispatcher. It does not run until Start.
func New(opts Options, reconcile ReconcileFunc) (*Dispatcher, error) {
	if reconcile == nil {
		return nil, fmt.Errorf("dispatcher %s requires a reconcile function", opts.Name)
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}
	if err := opts.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("dispatcher %s: invalid retry policy: %w", opts.Name, err)
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Dispatcher{
		opts:      opts,
		reconcile: reconcile,
		queue:     newDelayedQueue(),
		attempts:  newAttemptStore(),
		status:    newStatusTracker(),
	}, nil
}

// Submit enqueues an event. It never blocks on reconciliation. Events for an
// ID already queued are merged; events for an in-flight ID schedule one
// follow-up run.
func (d *Dispatcher) Submit(e event.Event) {
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return
	}

	logging.Debug("Dispatcher", "%s: received %s", d.opts.Name, e)
	d.status.pending(e.ID)
	d.queue.Add(Request{ID: e.ID, Trigger: e})
	d.opts.Observer.ObserveQueueDepth(d.opts.Name, d.queue.Len())
}

// Trigger enqueues a manual event for id.
func (d *Dispatcher) Trigger(id resource.ID) {
	d.Submit(event.Event{ID: id, Operation: event.OperationManual, Source: "manual", Timestamp: time.Now()})
}

// Start launches the worker pool. It returns immediately.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}
	if d.stopped {
		return fmt.Errorf("dispatcher %s has been stopped", d.opts.Name)
	}

	d.ctx, d.cancelFunc = context.WithCancel(ctx)
	d.stopCtx, d.stopFunc = context.WithCancel(d.ctx)
	d.running = true

	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	logging.Info("Dispatcher", "%s: started with %d workers", d.opts.Name, d.opts.Workers)
	return nil
}

// Stop shuts down the queue and waits for running attempts to finish. Running
// attempts are not preempted.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.running = false
	cancel, stop := d.cancelFunc, d.stopFunc
	d.mu.Unlock()

	if stop != nil {
		stop()
	}
	d.queue.Shutdown()
	d.wg.Wait()
	if cancel != nil {
		cancel()
	}
	logging.Info("Dispatcher", "%s: stopped", d.opts.Name)
}

// Status returns the dispatch status of id.
func (d *Dispatcher) Status(id resource.ID) (Status, bool) {
	s, ok := d.status.get(id)
	if ok {
		if at, scheduled := d.queue.Scheduled(id); scheduled {
			s.NextAttempt = &at
		}
	}
	return s, ok
}

// Statuses returns the dispatch status of every known ID, sorted by ID.
func (d *Dispatcher) Statuses() []Status {
	return d.status.all()
}

// QueueLength returns the number of IDs waiting for a worker.
func (d *Dispatcher) QueueLength() int {
	return d.queue.Len()
}

// InFlight reports whether an attempt for id is running.
func (d *Dispatcher) InFlight(id resource.ID) bool {
	return d.queue.InFlight(id)
}

// Name returns the dispatcher's controller name.
func (d *Dispatcher) Name() string {
	return d.opts.Name
}

func (d *Dispatcher) worker(n int) {
	defer d.wg.Done()

	logging.Debug("Dispatcher", "%s: worker %d started", d.opts.Name, n)

	for {
		req, ok := d.queue.Get(d.stopCtx)
		if !ok {
			logging.Debug("Dispatcher", "%s: worker %d shutting down", d.opts.Name, n)
			return
		}

		if err := d.opts.Limiter.Wait(d.stopCtx); err != nil {
			// Only fails when the dispatcher is shutting down.
			d.queue.Done(req.ID)
			return
		}

		d.process(req)
		d.queue.Done(req.ID)
		d.opts.Observer.ObserveQueueDepth(d.opts.Name, d.queue.Len())
	}
}

// process runs one attempt and feeds its outcome to the retry logic.
func (d *Dispatcher) process(req Request) {
	failures, lastErr := d.attempts.Failures(req.ID)
	req.Attempt = failures + 1
	req.LastError = lastErr
	req.ReconcileID = uuid.NewString()

	log := logging.With("Dispatcher",
		"controller", d.opts.Name,
		"resource", req.ID.String(),
		"reconcileID", req.ReconcileID,
		"attempt", req.Attempt)

	// A new attempt supersedes any retry timer.
	d.queue.Forget(req.ID)
	d.status.update(req.ID, StateReconciling, "", nil)
	log.Debug("Reconciling (trigger: %s)", req.Trigger.Operation)

	start := time.Now()
	result := d.invoke(req)
	elapsed := time.Since(start)

	switch {
	case result.Forget:
		d.forget(req.ID)
		d.opts.Observer.ObserveReconcile(d.opts.Name, ResultSuccess, elapsed)
		log.Debug("Forgot resource after %s", elapsed)

	case result.Err != nil:
		d.opts.Observer.ObserveReconcile(d.opts.Name, ResultError, elapsed)
		d.handleError(req, result.Err, log)

	default:
		d.attempts.Reset(req.ID)
		d.status.update(req.ID, StateSynced, "", nil)

		delay := result.RequeueAfter
		op := event.OperationResync
		if delay <= 0 {
			delay = d.opts.ResyncPeriod
		}
		if delay > 0 {
			d.opts.Observer.ObserveReconcile(d.opts.Name, ResultRequeue, elapsed)
			d.queue.AddAfter(Request{ID: req.ID, Trigger: event.Event{
				ID: req.ID, Operation: op, Source: "resync", Timestamp: time.Now(),
			}}, delay)
			log.Debug("Reconciled in %s, requeue after %s", elapsed, delay)
		} else {
			d.opts.Observer.ObserveReconcile(d.opts.Name, ResultSuccess, elapsed)
			log.Debug("Reconciled in %s", elapsed)
		}
	}
}

// invoke calls the reconcile function, converting a panic into an error so
// the worker survives.
func (d *Dispatcher) invoke(req Request) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Dispatcher", fmt.Errorf("%v", r), "%s: panic reconciling %s\n%s",
				d.opts.Name, req.ID, debug.Stack())
			result = Result{Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return d.reconcile(d.ctx, req)
}

func (d *Dispatcher) handleError(req Request, err error, log logging.Logger) {
	failures := d.attempts.Fail(req.ID, err)
	msg := err.Error()

	if failures >= d.opts.Retry.MaxAttempts {
		terminal := &TerminalError{ID: req.ID, Attempts: failures, Err: err}
		log.Error(err, "Giving up after %d attempts", failures)

		// A new external event starts a fresh retry budget.
		d.attempts.Reset(req.ID)
		d.queue.Forget(req.ID)
		d.status.update(req.ID, StateFailed, msg, func(s *Status) { s.RetryCount = failures })
		d.opts.Observer.ObserveTerminal(d.opts.Name)

		if d.opts.OnTerminal != nil {
			d.opts.OnTerminal(d.ctx, req.ID, terminal)
		}
		return
	}

	delay := d.opts.Retry.Backoff.Delay(failures)
	d.status.update(req.ID, StateError, msg, nil)
	d.opts.Observer.ObserveRetry(d.opts.Name, failures, delay)
	d.queue.AddAfter(Request{ID: req.ID, LastError: err, Trigger: req.Trigger}, delay)

	log.Warn("Attempt failed, retrying in %s: %v", delay, err)
}

func (d *Dispatcher) forget(id resource.ID) {
	d.attempts.Reset(id)
	d.queue.Forget(id)
	d.status.remove(id)
}
