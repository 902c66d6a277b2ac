package dispatch

import (
	"context"
	"sync"
	"time"

	"converge/internal/resource"
)

// workQueue is a FIFO of resource IDs with per-ID deduplication.
//
// An ID is in one of four states: idle, queued, in flight (between Get and
// Done), or in flight and dirty. Adding a queued ID replaces its request in
// place; adding an in-flight ID marks it dirty, and Done puts a dirty ID back
// on the queue exactly once.
type workQueue struct {
	mu sync.Mutex

	// order holds queued IDs in FIFO order; items holds their requests
	order []resource.ID
	items map[resource.ID]Request

	// processing tracks IDs currently being processed
	processing map[resource.ID]bool

	// dirty tracks IDs that need reprocessing once processing completes
	dirty map[resource.ID]Request

	// cond is used for blocking Get operations
	cond *sync.Cond

	// shuttingDown indicates the queue is stopping
	shuttingDown bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{
		items:      make(map[resource.ID]Request),
		processing: make(map[resource.ID]bool),
		dirty:      make(map[resource.ID]Request),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add adds or updates a request in the queue.
func (q *workQueue) Add(req Request) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shuttingDown {
		return
	}

	// If already being processed, mark as dirty for reprocessing
	if q.processing[req.ID] {
		q.dirty[req.ID] = req
		return
	}

	if _, queued := q.items[req.ID]; queued {
		q.items[req.ID] = req
		return
	}

	q.items[req.ID] = req
	q.order = append(q.order, req.ID)
	q.cond.Signal()
}

// Get retrieves the next request, blocking until one is available, the
// queue shuts down or ctx ends.
func (q *workQueue) Get(ctx context.Context) (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.order) == 0 && !q.shuttingDown {
		select {
		case <-ctx.Done():
			return Request{}, false
		default:
		}

		// Wake the waiter when ctx ends. Closing done lets the goroutine exit
		// on a normal wakeup.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				q.mu.Lock()
				q.cond.Broadcast()
				q.mu.Unlock()
			case <-done:
			}
		}()

		q.cond.Wait()
		close(done)

		select {
		case <-ctx.Done():
			return Request{}, false
		default:
		}
	}

	// Queued work is dropped on shutdown; in-flight work is not preempted.
	if q.shuttingDown {
		return Request{}, false
	}

	id := q.order[0]
	q.order = q.order[1:]
	req := q.items[id]
	delete(q.items, id)

	q.processing[id] = true
	return req, true
}

// Done marks the ID as no longer in flight and requeues it if it became dirty.
func (q *workQueue) Done(id resource.ID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, id)

	if dirtyReq, ok := q.dirty[id]; ok {
		delete(q.dirty, id)
		if q.shuttingDown {
			return
		}
		q.items[id] = dirtyReq
		q.order = append(q.order, id)
		q.cond.Signal()
	}
}

// Remove drops a queued (not in-flight) request and any pending dirty mark.
func (q *workQueue) Remove(id resource.ID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.dirty, id)
	if _, ok := q.items[id]; !ok {
		return
	}
	delete(q.items, id)
	for i, queued := range q.order {
		if queued == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

// InFlight reports whether id is being processed.
func (q *workQueue) InFlight(id resource.ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing[id]
}

// Len returns the number of queued IDs, not counting in-flight ones.
func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Shutdown stops the queue and drops queued requests; blocked and future
// Gets return false.
func (q *workQueue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuttingDown = true
	q.order = nil
	q.items = make(map[resource.ID]Request)
	q.dirty = make(map[resource.ID]Request)
	q.cond.Broadcast()
}

// delayedQueue wraps a workQueue with timers for delayed adds.
type delayedQueue struct {
	*workQueue

	mu      sync.Mutex
	pending map[resource.ID]*delayedEntry
	stopped bool
}

type delayedEntry struct {
	timer    *time.Timer
	deadline time.Time
}

func newDelayedQueue() *delayedQueue {
	return &delayedQueue{
		workQueue: newWorkQueue(),
		pending:   make(map[resource.ID]*delayedEntry),
	}
}

// AddAfter adds req once delay has passed. If an earlier add for the same ID
// is already pending, the earlier one wins; a later deadline replaces nothing.
func (d *delayedQueue) AddAfter(req Request, delay time.Duration) {
	if delay <= 0 {
		d.Add(req)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	deadline := time.Now().Add(delay)
	if existing, ok := d.pending[req.ID]; ok {
		if !existing.deadline.After(deadline) {
			return
		}
		existing.timer.Stop()
	}

	entry := &delayedEntry{deadline: deadline}
	entry.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		current, ok := d.pending[req.ID]
		if ok && current == entry {
			delete(d.pending, req.ID)
		}
		stopped := d.stopped
		d.mu.Unlock()

		if ok && current == entry && !stopped {
			d.Add(req)
		}
	})
	d.pending[req.ID] = entry
}

// Forget cancels any pending delayed add for id.
func (d *delayedQueue) Forget(id resource.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if entry, ok := d.pending[id]; ok {
		entry.timer.Stop()
		delete(d.pending, id)
	}
}

// Scheduled returns the deadline of the pending delayed add for id.
func (d *delayedQueue) Scheduled(id resource.ID) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.pending[id]
	if !ok {
		return time.Time{}, false
	}
	return entry.deadline, true
}

// Shutdown cancels pending timers and stops the queue.
func (d *delayedQueue) Shutdown() {
	d.mu.Lock()
	d.stopped = true
	for _, entry := range d.pending {
		entry.timer.Stop()
	}
	d.pending = make(map[resource.ID]*delayedEntry)
	d.mu.Unlock()

	d.workQueue.Shutdown()
}
