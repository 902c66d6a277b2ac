package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"converge/internal/event"
	"converge/internal/resource"
)

func widgetID(name string) resource.ID {
	return resource.New("Widget", "default", name)
}

func TestWorkQueue_AddAndGet(t *testing.T) {
	q := newWorkQueue()

	req := Request{ID: widgetID("a")}
	q.Add(req)

	if q.Len() != 1 {
		t.Errorf("expected queue length 1, got %d", q.Len())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, ok := q.Get(ctx)
	if !ok {
		t.Fatal("expected to get item from queue")
	}
	if got.ID != req.ID {
		t.Errorf("got unexpected request: %+v", got)
	}
	if !q.InFlight(req.ID) {
		t.Error("expected item to be in flight after Get")
	}

	q.Done(got.ID)
	if q.InFlight(req.ID) {
		t.Error("expected item not to be in flight after Done")
	}
}

func TestWorkQueue_Deduplication(t *testing.T) {
	q := newWorkQueue()

	q.Add(Request{ID: widgetID("a"), Trigger: event.Event{Operation: event.OperationCreate}})
	q.Add(Request{ID: widgetID("a"), Trigger: event.Event{Operation: event.OperationUpdate}})

	// Should only have one item (deduplicated by ID)
	if q.Len() != 1 {
		t.Errorf("expected queue length 1 after deduplication, got %d", q.Len())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, ok := q.Get(ctx)
	if !ok {
		t.Fatal("expected to get item from queue")
	}

	// Should carry the latest trigger
	if got.Trigger.Operation != event.OperationUpdate {
		t.Errorf("expected latest trigger, got %s", got.Trigger.Operation)
	}
	q.Done(got.ID)
}

func TestWorkQueue_DirtyRequeueOnce(t *testing.T) {
	q := newWorkQueue()
	id := widgetID("a")
	q.Add(Request{ID: id})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, ok := q.Get(ctx)
	if !ok {
		t.Fatal("expected to get item from queue")
	}

	// Many adds while processing collapse into one dirty mark.
	for i := 0; i < 10; i++ {
		q.Add(Request{ID: id})
	}

	// Queue should still appear empty since item is being processed
	if q.Len() != 0 {
		t.Errorf("expected queue length 0 while processing, got %d", q.Len())
	}

	q.Done(got.ID)

	if q.Len() != 1 {
		t.Errorf("expected queue length 1 after done, got %d", q.Len())
	}

	got2, ok := q.Get(ctx)
	if !ok {
		t.Fatal("expected to get dirty item from queue")
	}
	q.Done(got2.ID)

	if q.Len() != 0 {
		t.Errorf("expected exactly one follow-up, queue length is %d", q.Len())
	}
}

func TestWorkQueue_Remove(t *testing.T) {
	q := newWorkQueue()
	q.Add(Request{ID: widgetID("a")})
	q.Add(Request{ID: widgetID("b")})
	q.Remove(widgetID("a"))

	if q.Len() != 1 {
		t.Fatalf("expected queue length 1, got %d", q.Len())
	}
	got, _ := q.Get(context.Background())
	if got.ID != widgetID("b") {
		t.Errorf("expected b, got %s", got.ID)
	}
}

func TestWorkQueue_Shutdown(t *testing.T) {
	q := newWorkQueue()

	// Start a goroutine waiting for an item
	done := make(chan bool)
	go func() {
		_, ok := q.Get(context.Background())
		done <- ok
	}()

	// Give the goroutine time to start waiting
	time.Sleep(50 * time.Millisecond)

	// Shutdown should unblock the waiting Get
	q.Shutdown()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected Get to return false after shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("Get did not unblock after shutdown")
	}

	q.Add(Request{ID: widgetID("late")})
	if q.Len() != 0 {
		t.Error("expected adds after shutdown to be ignored")
	}
}

func TestWorkQueue_GetHonoursContext(t *testing.T) {
	q := newWorkQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, ok := q.Get(ctx); ok {
		t.Fatal("expected Get to give up when the context ends")
	}
}

func TestWorkQueue_ConcurrentAccess(t *testing.T) {
	q := newWorkQueue()

	var wg sync.WaitGroup
	for p := 0; p < 5; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				q.Add(Request{ID: widgetID(string(rune('A'+p)) + string(rune('0'+j)))})
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[resource.ID]bool)
	for q.Len() > 0 {
		req, ok := q.Get(context.Background())
		if !ok {
			t.Fatal("unexpected shutdown")
		}
		if seen[req.ID] {
			t.Fatalf("%s delivered twice", req.ID)
		}
		seen[req.ID] = true
		q.Done(req.ID)
	}
	if len(seen) != 50 {
		t.Errorf("expected 50 distinct items, got %d", len(seen))
	}
}

func TestDelayedQueue_AddAfter(t *testing.T) {
	q := newDelayedQueue()
	defer q.Shutdown()

	start := time.Now()
	delay := 100 * time.Millisecond
	q.AddAfter(Request{ID: widgetID("a")}, delay)

	if _, ok := q.Scheduled(widgetID("a")); !ok {
		t.Fatal("expected a pending delayed add")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, ok := q.Get(ctx)
	if !ok {
		t.Fatal("expected to get delayed item")
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("item delivered after %s, before the %s delay", elapsed, delay)
	}
	q.Done(got.ID)
}

func TestDelayedQueue_EarliestWins(t *testing.T) {
	q := newDelayedQueue()
	defer q.Shutdown()
	id := widgetID("a")

	q.AddAfter(Request{ID: id}, 50*time.Millisecond)
	first, _ := q.Scheduled(id)

	q.AddAfter(Request{ID: id}, time.Hour)
	kept, _ := q.Scheduled(id)
	if !kept.Equal(first) {
		t.Error("a later deadline must not replace an earlier one")
	}

	q.AddAfter(Request{ID: id}, 10*time.Millisecond)
	earlier, _ := q.Scheduled(id)
	if !earlier.Before(first) {
		t.Error("an earlier deadline must replace a later one")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, ok := q.Get(ctx); !ok {
		t.Fatal("expected delayed item")
	}
	q.Done(id)

	// The replaced timer must not fire a second add.
	time.Sleep(80 * time.Millisecond)
	if q.Len() != 0 {
		t.Errorf("expected no duplicate delivery, queue length %d", q.Len())
	}
}

func TestDelayedQueue_Forget(t *testing.T) {
	q := newDelayedQueue()
	defer q.Shutdown()
	id := widgetID("a")

	q.AddAfter(Request{ID: id}, 30*time.Millisecond)
	q.Forget(id)

	time.Sleep(80 * time.Millisecond)
	if q.Len() != 0 {
		t.Error("forgotten delayed add must not fire")
	}
}
