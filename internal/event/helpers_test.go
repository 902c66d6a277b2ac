package event

import (
	"sync"
	"time"

	"converge/internal/resource"
)

// collector is a Handler recording every event.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) Submit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *collector) ids() []resource.ID {
	var ids []resource.ID
	for _, e := range c.all() {
		ids = append(ids, e.ID)
	}
	return ids
}

func (c *collector) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)
