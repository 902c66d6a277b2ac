package event

import (
	"context"
	"sync"
	"time"
)

// ChannelSource forwards events arriving on a Go channel, e.g. from a webhook
// receiver or another controller. Events without an operation are treated as
// manual triggers.
type ChannelSource struct {
	name string
	ch   <-chan Event

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
	lastHit time.Time
}

var _ Source = (*ChannelSource)(nil)

// NewChannelSource creates a source reading from ch.
func NewChannelSource(name string, ch <-chan Event) *ChannelSource {
	return &ChannelSource{name: name, ch: ch}
}

// Name returns the source name.
func (c *ChannelSource) Name() string { return c.name }

// Start begins forwarding in a goroutine.
func (c *ChannelSource) Start(ctx context.Context, h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.closed = false

	go func(done chan struct{}) {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-c.ch:
				if !ok {
					c.mu.Lock()
					c.closed = true
					c.mu.Unlock()
					return
				}
				if e.Operation == "" {
					e.Operation = OperationManual
				}
				if e.Source == "" {
					e.Source = c.name
				}
				if e.Timestamp.IsZero() {
					e.Timestamp = time.Now()
				}
				c.mu.Lock()
				c.lastHit = e.Timestamp
				c.mu.Unlock()
				h.Submit(e)
			}
		}
	}(c.done)
	return nil
}

// Stop stops forwarding and waits for the goroutine to exit.
func (c *ChannelSource) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

// Health is unhealthy once the channel has been closed by its producer.
func (c *ChannelSource) Health() Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Health{Message: "channel closed", LastSuccess: c.lastHit}
	}
	return Health{Healthy: true, LastSuccess: c.lastHit}
}
