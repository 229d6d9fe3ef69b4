// Package clock drives periodic background work such as correlation rebuilds
// and due-card notifications.
package clock

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Listener receives tick events.
type Listener interface {
	OnTick(now time.Time)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(now time.Time)

// OnTick calls f(now).
func (f ListenerFunc) OnTick(now time.Time) { f(now) }

// Clock ticks at a fixed interval and fans each tick out to its listeners in
// registration order.
type Clock struct {
	interval  time.Duration
	now       func() time.Time
	listeners []Listener
	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	logger    *zap.Logger
}

// New creates a clock. A nil now uses time.Now.
func New(interval time.Duration, now func() time.Time, logger *zap.Logger) *Clock {
	if interval <= 0 {
		interval = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Clock{interval: interval, now: now, logger: logger}
}

// AddListener registers a tick listener.
func (c *Clock) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Start begins the tick loop in a background goroutine.
func (c *Clock) Start() {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.loop(ctx, done)
	c.logger.Info("clock started", zap.Duration("interval", c.interval))
}

// Stop halts the tick loop and waits for an in-flight tick to finish.
func (c *Clock) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Info("clock stopped")
}

// Tick delivers one tick at the current time synchronously.
func (c *Clock) Tick() {
	c.tick(c.now())
}

func (c *Clock) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(c.now())
		}
	}
}

func (c *Clock) tick(now time.Time) {
	c.mu.RLock()
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()

	for _, l := range listeners {
		l.OnTick(now)
	}
}
