// Package timer implements the wall-clock exam countdown. The deadline is
// absolute: the start timestamp persists in a durable store, so closing and
// reopening the UI cannot extend time. There is no pause operation.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Controller drives one item's countdown. It fires the expiry callback
// exactly once, either immediately on an already-expired resume or when the
// cooperative tick reaches zero.
type Controller struct {
	store Store
	log   zerolog.Logger
	clock func() time.Time
	tick  time.Duration

	mu       sync.Mutex
	itemID   string
	deadline time.Time
	timed    bool
	cancel   context.CancelFunc

	expireOnce sync.Once
	onExpire   func()
}

// Option customizes a Controller; used by tests to inject a clock and a
// faster tick.
type Option func(*Controller)

// WithClock replaces the wall-clock source.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithTick replaces the 1-second tick granularity.
func WithTick(d time.Duration) Option {
	return func(c *Controller) { c.tick = d }
}

// New creates a stopped controller bound to a durable store.
func New(store Store, log zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		store: store,
		log:   log.With().Str("component", "timer").Logger(),
		clock: time.Now,
		tick:  time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins (or resumes) the countdown for an item and returns the
// initial remaining duration.
//
// First start persists the start timestamp; any later start for the same
// item derives remaining time from the persisted stamp and elapsed wall
// clock. A resume past the deadline fires onExpire immediately, clears the
// persisted entry, and starts no ticker. A non-positive duration means the
// item is untimed: no timer, no persistence.
func (c *Controller) Start(ctx context.Context, itemID string, duration time.Duration, onExpire func()) (time.Duration, error) {
	if duration <= 0 {
		return 0, nil
	}

	start, ok, err := c.store.ReadStart(ctx, itemID)
	if err != nil {
		return 0, err
	}
	now := c.clock()
	if !ok {
		start = now
		if err := c.store.WriteStart(ctx, itemID, start); err != nil {
			return 0, err
		}
	}

	deadline := start.Add(duration)
	remaining := deadline.Sub(now)

	c.mu.Lock()
	c.itemID = itemID
	c.deadline = deadline
	c.timed = true
	c.onExpire = onExpire
	c.mu.Unlock()

	if remaining <= 0 {
		c.log.Info().Str("item_id", itemID).Msg("Deadline already passed at resume")
		c.fireExpire()
		return 0, nil
	}

	tickCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	go c.run(tickCtx)

	c.log.Info().
		Str("item_id", itemID).
		Dur("remaining", remaining).
		Msg("Countdown started")
	return remaining, nil
}

// run is the cooperative tick loop. It recomputes remaining time from the
// wall clock each tick rather than decrementing, so a suspended process
// still expires on schedule.
func (c *Controller) run(ctx context.Context) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.Remaining() <= 0 {
				c.fireExpire()
				return
			}
		}
	}
}

// Remaining returns the time left, floored at zero. Untimed items report
// zero and never expire.
func (c *Controller) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.timed {
		return 0
	}
	remaining := c.deadline.Sub(c.clock())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Timed reports whether a countdown is active for the current item.
func (c *Controller) Timed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timed
}

// fireExpire invokes the expiry callback exactly once and clears the
// persisted entry.
func (c *Controller) fireExpire() {
	c.expireOnce.Do(func() {
		c.mu.Lock()
		itemID := c.itemID
		fire := c.onExpire
		c.mu.Unlock()

		if err := c.store.Clear(context.Background(), itemID); err != nil {
			c.log.Error().Err(err).Str("item_id", itemID).Msg("Clear on expiry failed")
		}
		if fire != nil {
			fire()
		}
	})
}

// Stop cancels the tick without touching the persisted entry, so the
// countdown resumes correctly after a reload. Call on teardown; leaking the
// tick would fire expiry for a session the user believes has ended.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Clear removes the persisted entry for the current item; called after a
// successful submit so the next attempt starts fresh.
func (c *Controller) Clear(ctx context.Context) error {
	c.mu.Lock()
	itemID := c.itemID
	c.mu.Unlock()
	if itemID == "" {
		return nil
	}
	return c.store.Clear(ctx, itemID)
}
