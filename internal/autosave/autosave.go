// Package autosave synchronizes the answer map to the upstream draft-save
// endpoint in the background: periodic, diff-gated, full-replace. Failures
// are never blocking; the next tick retries the same diff.
package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/examflow/internal/answers"
)

// Status drives the transient save indicator in the UI. It is not persisted.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

// Saver is the draft-save dependency; the endpoint is idempotent-replace,
// so the full current map is sent, never a delta.
type Saver interface {
	SaveDraft(ctx context.Context, submissionID string, m answers.Map) error
}

// Controller runs the save loop for one submission. At most one save is in
// flight at a time; a tick landing during an unresolved save is skipped so
// a stale write can never clobber a newer in-flight one.
type Controller struct {
	saver        Saver
	submissionID string
	snapshot     func() answers.Map
	interval     time.Duration
	revertAfter  time.Duration
	log          zerolog.Logger

	mu        sync.Mutex
	inFlight  bool
	status    Status
	lastSaved answers.Map
	onStatus  func(Status)
	cancel    context.CancelFunc
}

// Option customizes a Controller.
type Option func(*Controller)

// WithInterval replaces the default 30s background tick.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) { c.interval = d }
}

// WithStatusWindow replaces how long saved/error indicators display before
// reverting to idle.
func WithStatusWindow(d time.Duration) Option {
	return func(c *Controller) { c.revertAfter = d }
}

// WithOnStatus registers the status observer for UI feedback.
func WithOnStatus(fn func(Status)) Option {
	return func(c *Controller) { c.onStatus = fn }
}

// New builds a controller. snapshot must return a copy of the current
// answers that the caller will not mutate afterwards.
func New(saver Saver, submissionID string, snapshot func() answers.Map, log zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		saver:        saver,
		submissionID: submissionID,
		snapshot:     snapshot,
		interval:     30 * time.Second,
		revertAfter:  2 * time.Second,
		status:       StatusIdle,
		log:          log.With().Str("component", "autosave").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run starts the background tick loop. Call in a goroutine; Stop or ctx
// cancellation ends it.
func (c *Controller) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			c.save(runCtx)
		}
	}
}

// Flush triggers one save round immediately, outside the periodic tick. The
// same gates apply: no-op when unchanged, skipped when a save is in flight.
func (c *Controller) Flush(ctx context.Context) {
	c.save(ctx)
}

// Stop cancels the background loop. Answers written after Stop are only
// persisted by an explicit Flush or final submit.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Status returns the current indicator state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastSaved returns a copy of the most recently acknowledged answer set.
func (c *Controller) LastSaved() answers.Map {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSaved.Clone()
}

func (c *Controller) save(ctx context.Context) {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return
	}
	snap := c.snapshot()
	if len(snap) == 0 || snap.Equal(c.lastSaved) {
		c.mu.Unlock()
		return
	}
	c.inFlight = true
	c.setStatusLocked(StatusSaving)
	c.mu.Unlock()

	err := c.saver.SaveDraft(ctx, c.submissionID, snap)

	c.mu.Lock()
	c.inFlight = false
	if err != nil {
		// lastSaved stays untouched so the next tick retries the same diff.
		c.log.Warn().Err(err).Str("submission_id", c.submissionID).Msg("Draft save failed")
		c.setStatusLocked(StatusError)
	} else {
		c.lastSaved = snap
		c.setStatusLocked(StatusSaved)
	}
	c.mu.Unlock()

	c.scheduleRevert()
}

// setStatusLocked updates the indicator and notifies the observer. Must be
// called with the mutex held; the callback runs on a fresh goroutine so
// observers may call back into the controller.
func (c *Controller) setStatusLocked(s Status) {
	if c.status == s {
		return
	}
	c.status = s
	if c.onStatus != nil {
		fn := c.onStatus
		go fn(s)
	}
}

// scheduleRevert flips saved/error back to idle after the display window.
func (c *Controller) scheduleRevert() {
	time.AfterFunc(c.revertAfter, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.status == StatusSaved || c.status == StatusError {
			c.setStatusLocked(StatusIdle)
		}
	})
}
