// Package session composes the timer, autosave, binder, navigator and
// protocol client into one explicit state machine per content item. UI
// layers observe it through snapshot/notice subscriptions instead of
// reaching into its internals, so correctness does not depend on any
// rendering technology.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/examflow/internal/answers"
	"github.com/stemsi/examflow/internal/autosave"
	"github.com/stemsi/examflow/internal/binder"
	"github.com/stemsi/examflow/internal/content"
	"github.com/stemsi/examflow/internal/navigator"
	"github.com/stemsi/examflow/internal/timer"
	"github.com/stemsi/examflow/internal/upstream"
)

// State enumerates the session lifecycle.
type State string

const (
	StateIdle       State = "IDLE"
	StateStarting   State = "STARTING"
	StateActive     State = "ACTIVE"
	StateSwitching  State = "SWITCHING" // Active sub-state while changing section
	StateSubmitting State = "SUBMITTING"
	StateSubmitted  State = "SUBMITTED"
	StateFailed     State = "FAILED"
)

var (
	// ErrNoAnswers rejects a non-forced submit over an all-empty answer map.
	ErrNoAnswers = errors.New("no question has a non-empty answer")
	// ErrWrongState rejects an operation the current state does not allow.
	ErrWrongState = errors.New("operation not allowed in current session state")
	// ErrSubmitInFlight reports that a submit is already running; callers
	// must not issue a second one.
	ErrSubmitInFlight = errors.New("a submit is already in flight")
)

// Item identifies one gradable content unit and its attempt parameters.
type Item struct {
	Mode        upstream.Mode `json:"mode"`
	SectionType string        `json:"section_type,omitempty"`
	ItemID      string        `json:"item_id"`
	ContentID   string        `json:"content_id,omitempty"`
	Duration    time.Duration `json:"-"`
}

// ProtocolClient is the slice of the upstream client the orchestrator uses.
type ProtocolClient interface {
	StartOrResume(ctx context.Context, key upstream.StartKey, contentID string) (*upstream.StartResult, error)
	SaveDraft(ctx context.Context, submissionID string, m answers.Map) error
	Submit(ctx context.Context, submissionID string, m answers.Map, force bool) (*upstream.SubmitResult, error)
	FetchSubmission(ctx context.Context, submissionID string) (*upstream.Submission, error)
}

// Deps carries the orchestrator's collaborators and tuning.
type Deps struct {
	Client     ProtocolClient
	TimerStore timer.Store
	Mirror     AnswerMirror
	Notifier   Notifier
	Guard      Guard
	Log        zerolog.Logger

	AutosaveInterval time.Duration
	StatusWindow     time.Duration
	LoadTimeout      time.Duration
	TimerOpts        []timer.Option
}

// Orchestrator drives one session: start → answer → autosave loop →
// submit/timeout → teardown. It exclusively owns the item's answer map and
// clock; they are never shared across concurrently open items.
type Orchestrator struct {
	id   uuid.UUID
	deps Deps
	log  zerolog.Logger

	mu           sync.Mutex
	item         Item
	state        State
	submissionID string
	bandScore    *float64
	submitting   bool

	bind *binder.Binder
	nav  *navigator.Navigator
	tick *timer.Controller
	save *autosave.Controller

	bgCancel context.CancelFunc

	stateSubs  map[int]func(Snapshot)
	noticeSubs map[int]func(Notice)
	nextSub    int
}

// New builds an orchestrator in Idle for one content item.
func New(item Item, deps Deps) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Guard == nil {
		deps.Guard = NopGuard{}
	}
	if deps.LoadTimeout <= 0 {
		deps.LoadTimeout = 30 * time.Second
	}
	id := uuid.New()
	return &Orchestrator{
		id:   id,
		deps: deps,
		log: deps.Log.With().
			Str("component", "session").
			Str("session_id", id.String()).
			Logger(),
		item:       item,
		state:      StateIdle,
		stateSubs:  make(map[int]func(Snapshot)),
		noticeSubs: make(map[int]func(Notice)),
	}
}

// ID returns the engine-local session id.
func (o *Orchestrator) ID() uuid.UUID { return o.id }

// Start drives Idle → Starting → Active: start/resume the submission, load
// the content document (one soft retry under the loading guard), restore
// answers, then bring up the timer and the autosave loop. A failure returns
// the session to a clean Idle so start can simply be re-invoked.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return fmt.Errorf("start from %s: %w", o.state, ErrWrongState)
	}
	o.state = StateStarting
	item := o.item
	o.mu.Unlock()
	o.publish()

	key := upstream.StartKey{Mode: item.Mode, SectionType: item.SectionType, ItemID: item.ItemID}
	res, err := o.deps.Client.StartOrResume(ctx, key, item.ContentID)
	if err != nil {
		o.toIdle()
		o.notify(LevelError, NoticeStartFailed, err)
		return fmt.Errorf("start session: %w", err)
	}

	raw := res.Content
	wire := res.Answers
	if len(raw) == 0 {
		// Content not embedded in the start response; hydrate from the
		// submission, bounded so the UI never sits in "loading" forever.
		// The guard spans both attempts; the retry is only issued while
		// budget remains, a first attempt killed by the guard itself
		// fails immediately instead of retrying into a dead context.
		loadCtx, cancel := context.WithTimeout(ctx, o.deps.LoadTimeout)
		sub, err := o.deps.Client.FetchSubmission(loadCtx, res.SubmissionID)
		if err != nil && loadCtx.Err() == nil {
			sub, err = o.deps.Client.FetchSubmission(loadCtx, res.SubmissionID) // one soft retry
		}
		cancel()
		if err != nil {
			o.toIdle()
			o.notify(LevelError, NoticeContentLoadFailed, err)
			return fmt.Errorf("load content: %w", err)
		}
		raw = sub.Content
		if len(sub.Answers) > 0 {
			wire = sub.Answers
		}
	}

	doc, err := content.Parse(raw)
	if err != nil {
		o.toIdle()
		o.notify(LevelError, NoticeContentLoadFailed, err)
		return fmt.Errorf("parse content: %w", err)
	}
	groups := doc.Flatten()

	restored := answers.FromWire(wire)
	if o.deps.Mirror != nil {
		// Mirror entries are newer than the last draft save; they win.
		if mirrored, err := o.deps.Mirror.Read(ctx, item.ItemID); err != nil {
			o.log.Warn().Err(err).Msg("Answer mirror read failed")
		} else {
			for k, v := range mirrored {
				restored[k] = v
			}
		}
	}

	bind := binder.New()
	bind.Load(groups, restored)
	bind.SetOnChange(o.onAnswerChanged)

	save := autosave.New(o.deps.Client, res.SubmissionID, bind.Answers, o.deps.Log,
		autosaveOptions(o.deps, o.onAutosaveStatus)...)
	tick := timer.New(o.deps.TimerStore, o.deps.Log, o.deps.TimerOpts...)

	bgCtx, bgCancel := context.WithCancel(context.Background())

	o.mu.Lock()
	o.submissionID = res.SubmissionID
	o.bind = bind
	o.nav = navigator.New(groups)
	o.save = save
	o.tick = tick
	o.bgCancel = bgCancel
	o.state = StateActive
	o.mu.Unlock()

	if _, err := tick.Start(ctx, item.ItemID, item.Duration, o.onExpire); err != nil {
		o.log.Error().Err(err).Msg("Timer start failed, session runs untimed")
	}

	// An already-expired resume fires onExpire synchronously inside
	// tick.Start: the forced submit and teardown have then run to
	// completion before it returns. Only a still-Active session gets the
	// guard and the save loop.
	o.mu.Lock()
	if o.state != StateActive {
		o.mu.Unlock()
		bgCancel()
		o.log.Info().
			Str("item_id", item.ItemID).
			Str("submission_id", res.SubmissionID).
			Msg("Session ended during start")
		return nil
	}
	o.mu.Unlock()
	go save.Run(bgCtx)

	o.deps.Guard.Arm()
	o.log.Info().
		Str("item_id", item.ItemID).
		Str("submission_id", res.SubmissionID).
		Msg("Session active")
	o.publish()
	return nil
}

func autosaveOptions(deps Deps, onStatus func(autosave.Status)) []autosave.Option {
	opts := []autosave.Option{autosave.WithOnStatus(onStatus)}
	if deps.AutosaveInterval > 0 {
		opts = append(opts, autosave.WithInterval(deps.AutosaveInterval))
	}
	if deps.StatusWindow > 0 {
		opts = append(opts, autosave.WithStatusWindow(deps.StatusWindow))
	}
	return opts
}

// toIdle resets a failed start back to a clean Idle.
func (o *Orchestrator) toIdle() {
	o.mu.Lock()
	o.state = StateIdle
	o.mu.Unlock()
	o.publish()
}

// onAnswerChanged is the binder's change callback: shadow the value into the
// durable mirror and push a fresh snapshot.
func (o *Orchestrator) onAnswerChanged(question int) {
	o.mu.Lock()
	item := o.item
	var value any
	if o.bind != nil {
		value = o.bind.Answer(question)
	}
	o.mu.Unlock()

	if o.deps.Mirror != nil {
		if err := o.deps.Mirror.Write(context.Background(), item.ItemID, answers.Key(question), value); err != nil {
			o.log.Warn().Err(err).Int("question", question).Msg("Answer mirror write failed")
		}
	}
	o.publish()
}

func (o *Orchestrator) onAutosaveStatus(autosave.Status) {
	o.publish()
}

// onExpire is the timer callback: force-submit whatever is answered. A hung
// connection must not trap the student past the deadline, so the forced
// path always reaches teardown.
func (o *Orchestrator) onExpire() {
	o.notify(LevelInfo, NoticeTimeUp, nil)
	ctx, cancel := context.WithTimeout(context.Background(), o.deps.LoadTimeout)
	defer cancel()
	if err := o.Submit(ctx, true); err != nil {
		o.log.Error().Err(err).Msg("Forced submit on expiry failed")
	}
}

// Submit finalizes the session. Non-forced submits require at least one
// non-empty answer and surface failures as retryable; forced submits (the
// timeout path) swallow failures and tear down regardless. A user submit
// and a timeout submit racing resolve to exactly one network call.
func (o *Orchestrator) Submit(ctx context.Context, force bool) error {
	o.mu.Lock()
	if o.submitting {
		o.mu.Unlock()
		return ErrSubmitInFlight
	}
	if o.state != StateActive && o.state != StateSwitching {
		o.mu.Unlock()
		return fmt.Errorf("submit from %s: %w", o.state, ErrWrongState)
	}
	snap := o.bind.Answers()
	if !force && !snap.HasAnswered() {
		o.mu.Unlock()
		o.notify(LevelWarning, NoticeNoAnswers, nil)
		return ErrNoAnswers
	}
	o.submitting = true
	o.state = StateSubmitting
	submissionID := o.submissionID
	o.mu.Unlock()
	o.publish()

	res, err := o.deps.Client.Submit(ctx, submissionID, snap, force)

	o.mu.Lock()
	o.submitting = false
	if err != nil && !force {
		o.state = StateActive
		o.mu.Unlock()
		o.publish()
		o.notify(LevelError, NoticeSubmitFailed, err)
		return fmt.Errorf("submit: %w", err)
	}
	if err != nil {
		// Timeout path: logged, swallowed, teardown proceeds.
		o.log.Error().Err(err).Str("submission_id", submissionID).Msg("Forced submit failed; tearing down anyway")
	}
	if res != nil {
		o.bandScore = res.BandScore
	}
	o.state = StateSubmitted
	o.mu.Unlock()

	o.teardown(err == nil)
	if err == nil {
		o.notify(LevelInfo, NoticeSubmitted, nil)
	}
	o.publish()
	return nil
}

// Switch submits the outgoing section (or explicitly saves it when nothing
// is answered), then starts the incoming one. The outgoing call must
// complete before the incoming start is issued; two sections are never
// simultaneously active from the server's point of view.
func (o *Orchestrator) Switch(ctx context.Context, next Item) error {
	o.mu.Lock()
	if o.state != StateActive {
		o.mu.Unlock()
		return fmt.Errorf("switch from %s: %w", o.state, ErrWrongState)
	}
	o.state = StateSwitching
	answered := o.bind.Answers().HasAnswered()
	save := o.save
	o.mu.Unlock()
	o.publish()

	if answered {
		if err := o.Submit(ctx, false); err != nil {
			// Submit already failed back to Active and notified.
			return fmt.Errorf("switch: outgoing submit: %w", err)
		}
	} else {
		save.Flush(ctx)
		o.mu.Lock()
		o.state = StateSubmitted
		o.mu.Unlock()
		o.teardown(false) // unanswered attempt stays resumable
	}

	o.mu.Lock()
	o.item = next
	o.submissionID = ""
	o.bandScore = nil
	o.state = StateIdle
	o.mu.Unlock()

	return o.Start(ctx)
}

// Flush triggers one immediate autosave round.
func (o *Orchestrator) Flush(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateActive {
		o.mu.Unlock()
		return fmt.Errorf("flush from %s: %w", o.state, ErrWrongState)
	}
	save := o.save
	o.mu.Unlock()
	save.Flush(ctx)
	return nil
}

// Close tears the session down without submitting. The persisted clock
// entry survives so the attempt resumes with the original deadline.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.state == StateIdle || o.state == StateSubmitted {
		o.mu.Unlock()
		return
	}
	o.state = StateIdle
	o.mu.Unlock()
	o.teardown(false)
	o.publish()
}

// teardown cancels the timer tick and the autosave loop, and disarms the
// guard. Leaking either would write answers for a session the user believes
// has ended, or fire expiry for a stale item. clearDurable additionally
// removes the clock entry and the answer mirror (successful submit only).
func (o *Orchestrator) teardown(clearDurable bool) {
	o.mu.Lock()
	tick := o.tick
	save := o.save
	cancel := o.bgCancel
	o.bgCancel = nil
	item := o.item
	o.mu.Unlock()

	if tick != nil {
		tick.Stop()
	}
	if save != nil {
		save.Stop()
	}
	if cancel != nil {
		cancel()
	}
	o.deps.Guard.Disarm()

	if clearDurable {
		ctx := context.Background()
		if tick != nil {
			if err := tick.Clear(ctx); err != nil {
				o.log.Warn().Err(err).Msg("Timer clear failed")
			}
		}
		if o.deps.Mirror != nil {
			if err := o.deps.Mirror.Clear(ctx, item.ItemID); err != nil {
				o.log.Warn().Err(err).Msg("Answer mirror clear failed")
			}
		}
	}
}

// notify routes a user-facing message to every notice subscriber and the
// injected sink. Upstream errors contribute their normalized reason.
func (o *Orchestrator) notify(level Level, code NoticeCode, cause error) {
	n := Notice{Level: level, Code: code, Message: GetMessage(code)}
	if ue := upstream.AsError(cause); ue != nil {
		n.Detail = ue.Message
	} else if cause != nil {
		n.Detail = cause.Error()
	}

	o.mu.Lock()
	subs := make([]func(Notice), 0, len(o.noticeSubs))
	for _, fn := range o.noticeSubs {
		subs = append(subs, fn)
	}
	o.mu.Unlock()

	for _, fn := range subs {
		fn(n)
	}
	o.deps.Notifier.Notify(n)
}
