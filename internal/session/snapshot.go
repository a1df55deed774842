package session

import (
	"github.com/stemsi/examflow/internal/autosave"
	"github.com/stemsi/examflow/internal/navigator"
)

// Snapshot is the observable projection of one session, pushed to
// subscribers on every state or answer change. It is a value copy: readers
// never alias live engine state.
type Snapshot struct {
	SessionID    string                  `json:"session_id"`
	State        State                   `json:"state"`
	Item         Item                    `json:"item"`
	SubmissionID string                  `json:"submission_id,omitempty"`
	Timed        bool                    `json:"timed"`
	Remaining    float64                 `json:"remaining_seconds"`
	Autosave     autosave.Status         `json:"autosave_status"`
	CurrentIndex int                     `json:"current_index"`
	ActivePart   int                     `json:"active_part"`
	DocVersion   uint64                  `json:"doc_version"`
	AnsVersion   uint64                  `json:"answers_version"`
	Answered     int                     `json:"answered_count"`
	Summaries    []navigator.PartSummary `json:"summaries,omitempty"`
	BandScore    *float64                `json:"band_score,omitempty"`
}

// Snapshot builds the current projection.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{
		SessionID:    o.id.String(),
		State:        o.state,
		Item:         o.item,
		SubmissionID: o.submissionID,
		BandScore:    o.bandScore,
	}
	if o.save != nil {
		s.Autosave = o.save.Status()
	} else {
		s.Autosave = autosave.StatusIdle
	}
	if o.tick != nil {
		s.Timed = o.tick.Timed()
		s.Remaining = o.tick.Remaining().Seconds()
	}
	if o.bind != nil {
		s.DocVersion, s.AnsVersion = o.bind.Versions()
		m := o.bind.Answers()
		s.Answered = m.Answered()
		if o.nav != nil {
			s.CurrentIndex = o.nav.CurrentIndex()
			s.ActivePart = o.nav.ActivePart()
			s.Summaries = o.nav.Summaries(m)
		}
	}
	return s
}

// SubscribeState registers a snapshot observer; the returned function
// unsubscribes. The current snapshot is delivered immediately so observers
// never start blind.
func (o *Orchestrator) SubscribeState(fn func(Snapshot)) func() {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.stateSubs[id] = fn
	current := o.snapshotLocked()
	o.mu.Unlock()

	fn(current)
	return func() {
		o.mu.Lock()
		delete(o.stateSubs, id)
		o.mu.Unlock()
	}
}

// SubscribeNotices registers a notification observer; the returned function
// unsubscribes.
func (o *Orchestrator) SubscribeNotices(fn func(Notice)) func() {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.noticeSubs[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.noticeSubs, id)
		o.mu.Unlock()
	}
}

// publish pushes a fresh snapshot to every state subscriber.
func (o *Orchestrator) publish() {
	o.mu.Lock()
	snap := o.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(o.stateSubs))
	for _, fn := range o.stateSubs {
		subs = append(subs, fn)
	}
	o.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
