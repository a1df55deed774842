package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/examflow/internal/answers"
	"github.com/stemsi/examflow/internal/timer"
	"github.com/stemsi/examflow/internal/upstream"
)

const testContent = `{
  "parts": [
    {"nodes": [
      {"children": [{"question": {"kind": "FILL_IN", "number": 1}}]},
      {"children": [{"question": {"kind": "FILL_IN", "number": 2}}]}
    ]},
    {"nodes": [
      {"children": [{"question": {"kind": "FILL_IN", "number": 3}}]}
    ]}
  ]
}`

// fakeClient is an in-process ProtocolClient recording the call order.
type fakeClient struct {
	mu    sync.Mutex
	calls []string

	startErr      error
	embedContent  bool
	fetchFailures int
	savedAnswers  []answers.WireAnswer
	submitErr     error
	submitRelease chan struct{}
	submitted     []answers.Map
}

func newFakeClient() *fakeClient {
	return &fakeClient{embedContent: true}
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeClient) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeClient) StartOrResume(_ context.Context, key upstream.StartKey, _ string) (*upstream.StartResult, error) {
	f.record("start:" + key.ItemID)
	if f.startErr != nil {
		return nil, f.startErr
	}
	res := &upstream.StartResult{
		SubmissionID: "sub-" + key.ItemID,
		Status:       upstream.StatusStarted,
		Answers:      f.savedAnswers,
	}
	if f.embedContent {
		res.Content = json.RawMessage(testContent)
	}
	return res, nil
}

func (f *fakeClient) SaveDraft(_ context.Context, submissionID string, _ answers.Map) error {
	f.record("save:" + submissionID)
	return nil
}

func (f *fakeClient) Submit(_ context.Context, submissionID string, m answers.Map, force bool) (*upstream.SubmitResult, error) {
	f.record(fmt.Sprintf("submit:%s:force=%v", submissionID, force))
	if f.submitRelease != nil {
		<-f.submitRelease
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, m.Clone())
	err := f.submitErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	score := 6.5
	return &upstream.SubmitResult{Status: upstream.StatusSubmitted, BandScore: &score}, nil
}

func (f *fakeClient) FetchSubmission(ctx context.Context, submissionID string) (*upstream.Submission, error) {
	f.record("fetch:" + submissionID)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	fail := f.fetchFailures > 0
	if fail {
		f.fetchFailures--
	}
	f.mu.Unlock()
	if fail {
		return nil, errors.New("content fetch flake")
	}
	return &upstream.Submission{
		ID:      submissionID,
		Status:  upstream.StatusStarted,
		Content: json.RawMessage(testContent),
	}, nil
}

// recordingNotifier captures notice codes in order.
type recordingNotifier struct {
	mu    sync.Mutex
	codes []NoticeCode
}

func (r *recordingNotifier) Notify(n Notice) {
	r.mu.Lock()
	r.codes = append(r.codes, n.Code)
	r.mu.Unlock()
}

func (r *recordingNotifier) codeList() []NoticeCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]NoticeCode(nil), r.codes...)
}

// recordingGuard counts arm/disarm transitions.
type recordingGuard struct {
	mu              sync.Mutex
	armed, disarmed int
}

func (g *recordingGuard) Arm() {
	g.mu.Lock()
	g.armed++
	g.mu.Unlock()
}

func (g *recordingGuard) Disarm() {
	g.mu.Lock()
	g.disarmed++
	g.mu.Unlock()
}

type fixture struct {
	client   *fakeClient
	store    *timer.MemoryStore
	mirror   *MemoryMirror
	notifier *recordingNotifier
	guard    *recordingGuard
	orch     *Orchestrator
}

func newFixture(t *testing.T, item Item, client *fakeClient) *fixture {
	t.Helper()
	f := &fixture{
		client:   client,
		store:    timer.NewMemoryStore(),
		mirror:   NewMemoryMirror(),
		notifier: &recordingNotifier{},
		guard:    &recordingGuard{},
	}
	f.orch = New(item, Deps{
		Client:           client,
		TimerStore:       f.store,
		Mirror:           f.mirror,
		Notifier:         f.notifier,
		Guard:            f.guard,
		Log:              zerolog.Nop(),
		AutosaveInterval: time.Hour, // ticks never fire during tests
		TimerOpts:        []timer.Option{timer.WithTick(time.Hour)},
	})
	t.Cleanup(f.orch.Close)
	return f
}

func examItem() Item {
	return Item{Mode: upstream.ModeExam, SectionType: "READING", ItemID: "item-1", Duration: time.Hour}
}

func TestStartWithEmbeddedContent(t *testing.T) {
	f := newFixture(t, examItem(), newFakeClient())
	require.NoError(t, f.orch.Start(context.Background()))

	snap := f.orch.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	assert.Equal(t, "sub-item-1", snap.SubmissionID)
	assert.True(t, snap.Timed)
	assert.Len(t, snap.Summaries, 2)
	assert.Equal(t, []string{"start:item-1"}, f.client.callList())
	assert.Equal(t, 1, f.guard.armed)
}

func TestStartHydratesWhenContentNotEmbedded(t *testing.T) {
	client := newFakeClient()
	client.embedContent = false
	f := newFixture(t, examItem(), client)
	require.NoError(t, f.orch.Start(context.Background()))

	assert.Equal(t, []string{"start:item-1", "fetch:sub-item-1"}, f.client.callList())
	assert.Equal(t, StateActive, f.orch.Snapshot().State)
}

func TestStartFailureReturnsToIdle(t *testing.T) {
	client := newFakeClient()
	client.startErr = &upstream.Error{Status: 409, Code: "EXAM_INACTIVE", Message: "exam is not active"}
	f := newFixture(t, examItem(), client)

	err := f.orch.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateIdle, f.orch.Snapshot().State)
	assert.Equal(t, []NoticeCode{NoticeStartFailed}, f.notifier.codeList())

	// A clean Idle means start can simply be re-invoked.
	client.startErr = nil
	require.NoError(t, f.orch.Start(context.Background()))
	assert.Equal(t, StateActive, f.orch.Snapshot().State)
}

func TestRestoredAnswersMirrorWins(t *testing.T) {
	client := newFakeClient()
	client.savedAnswers = []answers.WireAnswer{
		{QuestionID: 1, AnswerData: "draft"},
		{QuestionID: 2, AnswerData: "kept"},
	}
	f := newFixture(t, examItem(), client)
	// The mirror holds a newer value for question 1 than the last draft save.
	require.NoError(t, f.mirror.Write(context.Background(), "item-1", "1", "newer"))

	require.NoError(t, f.orch.Start(context.Background()))

	bind := f.orch.Binder()
	assert.Equal(t, "newer", bind.Answer(1))
	assert.Equal(t, "kept", bind.Answer(2))
}

func TestApplyRequiresActive(t *testing.T) {
	f := newFixture(t, examItem(), newFakeClient())
	err := f.orch.Apply(AnswerOp{Question: 1, Op: "text", Value: "x"})
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestApplyShadowsIntoMirror(t *testing.T) {
	f := newFixture(t, examItem(), newFakeClient())
	require.NoError(t, f.orch.Start(context.Background()))

	require.NoError(t, f.orch.Apply(AnswerOp{Question: 1, Op: "text", Value: "ferry"}))

	mirrored, err := f.mirror.Read(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, "ferry", mirrored["1"])

	// Clearing removes the shadow too.
	require.NoError(t, f.orch.Apply(AnswerOp{Question: 1, Op: "clear"}))
	mirrored, err = f.mirror.Read(context.Background(), "item-1")
	require.NoError(t, err)
	assert.NotContains(t, mirrored, "1")
}

func TestSubmitRejectsEmptyUnlessForced(t *testing.T) {
	f := newFixture(t, examItem(), newFakeClient())
	require.NoError(t, f.orch.Start(context.Background()))

	err := f.orch.Submit(context.Background(), false)
	assert.ErrorIs(t, err, ErrNoAnswers)
	assert.Equal(t, StateActive, f.orch.Snapshot().State)
	assert.Contains(t, f.notifier.codeList(), NoticeNoAnswers)
	assert.Equal(t, []string{"start:item-1"}, f.client.callList()) // no network call
}

func TestSubmitSuccessClearsDurableState(t *testing.T) {
	f := newFixture(t, examItem(), newFakeClient())
	require.NoError(t, f.orch.Start(context.Background()))
	require.NoError(t, f.orch.Apply(AnswerOp{Question: 1, Op: "text", Value: "ferry"}))

	require.NoError(t, f.orch.Submit(context.Background(), false))

	snap := f.orch.Snapshot()
	assert.Equal(t, StateSubmitted, snap.State)
	require.NotNil(t, snap.BandScore)
	assert.Equal(t, 6.5, *snap.BandScore)
	assert.Contains(t, f.notifier.codeList(), NoticeSubmitted)

	_, ok, err := f.store.ReadStart(context.Background(), "item-1")
	require.NoError(t, err)
	assert.False(t, ok, "timer entry must be cleared after a successful submit")

	mirrored, err := f.mirror.Read(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Empty(t, mirrored, "answer mirror must be cleared after a successful submit")

	assert.Equal(t, 1, f.guard.disarmed)
}

func TestSubmitFailureIsRetryable(t *testing.T) {
	client := newFakeClient()
	client.submitErr = &upstream.Error{Status: 503, Message: "temporarily unavailable"}
	f := newFixture(t, examItem(), client)
	require.NoError(t, f.orch.Start(context.Background()))
	require.NoError(t, f.orch.Apply(AnswerOp{Question: 1, Op: "text", Value: "ferry"}))

	err := f.orch.Submit(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, StateActive, f.orch.Snapshot().State)
	assert.Contains(t, f.notifier.codeList(), NoticeSubmitFailed)

	// Durable state untouched: the attempt is still live.
	_, ok, _ := f.store.ReadStart(context.Background(), "item-1")
	assert.True(t, ok)

	client.mu.Lock()
	client.submitErr = nil
	client.mu.Unlock()
	require.NoError(t, f.orch.Submit(context.Background(), false))
	assert.Equal(t, StateSubmitted, f.orch.Snapshot().State)
}

func TestForcedSubmitSwallowsFailure(t *testing.T) {
	client := newFakeClient()
	client.submitErr = errors.New("connection reset")
	f := newFixture(t, examItem(), client)
	require.NoError(t, f.orch.Start(context.Background()))

	require.NoError(t, f.orch.Submit(context.Background(), true))
	assert.Equal(t, StateSubmitted, f.orch.Snapshot().State)

	// Failure path keeps the durable entries so the attempt stays recoverable.
	_, ok, _ := f.store.ReadStart(context.Background(), "item-1")
	assert.True(t, ok)
}

func TestSubmitInFlightIsRejected(t *testing.T) {
	client := newFakeClient()
	client.submitRelease = make(chan struct{})
	f := newFixture(t, examItem(), client)
	require.NoError(t, f.orch.Start(context.Background()))
	require.NoError(t, f.orch.Apply(AnswerOp{Question: 1, Op: "text", Value: "ferry"}))

	done := make(chan error, 1)
	go func() { done <- f.orch.Submit(context.Background(), false) }()

	require.Eventually(t, func() bool {
		return f.orch.Snapshot().State == StateSubmitting
	}, time.Second, 5*time.Millisecond)

	err := f.orch.Submit(context.Background(), false)
	assert.ErrorIs(t, err, ErrSubmitInFlight)

	close(client.submitRelease)
	require.NoError(t, <-done)
}

func TestTimeoutForcesSubmit(t *testing.T) {
	client := newFakeClient()
	f := newFixture(t, examItem(), client)

	// Persist a start far enough in the past that the attempt is already
	// expired when the session resumes.
	require.NoError(t, f.store.WriteStart(context.Background(), "item-1",
		time.Now().Add(-2*time.Hour)))

	require.NoError(t, f.orch.Start(context.Background()))

	require.Eventually(t, func() bool {
		return f.orch.Snapshot().State == StateSubmitted
	}, time.Second, 5*time.Millisecond)

	codes := f.notifier.codeList()
	assert.Contains(t, codes, NoticeTimeUp)
	assert.Contains(t, f.client.callList(), "submit:sub-item-1:force=true")
}

func TestExpiredResumeNeverArmsGuard(t *testing.T) {
	f := newFixture(t, examItem(), newFakeClient())
	require.NoError(t, f.store.WriteStart(context.Background(), "item-1",
		time.Now().Add(-2*time.Hour)))

	require.NoError(t, f.orch.Start(context.Background()))

	require.Eventually(t, func() bool {
		return f.orch.Snapshot().State == StateSubmitted
	}, time.Second, 5*time.Millisecond)

	// The forced submit and teardown ran inside Start; the session was never
	// Active, so the guard must end (and stay) disarmed.
	f.guard.mu.Lock()
	armed, disarmed := f.guard.armed, f.guard.disarmed
	f.guard.mu.Unlock()
	assert.Zero(t, armed, "a session that ends during start must not arm the guard")
	assert.Equal(t, 1, disarmed)
}

func TestContentFetchRetriesOnceWithinBudget(t *testing.T) {
	client := newFakeClient()
	client.embedContent = false
	client.fetchFailures = 1
	f := newFixture(t, examItem(), client)

	require.NoError(t, f.orch.Start(context.Background()))

	assert.Equal(t, []string{"start:item-1", "fetch:sub-item-1", "fetch:sub-item-1"},
		f.client.callList())
	assert.Equal(t, StateActive, f.orch.Snapshot().State)
}

func TestContentFetchNotRetriedPastLoadDeadline(t *testing.T) {
	client := newFakeClient()
	client.embedContent = false
	notifier := &recordingNotifier{}
	orch := New(examItem(), Deps{
		Client:      client,
		TimerStore:  timer.NewMemoryStore(),
		Mirror:      NewMemoryMirror(),
		Notifier:    notifier,
		Log:         zerolog.Nop(),
		LoadTimeout: time.Nanosecond,
		TimerOpts:   []timer.Option{timer.WithTick(time.Hour)},
	})
	t.Cleanup(orch.Close)

	err := orch.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"start:item-1", "fetch:sub-item-1"}, client.callList(),
		"an exhausted loading budget gets no second attempt")
	assert.Equal(t, StateIdle, orch.Snapshot().State)
	assert.Contains(t, notifier.codeList(), NoticeContentLoadFailed)
}

func TestSwitchSubmitsBeforeNextStart(t *testing.T) {
	f := newFixture(t, examItem(), newFakeClient())
	require.NoError(t, f.orch.Start(context.Background()))
	require.NoError(t, f.orch.Apply(AnswerOp{Question: 1, Op: "text", Value: "ferry"}))

	next := Item{Mode: upstream.ModeExam, SectionType: "WRITING", ItemID: "item-2", Duration: time.Hour}
	require.NoError(t, f.orch.Switch(context.Background(), next))

	calls := f.client.callList()
	assert.Equal(t, []string{
		"start:item-1",
		"submit:sub-item-1:force=false",
		"start:item-2",
	}, calls, "outgoing submit must complete before the incoming start")

	snap := f.orch.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	assert.Equal(t, "sub-item-2", snap.SubmissionID)
	assert.Equal(t, "item-2", snap.Item.ItemID)
}

func TestSwitchWithoutAnswersSkipsSubmit(t *testing.T) {
	f := newFixture(t, examItem(), newFakeClient())
	require.NoError(t, f.orch.Start(context.Background()))

	next := Item{Mode: upstream.ModeExam, SectionType: "WRITING", ItemID: "item-2", Duration: time.Hour}
	require.NoError(t, f.orch.Switch(context.Background(), next))

	for _, call := range f.client.callList() {
		assert.NotContains(t, call, "submit", "an unanswered section must not be submitted")
	}
	assert.Equal(t, StateActive, f.orch.Snapshot().State)
	assert.Equal(t, "item-2", f.orch.Snapshot().Item.ItemID)
}

func TestNavigateUpdatesSnapshot(t *testing.T) {
	f := newFixture(t, examItem(), newFakeClient())
	require.NoError(t, f.orch.Start(context.Background()))

	idx, err := f.orch.Navigate(NavCommand{Op: "next"})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 1, f.orch.Snapshot().CurrentIndex)

	idx, err = f.orch.Navigate(NavCommand{Op: "part", Part: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.Equal(t, 1, f.orch.Snapshot().ActivePart)
}

func TestCloseKeepsTimerEntry(t *testing.T) {
	f := newFixture(t, examItem(), newFakeClient())
	require.NoError(t, f.orch.Start(context.Background()))

	f.orch.Close()

	_, ok, err := f.store.ReadStart(context.Background(), "item-1")
	require.NoError(t, err)
	assert.True(t, ok, "the countdown must survive a plain close")
	assert.Equal(t, 1, f.guard.disarmed)
}

func TestSubscribeStateDeliversImmediately(t *testing.T) {
	f := newFixture(t, examItem(), newFakeClient())

	var mu sync.Mutex
	var states []State
	unsub := f.orch.SubscribeState(func(s Snapshot) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	})
	defer unsub()

	mu.Lock()
	require.Len(t, states, 1)
	assert.Equal(t, StateIdle, states[0])
	mu.Unlock()

	require.NoError(t, f.orch.Start(context.Background()))

	mu.Lock()
	assert.Contains(t, states, StateStarting)
	assert.Contains(t, states, StateActive)
	mu.Unlock()
}
