package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/examflow/internal/timer"
	"github.com/stemsi/examflow/internal/upstream"
)

// newTestManager backs the registry with an httptest upstream serving the
// embedded test document.
func newTestManager(t *testing.T) (*Manager, *tokenRecorder) {
	t.Helper()
	rec := &tokenRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "sub-1",
			"status":  "STARTED",
			"content": json.RawMessage(testContent),
		})
	}))
	t.Cleanup(srv.Close)

	base := upstream.NewClient(srv.URL, "id", zerolog.Nop(),
		upstream.WithHTTPClient(srv.Client()))
	m := NewManager(ManagerConfig{
		Base:       base,
		TimerStore: timer.NewMemoryStore(),
		Mirror:     NewMemoryMirror(),
		Guard:      NopGuard{},
		Log:        zerolog.Nop(),
	})
	t.Cleanup(m.CloseAll)
	return m, rec
}

type tokenRecorder struct {
	mu     sync.Mutex
	tokens []string
}

func (r *tokenRecorder) add(tok string) {
	r.mu.Lock()
	r.tokens = append(r.tokens, tok)
	r.mu.Unlock()
}

func (r *tokenRecorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tokens...)
}

func TestManagerCreateForwardsBearer(t *testing.T) {
	m, rec := newTestManager(t)

	orch, err := m.Create(context.Background(),
		Item{Mode: upstream.ModeQuiz, ItemID: "quiz-1", Duration: time.Hour}, "tok-abc")
	require.NoError(t, err)
	assert.Equal(t, StateActive, orch.Snapshot().State)
	assert.Equal(t, []string{"Bearer tok-abc"}, rec.list())

	got, err := m.Get(orch.ID())
	require.NoError(t, err)
	assert.Same(t, orch, got)
}

func TestManagerGetUnknownID(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Get(uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerRemoveClosesSession(t *testing.T) {
	m, _ := newTestManager(t)
	orch, err := m.Create(context.Background(),
		Item{Mode: upstream.ModeQuiz, ItemID: "quiz-1"}, "tok")
	require.NoError(t, err)

	require.NoError(t, m.Remove(orch.ID()))
	assert.Equal(t, StateIdle, orch.Snapshot().State)

	_, err = m.Get(orch.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Remove(orch.ID()), ErrSessionNotFound)
}

func TestManagerCreateFailureRegistersNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"exam is not active","code":"EXAM_INACTIVE"}`))
	}))
	t.Cleanup(srv.Close)

	m := NewManager(ManagerConfig{
		Base:       upstream.NewClient(srv.URL, "id", zerolog.Nop(), upstream.WithHTTPClient(srv.Client())),
		TimerStore: timer.NewMemoryStore(),
		Mirror:     NewMemoryMirror(),
		Log:        zerolog.Nop(),
	})

	_, err := m.Create(context.Background(),
		Item{Mode: upstream.ModeQuiz, ItemID: "quiz-1"}, "tok")
	require.Error(t, err)
	ue := upstream.AsError(err)
	require.NotNil(t, ue)
	assert.Equal(t, "EXAM_INACTIVE", ue.Code)
}
