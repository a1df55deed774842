package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/examflow/internal/timer"
	"github.com/stemsi/examflow/internal/upstream"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Manager is the engine-wide session registry: one orchestrator per open
// content item, keyed by engine session id. It owns the shared durable
// stores and builds per-session upstream views carrying the host-supplied
// bearer.
type Manager struct {
	base       *upstream.Client
	timerStore timer.Store
	mirror     AnswerMirror
	guard      Guard
	log        zerolog.Logger

	autosaveInterval time.Duration
	statusWindow     time.Duration
	loadTimeout      time.Duration

	mu       sync.Mutex
	sessions map[uuid.UUID]*Orchestrator
}

// ManagerConfig wires the manager's shared collaborators.
type ManagerConfig struct {
	Base       *upstream.Client
	TimerStore timer.Store
	Mirror     AnswerMirror
	Guard      Guard
	Log        zerolog.Logger

	AutosaveInterval time.Duration
	StatusWindow     time.Duration
	LoadTimeout      time.Duration
}

// NewManager builds an empty registry.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		base:             cfg.Base,
		timerStore:       cfg.TimerStore,
		mirror:           cfg.Mirror,
		guard:            cfg.Guard,
		log:              cfg.Log,
		autosaveInterval: cfg.AutosaveInterval,
		statusWindow:     cfg.StatusWindow,
		loadTimeout:      cfg.LoadTimeout,
		sessions:         make(map[uuid.UUID]*Orchestrator),
	}
}

// Create builds and starts a session for one content item. The bearer is
// the upstream credential supplied by the host; the engine only forwards
// it. On start failure nothing is registered and the error carries the
// blocking reason.
func (m *Manager) Create(ctx context.Context, item Item, bearer string) (*Orchestrator, error) {
	orch := New(item, Deps{
		Client:           m.base.WithToken(bearer),
		TimerStore:       m.timerStore,
		Mirror:           m.mirror,
		Guard:            m.guard,
		Log:              m.log,
		AutosaveInterval: m.autosaveInterval,
		StatusWindow:     m.statusWindow,
		LoadTimeout:      m.loadTimeout,
	})
	if err := orch.Start(ctx); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	m.mu.Lock()
	m.sessions[orch.ID()] = orch
	m.mu.Unlock()
	return orch, nil
}

// Get returns the orchestrator for a session id.
func (m *Manager) Get(id uuid.UUID) (*Orchestrator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orch, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return orch, nil
}

// Remove tears a session down without submitting and drops it from the
// registry.
func (m *Manager) Remove(id uuid.UUID) error {
	m.mu.Lock()
	orch, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	orch.Close()
	return nil
}

// CloseAll tears down every open session; called on engine shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := make([]*Orchestrator, 0, len(m.sessions))
	for _, orch := range m.sessions {
		open = append(open, orch)
	}
	m.sessions = make(map[uuid.UUID]*Orchestrator)
	m.mu.Unlock()

	for _, orch := range open {
		orch.Close()
	}
}
