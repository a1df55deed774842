package timer

import (
	"context"
	"sync"
	"time"
)

// Store is the durable key-value store the countdown survives reloads
// through. Only the timer writes timer keys; keys are disjoint per item id.
type Store interface {
	// ReadStart returns the persisted start timestamp for an item, with ok
	// false when no attempt has been started.
	ReadStart(ctx context.Context, itemID string) (start time.Time, ok bool, err error)
	// WriteStart persists the start timestamp for an item's first start.
	WriteStart(ctx context.Context, itemID string, start time.Time) error
	// Clear removes the persisted entry, on expiry or successful submit.
	Clear(ctx context.Context, itemID string) error
}

// MemoryStore is the in-process Store used in tests and untethered runs.
type MemoryStore struct {
	mu     sync.Mutex
	starts map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{starts: make(map[string]time.Time)}
}

func (s *MemoryStore) ReadStart(_ context.Context, itemID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start, ok := s.starts[itemID]
	return start, ok, nil
}

func (s *MemoryStore) WriteStart(_ context.Context, itemID string, start time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts[itemID] = start
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.starts, itemID)
	return nil
}
