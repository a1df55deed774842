package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/examflow/internal/answers"
	"github.com/stemsi/examflow/internal/config"
)

// AnswerMirror shadows the live answer map in the durable store so a UI
// reload restores answers that were never draft-saved. Writes are best
// effort; the authoritative copy upstream comes from draft saves.
type AnswerMirror interface {
	Write(ctx context.Context, itemID, questionKey string, value any) error
	Read(ctx context.Context, itemID string) (answers.Map, error)
	Clear(ctx context.Context, itemID string) error
}

// RedisMirror stores the mirror as a hash of question number to answer JSON
// under session:{itemID}:answers.
type RedisMirror struct {
	rdb *redis.Client
}

func NewRedisMirror(rdb *redis.Client) *RedisMirror {
	return &RedisMirror{rdb: rdb}
}

func (m *RedisMirror) Write(ctx context.Context, itemID, questionKey string, value any) error {
	key := config.StoreKey.SessionAnswersKey(itemID)
	if value == nil {
		if err := m.rdb.HDel(ctx, key, questionKey).Err(); err != nil {
			return fmt.Errorf("mirror delete: %w", err)
		}
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("mirror encode: %w", err)
	}
	if err := m.rdb.HSet(ctx, key, questionKey, payload).Err(); err != nil {
		return fmt.Errorf("mirror write: %w", err)
	}
	return nil
}

func (m *RedisMirror) Read(ctx context.Context, itemID string) (answers.Map, error) {
	entries, err := m.rdb.HGetAll(ctx, config.StoreKey.SessionAnswersKey(itemID)).Result()
	if err != nil {
		return nil, fmt.Errorf("mirror read: %w", err)
	}
	out := make(answers.Map, len(entries))
	for k, raw := range entries {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			continue // Skip corrupt entries rather than failing the resume
		}
		out[k] = v
	}
	return out, nil
}

func (m *RedisMirror) Clear(ctx context.Context, itemID string) error {
	if err := m.rdb.Del(ctx, config.StoreKey.SessionAnswersKey(itemID)).Err(); err != nil {
		return fmt.Errorf("mirror clear: %w", err)
	}
	return nil
}

// MemoryMirror is the in-process mirror used in tests.
type MemoryMirror struct {
	mu    sync.Mutex
	items map[string]answers.Map
}

func NewMemoryMirror() *MemoryMirror {
	return &MemoryMirror{items: make(map[string]answers.Map)}
}

func (m *MemoryMirror) Write(_ context.Context, itemID, questionKey string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.items[itemID]
	if !ok {
		entry = make(answers.Map)
		m.items[itemID] = entry
	}
	if value == nil {
		delete(entry, questionKey)
		return nil
	}
	entry[questionKey] = value
	return nil
}

func (m *MemoryMirror) Read(_ context.Context, itemID string) (answers.Map, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[itemID].Clone(), nil
}

func (m *MemoryMirror) Clear(_ context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, itemID)
	return nil
}
