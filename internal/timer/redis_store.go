package timer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/examflow/internal/config"
)

// RedisStore persists start timestamps in Redis as epoch milliseconds under
// exam_start_timestamp_{itemID}, so a countdown reconstructs across engine
// and UI restarts.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) ReadStart(ctx context.Context, itemID string) (time.Time, bool, error) {
	val, err := s.rdb.Get(ctx, config.StoreKey.TimerStartKey(itemID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read start timestamp: %w", err)
	}
	millis, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid start timestamp format: %w", err)
	}
	return time.UnixMilli(millis), true, nil
}

func (s *RedisStore) WriteStart(ctx context.Context, itemID string, start time.Time) error {
	key := config.StoreKey.TimerStartKey(itemID)
	if err := s.rdb.Set(ctx, key, start.UnixMilli(), 0).Err(); err != nil {
		return fmt.Errorf("write start timestamp: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, itemID string) error {
	if err := s.rdb.Del(ctx, config.StoreKey.TimerStartKey(itemID)).Err(); err != nil {
		return fmt.Errorf("clear start timestamp: %w", err)
	}
	return nil
}
