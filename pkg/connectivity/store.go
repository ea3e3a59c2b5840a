package connectivity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix prefixes the keys written by RedisStore.
const DefaultRedisPrefix = "resilient:connectivity"

// RedisStore shares monitor state through Redis so every proxy instance
// sees the same view.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a store writing keys under prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) onlineKey() string     { return s.prefix + ":online" }
func (s *RedisStore) failuresKey() string   { return s.prefix + ":consecutive_failures" }
func (s *RedisStore) lastChangeKey() string { return s.prefix + ":last_change" }

// Save writes s in one pipeline.
func (s *RedisStore) Save(ctx context.Context, st State) error {
	lastChange, err := json.Marshal(st.LastChange)
	if err != nil {
		return fmt.Errorf("marshal last change: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.onlineKey(), st.Online, 0)
	pipe.Set(ctx, s.failuresKey(), st.ConsecutiveFailures, 0)
	pipe.Set(ctx, s.lastChangeKey(), lastChange, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store connectivity state in redis: %w", err)
	}
	return nil
}

// Load reads the shared state. It reports false when nothing was saved yet.
func (s *RedisStore) Load(ctx context.Context) (State, bool, error) {
	online, err := s.client.Get(ctx, s.onlineKey()).Bool()
	if err == redis.Nil {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("get online: %w", err)
	}

	failures, err := s.client.Get(ctx, s.failuresKey()).Int()
	if err != nil && err != redis.Nil {
		return State{}, false, fmt.Errorf("get consecutive failures: %w", err)
	}

	var lastChange time.Time
	raw, err := s.client.Get(ctx, s.lastChangeKey()).Result()
	if err != nil && err != redis.Nil {
		return State{}, false, fmt.Errorf("get last change: %w", err)
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &lastChange); err != nil {
			return State{}, false, fmt.Errorf("parse last change: %w", err)
		}
	}

	return State{
		Online:              online,
		ConsecutiveFailures: failures,
		LastChange:          lastChange,
	}, true, nil
}
