package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/resilient-net/pkg/request"
	"github.com/redis/go-redis/v9"
)

// Redis persists the queue as a redis list, one JSON record per element.
// A save replaces the list inside a MULTI/EXEC transaction.
type Redis struct {
	client *redis.Client
	key    string
	mu     sync.Mutex
}

// NewRedis creates a redis-backed store using the list at key.
func NewRedis(client *redis.Client, key string) *Redis {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if key == "" {
		key = DefaultKey
	}
	return &Redis{client: client, key: key}
}

// Initialize checks the connection.
func (r *Redis) Initialize(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Load reads the whole list.
func (r *Redis) Load(ctx context.Context) (reqs []request.Request, err error) {
	start := time.Now()
	defer func() { observe(BackendRedis, "load", start, err) }()

	values, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	reqs = make([]request.Request, 0, len(values))
	for _, v := range values {
		req, err := decodeRequest([]byte(v))
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Save replaces the list with reqs.
func (r *Redis) Save(ctx context.Context, reqs []request.Request) (err error) {
	start := time.Now()
	defer func() { observe(BackendRedis, "save", start, err) }()

	values := make([]interface{}, 0, len(reqs))
	for _, req := range reqs {
		data, err := encodeRequest(req)
		if err != nil {
			return err
		}
		values = append(values, data)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		if len(values) > 0 {
			pipe.RPush(ctx, r.key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis replace queue: %w", err)
	}
	return nil
}

// Clear deletes the list.
func (r *Redis) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
