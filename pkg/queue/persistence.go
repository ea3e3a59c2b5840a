package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/resilient-net/pkg/request"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// Persistence stores the pending queue outside the process.
//
// Save replaces the whole persisted set; it is never an append. Each Save is
// one atomic replace of the underlying medium, so concurrent callers never
// produce a torn write.
type Persistence interface {
	// Initialize prepares the underlying storage. It is idempotent.
	Initialize(ctx context.Context) error

	// Load returns what was last saved, or an empty slice.
	Load(ctx context.Context) ([]request.Request, error)

	// Save replaces the persisted set with reqs.
	Save(ctx context.Context, reqs []request.Request) error

	// Clear removes the persisted set.
	Clear(ctx context.Context) error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Config selects and configures a persistence backend.
type Config struct {
	// Backend is one of memory, file, redis, badger, sqlite.
	Backend string

	// Path is the file, badger directory or sqlite database path.
	Path string

	// Redis connection settings.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Key names the redis list or badger key holding the queue.
	Key string
}

// DefaultKey is used when Config.Key is empty.
const DefaultKey = "resilient:queue"

// Open creates the configured backend. The returned value also implements
// io.Closer for backends that hold resources.
func Open(cfg Config) (Persistence, error) {
	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}

	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file backend: path is required")
		}
		return NewFile(cfg.Path), nil
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis backend: address is required")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedis(client, key), nil
	case BackendBadger:
		return OpenBadger(cfg.Path, key)
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite backend: path is required")
		}
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

// Prometheus metrics for persistence operations.
var (
	persistenceOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resilient_queue_persistence_operations_total",
		Help: "Queue persistence operations by backend, operation and result",
	}, []string{"backend", "operation", "result"})

	persistenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resilient_queue_persistence_duration_seconds",
		Help:    "Queue persistence operation duration by backend and operation",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"backend", "operation"})
)

// observe records one persistence operation.
func observe(backend, op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	persistenceOpsTotal.WithLabelValues(backend, op, result).Inc()
	persistenceDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}
