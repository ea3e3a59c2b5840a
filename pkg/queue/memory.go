package queue

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/resilient-net/pkg/request"
)

// Memory is the default, non-durable persistence. Saved state lives only as
// long as the process.
type Memory struct {
	mu    sync.Mutex
	saved []request.Request
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Initialize is a no-op.
func (m *Memory) Initialize(ctx context.Context) error {
	return ctx.Err()
}

// Load returns a copy of the last saved set.
func (m *Memory) Load(ctx context.Context) ([]request.Request, error) {
	start := time.Now()
	m.mu.Lock()
	out := cloneAll(m.saved)
	m.mu.Unlock()
	observe(BackendMemory, "load", start, nil)
	return out, nil
}

// Save copies reqs.
func (m *Memory) Save(ctx context.Context, reqs []request.Request) error {
	start := time.Now()
	snapshot := cloneAll(reqs)
	m.mu.Lock()
	m.saved = snapshot
	m.mu.Unlock()
	observe(BackendMemory, "save", start, nil)
	return nil
}

// Clear drops the saved set.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.saved = nil
	m.mu.Unlock()
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

func cloneAll(reqs []request.Request) []request.Request {
	out := make([]request.Request, 0, len(reqs))
	for i := range reqs {
		out = append(out, *reqs[i].Clone())
	}
	return out
}
