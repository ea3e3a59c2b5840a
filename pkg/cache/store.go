package cache

import (
	"sync"
	"time"

	"github.com/Sternrassler/resilient-net/pkg/request"
)

// Store maps request fingerprints to cached responses.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the live entry for fingerprint.
// Expired entries are reported as misses and left in place.
func (s *Store) Get(fingerprint string) (*Entry, bool) {
	s.mu.RLock()
	entry, ok := s.entries[fingerprint]
	s.mu.RUnlock()

	if !ok {
		CacheMisses.WithLabelValues("absent").Inc()
		return nil, false
	}
	if entry.IsExpired(s.now()) {
		CacheMisses.WithLabelValues("expired").Inc()
		return nil, false
	}

	CacheHits.Inc()
	return entry, true
}

// Set stores resp under fingerprint, replacing any previous entry.
// The expiry is fixed now as the current time plus ttl.
func (s *Store) Set(fingerprint string, resp *request.Response, ttl time.Duration) {
	now := s.now()
	entry := &Entry{
		Response: resp,
		CachedAt: now,
		Expires:  now.Add(ttl),
	}

	s.mu.Lock()
	if _, exists := s.entries[fingerprint]; !exists {
		CacheEntries.Inc()
	}
	s.entries[fingerprint] = entry
	s.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
