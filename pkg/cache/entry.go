package cache

import (
	"time"

	"github.com/Sternrassler/resilient-net/pkg/request"
)

// Entry is a cached response.
type Entry struct {
	// Response is the cached transport response
	Response *request.Response

	// CachedAt is when the response was stored
	CachedAt time.Time

	// Expires is when the entry stops being served
	Expires time.Time
}

// IsExpired returns true if the entry has expired at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return !now.Before(e.Expires)
}

// TTL returns the time left until expiration at now.
// Returns 0 if already expired.
func (e *Entry) TTL(now time.Time) time.Duration {
	ttl := e.Expires.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
