package cache

import "time"

// DefaultTTL is the TTL of DefaultPolicy.
const DefaultTTL = 5 * time.Minute

// Policy controls whether a call may be served from or stored into the cache.
type Policy struct {
	Enabled bool
	TTL     time.Duration
}

// Disabled opts a single call out of caching.
var Disabled = Policy{}

// DefaultPolicy returns an enabled policy with DefaultTTL.
func DefaultPolicy() Policy {
	return Policy{Enabled: true, TTL: DefaultTTL}
}
