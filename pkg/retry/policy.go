// Package retry runs a unit of work until it succeeds or a retry bound is
// reached, sleeping between attempts.
package retry

import "time"

// Policy holds the configuration for retry logic.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	// 0 means a single attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// ExponentialBackoff grows the delay with each retry.
	// The growth is linear: retry n waits BaseDelay*n.
	ExponentialBackoff bool
}

// DefaultPolicy returns the default retry configuration.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:         3,
		BaseDelay:          1 * time.Second,
		ExponentialBackoff: true,
	}
}

// NoRetry is a policy that performs exactly one attempt.
var NoRetry = Policy{}

// Delay returns the wait before retry n (1-indexed).
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if p.ExponentialBackoff {
		return p.BaseDelay * time.Duration(n)
	}
	return p.BaseDelay
}

// WithMaxRetries returns a copy of p bounded to n retries.
func (p Policy) WithMaxRetries(n int) Policy {
	if n < 0 {
		n = 0
	}
	p.MaxRetries = n
	return p
}
