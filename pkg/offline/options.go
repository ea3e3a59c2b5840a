package offline

import (
	"github.com/Sternrassler/resilient-net/pkg/cache"
	"github.com/Sternrassler/resilient-net/pkg/request"
	"github.com/Sternrassler/resilient-net/pkg/retry"
)

// ExecuteOption adjusts a single Execute or Submit call.
type ExecuteOption func(*executeOptions)

type executeOptions struct {
	cache          cache.Policy
	retry          retry.Policy
	queueIfOffline bool
}

// WithCachePolicy overrides the default cache policy for one call.
func WithCachePolicy(p cache.Policy) ExecuteOption {
	return func(o *executeOptions) {
		o.cache = p
	}
}

// WithRetryPolicy overrides the default retry policy for one call.
func WithRetryPolicy(p retry.Policy) ExecuteOption {
	return func(o *executeOptions) {
		o.retry = p
	}
}

// WithoutQueue makes an offline call go to the transport instead of the
// queue.
func WithoutQueue() ExecuteOption {
	return func(o *executeOptions) {
		o.queueIfOffline = false
	}
}

// effectiveRetry applies the request level retry fields on top of p.
func effectiveRetry(p retry.Policy, req *request.Request) retry.Policy {
	if req.SkipRetry {
		return p.WithMaxRetries(0)
	}
	if req.MaxRetries != nil {
		return p.WithMaxRetries(*req.MaxRetries)
	}
	return p
}
