package retry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resilient_retries_total",
		Help: "Total number of retry attempts",
	})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "resilient_retry_backoff_seconds",
		Help:    "Backoff duration before retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resilient_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted",
	})
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Engine executes work under a Policy.
type Engine struct {
	sleep  SleepFunc
	logger zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSleep replaces the sleep function, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(e *Engine) {
		e.sleep = fn
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a retry engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		sleep:  Sleep,
		logger: log.With().Str("component", "retry").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sleep waits for d without blocking other goroutines.
// It returns ctx.Err() if the context is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run calls fn until it succeeds or policy.MaxRetries retries have failed.
// The error of the last attempt is returned as is.
func (e *Engine) Run(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	attempt := 0
	for {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				e.logger.Debug().
					Int("attempt", attempt+1).
					Msg("Succeeded after retry")
			}
			return nil
		}

		if attempt >= policy.MaxRetries {
			if policy.MaxRetries > 0 {
				retryExhaustedTotal.Inc()
				e.logger.Warn().
					Err(err).
					Int("max_retries", policy.MaxRetries).
					Msg("Retry attempts exhausted")
			}
			return err
		}

		attempt++
		delay := policy.Delay(attempt)
		retriesTotal.Inc()
		retryBackoffSeconds.Observe(delay.Seconds())

		e.logger.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying after backoff")

		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			e.logger.Warn().
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return sleepErr
		}
	}
}

// Do is Run for work that produces a value.
func Do[T any](ctx context.Context, e *Engine, policy Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Run(ctx, policy, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
