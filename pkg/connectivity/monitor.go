package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for connectivity probing.
var (
	probesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resilient_connectivity_probes_total",
		Help: "Total number of connectivity probes",
	}, []string{"result"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resilient_connectivity_transitions_total",
		Help: "Total number of connectivity transitions reported",
	}, []string{"to"})

	consecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resilient_connectivity_consecutive_failures",
		Help: "Number of consecutive failed connectivity probes",
	})
)

// Setter receives connectivity transitions. The offline orchestrator
// implements it.
type Setter interface {
	SetOnline(online bool)
}

// StateStore publishes the monitor state, for example to share it between
// proxy instances.
type StateStore interface {
	Save(ctx context.Context, s State) error
}

// Config holds monitor configuration.
type Config struct {
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold int

	// Initial is the state assumed before the first probe. It should match
	// the state the Setter starts in.
	Initial bool
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		Interval:         DefaultInterval,
		Timeout:          DefaultTimeout,
		FailureThreshold: DefaultFailureThreshold,
		Initial:          true,
	}
}

// Monitor probes the upstream and reports transitions to a Setter.
type Monitor struct {
	prober Prober
	target Setter
	cfg    Config
	logger zerolog.Logger
	store  StateStore
	now    func() time.Time

	mu    sync.Mutex
	state State
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithStateStore publishes every state change to store.
func WithStateStore(store StateStore) Option {
	return func(m *Monitor) {
		m.store = store
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// NewMonitor creates a monitor. Zero config values fall back to defaults.
func NewMonitor(prober Prober, target Setter, cfg Config, logger zerolog.Logger, opts ...Option) (*Monitor, error) {
	if prober == nil {
		return nil, errors.New("prober is required")
	}
	if target == nil {
		return nil, errors.New("target is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}

	m := &Monitor{
		prober: prober,
		target: target,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		state:  State{Online: cfg.Initial},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Check runs one probe and reports a transition if it caused one.
func (m *Monitor) Check(ctx context.Context) State {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	err := m.prober.Probe(probeCtx)
	cancel()

	now := m.now()
	m.mu.Lock()
	var changed bool
	if err == nil {
		changed = m.state.RecordSuccess(now)
	} else {
		changed = m.state.RecordFailure(now, err, m.cfg.FailureThreshold)
	}
	state := m.state
	m.mu.Unlock()

	consecutiveFailures.Set(float64(state.ConsecutiveFailures))
	if err != nil {
		probesTotal.WithLabelValues("failure").Inc()
		m.logger.Debug().
			Err(err).
			Int("consecutive_failures", state.ConsecutiveFailures).
			Msg("Connectivity probe failed")
	} else {
		probesTotal.WithLabelValues("success").Inc()
	}

	if !changed {
		return state
	}

	if state.Online {
		transitionsTotal.WithLabelValues("online").Inc()
		m.logger.Info().Msg("Upstream reachable, going online")
	} else {
		transitionsTotal.WithLabelValues("offline").Inc()
		m.logger.Warn().
			Int("consecutive_failures", state.ConsecutiveFailures).
			Str("last_error", state.LastError).
			Msg("Upstream unreachable, going offline")
	}
	m.target.SetOnline(state.Online)

	if m.store != nil {
		if err := m.store.Save(ctx, state); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to publish connectivity state")
		}
	}
	return state
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logger.Info().
		Dur("interval", m.cfg.Interval).
		Int("failure_threshold", m.cfg.FailureThreshold).
		Msg("Connectivity monitor started")

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Connectivity monitor stopped")
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
