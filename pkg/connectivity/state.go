// Package connectivity tracks whether the upstream is reachable and reports
// transitions to the offline orchestrator. A Monitor probes on an interval;
// consecutive failures mark the upstream offline and the first success marks
// it online again.
package connectivity

import (
	"time"
)

// Defaults for probing.
const (
	// DefaultFailureThreshold is the number of consecutive failed probes
	// after which the upstream is reported offline.
	DefaultFailureThreshold = 3

	// DefaultInterval is the time between probes.
	DefaultInterval = 10 * time.Second

	// DefaultTimeout bounds a single probe.
	DefaultTimeout = 5 * time.Second
)

// State is the connectivity view of one monitor.
type State struct {
	// Online is the state last reported to the orchestrator.
	Online bool `json:"online"`

	// ConsecutiveFailures counts failed probes since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// LastProbe is when the last probe finished.
	LastProbe time.Time `json:"last_probe"`

	// LastChange is when Online last flipped.
	LastChange time.Time `json:"last_change"`

	// LastError is the message of the last failed probe, empty after a success.
	LastError string `json:"last_error,omitempty"`
}

// IsStale returns true if no probe finished within maxAge of now.
func (s *State) IsStale(maxAge time.Duration, now time.Time) bool {
	return now.Sub(s.LastProbe) > maxAge
}

// RecordSuccess applies a successful probe. It returns true if the state
// went from offline to online.
func (s *State) RecordSuccess(now time.Time) bool {
	s.LastProbe = now
	s.ConsecutiveFailures = 0
	s.LastError = ""
	if s.Online {
		return false
	}
	s.Online = true
	s.LastChange = now
	return true
}

// RecordFailure applies a failed probe. It returns true if the failure
// pushed the state from online to offline.
func (s *State) RecordFailure(now time.Time, err error, threshold int) bool {
	if threshold < 1 {
		threshold = 1
	}
	s.LastProbe = now
	s.ConsecutiveFailures++
	if err != nil {
		s.LastError = err.Error()
	}
	if !s.Online || s.ConsecutiveFailures < threshold {
		return false
	}
	s.Online = false
	s.LastChange = now
	return true
}
