// Package flags provides feature flag sources for the offline orchestrator.
package flags

import (
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Static answers flag lookups from a fixed set of values.
type Static struct {
	mu       sync.RWMutex
	values   map[string]bool
	fallback bool
}

// NewStatic returns a source with the given values. Unknown flags report
// fallback.
func NewStatic(values map[string]bool, fallback bool) *Static {
	s := &Static{values: make(map[string]bool, len(values)), fallback: fallback}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// IsEnabled reports the value of name.
func (s *Static) IsEnabled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[name]; ok {
		return v
	}
	return s.fallback
}

// Set changes the value of name.
func (s *Static) Set(name string, enabled bool) {
	s.mu.Lock()
	s.values[name] = enabled
	s.mu.Unlock()
}

// Viper reads flags from the "flags" section of a live viper instance, so a
// reloaded config file takes effect on the next lookup.
type Viper struct {
	v        *viper.Viper
	prefix   string
	fallback bool
}

// NewViper returns a source reading "<prefix>.<name>" keys from v.
// An empty prefix defaults to "flags".
func NewViper(v *viper.Viper, prefix string, fallback bool) *Viper {
	if prefix == "" {
		prefix = "flags"
	}
	return &Viper{v: v, prefix: prefix, fallback: fallback}
}

// IsEnabled reports the value of name, or the fallback when it is not set.
func (f *Viper) IsEnabled(name string) bool {
	key := f.prefix + "." + strings.ToLower(name)
	if !f.v.IsSet(key) {
		return f.fallback
	}
	return f.v.GetBool(key)
}
