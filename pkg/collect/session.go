// Package collect implements the shared collector runtime: bounded
// sessions, reconnect with backoff, circuit breaking, rate-limited
// polling, and the in-memory aggregators trading modules share.
package collect

import (
	"sync"

	"github.com/feedeater/feedeater/pkg/ai"
	"github.com/feedeater/feedeater/pkg/bus"
	"github.com/feedeater/feedeater/pkg/contexts"
	"github.com/feedeater/feedeater/pkg/settings"
	"github.com/feedeater/feedeater/pkg/store"
)

// Session is one bounded collector invocation. The scheduler constructs
// it with the job's wall-clock budget already applied to the context it
// passes alongside; handlers read dependencies from the session and
// accumulate metrics on it.
type Session struct {
	Module   string
	Job      string
	Store    *store.Store
	Bus      *bus.Publisher
	Log      *bus.LogPublisher
	Settings settings.Values
	AI       *ai.Client
	Contexts *contexts.Engine

	mu      sync.Mutex
	metrics map[string]any
}

// Count increments a metric by one.
func (s *Session) Count(name string) {
	s.Add(name, 1)
}

// Add increments a numeric metric by delta.
func (s *Session) Add(name string, delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metrics == nil {
		s.metrics = make(map[string]any)
	}
	cur, _ := s.metrics[name].(float64)
	s.metrics[name] = cur + delta
}

// Set records a metric value as-is, replacing any prior value.
func (s *Session) Set(name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metrics == nil {
		s.metrics = make(map[string]any)
	}
	s.metrics[name] = v
}

// Merge folds a metrics map into the session, summing numeric values.
func (s *Session) Merge(m map[string]any) {
	for k, v := range m {
		if f, ok := toFloat(v); ok {
			s.Add(k, f)
		} else {
			s.Set(k, v)
		}
	}
}

// Metrics returns a copy of the accumulated metrics map.
func (s *Session) Metrics() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.metrics))
	for k, v := range s.metrics {
		out[k] = v
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
