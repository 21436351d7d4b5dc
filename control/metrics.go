// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector. Timer counters are produced on the driver
// goroutine as atomics and published here on demand, keeping the wheel hot
// path free of map and lock traffic.

package control

import (
	"sync"
	"time"
)

// MetricsRegistry holds mutable and read-only metrics.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]any
	sources []func() map[string]any
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]any),
	}
}

// Set sets or updates a metric key.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// AddSource registers a pull-based metrics producer, sampled on snapshot.
func (mr *MetricsRegistry) AddSource(fn func() map[string]any) {
	mr.mu.Lock()
	mr.sources = append(mr.sources, fn)
	mr.mu.Unlock()
}

// GetSnapshot returns the latest metrics, merged with all source samples.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	for _, src := range mr.sources {
		for k, v := range src() {
			out[k] = v
		}
	}
	return out
}
