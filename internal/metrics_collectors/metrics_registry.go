package metrics_collectors

import (
	"sort"
	"sync"
)

// MetricsRegistry holds the collectors known to the metrics service.
type MetricsRegistry struct {
	mu         sync.RWMutex
	collectors map[string]MetricCollector
}

// NewMetricsRegistry creates a new MetricsRegistry instance.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		collectors: make(map[string]MetricCollector),
	}
}

// Register adds a collector, replacing any collector with the same name.
func (r *MetricsRegistry) Register(collector MetricCollector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors[collector.Name()] = collector
}

// GetCollectors returns a copy of the registered collectors keyed by name.
func (r *MetricsRegistry) GetCollectors() map[string]MetricCollector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	collectors := make(map[string]MetricCollector, len(r.collectors))
	for name, c := range r.collectors {
		collectors[name] = c
	}
	return collectors
}

// Names returns the registered collector names in sorted order.
func (r *MetricsRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.collectors))
	for name := range r.collectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
