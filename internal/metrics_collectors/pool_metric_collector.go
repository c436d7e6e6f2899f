package metrics_collectors

import (
	"context"

	"github.com/benmeehan/workpool/internal/models"
	"github.com/benmeehan/workpool/pkg/threadpool"
	"github.com/rs/zerolog"
)

// StatsProvider is implemented by *threadpool.ThreadPool.
type StatsProvider interface {
	Stats() threadpool.Stats
}

// PoolMetricCollector reports the counters of the thread pool serving connections.
type PoolMetricCollector struct {
	Logger zerolog.Logger
	Pool   StatsProvider
}

// Name returns the identifier for the pool metric collector.
func (p *PoolMetricCollector) Name() string {
	return "pool"
}

// Collect returns a threadpool.Stats snapshot, or nil when no pool is attached.
func (p *PoolMetricCollector) Collect(ctx context.Context) interface{} {
	if p.Pool == nil {
		return nil
	}

	stats := p.Pool.Stats()
	p.Logger.Debug().
		Int("busy", stats.Busy).
		Int("queued", stats.Queued).
		Uint64("completed", stats.Completed).
		Msg("Pool stats collected")
	return stats
}

// IsEnabled reports whether pool monitoring is enabled and a pool is attached.
func (p *PoolMetricCollector) IsEnabled(config *models.MetricsConfig) bool {
	return config.MonitorPool && p.Pool != nil
}

// Unit specifies the unit of the pool counters.
func (p *PoolMetricCollector) Unit() string {
	return "count"
}

// Description provides details of the pool metrics collected.
func (p *PoolMetricCollector) Description() string {
	return "Worker, queue and job counters of the connection thread pool."
}
