package metrics_collectors

import (
	"context"

	"github.com/benmeehan/workpool/internal/models"
	"github.com/rs/zerolog"
)

// ProcessMetricCollector collects resource usage of the server's own process.
// The OS thread count is the cheapest way to notice workers leaking threads
// through blocking syscalls.
type ProcessMetricCollector struct {
	Logger zerolog.Logger

	self ownProcess
}

// Name returns the identifier for the process metric collector.
func (p *ProcessMetricCollector) Name() string {
	return "process"
}

// Collect gathers RSS, thread and descriptor counts and lifetime CPU usage.
// Fields that cannot be read are left zero.
func (p *ProcessMetricCollector) Collect(ctx context.Context) interface{} {
	proc, err := p.self.get()
	if err != nil {
		p.Logger.Error().Err(err).Msg("Failed to open own process")
		return nil
	}

	metrics := &models.ProcessMetrics{}

	if memInfo, err := proc.MemoryInfoWithContext(ctx); err == nil {
		metrics.RSSBytes = memInfo.RSS
	} else {
		p.Logger.Warn().Err(err).Msg("Failed to get memory information")
	}
	if threads, err := proc.NumThreadsWithContext(ctx); err == nil {
		metrics.NumThreads = threads
	} else {
		p.Logger.Warn().Err(err).Msg("Failed to get thread count")
	}
	// Not supported on every platform.
	if fds, err := proc.NumFDsWithContext(ctx); err == nil {
		metrics.NumFDs = fds
	}
	if cpuPercent, err := proc.CPUPercentWithContext(ctx); err == nil {
		metrics.CPUPercent = cpuPercent
	} else {
		p.Logger.Warn().Err(err).Msg("Failed to get CPU usage")
	}

	return metrics
}

// IsEnabled checks if process monitoring is enabled in the configuration.
func (p *ProcessMetricCollector) IsEnabled(config *models.MetricsConfig) bool {
	return config.MonitorProcess
}

// Unit specifies the units of the process metrics.
func (p *ProcessMetricCollector) Unit() string {
	return "varied (RSS: bytes, threads: count, fds: count, CPU: %)"
}

// Description provides details of the process metrics collected.
func (p *ProcessMetricCollector) Description() string {
	return "Resident memory, OS threads, open descriptors and CPU usage of this process."
}
