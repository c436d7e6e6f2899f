package metrics_collectors

import (
	"context"

	"github.com/benmeehan/workpool/internal/models"
	"github.com/rs/zerolog"
)

// MemoryMetricCollector reports how much of the machine's RAM the server
// process holds resident.
type MemoryMetricCollector struct {
	Logger zerolog.Logger

	self ownProcess
}

// Name returns the identifier for the memory metric collector.
func (m *MemoryMetricCollector) Name() string {
	return "memory"
}

// Collect returns the process RSS as a percentage of total RAM.
func (m *MemoryMetricCollector) Collect(ctx context.Context) interface{} {
	proc, err := m.self.get()
	if err != nil {
		m.Logger.Error().Err(err).Msg("Failed to open own process")
		return nil
	}

	percent, err := proc.MemoryPercentWithContext(ctx)
	if err != nil {
		m.Logger.Error().Err(err).Msg("Failed to get process memory usage")
		return nil
	}

	m.Logger.Debug().Float32("memory_percent", percent).Msg("Process memory usage collected")
	return float64(percent)
}

// IsEnabled checks if memory monitoring is enabled in the configuration.
func (m *MemoryMetricCollector) IsEnabled(config *models.MetricsConfig) bool {
	return config.MonitorMemory
}

// Unit specifies the unit for memory usage metrics.
func (m *MemoryMetricCollector) Unit() string {
	return "percentage"
}

// Description provides details of the memory metric.
func (m *MemoryMetricCollector) Description() string {
	return "Resident memory of the server process as a share of total RAM."
}
