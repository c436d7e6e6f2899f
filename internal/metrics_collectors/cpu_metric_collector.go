package metrics_collectors

import (
	"context"
	"sync"

	"github.com/benmeehan/workpool/internal/models"
	"github.com/rs/zerolog"
)

// CPUMetricCollector reports the CPU used by the server process between two
// collection rounds, so a pool saturated with CPU-bound jobs shows up here.
type CPUMetricCollector struct {
	Logger zerolog.Logger

	self ownProcess
	mu   sync.Mutex // gopsutil keeps the previous sample on the handle
}

// Name returns the identifier for the CPU metric collector.
func (c *CPUMetricCollector) Name() string {
	return "cpu"
}

// Collect returns the process CPU percentage since the previous call. The first
// call only takes the baseline sample and reports 0. Values above 100 mean more
// than one core was busy.
func (c *CPUMetricCollector) Collect(ctx context.Context) interface{} {
	proc, err := c.self.get()
	if err != nil {
		c.Logger.Error().Err(err).Msg("Failed to open own process")
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	percent, err := proc.PercentWithContext(ctx, 0)
	if err != nil {
		c.Logger.Error().Err(err).Msg("Failed to get process CPU usage")
		return nil
	}

	c.Logger.Debug().Float64("cpu_percent", percent).Msg("Process CPU usage collected")
	return percent
}

// IsEnabled checks if CPU monitoring is enabled in the configuration.
func (c *CPUMetricCollector) IsEnabled(config *models.MetricsConfig) bool {
	return config.MonitorCPU
}

// Unit specifies the unit for CPU usage.
func (c *CPUMetricCollector) Unit() string {
	return "percentage"
}

// Description provides details of the CPU metric.
func (c *CPUMetricCollector) Description() string {
	return "CPU used by the server process since the previous round, summed over cores."
}
