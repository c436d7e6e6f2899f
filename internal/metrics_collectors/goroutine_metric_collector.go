package metrics_collectors

import (
	"context"
	"runtime"

	"github.com/benmeehan/workpool/internal/models"
	"github.com/rs/zerolog"
)

// GoroutineMetricCollector collects the number of live goroutines.
type GoroutineMetricCollector struct {
	Logger zerolog.Logger
}

func (g *GoroutineMetricCollector) Name() string {
	return "goroutines"
}

func (g *GoroutineMetricCollector) Collect(ctx context.Context) interface{} {
	n := runtime.NumGoroutine()
	g.Logger.Debug().Int("goroutines", n).Msg("Goroutine count collected")
	return n
}

func (g *GoroutineMetricCollector) IsEnabled(config *models.MetricsConfig) bool {
	return config.MonitorGoroutines
}

func (g *GoroutineMetricCollector) Unit() string {
	return "count"
}

func (g *GoroutineMetricCollector) Description() string {
	return "Number of live goroutines, including pool workers."
}
