package metrics_collectors

import (
	"context"

	"github.com/benmeehan/workpool/internal/models"
)

// MetricCollector defines the interface for collecting a specific metric.
type MetricCollector interface {
	Name() string                                // Name of the metric (e.g., "cpu", "pool")
	Collect(ctx context.Context) interface{}     // Collect the metric data, nil when unavailable
	IsEnabled(config *models.MetricsConfig) bool // Check if the metric is enabled in the config
	Unit() string                                // Unit of the metric (e.g., "percentage", "bytes")
	Description() string                         // Description of the metric
}
