package models

import "time"

// MetricsConfig selects which collectors run. It is loaded from a JSON file.
type MetricsConfig struct {
	MonitorCPU        bool `json:"monitor_cpu"`
	MonitorMemory     bool `json:"monitor_memory"`
	MonitorGoroutines bool `json:"monitor_goroutines"`
	MonitorProcess    bool `json:"monitor_process"`
	MonitorPool       bool `json:"monitor_pool"`
}

// SystemMetrics is the payload published for one collection round.
type SystemMetrics struct {
	Timestamp  time.Time         `json:"timestamp"`
	InstanceID string            `json:"instance_id"`
	Metrics    map[string]Metric `json:"metrics"`
}

// Metric is a single collected value with its unit.
type Metric struct {
	Value interface{} `json:"value"`
	Unit  string      `json:"unit"`
}

// ProcessMetrics describes the server's own OS process.
type ProcessMetrics struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	NumThreads int32   `json:"num_threads"`
	NumFDs     int32   `json:"num_fds,omitempty"`
	CPUPercent float64 `json:"cpu_percent"`
}
