package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/workpool/internal/metrics_collectors"
	"github.com/benmeehan/workpool/internal/models"
	"github.com/benmeehan/workpool/pkg/file"
	"github.com/benmeehan/workpool/pkg/identity"
	"github.com/benmeehan/workpool/pkg/mqtt"
	"github.com/benmeehan/workpool/pkg/threadpool"
	"github.com/rs/zerolog"
)

const publishRetries = 3

// MetricsService collects pool, runtime and host metrics and publishes them over MQTT.
type MetricsService struct {
	pubTopic          string
	metricsConfigFile string
	metricsConfig     *models.MetricsConfig
	interval          time.Duration
	timeout           time.Duration
	qos               int
	workers           int
	instanceInfo      identity.InstanceInfoInterface
	mqttClient        mqtt.MQTTClient
	fileClient        file.FileOperations
	logger            zerolog.Logger
	registry          *metrics_collectors.MetricsRegistry

	// retryDelay is the base of the linear publish backoff.
	retryDelay time.Duration

	// collectors run on a private pool so a slow collector never occupies a
	// connection worker.
	workerPool *threadpool.ThreadPool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMetricsService initializes and returns a new instance of MetricsService.
// pool is the connection pool whose stats are reported; it may be nil.
func NewMetricsService(
	pubTopic, metricsConfigFile string,
	interval, timeout time.Duration,
	qos, workers int,
	pool metrics_collectors.StatsProvider,
	instanceInfo identity.InstanceInfoInterface,
	mqttClient mqtt.MQTTClient,
	fileClient file.FileOperations,
	logger zerolog.Logger,
) *MetricsService {
	service := &MetricsService{
		pubTopic:          pubTopic,
		metricsConfigFile: metricsConfigFile,
		interval:          interval,
		timeout:           timeout,
		qos:               qos,
		workers:           workers,
		instanceInfo:      instanceInfo,
		mqttClient:        mqttClient,
		fileClient:        fileClient,
		logger:            logger.With().Str("service", "metrics").Logger(),
		registry:          metrics_collectors.NewMetricsRegistry(),
		retryDelay:        time.Second,
	}

	service.registerDefaultCollectors(pool)
	return service
}

func (m *MetricsService) registerDefaultCollectors(pool metrics_collectors.StatsProvider) {
	m.registry.Register(&metrics_collectors.CPUMetricCollector{Logger: m.logger})
	m.registry.Register(&metrics_collectors.MemoryMetricCollector{Logger: m.logger})
	m.registry.Register(&metrics_collectors.GoroutineMetricCollector{Logger: m.logger})
	m.registry.Register(&metrics_collectors.ProcessMetricCollector{Logger: m.logger})
	m.registry.Register(&metrics_collectors.PoolMetricCollector{Logger: m.logger, Pool: pool})
}

// Registry exposes the collector registry so callers can add collectors before Start.
func (m *MetricsService) Registry() *metrics_collectors.MetricsRegistry {
	return m.registry
}

// Start loads the collector selection and begins periodic collection.
func (m *MetricsService) Start() error {
	if m.ctx != nil {
		m.logger.Warn().Msg("MetricsService is already running")
		return errors.New("metrics service is already running")
	}

	if m.interval <= 0 || m.timeout <= 0 {
		return fmt.Errorf("metrics interval and timeout must be positive, got %s and %s", m.interval, m.timeout)
	}

	config, err := m.LoadMetricsConfig()
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to load or validate metrics configuration")
		return err
	}
	m.metricsConfig = config

	pool, err := threadpool.New(m.workers,
		threadpool.WithName("metrics"),
		threadpool.WithLogger(m.logger),
	)
	if err != nil {
		return fmt.Errorf("failed to start collector pool: %w", err)
	}
	m.workerPool = pool

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go m.runMetricsCollectionLoop()

	m.logger.Info().Str("topic", m.pubTopic).Dur("interval", m.interval).Msg("MetricsService started successfully")
	return nil
}

// LoadMetricsConfig reads, parses and validates the collector selection file.
func (m *MetricsService) LoadMetricsConfig() (*models.MetricsConfig, error) {
	data, err := m.fileClient.ReadFileRaw(m.metricsConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics config: %w", err)
	}

	var config models.MetricsConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse metrics config: %w", err)
	}

	if !config.MonitorCPU && !config.MonitorMemory && !config.MonitorGoroutines &&
		!config.MonitorProcess && !config.MonitorPool {
		return nil, errors.New("invalid metrics config: no metrics enabled")
	}
	return &config, nil
}

func (m *MetricsService) runMetricsCollectionLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics := m.CollectMetrics(m.ctx)
			if err := m.PublishMetrics(m.ctx, metrics); err != nil {
				m.logger.Error().Err(err).Msg("Failed to publish metrics")
			}
		case <-m.ctx.Done():
			m.logger.Info().Msg("Stopping metrics collection")
			return
		}
	}
}

// CollectMetrics runs every enabled collector on the collector pool and gathers
// whatever finishes within the configured timeout.
func (m *MetricsService) CollectMetrics(parent context.Context) *models.SystemMetrics {
	metrics := &models.SystemMetrics{
		Timestamp: time.Now().UTC(),
		Metrics:   make(map[string]models.Metric),
	}
	if m.instanceInfo != nil {
		metrics.InstanceID = m.instanceInfo.GetInstanceID()
	}

	ctx, cancel := context.WithTimeout(parent, m.timeout)
	defer cancel()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, collector := range m.registry.GetCollectors() {
		name, collector := name, collector
		if !collector.IsEnabled(m.metricsConfig) {
			continue
		}

		wg.Add(1)
		err := m.workerPool.Execute(func() {
			defer wg.Done()
			value := collector.Collect(ctx)
			if value == nil {
				return
			}

			mu.Lock()
			defer mu.Unlock()
			metrics.Metrics[name] = models.Metric{Value: value, Unit: collector.Unit()}
		})
		if err != nil {
			wg.Done()
			m.logger.Error().Err(err).Str("collector", name).Msg("Failed to schedule collector")
		}
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		m.logger.Warn().Dur("timeout", m.timeout).Msg("Metrics collection timed out, publishing partial results")
	}

	mu.Lock()
	defer mu.Unlock()
	snapshot := &models.SystemMetrics{
		Timestamp:  metrics.Timestamp,
		InstanceID: metrics.InstanceID,
		Metrics:    make(map[string]models.Metric, len(metrics.Metrics)),
	}
	for name, metric := range metrics.Metrics {
		snapshot.Metrics[name] = metric
	}

	m.logger.Debug().Int("collected", len(snapshot.Metrics)).Msg("Metrics collected")
	return snapshot
}

// PublishMetrics sends the collected metrics via MQTT, retrying with a linear
// backoff. It gives up early when ctx is done.
func (m *MetricsService) PublishMetrics(ctx context.Context, metrics *models.SystemMetrics) error {
	payload, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to serialize metrics: %w", err)
	}

	var lastErr error
	for i := 0; i < publishRetries; i++ {
		token := m.mqttClient.Publish(m.pubTopic, byte(m.qos), false, payload)
		if token.Wait() && token.Error() == nil {
			m.logger.Debug().Str("topic", m.pubTopic).Msg("Metrics published successfully")
			return nil
		}
		lastErr = token.Error()
		if lastErr == nil {
			lastErr = errors.New("publish not acknowledged")
		}
		if i == publishRetries-1 {
			break
		}

		m.logger.Warn().Err(lastErr).Int("retry", i+1).Msg("Retrying to publish metrics...")
		backoff := time.NewTimer(time.Duration(i+1) * m.retryDelay)
		select {
		case <-backoff.C:
		case <-ctx.Done():
			backoff.Stop()
			return fmt.Errorf("metrics publish abandoned: %w", errors.Join(ctx.Err(), lastErr))
		}
	}

	return fmt.Errorf("failed to publish metrics after %d retries: %w", publishRetries, lastErr)
}

// Stop halts collection and shuts the collector pool down.
func (m *MetricsService) Stop() error {
	if m.ctx == nil {
		m.logger.Warn().Msg("MetricsService is not running")
		return errors.New("metrics service is not running")
	}

	m.cancel()
	m.wg.Wait()
	m.workerPool.Shutdown()

	m.ctx = nil
	m.cancel = nil
	m.logger.Info().Msg("MetricsService stopped successfully")
	return nil
}
