package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/benmeehan/workpool/internal/mocks"
	"github.com/benmeehan/workpool/internal/models"
	"github.com/benmeehan/workpool/internal/services"
	"github.com/benmeehan/workpool/pkg/threadpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type staticStats threadpool.Stats

func (s staticStats) Stats() threadpool.Stats { return threadpool.Stats(s) }

type slowCollector struct{ delay time.Duration }

func (s *slowCollector) Name() string { return "slow" }
func (s *slowCollector) Collect(ctx context.Context) interface{} {
	select {
	case <-time.After(s.delay):
		return 1
	case <-ctx.Done():
		return nil
	}
}
func (s *slowCollector) IsEnabled(*models.MetricsConfig) bool { return true }
func (s *slowCollector) Unit() string                         { return "count" }
func (s *slowCollector) Description() string                  { return "test collector" }

func newMetricsService(t *testing.T, mqttClient *mocks.MockMQTTClient, fileClient *mocks.MockFileOperations,
	timeout time.Duration) *services.MetricsService {
	t.Helper()

	instanceInfo := new(mocks.MockInstanceInfo)
	instanceInfo.On("GetInstanceID").Return("instance-1")

	return services.NewMetricsService(
		"metrics/topic",
		"metrics.json",
		time.Hour, // the loop never ticks during a test
		timeout,
		1,
		2,
		staticStats{Name: "web", Size: 3, Alive: 3, Submitted: 7, Completed: 7},
		instanceInfo,
		mqttClient,
		fileClient,
		zerolog.Nop(),
	)
}

func TestMetricsService_LoadMetricsConfig(t *testing.T) {
	fileClient := new(mocks.MockFileOperations)
	fileClient.On("ReadFileRaw", "metrics.json").Return([]byte(`{"monitor_cpu": true, "monitor_pool": true}`), nil)

	service := newMetricsService(t, nil, fileClient, time.Second)

	config, err := service.LoadMetricsConfig()
	require.NoError(t, err)
	assert.True(t, config.MonitorCPU)
	assert.True(t, config.MonitorPool)
	assert.False(t, config.MonitorMemory)
}

func TestMetricsService_LoadMetricsConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		readErr error
		wantErr string
	}{
		{"read failure", nil, errors.New("no such file"), "failed to read metrics config"},
		{"bad json", []byte(`{`), nil, "failed to parse metrics config"},
		{"nothing enabled", []byte(`{}`), nil, "no metrics enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fileClient := new(mocks.MockFileOperations)
			fileClient.On("ReadFileRaw", "metrics.json").Return(tt.data, tt.readErr)

			service := newMetricsService(t, nil, fileClient, time.Second)
			_, err := service.LoadMetricsConfig()
			assert.ErrorContains(t, err, tt.wantErr)

			assert.Error(t, service.Start(), "Start must fail on a bad config")
		})
	}
}

func TestMetricsService_StartStop(t *testing.T) {
	fileClient := new(mocks.MockFileOperations)
	fileClient.On("ReadFileRaw", "metrics.json").Return([]byte(`{"monitor_goroutines": true}`), nil)

	service := newMetricsService(t, new(mocks.MockMQTTClient), fileClient, time.Second)

	assert.EqualError(t, service.Stop(), "metrics service is not running")

	require.NoError(t, service.Start())
	assert.EqualError(t, service.Start(), "metrics service is already running")

	require.NoError(t, service.Stop())
	assert.EqualError(t, service.Stop(), "metrics service is not running")
}

func TestMetricsService_CollectMetrics(t *testing.T) {
	fileClient := new(mocks.MockFileOperations)
	fileClient.On("ReadFileRaw", "metrics.json").
		Return([]byte(`{"monitor_goroutines": true, "monitor_pool": true}`), nil)

	service := newMetricsService(t, new(mocks.MockMQTTClient), fileClient, 2*time.Second)
	require.NoError(t, service.Start())
	defer service.Stop()

	metrics := service.CollectMetrics(context.Background())

	assert.Equal(t, "instance-1", metrics.InstanceID)
	require.Contains(t, metrics.Metrics, "pool")
	require.Contains(t, metrics.Metrics, "goroutines")
	assert.NotContains(t, metrics.Metrics, "cpu")

	pool := metrics.Metrics["pool"]
	assert.Equal(t, "count", pool.Unit)
	assert.Equal(t, uint64(7), pool.Value.(threadpool.Stats).Completed)
}

func TestMetricsService_CollectMetrics_Timeout(t *testing.T) {
	fileClient := new(mocks.MockFileOperations)
	fileClient.On("ReadFileRaw", "metrics.json").Return([]byte(`{"monitor_pool": true}`), nil)

	service := newMetricsService(t, new(mocks.MockMQTTClient), fileClient, 50*time.Millisecond)
	service.Registry().Register(&slowCollector{delay: time.Second})
	require.NoError(t, service.Start())
	defer service.Stop()

	start := time.Now()
	metrics := service.CollectMetrics(context.Background())

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Contains(t, metrics.Metrics, "pool")
	assert.NotContains(t, metrics.Metrics, "slow")
}

func TestMetricsService_PublishMetrics(t *testing.T) {
	mqttClient := new(mocks.MockMQTTClient)
	token := new(mocks.MockToken)
	token.On("Wait").Return(true)
	token.On("Error").Return(nil)
	mqttClient.On("Publish", "metrics/topic", byte(1), false, mock.Anything).Return(token)

	service := newMetricsService(t, mqttClient, new(mocks.MockFileOperations), time.Second)

	metrics := &models.SystemMetrics{
		Timestamp:  time.Now().UTC(),
		InstanceID: "instance-1",
		Metrics:    map[string]models.Metric{"goroutines": {Value: 12, Unit: "count"}},
	}
	expected, err := json.Marshal(metrics)
	require.NoError(t, err)

	require.NoError(t, service.PublishMetrics(context.Background(), metrics))

	mqttClient.AssertCalled(t, "Publish", "metrics/topic", byte(1), false, expected)
	mqttClient.AssertNumberOfCalls(t, "Publish", 1)
}

func failingPublisher() *mocks.MockMQTTClient {
	mqttClient := new(mocks.MockMQTTClient)
	token := new(mocks.MockToken)
	token.On("Wait").Return(true)
	token.On("Error").Return(errors.New("broker unavailable"))
	mqttClient.On("Publish", "metrics/topic", byte(1), false, mock.Anything).Return(token)
	return mqttClient
}

func TestMetricsService_PublishMetrics_GivesUp(t *testing.T) {
	mqttClient := failingPublisher()
	service := newMetricsService(t, mqttClient, new(mocks.MockFileOperations), time.Second)
	service.SetRetryDelay(100 * time.Millisecond)

	start := time.Now()
	err := service.PublishMetrics(context.Background(), &models.SystemMetrics{Metrics: map[string]models.Metric{}})
	elapsed := time.Since(start)

	assert.ErrorContains(t, err, "after 3 retries")
	assert.ErrorContains(t, err, "broker unavailable")
	mqttClient.AssertNumberOfCalls(t, "Publish", 3)

	// Backoff runs between attempts only: 100ms + 200ms.
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 550*time.Millisecond, "slept after the final attempt")
}

func TestMetricsService_PublishMetrics_StopsOnCancel(t *testing.T) {
	mqttClient := failingPublisher()
	service := newMetricsService(t, mqttClient, new(mocks.MockFileOperations), time.Second)
	service.SetRetryDelay(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	err := service.PublishMetrics(ctx, &models.SystemMetrics{Metrics: map[string]models.Metric{}})

	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorContains(t, err, "broker unavailable")
	assert.Less(t, time.Since(start), 5*time.Second)
	mqttClient.AssertNumberOfCalls(t, "Publish", 1)
}

func TestMetricsService_StopInterruptsBackoff(t *testing.T) {
	fileClient := new(mocks.MockFileOperations)
	fileClient.On("ReadFileRaw", "metrics.json").Return([]byte(`{"monitor_goroutines": true}`), nil)

	instanceInfo := new(mocks.MockInstanceInfo)
	instanceInfo.On("GetInstanceID").Return("instance-1")

	published := make(chan struct{}, 1)
	mqttClient := new(mocks.MockMQTTClient)
	token := new(mocks.MockToken)
	token.On("Wait").Return(true)
	token.On("Error").Return(errors.New("broker unavailable"))
	mqttClient.On("Publish", "metrics/topic", byte(1), false, mock.Anything).Return(token).
		Run(func(mock.Arguments) {
			select {
			case published <- struct{}{}:
			default:
			}
		})

	service := services.NewMetricsService("metrics/topic", "metrics.json", 20*time.Millisecond, time.Second, 1, 1,
		nil, instanceInfo, mqttClient, fileClient, zerolog.Nop())
	service.SetRetryDelay(time.Minute)
	require.NoError(t, service.Start())

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("collection loop never published")
	}

	start := time.Now()
	require.NoError(t, service.Stop())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestMetricsService_StartRejectsNonPositiveInterval(t *testing.T) {
	service := services.NewMetricsService("metrics/topic", "metrics.json", -time.Second, time.Second, 1, 1,
		nil, nil, new(mocks.MockMQTTClient), new(mocks.MockFileOperations), zerolog.Nop())

	assert.ErrorContains(t, service.Start(), "must be positive")
}
