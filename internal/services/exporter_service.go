package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/benmeehan/workpool/internal/metrics_collectors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	metricsNamespace = "workpool"
	metricsSubsystem = "pool"
	shutdownTimeout  = 5 * time.Second
)

// ExporterService serves the connection pool's counters in Prometheus format.
type ExporterService struct {
	address  string
	path     string
	registry *prometheus.Registry
	logger   zerolog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	served   chan struct{}
}

// NewExporterService builds the Prometheus registry for pool and registers the
// Go runtime and process collectors alongside it.
func NewExporterService(address, path string, pool metrics_collectors.StatsProvider, logger zerolog.Logger) *ExporterService {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registerPoolMetrics(registry, pool)

	return &ExporterService{
		address:  address,
		path:     path,
		registry: registry,
		logger:   logger.With().Str("service", "exporter").Logger(),
	}
}

func registerPoolMetrics(registry *prometheus.Registry, pool metrics_collectors.StatsProvider) {
	gauge := func(name, help string, value func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      name,
			Help:      help,
		}, value)
	}
	counter := func(name, help string, value func() float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      name,
			Help:      help,
		}, value)
	}

	registry.MustRegister(
		gauge("workers", "Number of workers the pool was created with",
			func() float64 { return float64(pool.Stats().Size) }),
		gauge("alive_workers", "Number of worker goroutines still running",
			func() float64 { return float64(pool.Stats().Alive) }),
		gauge("busy_workers", "Number of workers currently executing a job",
			func() float64 { return float64(pool.Stats().Busy) }),
		gauge("queued_jobs", "Number of jobs waiting for a worker",
			func() float64 { return float64(pool.Stats().Queued) }),
		counter("jobs_submitted_total", "Total number of jobs accepted by the pool",
			func() float64 { return float64(pool.Stats().Submitted) }),
		counter("jobs_completed_total", "Total number of jobs that finished, including panics",
			func() float64 { return float64(pool.Stats().Completed) }),
		counter("jobs_panicked_total", "Total number of jobs that panicked",
			func() float64 { return float64(pool.Stats().Panicked) }),
	)
}

// Registry returns the Prometheus registry served by the exporter.
func (e *ExporterService) Registry() *prometheus.Registry {
	return e.registry
}

// Start binds the listener and serves the metrics endpoint.
func (e *ExporterService) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.server != nil {
		e.logger.Warn().Msg("ExporterService is already running")
		return errors.New("exporter service is already running")
	}

	listener, err := net.Listen("tcp", e.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", e.address, err)
	}

	mux := http.NewServeMux()
	mux.Handle(e.path, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	e.listener = listener
	e.served = make(chan struct{})

	go func(server *http.Server, served chan struct{}) {
		defer close(served)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error().Err(err).Msg("Metrics endpoint stopped unexpectedly")
		}
	}(e.server, e.served)

	e.logger.Info().
		Str("address", listener.Addr().String()).
		Str("path", e.path).
		Msg("ExporterService started successfully")
	return nil
}

// Addr returns the bound address, or nil when the service is not running.
func (e *ExporterService) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listener == nil {
		return nil
	}
	return e.listener.Addr()
}

// Stop shuts the HTTP server down gracefully.
func (e *ExporterService) Stop() error {
	e.mu.Lock()
	server, served := e.server, e.served
	e.server, e.listener = nil, nil
	e.mu.Unlock()

	if server == nil {
		e.logger.Warn().Msg("ExporterService is not running")
		return errors.New("exporter service is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down metrics endpoint: %w", err)
	}
	<-served

	e.logger.Info().Msg("ExporterService stopped successfully")
	return nil
}
