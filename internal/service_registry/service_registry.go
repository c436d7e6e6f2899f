package service_registry

import (
	"errors"
	"fmt"

	"github.com/benmeehan/workpool/internal/services"
	"github.com/benmeehan/workpool/internal/utils"
	"github.com/benmeehan/workpool/pkg/file"
	"github.com/benmeehan/workpool/pkg/identity"
	"github.com/benmeehan/workpool/pkg/mqtt"
	"github.com/benmeehan/workpool/pkg/threadpool"
	"github.com/rs/zerolog"
)

// Service is the interface for all plug-in services.
type Service interface {
	Start() error
	Stop() error
}

// ServiceRegistry manages the lifecycle of the services built around the pool.
type ServiceRegistry struct {
	services    map[string]Service // Stores registered services
	serviceKeys []string           // Maintains order of service registration
	pool        *threadpool.ThreadPool
	mqttClient  mqtt.MQTTClient
	fileClient  file.FileOperations
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
// mqttClient may be nil when no service publishes over MQTT.
func NewServiceRegistry(pool *threadpool.ThreadPool, mqttClient mqtt.MQTTClient, fileClient file.FileOperations,
	logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]Service),
		pool:       pool,
		mqttClient: mqttClient,
		fileClient: fileClient,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Get returns a registered service by name.
func (sr *ServiceRegistry) Get(name string) (Service, bool) {
	svc, ok := sr.services[name]
	return svc, ok
}

// Names returns the registered service names in registration order.
func (sr *ServiceRegistry) Names() []string {
	names := make([]string, len(sr.serviceKeys))
	copy(names, sr.serviceKeys)
	return names
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, instanceInfo identity.InstanceInfoInterface) error {
	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (Service, error)
	}{
		{
			name:    "web",
			enabled: config.Services.Web.Enabled,
			constructor: func() (Service, error) {
				web := config.Services.Web
				return services.NewWebService(
					web.Address,
					web.StaticDir,
					web.MaxConnections,
					web.SleepDelay,
					web.ReadTimeout,
					sr.pool,
					sr.fileClient,
					sr.Logger,
				), nil
			},
		},
		{
			name:    "metrics",
			enabled: config.Services.Metrics.Enabled,
			constructor: func() (Service, error) {
				if sr.mqttClient == nil {
					return nil, errors.New("metrics service requires an MQTT client")
				}
				metrics := config.Services.Metrics
				return services.NewMetricsService(
					metrics.Topic,
					metrics.MetricsConfigFile,
					metrics.Interval,
					metrics.Timeout,
					metrics.QOS,
					metrics.Workers,
					sr.pool,
					instanceInfo,
					sr.mqttClient,
					sr.fileClient,
					sr.Logger,
				), nil
			},
		},
		{
			name:    "exporter",
			enabled: config.Services.Exporter.Enabled,
			constructor: func() (Service, error) {
				return services.NewExporterService(
					config.Services.Exporter.Address,
					config.Services.Exporter.Path,
					sr.pool,
					sr.Logger,
				), nil
			},
		},
	}

	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}
