package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/workpool/internal/service_registry"
	"github.com/benmeehan/workpool/internal/services"
	"github.com/benmeehan/workpool/internal/utils"
	"github.com/benmeehan/workpool/pkg/file"
	"github.com/benmeehan/workpool/pkg/identity"
	"github.com/benmeehan/workpool/pkg/mqtt"
	"github.com/benmeehan/workpool/pkg/threadpool"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger, err := utils.NewLogger(config.Logging.Level, config.Logging.Pretty, os.Stdout)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("Failed to configure logging")
	}

	instanceInfo := identity.NewInstanceInfo(config.Identity.InstanceFile, fileClient)
	if err := instanceInfo.LoadOrCreate(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to load instance identity")
	}
	logger = logger.With().Str("instance_id", instanceInfo.GetInstanceID()).Logger()

	pool, err := threadpool.New(config.Pool.Size,
		threadpool.WithName("web"),
		threadpool.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create thread pool")
	}

	// Only the metrics service publishes over MQTT.
	var mqttService *mqtt.MqttService
	var mqttClient mqtt.MQTTClient
	if config.Services.Metrics.Enabled {
		mqttService = mqtt.NewMqttService(fileClient, logger)
		clientID := config.MQTT.ClientID + "-" + instanceInfo.GetInstanceID()
		if err := mqttService.Initialize(config.MQTT.Broker, clientID, config.MQTT.CACertificate); err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
		}
		mqttClient = mqttService
	}

	serviceRegistry := service_registry.NewServiceRegistry(pool, mqttClient, fileClient, logger)
	if err := serviceRegistry.RegisterServices(config, instanceInfo); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register services")
	}
	if err := serviceRegistry.StartServices(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start services")
	}
	logger.Info().Strs("services", serviceRegistry.Names()).Msg("All services started successfully")

	// A web service with a connection budget finishes on its own.
	var webDone <-chan struct{}
	if svc, ok := serviceRegistry.Get("web"); ok {
		webDone = svc.(*services.WebService).Done()
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")
	case <-webDone:
		logger.Info().Msg("Web service stopped accepting connections, shutting down...")
	}

	if err := serviceRegistry.StopServices(); err != nil {
		logger.Error().Err(err).Msg("Some services failed to stop")
	}

	// Connections already accepted finish before the pool returns.
	pool.Shutdown()

	if mqttService != nil {
		mqttService.Disconnect(250)
	}
	logger.Info().Msg("Shutdown complete")
}
