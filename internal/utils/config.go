package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/workpool/pkg/file"
	"github.com/benmeehan/workpool/pkg/threadpool"
)

// Config represents the structure of the configuration file.
type Config struct {
	Logging struct {
		Level  string `yaml:"level"`  // zerolog level name
		Pretty bool   `yaml:"pretty"` // human-readable console output instead of JSON
	} `yaml:"logging"`

	Identity struct {
		InstanceFile string `yaml:"instance_file"` // Path to the persisted instance identity
	} `yaml:"identity"`

	Pool struct {
		Size int `yaml:"size"` // Number of workers serving connections
	} `yaml:"pool"`

	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID prefix
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate, empty for plain TCP
	} `yaml:"mqtt"`

	Services struct {
		Web struct {
			Enabled        bool          `yaml:"enabled"`
			Address        string        `yaml:"address"`         // Listen address
			StaticDir      string        `yaml:"static_dir"`      // Directory holding hello.html and 404.html
			MaxConnections int           `yaml:"max_connections"` // Stop accepting after this many, 0 for no limit
			SleepDelay     time.Duration `yaml:"sleep_delay"`     // Delay applied to GET /sleep
			ReadTimeout    time.Duration `yaml:"read_timeout"`    // Deadline for reading a request head
		} `yaml:"web"`

		Metrics struct {
			Enabled           bool          `yaml:"enabled"`
			Topic             string        `yaml:"topic"`               // MQTT topic for metrics
			QOS               int           `yaml:"qos"`                 // MQTT QoS level for metrics messages
			MetricsConfigFile string        `yaml:"metrics_config_file"` // Path to the collector selection file
			Interval          time.Duration `yaml:"interval"`            // Interval between collection rounds
			Timeout           time.Duration `yaml:"timeout"`             // Budget for one collection round
			Workers           int           `yaml:"workers"`             // Workers in the collector pool
		} `yaml:"metrics"`

		Exporter struct {
			Enabled bool   `yaml:"enabled"`
			Address string `yaml:"address"` // Listen address for the Prometheus endpoint
			Path    string `yaml:"path"`    // HTTP path for the Prometheus endpoint
		} `yaml:"exporter"`
	} `yaml:"services"`
}

// LoadConfig loads the YAML configuration from the specified file, applies
// defaults and validates the result.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", filename, err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return &config, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Identity.InstanceFile == "" {
		c.Identity.InstanceFile = "data/instance.json"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "workpool"
	}

	web := &c.Services.Web
	if web.Address == "" {
		web.Address = "127.0.0.1:7878"
	}
	if web.StaticDir == "" {
		web.StaticDir = "static"
	}
	if web.SleepDelay == 0 {
		web.SleepDelay = 5 * time.Second
	}
	if web.ReadTimeout == 0 {
		web.ReadTimeout = 10 * time.Second
	}

	metrics := &c.Services.Metrics
	if metrics.Interval == 0 {
		metrics.Interval = 30 * time.Second
	}
	if metrics.Timeout == 0 {
		metrics.Timeout = 5 * time.Second
	}
	if metrics.Workers == 0 {
		metrics.Workers = 4
	}

	exporter := &c.Services.Exporter
	if exporter.Address == "" {
		exporter.Address = "127.0.0.1:9100"
	}
	if exporter.Path == "" {
		exporter.Path = "/metrics"
	}
}

// Validate checks the configuration for values the services cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Pool.Size <= 0 {
		errs = append(errs, fmt.Errorf("pool.size: %w", threadpool.ErrInvalidPoolSize))
	}
	if c.Services.Web.MaxConnections < 0 {
		errs = append(errs, errors.New("services.web.max_connections must not be negative"))
	}
	if c.Services.Web.SleepDelay < 0 {
		errs = append(errs, fmt.Errorf("services.web.sleep_delay must not be negative, got %s", c.Services.Web.SleepDelay))
	}
	if c.Services.Web.ReadTimeout < 0 {
		errs = append(errs, fmt.Errorf("services.web.read_timeout must not be negative, got %s", c.Services.Web.ReadTimeout))
	}

	if m := c.Services.Metrics; m.Enabled {
		if c.MQTT.Broker == "" {
			errs = append(errs, errors.New("mqtt.broker is required when metrics are enabled"))
		}
		if m.Topic == "" {
			errs = append(errs, errors.New("services.metrics.topic is required"))
		}
		if m.QOS < 0 || m.QOS > 2 {
			errs = append(errs, fmt.Errorf("services.metrics.qos must be 0, 1 or 2, got %d", m.QOS))
		}
		if m.MetricsConfigFile == "" {
			errs = append(errs, errors.New("services.metrics.metrics_config_file is required"))
		}
		if m.Interval <= 0 {
			errs = append(errs, fmt.Errorf("services.metrics.interval must be positive, got %s", m.Interval))
		}
		if m.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("services.metrics.timeout must be positive, got %s", m.Timeout))
		}
		if m.Workers < 0 {
			errs = append(errs, fmt.Errorf("services.metrics.workers: %w", threadpool.ErrInvalidPoolSize))
		}
	}

	return errors.Join(errs...)
}
