package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Swidget bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Devices   []DeviceConfig  `yaml:"devices"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// BridgeConfig contains bridge-wide settings.
type BridgeConfig struct {
	ID string `yaml:"id"`
}

// DeviceConfig describes one Swidget device the bridge maintains a session with.
type DeviceConfig struct {
	// ID is the bridge-local identifier used in MQTT topics and telemetry tags.
	ID string `yaml:"id"`

	// Host is the device's IP address or hostname.
	Host string `yaml:"host"`

	// SecretKey is the device's shared secret, configured during provisioning.
	SecretKey string `yaml:"secret_key"`

	// TokenName is the header/query parameter carrying the secret.
	// Defaults to "x-secret-key".
	TokenName string `yaml:"token_name"`

	// TLS selects HTTPS and wss transports.
	TLS bool `yaml:"tls"`

	// Websocket enables the persistent channel for this device.
	// When false the bridge polls over HTTP only.
	Websocket bool `yaml:"websocket"`

	// ReconnectInterval is the base delay between channel reconnect attempts.
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`

	// MaxReconnectAttempts limits consecutive reconnect attempts. 0 means unlimited.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TelemetryConfig controls the periodic polling of device readings.
type TelemetryConfig struct {
	// Interval is how often realtime values are sampled per device.
	Interval time.Duration `yaml:"interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SWIDGET_SECTION_KEY
// For example: SWIDGET_MQTT_HOST, SWIDGET_INFLUXDB_TOKEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDeviceDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID: "swidget-bridge",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "swidget-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Telemetry: TelemetryConfig{
			Interval: 30 * time.Second,
		},
	}
}

// applyDeviceDefaults fills per-device fields left empty in YAML.
func applyDeviceDefaults(cfg *Config) {
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.TokenName == "" {
			d.TokenName = "x-secret-key"
		}
		if d.ReconnectInterval == 0 {
			d.ReconnectInterval = 30 * time.Second
		}
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SWIDGET_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("SWIDGET_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SWIDGET_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("SWIDGET_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SWIDGET_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("SWIDGET_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("SWIDGET_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("SWIDGET_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	if len(c.Devices) == 0 {
		errs = append(errs, "at least one device is required")
	}
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		switch {
		case d.ID == "":
			errs = append(errs, fmt.Sprintf("devices[%d].id is required", i))
		case seen[d.ID]:
			errs = append(errs, fmt.Sprintf("devices[%d].id %q is duplicated", i, d.ID))
		default:
			seen[d.ID] = true
		}
		if d.Host == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].host is required", i))
		}
		if d.SecretKey == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].secret_key is required", i))
		}
		if d.MaxReconnectAttempts < 0 {
			errs = append(errs, fmt.Sprintf("devices[%d].max_reconnect_attempts must be >= 0", i))
		}
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set SWIDGET_INFLUXDB_TOKEN)")
		}
	}

	if c.Telemetry.Interval < time.Second {
		errs = append(errs, "telemetry.interval must be at least 1s")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
