// Swidget Bridge - MQTT gateway for Swidget smart power devices
//
// This is the main entry point for the bridge daemon. It maintains local
// sessions with the configured Swidget devices and mirrors them onto MQTT:
//   - Device push messages become event envelopes
//   - Device state is published as retained snapshots
//   - Commands received over MQTT are forwarded to devices
//   - Periodic telemetry is written to InfluxDB (optional)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/swidget-go/internal/bridge"
	"github.com/nerrad567/swidget-go/internal/config"
	"github.com/nerrad567/swidget-go/internal/influxdb"
	"github.com/nerrad567/swidget-go/internal/logging"
	"github.com/nerrad567/swidget-go/internal/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Swidget Bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "devices", len(cfg.Devices))

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		// Set up InfluxDB error callback
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the device bridge
	deviceBridge, err := startBridge(ctx, cfg, mqttClient, influxClient, log)
	if err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		deviceBridge.Stop()
	}()

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. Bridge (device sessions)
	// 2. InfluxDB (if enabled)
	// 3. MQTT

	log.Info("Swidget Bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SWIDGET_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SWIDGET_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	// Check MQTT
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Device session health is reported per-device over MQTT availability
	// topics; an unreachable device must not take the bridge down.

	return nil
}

// startBridge initialises and starts the device bridge.
//
// Parameters:
//   - ctx: Context for session startup/cancellation
//   - cfg: Application configuration
//   - mqttClient: MQTT client for publishing/subscribing
//   - influxClient: InfluxDB client (may be nil if disabled)
//   - log: Logger instance
//
// Returns:
//   - *bridge.Bridge: Running bridge
//   - error: If the bridge fails to start
func startBridge(ctx context.Context, cfg *config.Config, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) (*bridge.Bridge, error) {
	// Create MQTT adapter to satisfy the bridge's Publisher interface
	mqttAdapter := &mqttBridgeAdapter{client: mqttClient}

	// The metrics writer must only be set when InfluxDB is enabled; a typed
	// nil pointer in the interface would pass the bridge's nil check.
	opts := bridge.Options{
		Config:    cfg,
		Publisher: mqttAdapter,
		Logger:    log,
	}
	if influxClient != nil {
		opts.Metrics = influxClient
	}

	b, err := bridge.New(opts)
	if err != nil {
		return nil, fmt.Errorf("creating bridge: %w", err)
	}

	if err := b.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting bridge: %w", err)
	}
	log.Info("bridge started", "bridge_id", cfg.Bridge.ID)

	return b, nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// Publisher interface. The primary difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic string, payload []byte) error
// - Bridge expects: func(topic string, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements bridge.Publisher.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements bridge.Publisher.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	// Wrap the void handler to return nil error (bridge handlers don't return errors)
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements bridge.Publisher.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
