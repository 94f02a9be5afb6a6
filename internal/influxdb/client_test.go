package influxdb

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/swidget-go/internal/config"
)

func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "swidget-dev-token",
		Org:           "home",
		Bucket:        "swidget",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999" // Non-existent port

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}

	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := &Client{}

	err := client.HealthCheck(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestWritesDisconnectedAreNoOps(t *testing.T) {
	client := &Client{}

	// Must not panic or block on a disconnected client.
	client.WritePowerMetric("outlet-kitchen", "0", 23.5)
	client.WriteSensorMetric("outlet-kitchen", "temperature", 21.0)
	client.WriteSignalStrength("outlet-kitchen", -52)
	client.WritePoint("custom", map[string]string{"a": "b"}, map[string]interface{}{"v": 1.0})
	client.Flush()
}
