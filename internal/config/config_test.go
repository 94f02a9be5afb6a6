package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
bridge:
  id: "bridge-house"
devices:
  - id: "outlet-kitchen"
    host: "192.168.1.40"
    secret_key: "kitchen-secret"
    websocket: true
  - id: "dimmer-hall"
    host: "192.168.1.41"
    secret_key: "hall-secret"
    tls: true
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
`
	cfg, err := Load(writeTestConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.ID != "bridge-house" {
		t.Errorf("Bridge.ID = %q, want %q", cfg.Bridge.ID, "bridge-house")
	}
	if len(cfg.Devices) != 2 {
		t.Fatalf("len(Devices) = %d, want 2", len(cfg.Devices))
	}
	if cfg.Devices[0].Host != "192.168.1.40" {
		t.Errorf("Devices[0].Host = %q, want %q", cfg.Devices[0].Host, "192.168.1.40")
	}
	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
}

func TestLoad_DeviceDefaults(t *testing.T) {
	content := `
devices:
  - id: "outlet-kitchen"
    host: "192.168.1.40"
    secret_key: "kitchen-secret"
`
	cfg, err := Load(writeTestConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	d := cfg.Devices[0]
	if d.TokenName != "x-secret-key" {
		t.Errorf("TokenName = %q, want default %q", d.TokenName, "x-secret-key")
	}
	if d.ReconnectInterval != 30*time.Second {
		t.Errorf("ReconnectInterval = %v, want 30s", d.ReconnectInterval)
	}
	if cfg.Telemetry.Interval != 30*time.Second {
		t.Errorf("Telemetry.Interval = %v, want default 30s", cfg.Telemetry.Interval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeTestConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SWIDGET_MQTT_HOST", "broker.example.com")
	t.Setenv("SWIDGET_INFLUXDB_TOKEN", "env-token")

	content := `
devices:
  - id: "outlet-kitchen"
    host: "192.168.1.40"
    secret_key: "kitchen-secret"
mqtt:
  broker:
    host: "file-host"
influxdb:
  enabled: true
  url: "http://localhost:8086"
  org: "home"
  bucket: "swidget"
`
	cfg, err := Load(writeTestConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
	if cfg.InfluxDB.Token != "env-token" {
		t.Errorf("InfluxDB.Token = %q, want env override", cfg.InfluxDB.Token)
	}
}

func TestConfig_Validate(t *testing.T) {
	validDevice := DeviceConfig{
		ID:        "outlet-kitchen",
		Host:      "192.168.1.40",
		SecretKey: "secret",
	}

	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Devices = []DeviceConfig{validDevice}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "no devices",
			mutate:  func(c *Config) { c.Devices = nil },
			wantErr: true,
		},
		{
			name: "duplicate device id",
			mutate: func(c *Config) {
				c.Devices = append(c.Devices, validDevice)
			},
			wantErr: true,
		},
		{
			name:    "missing device host",
			mutate:  func(c *Config) { c.Devices[0].Host = "" },
			wantErr: true,
		},
		{
			name:    "missing device secret",
			mutate:  func(c *Config) { c.Devices[0].SecretKey = "" },
			wantErr: true,
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "influxdb enabled without token",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.URL = "http://localhost:8086" },
			wantErr: true,
		},
		{
			name:    "telemetry interval too small",
			mutate:  func(c *Config) { c.Telemetry.Interval = 100 * time.Millisecond },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
