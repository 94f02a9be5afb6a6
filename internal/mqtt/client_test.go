package mqtt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/swidget-go/internal/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "swidget-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	err := client.Close()
	if err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := &Client{}

	err := client.HealthCheck(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	client := &Client{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.HealthCheck(ctx)
	if err == nil || errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want context error", err)
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{}

	tests := []struct {
		name    string
		topic   string
		qos     byte
		wantErr error
	}{
		{
			name:    "empty topic",
			topic:   "",
			qos:     1,
			wantErr: ErrInvalidTopic,
		},
		{
			name:    "invalid qos",
			topic:   "swidget/state/outlet",
			qos:     3,
			wantErr: ErrInvalidQoS,
		},
		{
			name:    "disconnected",
			topic:   "swidget/state/outlet",
			qos:     1,
			wantErr: ErrNotConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, []byte("{}"), tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishOversizedPayload(t *testing.T) {
	client := &Client{}

	payload := make([]byte, maxPayloadSize+1)
	err := client.Publish("swidget/state/outlet", payload, 1, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	if err := client.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Subscribe("swidget/command/+", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidQoS", err)
	}
	if err := client.Subscribe("swidget/command/+", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if err := client.Subscribe("swidget/command/+", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0 after failed subscribes", client.SubscriptionCount())
	}
}

func TestUnsubscribeValidation(t *testing.T) {
	client := &Client{}

	if err := client.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe() error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Unsubscribe("swidget/command/+"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "bridge"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("len(Servers) = %d, want 1", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://127.0.0.1:1883" {
		t.Errorf("broker URL = %q, want tcp://127.0.0.1:1883", got)
	}
	if opts.ClientID != "swidget-test" {
		t.Errorf("ClientID = %q, want swidget-test", opts.ClientID)
	}
	if opts.Username != "bridge" {
		t.Errorf("Username = %q, want bridge", opts.Username)
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].String(); got != "ssl://127.0.0.1:8883" {
		t.Errorf("broker URL = %q, want ssl://127.0.0.1:8883", got)
	}
	if opts.TLSConfig == nil {
		t.Fatal("TLSConfig is nil, want configured")
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("swidget-test")
	if !strings.Contains(online, `"status":"online"`) || !strings.Contains(online, "swidget-test") {
		t.Errorf("online payload = %s", online)
	}

	offline := buildOfflinePayload("swidget-test")
	if !strings.Contains(offline, `"status":"offline"`) || !strings.Contains(offline, "graceful_shutdown") {
		t.Errorf("offline payload = %s", offline)
	}
}

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name: "DeviceState",
			builder: func() string {
				return Topics{}.DeviceState("outlet-kitchen")
			},
			expected: "swidget/state/outlet-kitchen",
		},
		{
			name: "DeviceEvent",
			builder: func() string {
				return Topics{}.DeviceEvent("outlet-kitchen")
			},
			expected: "swidget/event/outlet-kitchen",
		},
		{
			name: "DeviceCommand",
			builder: func() string {
				return Topics{}.DeviceCommand("outlet-kitchen")
			},
			expected: "swidget/command/outlet-kitchen",
		},
		{
			name: "DeviceAvailability",
			builder: func() string {
				return Topics{}.DeviceAvailability("outlet-kitchen")
			},
			expected: "swidget/availability/outlet-kitchen",
		},
		{
			name: "SystemStatus",
			builder: func() string {
				return Topics{}.SystemStatus()
			},
			expected: "swidget/system/status",
		},
		{
			name: "AllDeviceCommands",
			builder: func() string {
				return Topics{}.AllDeviceCommands()
			},
			expected: "swidget/command/+",
		},
		{
			name: "AllDeviceStates",
			builder: func() string {
				return Topics{}.AllDeviceStates()
			},
			expected: "swidget/state/+",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.builder()
			if result != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, result, tt.expected)
			}
		})
	}
}

func TestDeviceIDFromCommand(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"swidget/command/outlet-kitchen", "outlet-kitchen"},
		{"swidget/command/", ""},
		{"swidget/state/outlet-kitchen", ""},
		{"other/command/outlet-kitchen", ""},
	}

	for _, tt := range tests {
		if got := (Topics{}).DeviceIDFromCommand(tt.topic); got != tt.want {
			t.Errorf("DeviceIDFromCommand(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}
