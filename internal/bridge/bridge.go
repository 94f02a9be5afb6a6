package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/swidget-go/internal/config"
	"github.com/nerrad567/swidget-go/internal/mqtt"
	"github.com/nerrad567/swidget-go/swidget"
)

// Bridge operation constants.
const (
	// commandTimeout bounds the forwarding of one MQTT command to a device.
	commandTimeout = 10 * time.Second

	// updateTimeout bounds one telemetry refresh per device.
	updateTimeout = 15 * time.Second

	// observerID is the id the bridge registers its session observers under.
	observerID = "bridge"
)

// Bridge maintains sessions with the configured Swidget devices and
// translates between them and MQTT:
//   - Inbound channel messages are republished as event envelopes
//   - Device state snapshots are published retained on every push
//   - Commands received over MQTT are forwarded to the device
//   - Periodic telemetry is written to InfluxDB (optional)
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg      *config.Config
	mqtt     Publisher
	metrics  MetricsWriter
	sessions map[string]Session

	// Shutdown coordination
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// Publisher is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type Publisher interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// MetricsWriter receives periodic device telemetry.
// Satisfied by *influxdb.Client. Optional — if nil, telemetry is not recorded.
type MetricsWriter interface {
	WritePowerMetric(deviceID, componentID string, watts float64)
	WriteSensorMetric(deviceID, sensor string, value float64)
	WriteSignalStrength(deviceID string, rssi int)
}

// Session is the per-device surface the bridge drives.
// Satisfied by *swidget.Device.
type Session interface {
	Start(ctx context.Context) error
	Stop() bool
	Update(ctx context.Context) error
	SendCommand(ctx context.Context, assembly, component, function string, command map[string]any) error
	AddObserver(id string, fn swidget.Observer) bool
	Connected() bool
	FriendlyName() string
	RealtimeValues() (map[string]any, error)
	Host() string
}

// SessionFactory builds a Session for one configured device.
// The default factory creates a swidget.Device.
type SessionFactory func(cfg config.DeviceConfig, logger swidget.Logger) Session

// Logger is the interface for optional structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options holds configuration for creating a bridge.
type Options struct {
	// Config is the loaded bridge configuration.
	Config *config.Config

	// Publisher is the MQTT client implementation.
	Publisher Publisher

	// Metrics is optional telemetry storage. If nil, telemetry is skipped.
	Metrics MetricsWriter

	// Logger is optional structured logger.
	Logger Logger

	// Sessions is an optional session factory, used by tests.
	// If nil, real device sessions are created.
	Sessions SessionFactory
}

// defaultSessionFactory creates a real device session.
func defaultSessionFactory(cfg config.DeviceConfig, logger swidget.Logger) Session {
	return swidget.New(swidget.Config{
		Host:          cfg.Host,
		TokenName:     cfg.TokenName,
		SecretKey:     cfg.SecretKey,
		UseTLS:        cfg.TLS,
		UseWebsocket:  cfg.Websocket,
		RetryInterval: cfg.ReconnectInterval,
		MaxRetries:    cfg.MaxReconnectAttempts,
		Logger:        logger,
	})
}

// New creates a bridge instance. Call Start() to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.Config == nil || len(opts.Config.Devices) == 0 {
		return nil, ErrNoDevices
	}
	if opts.Publisher == nil {
		return nil, ErrNoPublisher
	}

	factory := opts.Sessions
	if factory == nil {
		factory = defaultSessionFactory
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:      opts.Config,
		mqtt:     opts.Publisher,
		metrics:  opts.Metrics,
		sessions: make(map[string]Session, len(opts.Config.Devices)),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		logger:   opts.Logger,
	}

	var sessionLogger swidget.Logger
	if opts.Logger != nil {
		sessionLogger = opts.Logger
	}
	for _, dev := range opts.Config.Devices {
		b.sessions[dev.ID] = factory(dev, sessionLogger)
	}

	return b, nil
}

// Start begins bridge operation.
//
// It starts every device session, registers event observers, subscribes to
// the command topic, and launches the telemetry loop. Devices that fail to
// start are reported offline and retried by the telemetry loop; Start fails
// only when the command subscription cannot be established.
func (b *Bridge) Start(ctx context.Context) error {
	commandTopic := mqtt.Topics{}.AllDeviceCommands()
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleCommandMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	for id, sess := range b.sessions {
		deviceID := id
		sess.AddObserver(observerID, func(msg swidget.Message) {
			b.handleDeviceMessage(deviceID, msg)
		})

		if err := sess.Start(ctx); err != nil {
			b.logError("device session start failed", err, "device", deviceID)
			b.publishAvailability(deviceID, false)
			continue
		}
		b.publishAvailability(deviceID, true)
		b.publishState(deviceID, sess)
		b.logInfo("device session started",
			"device", deviceID,
			"host", sess.Host(),
			"channel", sess.Connected())
	}

	b.wg.Add(1)
	go b.telemetryLoop()

	b.logInfo("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"devices", len(b.sessions))

	return nil
}

// Stop gracefully shuts down the bridge and all device sessions.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.cancel()

		for id, sess := range b.sessions {
			if !sess.Stop() {
				b.logWarn("device session stop reported failure", "device", id)
			}
			b.publishAvailability(id, false)
		}

		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// handleCommandMessage parses a command from MQTT and forwards it to the
// addressed device.
func (b *Bridge) handleCommandMessage(topic string, payload []byte) {
	deviceID := (mqtt.Topics{}).DeviceIDFromCommand(topic)
	if deviceID == "" {
		b.logError("invalid command topic", fmt.Errorf("topic: %s", topic))
		return
	}

	if err := b.forwardCommand(deviceID, payload); err != nil {
		b.logError("command failed", err, "device", deviceID)
	}
}

// forwardCommand validates and sends one command payload to a device session.
func (b *Bridge) forwardCommand(deviceID string, payload []byte) error {
	sess, ok := b.sessions[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if cmd.Assembly == "" || cmd.Component == "" || cmd.Function == "" || len(cmd.Value) == 0 {
		return fmt.Errorf("%w: assembly, component, function and value are required", ErrInvalidCommand)
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := sess.SendCommand(ctx, cmd.Assembly, cmd.Component, cmd.Function, cmd.Value); err != nil {
		return err
	}

	// The command echo has been folded into the mirror; publish the result.
	b.publishState(deviceID, sess)
	return nil
}

// handleDeviceMessage republishes an inbound channel message as an event
// envelope and refreshes the retained state snapshot.
func (b *Bridge) handleDeviceMessage(deviceID string, msg swidget.Message) {
	envelope := NewEventEnvelope(deviceID, msg.RequestID, msg.Raw)

	payload, err := json.Marshal(envelope)
	if err != nil {
		b.logError("failed to marshal event", err, "device", deviceID)
		return
	}

	topic := mqtt.Topics{}.DeviceEvent(deviceID)
	if err := b.mqtt.Publish(topic, payload, byte(b.cfg.MQTT.QoS), false); err != nil {
		b.logError("failed to publish event", err, "device", deviceID)
	}

	if sess, ok := b.sessions[deviceID]; ok {
		b.publishState(deviceID, sess)
	}
}

// publishState publishes the retained realtime-values snapshot for a device.
func (b *Bridge) publishState(deviceID string, sess Session) {
	values, err := sess.RealtimeValues()
	if err != nil {
		b.logDebug("state snapshot unavailable", "device", deviceID, "reason", err.Error())
		return
	}

	msg := NewStateMessage(deviceID, sess.FriendlyName(), values)
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err, "device", deviceID)
		return
	}

	topic := mqtt.Topics{}.DeviceState(deviceID)
	if err := b.mqtt.Publish(topic, payload, byte(b.cfg.MQTT.QoS), true); err != nil {
		b.logError("failed to publish state", err, "device", deviceID)
	}
}

// publishAvailability publishes the retained online/offline marker.
func (b *Bridge) publishAvailability(deviceID string, online bool) {
	payload := []byte("offline")
	if online {
		payload = []byte("online")
	}

	topic := mqtt.Topics{}.DeviceAvailability(deviceID)
	if err := b.mqtt.Publish(topic, payload, byte(b.cfg.MQTT.QoS), true); err != nil {
		b.logError("failed to publish availability", err, "device", deviceID)
	}
}

// telemetryLoop periodically refreshes every session and records telemetry.
func (b *Bridge) telemetryLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.Telemetry.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.pollDevices()
		}
	}
}

// pollDevices runs one telemetry pass over all sessions.
func (b *Bridge) pollDevices() {
	for id, sess := range b.sessions {
		ctx, cancel := context.WithTimeout(b.ctx, updateTimeout)
		err := sess.Update(ctx)
		cancel()

		if err != nil {
			b.logWarn("device refresh failed", "device", id, "error", err)
			b.publishAvailability(id, false)
			continue
		}

		b.publishAvailability(id, true)
		b.publishState(id, sess)
		b.recordTelemetry(id, sess)
	}
}

// recordTelemetry extracts metrics from a device's realtime values and
// writes them to the metrics store.
func (b *Bridge) recordTelemetry(deviceID string, sess Session) {
	if b.metrics == nil {
		return
	}

	values, err := sess.RealtimeValues()
	if err != nil {
		return
	}

	for key, value := range values {
		switch {
		case strings.HasPrefix(key, "power_"):
			if watts, ok := toFloat(value); ok {
				b.metrics.WritePowerMetric(deviceID, strings.TrimPrefix(key, "power_"), watts)
			}
		case key == "rssi":
			if rssi, ok := toFloat(value); ok {
				b.metrics.WriteSignalStrength(deviceID, int(rssi))
			}
		default:
			if v, ok := toFloat(value); ok {
				b.metrics.WriteSensorMetric(deviceID, key, v)
			}
		}
	}
}

// toFloat normalizes the numeric types that appear in decoded JSON values.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning message if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		args := append([]any{"error", err}, keysAndValues...)
		logger.Error(msg, args...)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
