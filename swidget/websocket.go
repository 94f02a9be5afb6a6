package swidget

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Websocket timing and sizing defaults.
const (
	// defaultHandshakeTimeout is the maximum time for the websocket upgrade.
	defaultHandshakeTimeout = 10 * time.Second

	// defaultRetryInterval is the base delay between reconnection attempts.
	// It doubles on every consecutive failure.
	defaultRetryInterval = 30 * time.Second

	// defaultWriteTimeout bounds a single frame write.
	defaultWriteTimeout = 5 * time.Second

	// defaultHeartbeatInterval is how often a ping frame is sent to keep the
	// connection alive through NAT/router idle timeouts.
	defaultHeartbeatInterval = 30 * time.Second

	// sendAttempts is the bounded retry budget for a single outbound frame.
	sendAttempts = 3

	// sendRetryBase is the initial delay between send retries.
	sendRetryBase = time.Second

	// inboxSize is the capacity of the inbound message mailbox.
	inboxSize = 64
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Message is a decoded frame received from the device.
//
// RequestID carries the request-kind tag ("summary", "state",
// "DYNAMIC_UPDATE", "command", ...) used for routing; Raw is the complete
// frame, since the device places the summary/state body at the top level of
// the frame rather than in a nested payload.
type Message struct {
	RequestID string
	Raw       json.RawMessage
}

// outboundFrame is the wire form of a message sent to the device.
type outboundFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Payload   any    `json:"payload,omitempty"`
}

// WebsocketConfig holds connection settings for a device websocket.
type WebsocketConfig struct {
	// Host is the device hostname or IP address.
	Host string

	// TokenName is the identity header name (e.g. "x-secret-key").
	TokenName string

	// SecretKey is the shared secret expected by the device.
	SecretKey string

	// UseTLS selects wss:// over ws://.
	UseTLS bool

	// RetryInterval is the base reconnect delay. Default: 30 seconds.
	RetryInterval time.Duration

	// MaxRetries bounds consecutive reconnection attempts before the run
	// loop gives up. 0 means retry forever.
	MaxRetries int

	// Logger receives connection lifecycle logging. Optional.
	Logger Logger
}

// WebsocketStatus is a point-in-time snapshot of the connection.
type WebsocketStatus struct {
	Host          string
	Connected     bool
	Closing       bool
	Running       bool
	RetryInterval time.Duration
	MaxRetries    int
	RetryCount    int
	FramesRx      uint64
	FramesTx      uint64
	FramesDropped uint64
	Reconnects    uint64
}

// Websocket maintains at most one live duplex connection to a single device
// and delivers decoded inbound messages through the Messages mailbox.
//
// Thread Safety: all methods are safe for concurrent use. The receive loop
// (Run) is the only writer to the mailbox; consuming from Messages on a
// single goroutine preserves device delivery order.
//
// Connection-state discipline: every failure path that invalidates the
// connection clears the handle before returning, so Connected never reports
// true when sending or receiving would fail.
type Websocket struct {
	cfg    WebsocketConfig
	uri    string
	dialer *websocket.Dialer
	logger Logger

	conn    *websocket.Conn
	connMu  sync.RWMutex
	writeMu sync.Mutex
	closing bool

	running    atomic.Bool
	retryCount atomic.Int32

	inbox chan Message
	done  *closeOnce

	framesRx      atomic.Uint64
	framesTx      atomic.Uint64
	framesDropped atomic.Uint64
	reconnects    atomic.Uint64
}

// NewWebsocket creates an unconnected websocket client for a device.
func NewWebsocket(cfg WebsocketConfig) *Websocket {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	scheme := "ws"
	if cfg.UseTLS {
		scheme = "wss"
	}
	return &Websocket{
		cfg:    cfg,
		uri:    fmt.Sprintf("%s://%s/api/v1/sock?%s=%s", scheme, cfg.Host, cfg.TokenName, cfg.SecretKey),
		logger: logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultHandshakeTimeout,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, //nolint:gosec // device certs are self-signed
			},
		},
		inbox: make(chan Message, inboxSize),
		done:  newCloseOnce(),
	}
}

// Connect performs the websocket handshake against the device.
//
// Idempotent: returns nil immediately when already connected. On failure the
// error is propagated to the caller (the caller owns retry policy; the Run
// loop applies its own backoff) and the connection handle stays cleared.
func (w *Websocket) Connect(ctx context.Context) error {
	if w.Connected() {
		return nil
	}
	select {
	case <-w.done.Done():
		return fmt.Errorf("%w: websocket closed", ErrConnectionFailed)
	default:
	}

	header := http.Header{}
	header.Set(w.cfg.TokenName, w.cfg.SecretKey)

	conn, resp, err := w.dialer.DialContext(ctx, w.uri, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return fmt.Errorf("%w: resolve %s: %w", ErrConnectivity, w.cfg.Host, err)
		}
		if resp != nil && resp.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: websocket upgrade", ErrAuthentication)
		}
		return fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, w.cfg.Host, err)
	}

	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()
	w.retryCount.Store(0)

	w.logger.Debug("websocket connected", "host", w.cfg.Host)
	return nil
}

// Send serializes a frame and writes it to the device.
//
// Requires an active connection. A transient write failure is retried up to
// sendAttempts times with exponential backoff; the message is never silently
// dropped — after the retry budget the last error is returned.
func (w *Websocket) Send(ctx context.Context, msgType, requestID string, payload any) error {
	data, err := json.Marshal(outboundFrame{Type: msgType, RequestID: requestID, Payload: payload})
	if err != nil {
		return fmt.Errorf("%w: encode frame: %w", ErrRequestFailed, err)
	}

	var lastErr error
	delay := sendRetryBase
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		w.connMu.RLock()
		conn := w.conn
		w.connMu.RUnlock()
		if conn == nil {
			return ErrNotConnected
		}

		w.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)) //nolint:errcheck
		lastErr = conn.WriteMessage(websocket.TextMessage, data)
		w.writeMu.Unlock()

		if lastErr == nil {
			w.framesTx.Add(1)
			return nil
		}

		w.logger.Warn("websocket send failed",
			"host", w.cfg.Host, "attempt", attempt, "error", lastErr)
		if attempt == sendAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrRequestFailed, ctx.Err())
		case <-w.done.Done():
			return ErrNotConnected
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%w: send after %d attempts: %w", ErrRequestFailed, sendAttempts, lastErr)
}

// Messages returns the inbound mailbox. A single consumer draining this
// channel observes messages in the order the device delivered them. The
// channel is closed when the run loop exits permanently.
func (w *Websocket) Messages() <-chan Message {
	return w.inbox
}

// Run supervises the connection: while the client is not closed it ensures a
// connection exists (reconnecting with exponential backoff, bounded by
// MaxRetries) and drains inbound frames into the mailbox.
//
// Returns nil on Close or context cancellation, or ErrConnectionFailed when
// the retry budget is exhausted. Cancellation closes the active connection
// so the loop terminates within one in-flight receive. Run may be called at
// most once per Websocket; it closes the mailbox on exit.
func (w *Websocket) Run(ctx context.Context) error {
	w.running.Store(true)
	defer w.running.Store(false)
	defer close(w.inbox)

	// Unblock a pending read when the caller cancels.
	stop := context.AfterFunc(ctx, func() { w.dropConn() })
	defer stop()

	// Keepalive pings ride alongside the (blocking) receive loop.
	pingStop := make(chan struct{})
	defer close(pingStop)
	go w.heartbeat(pingStop)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done.Done():
			return nil
		default:
		}

		if !w.Connected() {
			if err := w.reconnect(ctx); err != nil {
				return err
			}
			continue
		}

		msg, ok := w.receive()
		if !ok {
			continue
		}

		select {
		case w.inbox <- msg:
		default:
			// Mailbox full: drop rather than block the receive loop.
			w.framesDropped.Add(1)
			w.logger.Warn("inbound mailbox full, dropping message",
				"host", w.cfg.Host, "request_id", msg.RequestID)
		}
	}
}

// reconnect waits out the backoff delay and attempts one handshake.
// Returns ErrConnectionFailed once MaxRetries consecutive attempts failed.
func (w *Websocket) reconnect(ctx context.Context) error {
	if w.cfg.MaxRetries > 0 && int(w.retryCount.Load()) >= w.cfg.MaxRetries {
		w.logger.Error("websocket reconnect attempts exhausted",
			"host", w.cfg.Host, "max_retries", w.cfg.MaxRetries)
		return fmt.Errorf("%w: %d reconnect attempts exhausted", ErrConnectionFailed, w.cfg.MaxRetries)
	}

	attempt := w.retryCount.Add(1)
	delay := w.cfg.RetryInterval << (attempt - 1)
	if delay <= 0 || delay > maxReconnectDelay {
		delay = maxReconnectDelay
	}
	w.logger.Info("websocket reconnecting",
		"host", w.cfg.Host, "attempt", attempt, "delay", delay.String())

	select {
	case <-ctx.Done():
		return nil
	case <-w.done.Done():
		return nil
	case <-time.After(delay):
	}

	if err := w.Connect(ctx); err != nil {
		w.logger.Warn("websocket reconnect failed", "host", w.cfg.Host, "error", err)
		return nil
	}
	w.reconnects.Add(1)
	return nil
}

// maxReconnectDelay caps the exponential backoff between attempts.
const maxReconnectDelay = 10 * time.Minute

// receive reads and classifies one frame.
//
// Text frames decode into a Message. Close frames and protocol errors
// terminate the current connection by clearing the handle; the run loop
// then decides whether to reconnect.
func (w *Websocket) receive() (Message, bool) {
	w.connMu.RLock()
	conn := w.conn
	w.connMu.RUnlock()
	if conn == nil {
		return Message{}, false
	}

	frameType, data, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			w.logger.Debug("websocket closed by device", "host", w.cfg.Host)
		} else if !w.isClosed() {
			w.logger.Warn("websocket receive failed", "host", w.cfg.Host, "error", err)
		}
		w.dropConn()
		return Message{}, false
	}
	if frameType != websocket.TextMessage {
		return Message{}, false
	}

	var envelope struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		w.logger.Warn("undecodable websocket frame", "host", w.cfg.Host, "error", err)
		return Message{}, false
	}

	w.framesRx.Add(1)
	return Message{RequestID: envelope.RequestID, Raw: data}, true
}

// heartbeat pings the device periodically until stop is closed.
func (w *Websocket) heartbeat(stop <-chan struct{}) {
	ticker := time.NewTicker(defaultHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-w.done.Done():
			return
		case <-ticker.C:
			w.ping()
		}
	}
}

// ping sends a keepalive control frame. Failures are left for the read side
// to notice.
func (w *Websocket) ping() {
	w.connMu.RLock()
	conn := w.conn
	w.connMu.RUnlock()
	if conn == nil {
		return
	}
	conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(defaultWriteTimeout)) //nolint:errcheck
}

// dropConn clears the connection handle, closing the socket if present.
func (w *Websocket) dropConn() {
	w.connMu.Lock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connMu.Unlock()
}

// Close tears the connection down.
//
// Idempotent, and synchronous with respect to connection-state reporting:
// after Close returns, Connected reports false. The underlying transport is
// released even when already disconnected.
func (w *Websocket) Close() error {
	w.connMu.Lock()
	w.closing = true
	conn := w.conn
	w.conn = nil
	w.connMu.Unlock()

	w.done.Close()

	if conn != nil {
		// Best-effort close handshake before dropping the socket.
		conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(defaultWriteTimeout))
		return conn.Close()
	}
	return nil
}

// Connected reports whether a live connection handle exists.
func (w *Websocket) Connected() bool {
	w.connMu.RLock()
	defer w.connMu.RUnlock()
	return w.conn != nil && !w.closing
}

// IsRunning reports whether the run loop is active. It turns false when the
// loop exits, including after reconnect exhaustion.
func (w *Websocket) IsRunning() bool {
	return w.running.Load()
}

func (w *Websocket) isClosed() bool {
	select {
	case <-w.done.Done():
		return true
	default:
		return false
	}
}

// Status returns a snapshot of the connection state and counters.
func (w *Websocket) Status() WebsocketStatus {
	w.connMu.RLock()
	closing := w.closing
	w.connMu.RUnlock()

	return WebsocketStatus{
		Host:          w.cfg.Host,
		Connected:     w.Connected(),
		Closing:       closing,
		Running:       w.running.Load(),
		RetryInterval: w.cfg.RetryInterval,
		MaxRetries:    w.cfg.MaxRetries,
		RetryCount:    int(w.retryCount.Load()),
		FramesRx:      w.framesRx.Load(),
		FramesTx:      w.framesTx.Load(),
		FramesDropped: w.framesDropped.Load(),
		Reconnects:    w.reconnects.Load(),
	}
}
