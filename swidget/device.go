package swidget

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// API paths served by the device's embedded web server.
const (
	apiBase = "/api/v1"

	pathSummary       = apiBase + "/summary"
	pathState         = apiBase + "/state"
	pathName          = apiBase + "/name"
	pathDeviceConfig  = apiBase + "/device_config"
	pathCommand       = apiBase + "/command"
	pathReset         = apiBase + "/reset"
	pathUpdate        = apiBase + "/update"
	pathUpdateVersion = apiBase + "/update/version"
	pathPing          = "/ping"
	pathBlink         = "/blink"
	pathDebug         = "/debug"
)

// Request-kind tags carried by duplex channel frames.
const (
	requestSummary       = "summary"
	requestState         = "state"
	requestCommand       = "command"
	requestConfig        = "config"
	requestSendConfig    = "send_config"
	requestDynamicUpdate = "DYNAMIC_UPDATE"
)

// updateDebounce is the window within which a repeated Update is a no-op.
const updateDebounce = 5 * time.Second

// defaultTokenName is the identity header used when none is configured.
const defaultTokenName = "x-secret-key"

// Config holds the construction parameters for a device session.
type Config struct {
	// Host is the device hostname or IP address.
	Host string

	// TokenName is the identity header name. Default: "x-secret-key".
	TokenName string

	// SecretKey is the shared secret the device expects on every request.
	SecretKey string

	// UseTLS selects https/wss over http/ws. Production devices require TLS.
	UseTLS bool

	// UseWebsocket enables the persistent duplex channel. Without it all
	// traffic is request/response over HTTP and config pushes are
	// unavailable.
	UseWebsocket bool

	// RetryInterval is the base websocket reconnect delay. Default: 30s.
	RetryInterval time.Duration

	// MaxRetries bounds consecutive websocket reconnection attempts.
	// 0 means retry forever.
	MaxRetries int

	// Logger receives structured session logging. Optional.
	Logger Logger
}

// Observer receives every inbound channel message after routing completes.
type Observer func(Message)

// observerEntry preserves registration order for fan-out.
type observerEntry struct {
	id string
	fn Observer
}

// HardwareInfo is a point-in-time selection of hardware-related attributes.
type HardwareInfo struct {
	Model          string
	MACAddress     string
	Version        string
	ID             string
	DeviceType     DeviceType
	InsertType     InsertType
	HostFeatures   []string
	InsertFeatures []string
	RSSI           *int
}

// Device is a session with one Swidget device.
//
// It unifies the two data-retrieval transports — request/response HTTP calls
// and the persistent duplex channel — over a single in-memory state mirror,
// and fans inbound channel messages out to registered observers.
//
// Thread Safety: all methods are safe for concurrent use. Inbound messages
// are dispatched by a single consumer goroutine, so routing and observer
// notification preserve device delivery order.
type Device struct {
	cfg       Config
	logger    Logger
	transport *transport
	ws        *Websocket // nil when the duplex channel is disabled
	mirror    *mirror
	devConfig *DeviceConfiguration

	nameMu       sync.RWMutex
	friendlyName string

	obsMu     sync.Mutex
	observers []observerEntry

	// updateMu serializes Update so concurrent callers cannot interleave
	// bootstrap steps or defeat the debounce.
	updateMu sync.Mutex

	stopped   atomic.Bool
	cancelRun context.CancelFunc
	loops     sync.WaitGroup
}

// New creates a session for a device at a known address. No network traffic
// happens until Start, Update or a command is issued.
func New(cfg Config) *Device {
	if cfg.TokenName == "" {
		cfg.TokenName = defaultTokenName
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	d := &Device{
		cfg:       cfg,
		logger:    logger,
		transport: newTransport(cfg.Host, cfg.TokenName, cfg.SecretKey, cfg.UseTLS),
		mirror:    newMirror(),
		devConfig: NewDeviceConfiguration(nil),
	}
	if cfg.UseWebsocket {
		d.ws = NewWebsocket(WebsocketConfig{
			Host:          cfg.Host,
			TokenName:     cfg.TokenName,
			SecretKey:     cfg.SecretKey,
			UseTLS:        cfg.UseTLS,
			RetryInterval: cfg.RetryInterval,
			MaxRetries:    cfg.MaxRetries,
			Logger:        logger,
		})
	}
	return d
}

// Websocket returns the duplex channel client, or ErrConfigUnavailable when
// the session was constructed without websocket support.
func (d *Device) Websocket() (*Websocket, error) {
	if d.ws == nil {
		return nil, ErrConfigUnavailable
	}
	return d.ws, nil
}

// Connected reports whether the duplex channel is currently live.
// Always false for sessions without websocket support.
func (d *Device) Connected() bool {
	return d.ws != nil && d.ws.Connected()
}

// Connect opens the duplex channel without starting the receive loop.
// Most callers want Start instead.
func (d *Device) Connect(ctx context.Context) error {
	if d.stopped.Load() {
		return ErrStopped
	}
	if d.ws == nil {
		return ErrConfigUnavailable
	}
	return d.ws.Connect(ctx)
}

// Start opens the duplex channel (when enabled), launches the receive and
// dispatch loops, and performs the initial full synchronization.
func (d *Device) Start(ctx context.Context) error {
	if d.stopped.Load() {
		return ErrStopped
	}
	if d.ws != nil {
		if !d.ws.Connected() {
			if err := d.ws.Connect(ctx); err != nil {
				return err
			}
		}
		runCtx, cancel := context.WithCancel(context.Background())
		d.cancelRun = cancel

		d.loops.Add(2)
		go func() {
			defer d.loops.Done()
			if err := d.ws.Run(runCtx); err != nil {
				d.logger.Error("websocket run loop ended", "host", d.cfg.Host, "error", err)
			}
		}()
		go func() {
			defer d.loops.Done()
			d.dispatch()
		}()
	}
	return d.Update(ctx)
}

// Stop tears the session down: the duplex channel is closed and the HTTP
// transport released. Both steps are attempted even if one fails, and the
// result is true only when neither step failed. A stopped session is
// terminal; only a fresh New yields a usable session again.
func (d *Device) Stop() bool {
	if d.stopped.Swap(true) {
		return true
	}

	ok := true
	if d.cancelRun != nil {
		d.cancelRun()
	}
	if d.ws != nil {
		if err := d.ws.Close(); err != nil {
			d.logger.Warn("websocket close failed", "host", d.cfg.Host, "error", err)
			ok = false
		}
	}
	d.transport.close()
	d.loops.Wait()
	return ok
}

// Disconnect is an alias for Stop, mirroring the device API vocabulary.
func (d *Device) Disconnect() bool {
	return d.Stop()
}

// dispatch is the single consumer of the websocket mailbox. It exits when
// the run loop closes the mailbox.
func (d *Device) dispatch() {
	for msg := range d.ws.Messages() {
		d.handleMessage(msg)
	}
}

// handleMessage routes one inbound message by its request-kind tag and then
// notifies every observer, in registration order, regardless of whether
// routing succeeded.
func (d *Device) handleMessage(msg Message) {
	switch msg.RequestID {
	case requestSummary:
		var s Summary
		if err := json.Unmarshal(msg.Raw, &s); err != nil {
			d.logger.Warn("undecodable summary message", "host", d.cfg.Host, "error", err)
			break
		}
		if err := d.mirror.applySummary(s); err != nil {
			d.logger.Warn("summary rejected", "host", d.cfg.Host, "error", err)
		}
	case requestState, requestDynamicUpdate, requestCommand:
		var st State
		if err := json.Unmarshal(msg.Raw, &st); err != nil {
			d.logger.Warn("undecodable state message", "host", d.cfg.Host, "error", err)
			break
		}
		d.mirror.applyState(st)
	default:
		d.logger.Warn("unrecognized message type", "host", d.cfg.Host, "request_id", msg.RequestID)
	}

	d.obsMu.Lock()
	observers := make([]observerEntry, len(d.observers))
	copy(observers, d.observers)
	d.obsMu.Unlock()

	for _, entry := range observers {
		entry.fn(msg)
	}
}

// AddObserver registers a callback for inbound channel messages under the
// given id. Returns false when the id is already registered; the duplicate
// is not added.
func (d *Device) AddObserver(id string, fn Observer) bool {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()

	for _, entry := range d.observers {
		if entry.id == id {
			d.logger.Warn("observer already registered", "id", id)
			return false
		}
	}
	d.observers = append(d.observers, observerEntry{id: id, fn: fn})
	return true
}

// RemoveObserver unregisters a callback. Returns false when the id is not
// registered.
func (d *Device) RemoveObserver(id string) bool {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()

	for i, entry := range d.observers {
		if entry.id == id {
			d.observers = append(d.observers[:i], d.observers[i+1:]...)
			return true
		}
	}
	return false
}

// Update synchronizes the in-memory mirror with the device.
//
// The first call performs a full bootstrap over HTTP — summary, state,
// friendly name, device config, in that order — so the mirror is populated
// when it returns. Name lookup failure is substituted with a synthesized
// name; summary, state and config failures propagate. Within 5 seconds of
// the last synchronization Update is a no-op. Later calls refresh summary
// and state only, over the channel when it is connected.
func (d *Device) Update(ctx context.Context) error {
	if d.stopped.Load() {
		return ErrStopped
	}
	d.updateMu.Lock()
	defer d.updateMu.Unlock()

	initialized, last := d.mirror.synchronized()
	if !initialized {
		return d.bootstrap(ctx)
	}
	if time.Since(last) < updateDebounce {
		d.logger.Debug("update debounced", "host", d.cfg.Host)
		return nil
	}
	if err := d.requestSummary(ctx); err != nil {
		return err
	}
	return d.requestState(ctx)
}

// bootstrap performs the initial full synchronization. Caller holds updateMu.
func (d *Device) bootstrap(ctx context.Context) error {
	if err := d.fetchSummary(ctx); err != nil {
		return err
	}
	if err := d.fetchState(ctx); err != nil {
		return err
	}
	d.fetchFriendlyName(ctx)
	if !d.devConfig.Populated() {
		if err := d.fetchDeviceConfig(ctx); err != nil {
			return err
		}
	}
	return nil
}

// requestSummary refreshes the summary, multiplexing over the channel when
// connected (the response arrives as a push message) and falling back to a
// synchronous HTTP call otherwise.
func (d *Device) requestSummary(ctx context.Context) error {
	if d.Connected() {
		return d.ws.Send(ctx, requestSummary, requestSummary, nil)
	}
	return d.fetchSummary(ctx)
}

func (d *Device) requestState(ctx context.Context) error {
	if d.Connected() {
		return d.ws.Send(ctx, requestState, requestState, nil)
	}
	return d.fetchState(ctx)
}

func (d *Device) fetchSummary(ctx context.Context) error {
	var s Summary
	if err := d.transport.getJSON(ctx, pathSummary, &s); err != nil {
		return err
	}
	return d.mirror.applySummary(s)
}

func (d *Device) fetchState(ctx context.Context) error {
	var st State
	if err := d.transport.getJSON(ctx, pathState, &st); err != nil {
		return err
	}
	d.mirror.applyState(st)
	return nil
}

// fetchFriendlyName retrieves the device's friendly name, substituting a
// synthesized name on failure rather than propagating the error.
func (d *Device) fetchFriendlyName(ctx context.Context) {
	var name struct {
		Name string `json:"name"`
	}
	if err := d.transport.getJSON(ctx, pathName, &name); err != nil || name.Name == "" {
		_, _, _, _, dt, it, _ := d.mirror.identity()
		name.Name = fmt.Sprintf("Swidget %s w/%s insert", dt, it)
		d.logger.Debug("friendly name lookup failed, synthesizing",
			"host", d.cfg.Host, "name", name.Name, "error", err)
	}
	d.nameMu.Lock()
	d.friendlyName = name.Name
	d.nameMu.Unlock()
}

func (d *Device) fetchDeviceConfig(ctx context.Context) error {
	var tree map[string]any
	if err := d.transport.getJSON(ctx, pathDeviceConfig, &tree); err != nil {
		return err
	}
	d.devConfig.replace(tree)
	return nil
}

// FriendlyName returns the device's friendly name, or a placeholder before
// the first synchronization.
func (d *Device) FriendlyName() string {
	d.nameMu.RLock()
	defer d.nameMu.RUnlock()
	if d.friendlyName == "" {
		return "Unknown Swidget Device"
	}
	return d.friendlyName
}

// DeviceConfig returns the lazily retrieved configuration tree. It is
// fetched exactly once per session unless InvalidateConfig is called.
func (d *Device) DeviceConfig() *DeviceConfiguration {
	return d.devConfig
}

// InvalidateConfig clears the cached device configuration so the next
// bootstrap or FetchDeviceConfig call re-retrieves it.
func (d *Device) InvalidateConfig() {
	d.devConfig.invalidate()
}

// FetchDeviceConfig forces a config retrieval outside of bootstrap.
func (d *Device) FetchDeviceConfig(ctx context.Context) error {
	if d.stopped.Load() {
		return ErrStopped
	}
	return d.fetchDeviceConfig(ctx)
}

// commandEnvelope builds the nested command body:
// {assembly: {components: {component: {function: command}}}}.
func commandEnvelope(assembly, component, function string, command map[string]any) map[string]any {
	return map[string]any{
		assembly: map[string]any{
			"components": map[string]any{
				component: map[string]any{
					function: command,
				},
			},
		},
	}
}

// commandEcho is the response shape of POST /api/v1/command.
type commandEcho map[string]struct {
	Components map[string]map[string]FunctionValue `json:"components"`
}

// SendCommand sends one function command to the device.
//
// With a connected duplex channel the command is multiplexed as a framed
// message — fire-and-forget; the device echoes the applied value later as a
// "command"-tagged state message. Without a channel the command is a single
// HTTP POST and the mirror is hard-set from the echoed function value in the
// response; if the response does not echo the value the mirror is left
// unchanged rather than guessed.
func (d *Device) SendCommand(ctx context.Context, assembly, component, function string, command map[string]any) error {
	if d.stopped.Load() {
		return ErrStopped
	}
	body := commandEnvelope(assembly, component, function, command)

	if d.Connected() {
		return d.ws.Send(ctx, requestCommand, requestCommand, body)
	}

	var echo commandEcho
	if err := d.transport.postJSON(ctx, pathCommand, body, &echo); err != nil {
		return err
	}
	if a, ok := echo[assembly]; ok {
		if functions, ok := a.Components[component]; ok {
			if value, ok := functions[function]; ok {
				d.mirror.hardSet(assembly, component, function, value)
			}
		}
	}
	return nil
}

// SendConfig pushes a configuration block to the device. Config pushes are
// only defined over the duplex channel; sessions without websocket support
// fail with ErrConfigUnavailable.
func (d *Device) SendConfig(ctx context.Context, payload map[string]any) error {
	if d.stopped.Load() {
		return ErrStopped
	}
	if d.ws == nil {
		return ErrConfigUnavailable
	}
	return d.ws.Send(ctx, requestConfig, requestSendConfig, payload)
}

// Ping checks device reachability.
func (d *Device) Ping(ctx context.Context) error {
	return d.transport.getJSON(ctx, pathPing, nil)
}

// Blink makes the device LED blink, for physical identification.
func (d *Device) Blink(ctx context.Context) error {
	return d.transport.getJSON(ctx, pathBlink, nil)
}

// EnableDebugServer enables the device's local debug server.
func (d *Device) EnableDebugServer(ctx context.Context) error {
	return d.transport.getJSON(ctx, fmt.Sprintf("%s?%s=%s", pathDebug, d.cfg.TokenName, d.cfg.SecretKey), nil)
}

// Restart reboots the device.
func (d *Device) Restart(ctx context.Context) error {
	return d.transport.postJSON(ctx, pathReset, nil, nil)
}

// FactoryReset wipes the device back to factory defaults.
func (d *Device) FactoryReset(ctx context.Context) error {
	return d.transport.deleteJSON(ctx, pathReset, nil)
}

// CheckForUpdates asks the device to contact the vendor update service and
// returns the available firmware versions, sorted ascending.
func (d *Device) CheckForUpdates(ctx context.Context) ([]string, error) {
	var resp struct {
		Updates []string `json:"updates"`
	}
	if err := d.transport.getJSON(ctx, pathUpdate, &resp); err != nil {
		return nil, err
	}
	sort.Strings(resp.Updates)
	return resp.Updates, nil
}

// UpdateVersion tells the device to download and apply a firmware version.
func (d *Device) UpdateVersion(ctx context.Context, version string) error {
	return d.transport.postJSON(ctx, pathUpdateVersion, map[string]string{"version": version}, nil)
}

// DeviceType returns the host device type, or Unknown before the first
// summary.
func (d *Device) DeviceType() DeviceType {
	_, _, _, _, dt, _, _ := d.mirror.identity()
	return dt
}

// InsertType returns the insert module type, or Unknown before the first
// summary.
func (d *Device) InsertType() InsertType {
	_, _, _, _, _, it, _ := d.mirror.identity()
	return it
}

// HWInfo returns the hardware-related attributes of the device.
func (d *Device) HWInfo() (HardwareInfo, error) {
	model, mac, version, id, dt, it, ok := d.mirror.identity()
	if !ok {
		return HardwareInfo{}, ErrNotInitialized
	}
	hostFeatures, err := d.mirror.hostFeatures()
	if err != nil {
		return HardwareInfo{}, err
	}
	insertFeatures, err := d.mirror.insertFeatures()
	if err != nil {
		return HardwareInfo{}, err
	}
	info := HardwareInfo{
		Model:          model,
		MACAddress:     mac,
		Version:        version,
		ID:             id,
		DeviceType:     dt,
		InsertType:     it,
		HostFeatures:   hostFeatures,
		InsertFeatures: insertFeatures,
	}
	if rssi, err := d.mirror.signalStrength(); err == nil {
		info.RSSI = &rssi
	}
	return info, nil
}

// HostFeatures returns the function names the host supports.
func (d *Device) HostFeatures() ([]string, error) {
	return d.mirror.hostFeatures()
}

// InsertFeatures returns the feature names the insert supports.
func (d *Device) InsertFeatures() ([]string, error) {
	return d.mirror.insertFeatures()
}

// RealtimeValues returns the consolidated flattened view of insert sensor
// readings, signal strength and per-outlet power draw.
func (d *Device) RealtimeValues() (map[string]any, error) {
	return d.mirror.realtimeValues()
}

// ChildConsumption returns the power draw in watts of one host plug.
// ErrNoData distinguishes missing power metering from a reading of zero.
func (d *Device) ChildConsumption(plugID string) (float64, error) {
	return d.mirror.childConsumption(plugID)
}

// AllConsumption returns every metered plug's draw, keyed power_<id>.
func (d *Device) AllConsumption() (map[string]float64, error) {
	return d.mirror.allConsumption()
}

// TotalConsumption returns the summed power draw across all metered plugs.
func (d *Device) TotalConsumption() (float64, error) {
	return d.mirror.totalConsumption()
}

// SensorValue returns one sensor reading from an insert feature.
func (d *Device) SensorValue(function, sensor string) (any, error) {
	return d.mirror.sensorValue(function, sensor)
}

// SignalStrength returns the last reported RSSI.
func (d *Device) SignalStrength() (int, error) {
	return d.mirror.signalStrength()
}

// IsOn reports whether the host's primary toggle is on.
func (d *Device) IsOn() (bool, error) {
	value, err := d.mirror.functionValue(AssemblyHost, hostComponentID, "toggle")
	if err != nil {
		return false, err
	}
	return value["state"] == "on", nil
}

// TurnOn switches the host's primary toggle on.
func (d *Device) TurnOn(ctx context.Context) error {
	return d.SendCommand(ctx, AssemblyHost, hostComponentID, "toggle", map[string]any{"state": "on"})
}

// TurnOff switches the host's primary toggle off.
func (d *Device) TurnOff(ctx context.Context) error {
	return d.SendCommand(ctx, AssemblyHost, hostComponentID, "toggle", map[string]any{"state": "off"})
}

// USBIsOn reports whether the USB insert's toggle is on.
func (d *Device) USBIsOn() (bool, error) {
	value, err := d.mirror.functionValue(AssemblyInsert, "usb", "toggle")
	if err != nil {
		return false, err
	}
	return value["state"] == "on", nil
}

// TurnOnUSBInsert switches the USB insert on.
func (d *Device) TurnOnUSBInsert(ctx context.Context) error {
	return d.SendCommand(ctx, AssemblyInsert, "usb", "toggle", map[string]any{"state": "on"})
}

// TurnOffUSBInsert switches the USB insert off.
func (d *Device) TurnOffUSBInsert(ctx context.Context) error {
	return d.SendCommand(ctx, AssemblyInsert, "usb", "toggle", map[string]any{"state": "off"})
}

// IsOutlet reports whether the device is an outlet.
func (d *Device) IsOutlet() bool {
	return d.DeviceType() == DeviceTypeOutlet
}

// IsSwitch reports whether the device is any switch variant.
func (d *Device) IsSwitch() bool {
	dt := d.DeviceType()
	return dt == DeviceTypeSwitch || dt == DeviceTypeTimerSwitch || dt == DeviceTypeRelaySwitch
}

// IsTimerSwitch reports whether the device is a timer (20/40/60) switch.
func (d *Device) IsTimerSwitch() bool {
	return d.DeviceType() == DeviceTypeTimerSwitch
}

// IsDimmer reports whether the device is a dimmer.
func (d *Device) IsDimmer() bool {
	return d.DeviceType() == DeviceTypeDimmer
}

// IsDimmable reports whether the device supports brightness changes.
func (d *Device) IsDimmable() bool {
	return d.DeviceType().HasCapability(CapabilityDim)
}

// Host returns the configured device address.
func (d *Device) Host() string {
	return d.cfg.Host
}

// String describes the session for logging.
func (d *Device) String() string {
	initialized, _ := d.mirror.synchronized()
	if !initialized {
		return fmt.Sprintf("<%s at %s - Update() needed>", d.DeviceType(), d.cfg.Host)
	}
	model, _, _, _, dt, _, _ := d.mirror.identity()
	return fmt.Sprintf("<%s model %s at %s>", dt, model, d.cfg.Host)
}
