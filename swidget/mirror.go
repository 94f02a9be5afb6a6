package swidget

import (
	"fmt"
	"sync"
	"time"
)

// Summary is the device's self-description: identity fields plus the
// declared capability tree for both assemblies.
type Summary struct {
	Model   string          `json:"model"`
	MAC     string          `json:"mac"`
	Version string          `json:"version"`
	Host    AssemblySummary `json:"host"`
	Insert  AssemblySummary `json:"insert"`
}

// AssemblySummary describes one half of the device (host or insert).
type AssemblySummary struct {
	Type       string             `json:"type"`
	ID         string             `json:"id,omitempty"`
	Error      *int               `json:"error,omitempty"`
	Components []ComponentSummary `json:"components"`
}

// ComponentSummary declares one addressable unit and its function names.
type ComponentSummary struct {
	ID        string   `json:"id"`
	Functions []string `json:"functions"`
}

// FunctionValue is the payload of a single function. The keys depend on the
// function ("state", "now", "default", "current", ...); no fixed schema is
// imposed beyond per-function merge semantics.
type FunctionValue map[string]any

// State is a possibly partial snapshot of current function values.
// Absent assemblies, components and functions are simply not merged.
type State struct {
	Connection *ConnectionState `json:"connection,omitempty"`
	Host       *AssemblyState   `json:"host,omitempty"`
	Insert     *AssemblyState   `json:"insert,omitempty"`
}

// ConnectionState carries device radio diagnostics.
type ConnectionState struct {
	RSSI *int `json:"rssi,omitempty"`
}

// AssemblyState holds the per-component function values of one assembly.
type AssemblyState struct {
	Components map[string]map[string]FunctionValue `json:"components"`
}

// Assembly is the in-memory form of one device half.
type Assembly struct {
	Type       string
	ID         string
	Error      *int
	Components map[string]*Component
}

// Component is one addressable unit within an assembly. Its function key set
// is fixed when the assembly is built from a summary; only values change.
type Component struct {
	Functions map[string]FunctionValue
}

// Assembly names used by the device protocol.
const (
	AssemblyHost   = "host"
	AssemblyInsert = "insert"
)

// hostComponentID is the component carrying the primary host functions
// (toggle, level, power) on every known device type.
const hostComponentID = "0"

// mirror is the in-memory reflection of a device's declared capability tree
// and its last known state.
//
// It is built once from the first summary and patched incrementally by state
// payloads. The session mutates it both from caller goroutines (HTTP
// refresh) and from the websocket consumer goroutine, so every access goes
// through the RWMutex.
type mirror struct {
	mu sync.RWMutex

	// Identity. Set exactly once, by the first summary, immutable after.
	initialized bool
	model       string
	mac         string
	version     string
	id          string
	deviceType  DeviceType
	insertType  InsertType
	insertTag   string

	rssi       *int
	assemblies map[string]*Assembly
	lastUpdate time.Time
}

func newMirror() *mirror {
	return &mirror{assemblies: make(map[string]*Assembly)}
}

// applySummary rebuilds the assembly tree from a device summary.
//
// Identity fields are derived on the first summary only; later summaries
// refresh the capability tree but never rewrite identity. Fails with
// ErrUnrecognizedDeviceType when the host type tag is unknown.
func (m *mirror) applySummary(s Summary) error {
	hostType, err := ParseDeviceType(s.Host.Type)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.assemblies = map[string]*Assembly{
		AssemblyHost:   buildAssembly(s.Host),
		AssemblyInsert: buildAssembly(s.Insert),
	}
	if !m.initialized {
		m.model = s.Model
		m.mac = s.MAC
		m.version = s.Version
		m.deviceType = hostType
		m.insertType = ParseInsertType(s.Insert.Type)
		m.insertTag = s.Insert.Type
		m.id = s.Host.ID
		m.initialized = true
	}
	m.lastUpdate = time.Now()
	return nil
}

func buildAssembly(s AssemblySummary) *Assembly {
	a := &Assembly{
		Type:       s.Type,
		ID:         s.ID,
		Error:      s.Error,
		Components: make(map[string]*Component, len(s.Components)),
	}
	for _, cs := range s.Components {
		c := &Component{Functions: make(map[string]FunctionValue, len(cs.Functions))}
		for _, fn := range cs.Functions {
			c.Functions[fn] = nil
		}
		a.Components[cs.ID] = c
	}
	return a
}

// applyState merges a partial state payload into the mirror.
//
// The merge is best-effort: absent assemblies, components and functions
// leave the mirror untouched, and unknown payload keys are ignored so
// forward-compatible firmware does not break older library versions.
// Applying the same payload twice is idempotent.
func (m *mirror) applyState(st State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st.Connection != nil && st.Connection.RSSI != nil {
		v := *st.Connection.RSSI
		m.rssi = &v
	}
	m.mergeAssembly(AssemblyHost, st.Host)
	m.mergeAssembly(AssemblyInsert, st.Insert)
	m.lastUpdate = time.Now()
}

// mergeAssembly merges one assembly's component values. Caller holds m.mu.
func (m *mirror) mergeAssembly(name string, st *AssemblyState) {
	if st == nil {
		return
	}
	assembly, ok := m.assemblies[name]
	if !ok {
		return
	}
	for id, functions := range st.Components {
		component, ok := assembly.Components[id]
		if !ok {
			continue
		}
		for fn, value := range functions {
			if _, declared := component.Functions[fn]; declared {
				component.Functions[fn] = cloneFunctionValue(value)
			}
		}
	}
}

// hardSet replaces a single function value, used for command echoes.
// Only declared function keys are written; the key set never grows.
func (m *mirror) hardSet(assembly, component, function string, value FunctionValue) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assemblies[assembly]
	if !ok {
		return
	}
	c, ok := a.Components[component]
	if !ok {
		return
	}
	if _, declared := c.Functions[function]; declared {
		c.Functions[function] = cloneFunctionValue(value)
	}
	m.lastUpdate = time.Now()
}

func cloneFunctionValue(v FunctionValue) FunctionValue {
	if v == nil {
		return nil
	}
	out := make(FunctionValue, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// synchronized reports whether a summary+state has ever been processed,
// and when the mirror last changed.
func (m *mirror) synchronized() (bool, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized, m.lastUpdate
}

// identity returns the immutable identity fields.
func (m *mirror) identity() (model, mac, version, id string, dt DeviceType, it InsertType, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.model, m.mac, m.version, m.id, m.deviceType, m.insertType, m.initialized
}

// hostFeatures returns the function names of the primary host component.
func (m *mirror) hostFeatures() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return nil, ErrNotInitialized
	}
	host := m.assemblies[AssemblyHost]
	component, ok := host.Components[hostComponentID]
	if !ok {
		return []string{}, nil
	}
	features := make([]string, 0, len(component.Functions))
	for fn := range component.Functions {
		features = append(features, fn)
	}
	return features, nil
}

// insertFeatures returns the component ids of the insert assembly.
func (m *mirror) insertFeatures() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return nil, ErrNotInitialized
	}
	insert := m.assemblies[AssemblyInsert]
	features := make([]string, 0, len(insert.Components))
	for id := range insert.Components {
		features = append(features, id)
	}
	return features, nil
}

// functionValue returns the current value of one function, or nil if unset.
func (m *mirror) functionValue(assembly, component, function string) (FunctionValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return nil, ErrNotInitialized
	}
	a, ok := m.assemblies[assembly]
	if !ok {
		return nil, fmt.Errorf("%w: assembly %q", ErrNoData, assembly)
	}
	c, ok := a.Components[component]
	if !ok {
		return nil, fmt.Errorf("%w: component %q", ErrNoData, component)
	}
	v, declared := c.Functions[function]
	if !declared || v == nil {
		return nil, fmt.Errorf("%w: function %q", ErrNoData, function)
	}
	return cloneFunctionValue(v), nil
}

// childConsumption returns the power draw in watts of one host component.
// ErrNoData distinguishes "no power metering" from a reading of zero.
func (m *mirror) childConsumption(plugID string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return 0, ErrNotInitialized
	}
	return m.componentPower(plugID)
}

// componentPower reads the power.current sub-field. Caller holds m.mu.
func (m *mirror) componentPower(plugID string) (float64, error) {
	component, ok := m.assemblies[AssemblyHost].Components[plugID]
	if !ok {
		return 0, fmt.Errorf("%w: no host component %q", ErrNoData, plugID)
	}
	power, ok := component.Functions["power"]
	if !ok || power == nil {
		return 0, fmt.Errorf("%w: component %q has no power metering", ErrNoData, plugID)
	}
	current, ok := toFloat(power["current"])
	if !ok {
		return 0, fmt.Errorf("%w: component %q has no power metering", ErrNoData, plugID)
	}
	return current, nil
}

// allConsumption returns the power draw of every metered host component,
// keyed power_<id>. Returns ErrNoData if no component reports power.
func (m *mirror) allConsumption() (map[string]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return nil, ErrNotInitialized
	}
	readings := make(map[string]float64)
	for id := range m.assemblies[AssemblyHost].Components {
		watts, err := m.componentPower(id)
		if err != nil {
			continue
		}
		readings["power_"+id] = watts
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("%w: device has no power metering", ErrNoData)
	}
	return readings, nil
}

// totalConsumption sums the power draw across all metered host components.
func (m *mirror) totalConsumption() (float64, error) {
	readings, err := m.allConsumption()
	if err != nil {
		return 0, err
	}
	var total float64
	for _, watts := range readings {
		total += watts
	}
	return total, nil
}

// realtimeValues flattens every insert feature's current value together with
// signal strength and per-outlet power draw into one map.
//
// Presentation rules follow device conventions: "occupied" surfaces its
// state sub-field, "toggle" and the video transport functions are
// suppressed, "webrtc" surfaces viewer counts, "sd" surfaces its state, and
// everything else surfaces the "now" sub-field.
func (m *mirror) realtimeValues() (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return nil, ErrNotInitialized
	}
	values := make(map[string]any)
	for _, component := range m.assemblies[AssemblyInsert].Components {
		flattenInsertComponent(component, values)
	}
	if m.rssi != nil {
		values["rssi"] = *m.rssi
	}
	for id := range m.assemblies[AssemblyHost].Components {
		if watts, err := m.componentPower(id); err == nil {
			values["power_"+id] = watts
		}
	}
	return values, nil
}

func flattenInsertComponent(c *Component, out map[string]any) {
	for fn, data := range c.Functions {
		if data == nil {
			continue
		}
		switch fn {
		case "occupied", "sd":
			if v, ok := data["state"]; ok {
				out[fn] = v
			}
		case "toggle", "pic", "audio", "rtsp", "storage":
			// Control and transport functions, not sensor readings.
		case "webrtc":
			if v, ok := data["maxViewers"]; ok {
				out["webrtc_max_viewers"] = v
			}
			if v, ok := data["currentViewers"]; ok {
				out["webrtc_current_viewers"] = v
			}
		default:
			if v, ok := data["now"]; ok {
				out[fn] = v
			}
		}
	}
}

// sensorValue reads a single sensor reading from an insert feature.
func (m *mirror) sensorValue(function, sensor string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return nil, ErrNotInitialized
	}
	component, ok := m.assemblies[AssemblyInsert].Components[function]
	if !ok {
		return nil, fmt.Errorf("%w: no insert feature %q", ErrNoData, function)
	}
	if sensor == "occupied" {
		data := component.Functions["occupied"]
		if data == nil {
			return nil, fmt.Errorf("%w: occupied not reported", ErrNoData)
		}
		return data["state"], nil
	}
	data := component.Functions[sensor]
	if data == nil {
		return nil, fmt.Errorf("%w: sensor %q not reported", ErrNoData, sensor)
	}
	v, ok := data["now"]
	if !ok {
		return nil, fmt.Errorf("%w: sensor %q has no current reading", ErrNoData, sensor)
	}
	return v, nil
}

// signalStrength returns the last reported RSSI.
func (m *mirror) signalStrength() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.rssi == nil {
		return 0, fmt.Errorf("%w: rssi not yet reported", ErrNoData)
	}
	return *m.rssi, nil
}

// toFloat normalizes the numeric types JSON decoding may produce.
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
