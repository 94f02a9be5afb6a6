package swidget

import (
	"errors"
	"reflect"
	"sort"
	"testing"
)

// testSummary returns the summary of a single-plug switch with a USB insert.
func testSummary() Summary {
	return Summary{
		Model:   "M1",
		MAC:     "AA:BB",
		Version: "1.0",
		Host: AssemblySummary{
			Type: "switch",
			ID:   "SW-1",
			Components: []ComponentSummary{
				{ID: "0", Functions: []string{"toggle", "power"}},
			},
		},
		Insert: AssemblySummary{
			Type: "USB",
			Components: []ComponentSummary{
				{ID: "usb", Functions: []string{"toggle"}},
			},
		},
	}
}

func intPtr(v int) *int { return &v }

// testState returns a full state payload matching testSummary.
func testState() State {
	return State{
		Connection: &ConnectionState{RSSI: intPtr(-52)},
		Host: &AssemblyState{
			Components: map[string]map[string]FunctionValue{
				"0": {
					"toggle": {"state": "on"},
					"power":  {"current": 11.5},
				},
			},
		},
		Insert: &AssemblyState{
			Components: map[string]map[string]FunctionValue{
				"usb": {
					"toggle": {"state": "off"},
				},
			},
		},
	}
}

func TestApplySummaryBuildsTree(t *testing.T) {
	m := newMirror()
	if err := m.applySummary(testSummary()); err != nil {
		t.Fatalf("applySummary() unexpected error: %v", err)
	}

	host := m.assemblies[AssemblyHost]
	if len(host.Components) != 1 {
		t.Fatalf("host components = %d, want 1", len(host.Components))
	}
	component := host.Components["0"]
	if len(component.Functions) != 2 {
		t.Errorf("host component functions = %d, want 2", len(component.Functions))
	}
	for _, fn := range []string{"toggle", "power"} {
		value, declared := component.Functions[fn]
		if !declared {
			t.Errorf("function %q not declared", fn)
		}
		if value != nil {
			t.Errorf("function %q = %v, want unset", fn, value)
		}
	}

	insert := m.assemblies[AssemblyInsert]
	if len(insert.Components) != 1 {
		t.Fatalf("insert components = %d, want 1", len(insert.Components))
	}
	if _, ok := insert.Components["usb"]; !ok {
		t.Error("insert component usb missing")
	}
}

func TestApplySummaryIdentity(t *testing.T) {
	m := newMirror()
	if err := m.applySummary(testSummary()); err != nil {
		t.Fatalf("applySummary() unexpected error: %v", err)
	}

	model, mac, version, id, dt, it, ok := m.identity()
	if !ok {
		t.Fatal("identity() not initialized after summary")
	}
	if model != "M1" || mac != "AA:BB" || version != "1.0" || id != "SW-1" {
		t.Errorf("identity = %q %q %q %q", model, mac, version, id)
	}
	if dt != DeviceTypeSwitch {
		t.Errorf("deviceType = %q, want switch", dt)
	}
	if it != InsertTypeUSB {
		t.Errorf("insertType = %q, want USB", it)
	}
}

func TestApplySummaryIdentityImmutable(t *testing.T) {
	m := newMirror()
	if err := m.applySummary(testSummary()); err != nil {
		t.Fatalf("applySummary() unexpected error: %v", err)
	}

	// A later summary with different identity fields must not rewrite them.
	second := testSummary()
	second.Model = "M2"
	second.MAC = "CC:DD"
	if err := m.applySummary(second); err != nil {
		t.Fatalf("applySummary() unexpected error: %v", err)
	}

	model, mac, _, _, _, _, _ := m.identity()
	if model != "M1" || mac != "AA:BB" {
		t.Errorf("identity rewritten: model=%q mac=%q", model, mac)
	}
}

func TestApplySummaryUnknownHostType(t *testing.T) {
	m := newMirror()
	s := testSummary()
	s.Host.Type = "toaster"

	err := m.applySummary(s)
	if !errors.Is(err, ErrUnrecognizedDeviceType) {
		t.Fatalf("applySummary() error = %v, want ErrUnrecognizedDeviceType", err)
	}
	if initialized, _ := m.synchronized(); initialized {
		t.Error("mirror initialized despite rejected summary")
	}
}

func TestApplySummaryUnknownInsertTolerated(t *testing.T) {
	m := newMirror()
	s := testSummary()
	s.Insert.Type = "FUTURE INSERT"

	if err := m.applySummary(s); err != nil {
		t.Fatalf("applySummary() unexpected error: %v", err)
	}
	if _, _, _, _, _, it, _ := m.identity(); it != InsertTypeUnknown {
		t.Errorf("insertType = %q, want Unknown", it)
	}
}

func TestApplyStateMerges(t *testing.T) {
	m := newMirror()
	if err := m.applySummary(testSummary()); err != nil {
		t.Fatalf("applySummary() unexpected error: %v", err)
	}
	m.applyState(testState())

	toggle := m.assemblies[AssemblyHost].Components["0"].Functions["toggle"]
	if toggle["state"] != "on" {
		t.Errorf("host toggle state = %v, want on", toggle["state"])
	}
	usb := m.assemblies[AssemblyInsert].Components["usb"].Functions["toggle"]
	if usb["state"] != "off" {
		t.Errorf("usb toggle state = %v, want off", usb["state"])
	}
	if rssi, err := m.signalStrength(); err != nil || rssi != -52 {
		t.Errorf("signalStrength() = %d, %v; want -52, nil", rssi, err)
	}
}

func TestApplyStateIdempotent(t *testing.T) {
	first := newMirror()
	if err := first.applySummary(testSummary()); err != nil {
		t.Fatalf("applySummary() unexpected error: %v", err)
	}
	first.applyState(testState())

	twice := newMirror()
	if err := twice.applySummary(testSummary()); err != nil {
		t.Fatalf("applySummary() unexpected error: %v", err)
	}
	twice.applyState(testState())
	twice.applyState(testState())

	if !reflect.DeepEqual(first.assemblies, twice.assemblies) {
		t.Error("applying the same state twice changed the mirror contents")
	}
}

func TestApplyStatePartialMerge(t *testing.T) {
	m := newMirror()
	if err := m.applySummary(testSummary()); err != nil {
		t.Fatalf("applySummary() unexpected error: %v", err)
	}
	m.applyState(testState())

	// A payload with no insert assembly leaves all insert values unchanged.
	partial := State{
		Host: &AssemblyState{
			Components: map[string]map[string]FunctionValue{
				"0": {"toggle": {"state": "off"}},
			},
		},
	}
	m.applyState(partial)

	usb := m.assemblies[AssemblyInsert].Components["usb"].Functions["toggle"]
	if usb["state"] != "off" {
		t.Errorf("insert toggle state = %v, want off (unchanged)", usb["state"])
	}
	host := m.assemblies[AssemblyHost].Components["0"].Functions["toggle"]
	if host["state"] != "off" {
		t.Errorf("host toggle state = %v, want off (merged)", host["state"])
	}
	power := m.assemblies[AssemblyHost].Components["0"].Functions["power"]
	if power["current"] != 11.5 {
		t.Errorf("host power = %v, want 11.5 (unchanged)", power["current"])
	}
}

func TestApplyStateUnknownKeysIgnored(t *testing.T) {
	m := newMirror()
	if err := m.applySummary(testSummary()); err != nil {
		t.Fatalf("applySummary() unexpected error: %v", err)
	}

	// Unknown components and undeclared functions tolerate newer firmware.
	m.applyState(State{
		Host: &AssemblyState{
			Components: map[string]map[string]FunctionValue{
				"99": {"toggle": {"state": "on"}},
				"0":  {"hologram": {"state": "on"}},
			},
		},
	})

	if _, ok := m.assemblies[AssemblyHost].Components["99"]; ok {
		t.Error("unknown component was created")
	}
	if _, ok := m.assemblies[AssemblyHost].Components["0"].Functions["hologram"]; ok {
		t.Error("undeclared function key was created")
	}
}

func TestAccessorsBeforeSummary(t *testing.T) {
	m := newMirror()

	if _, err := m.hostFeatures(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("hostFeatures() error = %v, want ErrNotInitialized", err)
	}
	if _, err := m.insertFeatures(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("insertFeatures() error = %v, want ErrNotInitialized", err)
	}
	if _, err := m.realtimeValues(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("realtimeValues() error = %v, want ErrNotInitialized", err)
	}
	if _, err := m.childConsumption("0"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("childConsumption() error = %v, want ErrNotInitialized", err)
	}
}

func TestFeatureAccessors(t *testing.T) {
	m := newMirror()
	if err := m.applySummary(testSummary()); err != nil {
		t.Fatalf("applySummary() unexpected error: %v", err)
	}

	hostFeatures, err := m.hostFeatures()
	if err != nil {
		t.Fatalf("hostFeatures() unexpected error: %v", err)
	}
	sort.Strings(hostFeatures)
	if want := []string{"power", "toggle"}; !reflect.DeepEqual(hostFeatures, want) {
		t.Errorf("hostFeatures() = %v, want %v", hostFeatures, want)
	}

	insertFeatures, err := m.insertFeatures()
	if err != nil {
		t.Fatalf("insertFeatures() unexpected error: %v", err)
	}
	if want := []string{"usb"}; !reflect.DeepEqual(insertFeatures, want) {
		t.Errorf("insertFeatures() = %v, want %v", insertFeatures, want)
	}
}

func TestChildConsumption(t *testing.T) {
	m := newMirror()
	if err := m.applySummary(testSummary()); err != nil {
		t.Fatalf("applySummary() unexpected error: %v", err)
	}

	// Before any state: metering declared but unset is "no data".
	if _, err := m.childConsumption("0"); !errors.Is(err, ErrNoData) {
		t.Errorf("childConsumption() before state error = %v, want ErrNoData", err)
	}

	m.applyState(testState())
	watts, err := m.childConsumption("0")
	if err != nil {
		t.Fatalf("childConsumption() unexpected error: %v", err)
	}
	if watts != 11.5 {
		t.Errorf("childConsumption() = %v, want 11.5", watts)
	}

	total, err := m.totalConsumption()
	if err != nil {
		t.Fatalf("totalConsumption() unexpected error: %v", err)
	}
	if total != 11.5 {
		t.Errorf("totalConsumption() = %v, want 11.5", total)
	}
}

func TestChildConsumptionNoMetering(t *testing.T) {
	m := newMirror()
	s := testSummary()
	s.Host.Components = []ComponentSummary{{ID: "0", Functions: []string{"toggle"}}}
	if err := m.applySummary(s); err != nil {
		t.Fatalf("applySummary() unexpected error: %v", err)
	}
	m.applyState(testState())

	if _, err := m.childConsumption("0"); !errors.Is(err, ErrNoData) {
		t.Errorf("childConsumption() error = %v, want ErrNoData", err)
	}
	if _, err := m.allConsumption(); !errors.Is(err, ErrNoData) {
		t.Errorf("allConsumption() error = %v, want ErrNoData", err)
	}
}

func TestRealtimeValues(t *testing.T) {
	m := newMirror()
	s := Summary{
		Model: "M3", MAC: "EE:FF", Version: "2.0",
		Host: AssemblySummary{
			Type: "outlet",
			Components: []ComponentSummary{
				{ID: "0", Functions: []string{"toggle", "power"}},
				{ID: "1", Functions: []string{"toggle", "power"}},
			},
		},
		Insert: AssemblySummary{
			Type: "TEMP HUMI MOTION",
			Components: []ComponentSummary{
				{ID: "temp", Functions: []string{"temp"}},
				{ID: "humidity", Functions: []string{"humidity"}},
				{ID: "motion", Functions: []string{"occupied", "toggle"}},
			},
		},
	}
	if err := m.applySummary(s); err != nil {
		t.Fatalf("applySummary() unexpected error: %v", err)
	}
	m.applyState(State{
		Connection: &ConnectionState{RSSI: intPtr(-47)},
		Host: &AssemblyState{
			Components: map[string]map[string]FunctionValue{
				"0": {"power": {"current": 3.2}},
				"1": {"power": {"current": 1.8}},
			},
		},
		Insert: &AssemblyState{
			Components: map[string]map[string]FunctionValue{
				"temp":     {"temp": {"now": 21.5}},
				"humidity": {"humidity": {"now": 40.0}},
				"motion":   {"occupied": {"state": true}, "toggle": {"state": "on"}},
			},
		},
	})

	values, err := m.realtimeValues()
	if err != nil {
		t.Fatalf("realtimeValues() unexpected error: %v", err)
	}

	want := map[string]any{
		"temp":     21.5,
		"humidity": 40.0,
		"occupied": true,
		"rssi":     -47,
		"power_0":  3.2,
		"power_1":  1.8,
	}
	if !reflect.DeepEqual(values, want) {
		t.Errorf("realtimeValues() = %v, want %v", values, want)
	}
	if _, ok := values["toggle"]; ok {
		t.Error("toggle must be suppressed from the flattened view")
	}
}

func TestSensorValue(t *testing.T) {
	m := newMirror()
	s := testSummary()
	s.Insert = AssemblySummary{
		Type: "TEMP HUMI MOTION",
		Components: []ComponentSummary{
			{ID: "temp", Functions: []string{"temp"}},
			{ID: "motion", Functions: []string{"occupied"}},
		},
	}
	if err := m.applySummary(s); err != nil {
		t.Fatalf("applySummary() unexpected error: %v", err)
	}
	m.applyState(State{
		Insert: &AssemblyState{
			Components: map[string]map[string]FunctionValue{
				"temp":   {"temp": {"now": 19.0}},
				"motion": {"occupied": {"state": false}},
			},
		},
	})

	tests := []struct {
		name     string
		function string
		sensor   string
		want     any
		wantErr  error
	}{
		{name: "now reading", function: "temp", sensor: "temp", want: 19.0},
		{name: "occupied state", function: "motion", sensor: "occupied", want: false},
		{name: "missing feature", function: "co2", sensor: "co2", wantErr: ErrNoData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.sensorValue(tt.function, tt.sensor)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("sensorValue() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("sensorValue() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("sensorValue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHardSet(t *testing.T) {
	m := newMirror()
	if err := m.applySummary(testSummary()); err != nil {
		t.Fatalf("applySummary() unexpected error: %v", err)
	}

	m.hardSet(AssemblyHost, "0", "toggle", FunctionValue{"state": "on"})
	toggle := m.assemblies[AssemblyHost].Components["0"].Functions["toggle"]
	if toggle["state"] != "on" {
		t.Errorf("hardSet did not apply: %v", toggle)
	}

	// Undeclared function keys are never created.
	m.hardSet(AssemblyHost, "0", "hologram", FunctionValue{"state": "on"})
	if _, ok := m.assemblies[AssemblyHost].Components["0"].Functions["hologram"]; ok {
		t.Error("hardSet created an undeclared function key")
	}
}
