package swidget

import "fmt"

// DeviceType identifies the host half of a Swidget device.
//
// The value is the type tag the device reports in its summary for the host
// assembly, so a DeviceType can be compared directly against wire data.
type DeviceType string

// Known device types.
const (
	DeviceTypeDimmer      DeviceType = "dimmer"
	DeviceTypeOutlet      DeviceType = "outlet"
	DeviceTypeSwitch      DeviceType = "switch"
	DeviceTypeTimerSwitch DeviceType = "pana_switch"
	DeviceTypeRelaySwitch DeviceType = "relay_switch"
	DeviceTypeUnknown     DeviceType = ""
)

// ParseDeviceType maps a summary type tag to a DeviceType.
//
// Returns ErrUnrecognizedDeviceType if the tag does not match a known
// variant, so callers fail fast on firmware this library cannot model.
func ParseDeviceType(tag string) (DeviceType, error) {
	switch dt := DeviceType(tag); dt {
	case DeviceTypeDimmer, DeviceTypeOutlet, DeviceTypeSwitch,
		DeviceTypeTimerSwitch, DeviceTypeRelaySwitch:
		return dt, nil
	default:
		return DeviceTypeUnknown, fmt.Errorf("%w: host type %q", ErrUnrecognizedDeviceType, tag)
	}
}

// String returns the wire tag, or "unknown" for the zero value.
func (dt DeviceType) String() string {
	if dt == DeviceTypeUnknown {
		return "unknown"
	}
	return string(dt)
}

// InsertType identifies the removable insert module of a Swidget device.
type InsertType string

// Known insert types. The tags are exactly what device firmware reports;
// the video insert reports a lowercase tag unlike the others.
const (
	InsertTypeUSB        InsertType = "USB"
	InsertTypeTHM        InsertType = "TEMP HUMI MOTION"
	InsertTypeTH         InsertType = "TEMP HUMI"
	InsertTypeAQ         InsertType = "AIR QUALITY"
	InsertTypeGuideLight InsertType = "GUIDE LIGHT"
	InsertTypePowerOut   InsertType = "POWER OUT"
	InsertTypeVideo      InsertType = "video"
	InsertTypeUnknown    InsertType = ""
)

// ParseInsertType maps a summary type tag to an InsertType.
//
// Unknown insert tags are not fatal: the insert is an accessory and newer
// firmware may ship inserts this library has never seen, so the tag is
// preserved as-is and classified Unknown by the helpers instead of erroring.
func ParseInsertType(tag string) InsertType {
	switch it := InsertType(tag); it {
	case InsertTypeUSB, InsertTypeTHM, InsertTypeTH, InsertTypeAQ,
		InsertTypeGuideLight, InsertTypePowerOut, InsertTypeVideo:
		return it
	default:
		return InsertTypeUnknown
	}
}

// String returns the wire tag, or "unknown" for the zero value.
func (it InsertType) String() string {
	if it == InsertTypeUnknown {
		return "unknown"
	}
	return string(it)
}

// Capability names a device-type specific operation set.
type Capability string

// Capabilities used by the typed variant wrappers.
const (
	CapabilityToggle    Capability = "toggle"
	CapabilityDim       Capability = "dim"
	CapabilityCountdown Capability = "countdown"
)

// deviceCapabilities is the construction-time lookup from device type to the
// capability set its variant wrapper may use. Variants consult this table
// instead of type-switching, so adding a device type is a single row here.
var deviceCapabilities = map[DeviceType][]Capability{
	DeviceTypeDimmer:      {CapabilityToggle, CapabilityDim},
	DeviceTypeOutlet:      {CapabilityToggle},
	DeviceTypeSwitch:      {CapabilityToggle},
	DeviceTypeTimerSwitch: {CapabilityToggle, CapabilityCountdown},
	DeviceTypeRelaySwitch: {CapabilityToggle},
}

// HasCapability reports whether the device type supports the capability.
func (dt DeviceType) HasCapability(c Capability) bool {
	for _, have := range deviceCapabilities[dt] {
		if have == c {
			return true
		}
	}
	return false
}

// SelfDiagnosticErrorCode is an error code reported by a device's built-in
// self-diagnostic, carried in an assembly's optional error field.
type SelfDiagnosticErrorCode int

// Self-diagnostic error codes.
const (
	DiagUnused SelfDiagnosticErrorCode = iota
	DiagAQ
	DiagGuideLight
	DiagLightSensor
	DiagMotion
	DiagPowerOut
	DiagPressure
	DiagTemp
	DiagUSB
	DiagVibration
	DiagVideo
	DiagAdvancedGL
	DiagHumi
	DiagCO2
	DiagParticulateMatter
)

// String returns a short name for the diagnostic code.
func (c SelfDiagnosticErrorCode) String() string {
	names := [...]string{
		"unused", "air_quality", "guide_light", "light_sensor", "motion",
		"power_out", "pressure", "temp", "usb", "vibration", "video",
		"advanced_guide_light", "humidity", "co2", "particulate_matter",
	}
	if c < 0 || int(c) >= len(names) {
		return fmt.Sprintf("unknown(%d)", int(c))
	}
	return names[c]
}

// Logger is the optional structured logging interface accepted by the
// session and websocket client. It is satisfied by *slog.Logger and by the
// logging wrappers used elsewhere in this repository.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// nopLogger discards all log output. Used when no logger is configured.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
