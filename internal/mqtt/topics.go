package mqtt

import "fmt"

// Topic prefixes for the Swidget bridge.
//
// All device topics use the flat scheme: swidget/{category}/{device_id}
const (
	// TopicPrefix is the base for all bridge topics.
	TopicPrefix = "swidget"

	// TopicPrefixSystem is the base for bridge-level system topics.
	TopicPrefixSystem = "swidget/system"
)

// Topics provides builders for Swidget bridge MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("outlet-kitchen")
//	// Returns: "swidget/state/outlet-kitchen"
type Topics struct{}

// DeviceState returns the retained state topic for a device.
//
// The bridge publishes a realtime-values snapshot here whenever the device
// pushes an update or the telemetry poll runs.
//
// Example: swidget/state/outlet-kitchen
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// DeviceEvent returns the event topic for a device.
//
// Every inbound channel message is republished here wrapped in an event
// envelope (event id, device id, timestamp, raw payload).
//
// Example: swidget/event/outlet-kitchen
func (Topics) DeviceEvent(deviceID string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, deviceID)
}

// DeviceCommand returns the command topic for a device.
//
// The bridge subscribes here and forwards command payloads to the device.
//
// Example: swidget/command/outlet-kitchen
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceID)
}

// DeviceAvailability returns the retained availability topic for a device.
//
// Payload is "online" or "offline" depending on session state.
//
// Example: swidget/availability/outlet-kitchen
func (Topics) DeviceAvailability(deviceID string) string {
	return fmt.Sprintf("%s/availability/%s", TopicPrefix, deviceID)
}

// SystemStatus returns the bridge status topic.
//
// This carries the bridge's online/offline status, including the LWT
// published by the broker on unexpected disconnect.
//
// Example: swidget/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceCommands returns a pattern matching command topics for all devices.
//
// Pattern: swidget/command/+
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefix)
}

// AllDeviceStates returns a pattern matching state topics for all devices.
//
// Pattern: swidget/state/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}

// DeviceIDFromCommand extracts the device id from a command topic.
// Returns an empty string if the topic is not a command topic.
func (Topics) DeviceIDFromCommand(topic string) string {
	prefix := TopicPrefix + "/command/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return ""
	}
	return topic[len(prefix):]
}
