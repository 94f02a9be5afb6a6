package bridge

import "errors"

// Domain-specific errors for bridge operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNoDevices is returned when the bridge is created without any devices.
	ErrNoDevices = errors.New("bridge: no devices configured")

	// ErrNoPublisher is returned when the bridge is created without an MQTT client.
	ErrNoPublisher = errors.New("bridge: MQTT publisher is required")

	// ErrUnknownDevice is returned when a command names a device the bridge
	// does not maintain a session with.
	ErrUnknownDevice = errors.New("bridge: unknown device")

	// ErrInvalidCommand is returned when a command payload cannot be parsed
	// or is missing required fields.
	ErrInvalidCommand = errors.New("bridge: invalid command payload")
)
