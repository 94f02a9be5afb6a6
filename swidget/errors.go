package swidget

import "errors"

// Domain errors for the swidget package.
// Use errors.Is() to branch on these in calling code.
var (
	// ErrConnectivity is returned when the device cannot be reached at all
	// (DNS resolution, TCP connect or TLS setup failed).
	ErrConnectivity = errors.New("swidget: cannot reach device")

	// ErrAuthentication is returned when the device rejects the secret key
	// (HTTP 403).
	ErrAuthentication = errors.New("swidget: device rejected credentials")

	// ErrNotConnected is returned when an operation requires an active
	// websocket connection but none exists.
	ErrNotConnected = errors.New("swidget: websocket not connected")

	// ErrConnectionFailed is returned when the websocket handshake fails.
	ErrConnectionFailed = errors.New("swidget: websocket connection failed")

	// ErrConfigUnavailable is returned when a config push is attempted on a
	// session that was constructed without websocket support. Config writes
	// have no HTTP fallback.
	ErrConfigUnavailable = errors.New("swidget: config push requires websocket support")

	// ErrUnrecognizedDeviceType is returned when a device summary declares a
	// host or insert type tag this library does not know.
	ErrUnrecognizedDeviceType = errors.New("swidget: unrecognized device type")

	// ErrNotInitialized is returned when a state accessor is used before the
	// first summary has been processed.
	ErrNotInitialized = errors.New("swidget: device not yet synchronized, call Update first")

	// ErrRequestFailed is returned for any other non-success device response.
	ErrRequestFailed = errors.New("swidget: device request failed")

	// ErrNoData is returned when a reading is requested from a component that
	// does not report it (e.g. power draw without power metering). Distinct
	// from a reading of zero.
	ErrNoData = errors.New("swidget: no data for requested value")

	// ErrUnsupported is returned when a variant operation is attempted on a
	// device type that lacks the capability (e.g. brightness on an outlet).
	ErrUnsupported = errors.New("swidget: operation not supported by this device type")

	// ErrStopped is returned when an operation is attempted on a session
	// after Stop(). A stopped session cannot be restarted.
	ErrStopped = errors.New("swidget: session has been stopped")
)
