package bridge

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CommandMessage is the payload accepted on swidget/command/{device_id}.
//
// Example:
//
//	{"assembly":"host","component":"0","function":"toggle","value":{"state":"on"}}
type CommandMessage struct {
	// Assembly is "host" or "insert".
	Assembly string `json:"assembly"`

	// Component is the component id within the assembly (e.g., "0", "usb").
	Component string `json:"component"`

	// Function is the function to write (e.g., "toggle", "level", "timer").
	Function string `json:"function"`

	// Value is the partial function value to apply.
	Value map[string]any `json:"value"`
}

// EventEnvelope wraps a device channel message for publication on
// swidget/event/{device_id}.
type EventEnvelope struct {
	// EventID is a unique id for this envelope.
	EventID string `json:"event_id"`

	// DeviceID is the bridge-local device identifier.
	DeviceID string `json:"device_id"`

	// RequestID is the routing tag from the device message
	// (e.g., "summary", "state", "DYNAMIC_UPDATE").
	RequestID string `json:"request_id"`

	// Timestamp is when the bridge received the message.
	Timestamp time.Time `json:"timestamp"`

	// Payload is the raw device message.
	Payload json.RawMessage `json:"payload"`
}

// NewEventEnvelope builds an envelope around a raw device message.
func NewEventEnvelope(deviceID, requestID string, payload json.RawMessage) EventEnvelope {
	return EventEnvelope{
		EventID:   uuid.NewString(),
		DeviceID:  deviceID,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// StateMessage is the retained snapshot published on swidget/state/{device_id}.
type StateMessage struct {
	DeviceID  string         `json:"device_id"`
	Name      string         `json:"name"`
	Timestamp time.Time      `json:"timestamp"`
	Values    map[string]any `json:"values"`
}

// NewStateMessage builds a state snapshot message.
func NewStateMessage(deviceID, name string, values map[string]any) StateMessage {
	return StateMessage{
		DeviceID:  deviceID,
		Name:      name,
		Timestamp: time.Now().UTC(),
		Values:    values,
	}
}
