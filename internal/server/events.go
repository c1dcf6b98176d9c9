// ABOUTME: Wire frame types for the WebSocket protocol
// ABOUTME: Outbound events carry typed payloads, inbound frames carry raw JSON for dispatch

package server

import "encoding/json"

// Client-to-server event names.
const (
	EventSendMessage = "SendMessage"
)

// EventError is pushed to a client when one of its frames was rejected.
const EventError = "Error"

// Event is an outbound frame pushed to a client.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Frame is an inbound client frame. The payload stays raw until the
// event type selects a concrete shape.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorPayload is the payload of an Error event.
type ErrorPayload struct {
	Message string `json:"message"`
}
