package broker

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Built-in action names
const (
	ActionStatus = "status"
)

// Event names published by the broker itself
const (
	EventPeerConnected    = "peer_connected"
	EventPeerDisconnected = "peer_disconnected"
)

// Error codes returned to peers
const (
	ErrorCodeUnknownAction = "UNKNOWN_ACTION"
	ErrorCodeInternalError = "INTERNAL_ERROR"
)

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Result is the reply envelope written for every request. Field names are
// camelCase to match the request side of the wire.
type Result struct {
	Action    string          `json:"action"`
	RequestID string          `json:"requestID,omitempty"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *ErrorInfo      `json:"error,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// Event is the envelope broadcast to notifying peers.
type Event struct {
	Event     string          `json:"event"`
	EventID   string          `json:"eventID"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// PeerInfo describes one connected peer in a status reply.
type PeerInfo struct {
	ConnID                uint64 `json:"connID"`
	AppName               string `json:"appName"`
	ExtensionName         string `json:"extensionName"`
	PID                   int    `json:"pid"`
	SupportsNotifications bool   `json:"supportsNotifications"`
}

// StatusData is the payload of a status reply.
type StatusData struct {
	Peers  []PeerInfo `json:"peers"`
	Uptime string     `json:"uptime"`
}

// NewResult creates a success reply for an action.
func NewResult(action, requestID string, data json.RawMessage) *Result {
	return &Result{
		Action:    action,
		RequestID: requestID,
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// NewErrorResult creates a failure reply.
func NewErrorResult(action, requestID, code, message, details string) *Result {
	return &Result{
		Action:    action,
		RequestID: requestID,
		Success:   false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// NewEvent creates a broadcast envelope with a fresh event id.
func NewEvent(name string, data json.RawMessage) *Event {
	return &Event{
		Event:     name,
		EventID:   uuid.New().String(),
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}
