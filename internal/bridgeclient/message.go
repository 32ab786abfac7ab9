package bridgeclient

import (
	"encoding/json"
	"fmt"
)

// Client-side error codes. Codes in replies come from the host unchanged.
const (
	ErrorCodeNotConnected     = "NOT_CONNECTED"
	ErrorCodeConnectionClosed = "CONNECTION_CLOSED"
	ErrorCodeTimeout          = "TIMEOUT"
)

// BridgeError is an error reported by the host or raised locally when a
// call cannot complete.
type BridgeError struct {
	Code    string
	Message string
	Details string
}

func (e *BridgeError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

// NewBridgeError creates a new BridgeError
func NewBridgeError(code, message, details string) *BridgeError {
	return &BridgeError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// request is the envelope written for every outbound action.
type request struct {
	Action    string      `json:"action"`
	ClientID  string      `json:"clientID"`
	RequestID string      `json:"requestID,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// errorInfo carries error details inside a failed result.
type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Result is the host's reply to one request.
type Result struct {
	Action    string          `json:"action"`
	RequestID string          `json:"requestID,omitempty"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *errorInfo      `json:"error,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// Event is a notification broadcast by the host outside the request cycle.
type Event struct {
	Event     string          `json:"event"`
	EventID   string          `json:"eventID"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}
