package protocol

import (
	"encoding/json"
	"fmt"
)

// ActionPing is the keepalive action exempt from the clientID requirement.
const ActionPing = "ping"

// Request is one parsed inbound message. Body holds the complete JSON
// object as received; ClientID and Action are extracted for session
// validation and routing. Either may be empty when the peer omitted it.
type Request struct {
	ClientID string
	Action   string
	Body     json.RawMessage
}

// IsPing reports whether the request is the keepalive action.
func (r Request) IsPing() bool {
	return r.Action == ActionPing
}

// ParseRequest validates that payload is a JSON object with at least one
// member and extracts the clientID and action string fields. All other
// fields pass through untouched in Body.
func ParseRequest(payload []byte) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(fields) == 0 {
		return Request{}, ErrEmptyMessage
	}

	req := Request{Body: append(json.RawMessage(nil), payload...)}
	if raw, ok := fields["clientID"]; ok {
		if err := json.Unmarshal(raw, &req.ClientID); err != nil {
			return Request{}, fmt.Errorf("%w: clientID is not a string", ErrMalformedPayload)
		}
	}
	if raw, ok := fields["action"]; ok {
		if err := json.Unmarshal(raw, &req.Action); err != nil {
			return Request{}, fmt.Errorf("%w: action is not a string", ErrMalformedPayload)
		}
	}

	return req, nil
}
