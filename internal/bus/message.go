package bus

import (
	"encoding/json"
	"fmt"
)

// Connection roles. The role is tagged on the first successful room create
// or join and gates every host-only operation.
const (
	RoleTV     = "tv"
	RolePlayer = "player"
)

// Envelope is the wire frame: an event name with one JSON payload.
// Client frames carry seq when the caller wants an acknowledgement; the
// matching ack frame echoes it.
type Envelope struct {
	Event   string          `json:"event"`
	Seq     int64           `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const ackEvent = "ack"

// Ack delivers the one-shot response to the request's originator.
type Ack func(payload any)

// AckSuccess builds a success ack body, merging any extras.
func AckSuccess(extras map[string]any) map[string]any {
	p := map[string]any{"success": true}
	for k, v := range extras {
		p[k] = v
	}
	return p
}

// AckError builds a failure ack body with a user-visible message.
func AckError(message string) map[string]any {
	return map[string]any{"success": false, "error": message}
}

func encodeFrame(event string, seq int64, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		raw = data
	}
	return json.Marshal(Envelope{Event: event, Seq: seq, Payload: raw})
}
