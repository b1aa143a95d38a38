package model

import "encoding/json"

// Frame types sent by the server.
const (
	FrameAck   = "ack"
	FrameEvent = "event"
)

// Request is the client-to-server envelope. Seq correlates the acknowledgement;
// a zero Seq means the client does not want one.
type Request struct {
	Event string          `json:"event"`
	Seq   int64           `json:"seq,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Frame is the server-to-client envelope, either an ack for a request or a
// server-pushed event.
type Frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Seq   int64           `json:"seq,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Ack is the minimal acknowledgement payload.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// RoomHistoryPage acknowledges a load_history request.
type RoomHistoryPage struct {
	OK         bool          `json:"ok"`
	Room       string        `json:"room"`
	Messages   []ChatMessage `json:"messages"`
	NextOffset int64         `json:"nextOffset"`
}

// DirectHistoryPage acknowledges a load_private_history request.
type DirectHistoryPage struct {
	OK         bool            `json:"ok"`
	With       string          `json:"with"`
	Messages   []DirectMessage `json:"messages"`
	NextOffset int64           `json:"nextOffset"`
}

// UserEvent is the envelope published on a user's channel. Payload stays raw
// so relayed key material is never reinterpreted by the server.
type UserEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewUserEvent wraps a payload for publication on a user channel.
func NewUserEvent(kind string, payload any) (UserEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return UserEvent{}, err
	}
	return UserEvent{Type: kind, Payload: raw}, nil
}
