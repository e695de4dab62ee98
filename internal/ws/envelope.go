package ws

import "encoding/json"

// Envelope is the wire format for socket frames in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	GroupID string          `json:"group_id,omitempty"`
	MsgID   string          `json:"msg_id,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
