package types

import "encoding/json"

// Editor <-> Preview
//
// Every frame is one Envelope encoded as JSON text.
//
// ready  (preview -> editor): {}
//   the preview can receive data; the editor answers with an update
//
// update (editor -> preview):
//   payload: full document { buildings, legion_data, meta }
//   replaces the preview's document wholesale, never merged
//
// ping   (editor -> preview): {}
// pong   (preview -> editor): {}
//   liveness probe, the editor waits 3000ms for the pong
//
// error  (relay -> peer):
//   error: string

const (
	TypeReady  = "ready"
	TypeUpdate = "update"
	TypePing   = "ping"
	TypePong   = "pong"
	TypeError  = "error"
)

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}
