package types

import "encoding/json"

// AdminKeyHeader carries the admin password on writes.
const AdminKeyHeader = "X-Admin-Key"

// POST /api/save
//   header: X-Admin-Key
//   body: { payload: Document }
//   ok:   { ok: true, message, version }
//   fail: { ok: false, error: code, message }

type SaveRequest struct {
	Payload json.RawMessage `json:"payload"`
}

type SaveResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Version int    `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// POST /sessions -> 201 { code }
type SessionResponse struct {
	Code string `json:"code"`
}
