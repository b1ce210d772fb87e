// Package store persists the plan document. Every write replaces the whole
// document and moves meta.version forward; readers get an opaque freshness
// token (ETag) to make polling cheap.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/DoyleJ11/foundry-planner/internal/board"
)

// TimestampLayout is the meta.updated_at format.
const TimestampLayout = "2006-01-02 15:04:05"

// Snapshot is one stored revision of the document.
type Snapshot struct {
	Body      []byte
	Version   int
	UpdatedAt time.Time
	ETag      string
}

// Backend is a place the document lives.
type Backend interface {
	// Load returns the current document. A store that was never written
	// returns an empty document at version 0.
	Load(ctx context.Context) (Snapshot, error)
	// Save validates and stores doc, returning the stored revision. It
	// either fully succeeds with a new version or fails without a trace.
	Save(ctx context.Context, doc *board.Document) (Snapshot, error)
	Close() error
}

// ETag derives a strong validator from the stored bytes.
func ETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func newSnapshot(body []byte, version int, at time.Time) Snapshot {
	return Snapshot{Body: body, Version: version, UpdatedAt: at, ETag: ETag(body)}
}

// prepare validates doc and produces the bytes to store. The new version is
// one past whichever is higher of the stored and incoming versions, so it
// always increases even when two writers race.
func prepare(doc *board.Document, stored int, now time.Time) ([]byte, int, error) {
	if doc == nil {
		return nil, 0, fromValidation(&board.ValidationError{Code: "invalid_json", Message: "missing payload"})
	}
	if err := board.Validate(doc); err != nil {
		return nil, 0, fromValidation(err)
	}
	out := doc.Clone()
	board.Normalize(out)
	board.RoundCoords(out)
	out.Meta.Version = max(stored, doc.Meta.Version) + 1
	out.Meta.UpdatedAt = now.Format(TimestampLayout)

	body, err := board.EncodeIndent(out)
	if err != nil {
		return nil, 0, ioFailed("json_encode_failed", err)
	}
	return body, out.Meta.Version, nil
}

// versionOf reads meta.version without decoding the whole document.
func versionOf(body []byte) int {
	var head struct {
		Meta struct {
			Version int `json:"version"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return 0
	}
	return head.Meta.Version
}

func emptyBody() []byte {
	body, _ := board.EncodeIndent(board.Empty())
	return body
}
