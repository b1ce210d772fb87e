package store

import (
	"context"
	"net/http"

	"github.com/DoyleJ11/foundry-planner/internal/board"
)

// Token is the freshness token a reader presents to skip an unchanged
// document. The zero Token means "never read".
type Token struct {
	ETag         string
	LastModified string
}

func (t Token) IsZero() bool { return t.ETag == "" && t.LastModified == "" }

// ReadResult is either Unchanged or a full body with its new token.
type ReadResult struct {
	Unchanged bool
	Body      []byte
	Token     Token
}

// WriteAck is a successful write.
type WriteAck struct {
	Version int
	Message string
}

// Reader performs conditional reads of the document resource.
type Reader interface {
	Read(ctx context.Context, tok Token) (ReadResult, error)
}

// Writer replaces the stored document.
type Writer interface {
	Write(ctx context.Context, doc *board.Document) (WriteAck, error)
}

// Local serves the Reader and Writer contracts straight from a Backend,
// without HTTP in between.
type Local struct {
	Backend Backend
}

func (l Local) Read(ctx context.Context, tok Token) (ReadResult, error) {
	snap, err := l.Backend.Load(ctx)
	if err != nil {
		return ReadResult{}, err
	}
	next := TokenFor(snap)
	if tok.ETag != "" && tok.ETag == next.ETag {
		return ReadResult{Unchanged: true, Token: tok}, nil
	}
	return ReadResult{Body: snap.Body, Token: next}, nil
}

func (l Local) Write(ctx context.Context, doc *board.Document) (WriteAck, error) {
	snap, err := l.Backend.Save(ctx, doc)
	if err != nil {
		return WriteAck{}, err
	}
	return WriteAck{Version: snap.Version, Message: "Data saved successfully"}, nil
}

// TokenFor builds the token a reader would receive for snap.
func TokenFor(snap Snapshot) Token {
	t := Token{ETag: snap.ETag}
	if !snap.UpdatedAt.IsZero() {
		t.LastModified = snap.UpdatedAt.UTC().Format(http.TimeFormat)
	}
	return t
}
