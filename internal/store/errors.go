package store

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/foundry-planner/internal/board"
)

// Error kinds shared by every backend and by the HTTP client. Compare with
// errors.Is.
var (
	ErrTransport       = errors.New("store: transport failure")
	ErrValidation      = errors.New("store: document rejected")
	ErrAuth            = errors.New("store: not authorized")
	ErrConcurrentWrite = errors.New("store: locked by another writer")
	ErrParse           = errors.New("store: unreadable document")
	ErrIO              = errors.New("store: write failed")
)

// WriteError is a failed write. Code is the machine readable reason
// (missing_buildings, lock_failed, ...) and Kind one of the sentinels above.
type WriteError struct {
	Kind    error
	Code    string
	Message string
}

func (e *WriteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (%s)", e.Kind, e.Code)
	}
	return fmt.Sprintf("%v (%s): %s", e.Kind, e.Code, e.Message)
}

func (e *WriteError) Unwrap() error { return e.Kind }

// CodeOf returns the machine code carried by err, or "" when there is none.
func CodeOf(err error) string {
	var we *WriteError
	if errors.As(err, &we) {
		return we.Code
	}
	return ""
}

// fromValidation lifts a board validation failure into the store taxonomy.
func fromValidation(err error) error {
	var ve *board.ValidationError
	if errors.As(err, &ve) {
		return &WriteError{Kind: ErrValidation, Code: ve.Code, Message: ve.Message}
	}
	return &WriteError{Kind: ErrValidation, Code: "invalid_document", Message: err.Error()}
}

func lockFailed() error {
	return &WriteError{Kind: ErrConcurrentWrite, Code: "lock_failed", Message: "Could not acquire file lock, please try again"}
}

func ioFailed(code string, err error) error {
	return &WriteError{Kind: ErrIO, Code: code, Message: err.Error()}
}
