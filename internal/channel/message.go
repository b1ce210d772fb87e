// Package channel carries the direct editor <-> preview messages: a typed
// message set, connections that move them, and a dispatcher that consumes
// them.
package channel

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/foundry-planner/internal/board"
	"github.com/DoyleJ11/foundry-planner/pkg/types"
)

var (
	ErrClosed       = errors.New("channel closed")
	ErrUnknownType  = errors.New("unknown message type")
	ErrProbeTimeout = errors.New("liveness probe timed out")
)

type Message interface{ isMessage() }

// Ready is sent by a preview once it can receive data.
type Ready struct{}

func (Ready) isMessage() {}

// Update replaces the receiver's document wholesale.
type Update struct {
	Doc *board.Document
}

func (Update) isMessage() {}

type Ping struct{}

func (Ping) isMessage() {}

type Pong struct{}

func (Pong) isMessage() {}

// Encode turns a message into one wire frame.
func Encode(m Message) ([]byte, error) {
	var env types.Envelope
	switch msg := m.(type) {
	case Ready:
		env.Type = types.TypeReady
	case Ping:
		env.Type = types.TypePing
	case Pong:
		env.Type = types.TypePong
	case Update:
		if msg.Doc == nil {
			return nil, errors.New("update without document")
		}
		payload, err := board.Encode(msg.Doc)
		if err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
		env.Type = types.TypeUpdate
		env.Payload = payload
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
	}
	return json.Marshal(env)
}

// Decode parses one wire frame. Update payloads go through the document
// normalization pass.
func Decode(data []byte) (Message, error) {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", board.ErrSyntax, err)
	}
	switch env.Type {
	case types.TypeReady:
		return Ready{}, nil
	case types.TypePing:
		return Ping{}, nil
	case types.TypePong:
		return Pong{}, nil
	case types.TypeUpdate:
		doc, err := board.Parse(env.Payload)
		if err != nil {
			return nil, err
		}
		return Update{Doc: doc}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}
