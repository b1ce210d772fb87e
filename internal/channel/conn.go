package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Conn moves messages between two views.
type Conn interface {
	Send(ctx context.Context, m Message) error
	Recv(ctx context.Context) (Message, error)
	Close() error
}

// Pipe returns two connected in-process ends. Closing either end closes
// both. Updates are cloned on send so the ends never share a document.
func Pipe() (Conn, Conn) {
	ab := make(chan Message, 16)
	ba := make(chan Message, 16)
	shared := &pipeState{closed: make(chan struct{})}
	return &pipeEnd{in: ba, out: ab, state: shared}, &pipeEnd{in: ab, out: ba, state: shared}
}

type pipeState struct {
	once   sync.Once
	closed chan struct{}
}

type pipeEnd struct {
	in    <-chan Message
	out   chan<- Message
	state *pipeState
}

func (p *pipeEnd) Send(ctx context.Context, m Message) error {
	if u, ok := m.(Update); ok && u.Doc != nil {
		m = Update{Doc: u.Doc.Clone()}
	}
	select {
	case <-p.state.closed:
		return ErrClosed
	default:
	}
	select {
	case p.out <- m:
		return nil
	case <-p.state.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Recv(ctx context.Context) (Message, error) {
	select {
	case m := <-p.in:
		return m, nil
	case <-p.state.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.state.once.Do(func() { close(p.state.closed) })
	return nil
}

const writeTimeout = 3 * time.Second

// WSConn is a Conn over a websocket, one text frame per message.
type WSConn struct {
	c *websocket.Conn
}

func NewWSConn(c *websocket.Conn) *WSConn { return &WSConn{c: c} }

// Dial connects to a relay websocket URL such as
// ws://host/ws?code=ABC123&role=preview.
func Dial(ctx context.Context, url string) (*WSConn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewWSConn(c), nil
}

func (w *WSConn) Send(ctx context.Context, m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *WSConn) Recv(ctx context.Context) (Message, error) {
	for {
		_, data, err := w.c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil, ErrClosed
			}
			return nil, err
		}
		m, err := Decode(data)
		if errors.Is(err, ErrUnknownType) {
			// relay error frames and future types
			continue
		}
		return m, err
	}
}

func (w *WSConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "bye")
}
