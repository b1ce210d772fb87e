package channel

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/foundry-planner/internal/board"
)

// ProbeTimeout is how long Probe waits for a pong.
const ProbeTimeout = 3000 * time.Millisecond

// Handlers react to inbound messages. Nil handlers ignore the message,
// except OnPing which defaults to answering with a pong.
type Handlers struct {
	OnReady  func(ctx context.Context) error
	OnUpdate func(ctx context.Context, doc *board.Document) error
	OnPing   func(ctx context.Context) error
}

// Dispatcher is the single consumer of a Conn's inbound messages.
type Dispatcher struct {
	conn  Conn
	h     Handlers
	log   *zap.Logger
	pongs chan struct{}
}

func NewDispatcher(conn Conn, h Handlers, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{conn: conn, h: h, log: log, pongs: make(chan struct{}, 1)}
}

func (d *Dispatcher) Conn() Conn { return d.conn }

// Run consumes messages until ctx is done or the connection closes.
// Malformed frames are logged and skipped.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		m, err := d.conn.Recv(ctx)
		if err != nil {
			if errors.Is(err, board.ErrSyntax) || errors.Is(err, ErrUnknownType) {
				d.log.Warn("dropping malformed message", zap.Error(err))
				continue
			}
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		if err := d.dispatch(ctx, m); err != nil {
			d.log.Warn("message handler failed", zap.Error(err))
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, m Message) error {
	switch msg := m.(type) {
	case Ready:
		d.log.Debug("peer ready")
		if d.h.OnReady != nil {
			return d.h.OnReady(ctx)
		}
	case Update:
		if d.h.OnUpdate != nil {
			return d.h.OnUpdate(ctx, msg.Doc)
		}
	case Ping:
		if d.h.OnPing != nil {
			return d.h.OnPing(ctx)
		}
		return d.conn.Send(ctx, Pong{})
	case Pong:
		select {
		case d.pongs <- struct{}{}:
		default:
		}
	}
	return nil
}

// Probe sends a ping and waits up to timeout for the pong. Run must be
// consuming the connection for the pong to arrive.
func (d *Dispatcher) Probe(ctx context.Context, timeout time.Duration) error {
	select {
	case <-d.pongs:
	default:
	}
	if err := d.conn.Send(ctx, Ping{}); err != nil {
		return err
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-d.pongs:
		return nil
	case <-t.C:
		return ErrProbeTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
