package view

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/foundry-planner/internal/board"
	"github.com/DoyleJ11/foundry-planner/internal/channel"
	"github.com/DoyleJ11/foundry-planner/internal/overlay"
	"github.com/DoyleJ11/foundry-planner/internal/poll"
	"github.com/DoyleJ11/foundry-planner/internal/store"
)

// Preview is the read-only view. It receives documents pushed by an editor
// and, without one, keeps itself fresh by polling.
type Preview struct {
	cfg    Config
	log    *zap.Logger
	poller *poll.Poller
	sched  *overlay.Scheduler
	onDraw func(Scene)

	mu       sync.Mutex
	doc      *board.Document
	sess     Session
	scene    Scene
	rebuilds int
}

type PreviewOption func(*Preview)

func WithPreviewLogger(l *zap.Logger) PreviewOption { return func(p *Preview) { p.log = l } }

// WithDraw is called with the latest scene at most once per overlay tick.
func WithDraw(fn func(Scene)) PreviewOption { return func(p *Preview) { p.onDraw = fn } }

// WithPolling attaches a poller over r. The preview primes it with its
// current document and token.
func WithPolling(r store.Reader, cfg poll.Config, tok store.Token, opts ...poll.Option) PreviewOption {
	return func(p *Preview) {
		p.poller = poll.New(r, cfg, func(doc *board.Document, _ store.Token) { p.Replace(doc) }, opts...)
		p.poller.Prime(p.doc, tok, nil)
	}
}

func NewPreview(doc *board.Document, sess Session, cfg Config, opts ...PreviewOption) *Preview {
	if doc == nil {
		doc = board.Empty()
	}
	p := &Preview{cfg: cfg, log: zap.NewNop(), doc: doc, sess: sess}
	p.sched = overlay.NewScheduler(p.draw)
	for _, o := range opts {
		o(p)
	}
	p.rebuild()
	return p
}

// Replace swaps in a new document wholesale and rebuilds.
func (p *Preview) Replace(doc *board.Document) {
	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()
	if p.poller != nil {
		p.poller.Accept(doc)
	}
	p.rebuild()
	p.log.Info("preview document replaced", zap.Int("version", doc.Meta.Version))
}

// SetSession changes the selection and rebuilds.
func (p *Preview) SetSession(s Session) {
	p.mu.Lock()
	p.sess = s
	p.mu.Unlock()
	p.rebuild()
}

func (p *Preview) rebuild() {
	p.mu.Lock()
	p.scene = Build(p.doc, p.sess, p.cfg)
	p.rebuilds++
	p.mu.Unlock()
	p.sched.Request()
}

func (p *Preview) draw() {
	if p.onDraw != nil {
		p.onDraw(p.Scene())
	}
}

func (p *Preview) Scene() Scene {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scene
}

func (p *Preview) Document() *board.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc
}

func (p *Preview) Rebuilds() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rebuilds
}

func (p *Preview) Poller() *poll.Poller { return p.poller }

func (p *Preview) Scheduler() *overlay.Scheduler { return p.sched }

// Handlers answer an editor: updates replace the document, pings get the
// dispatcher's default pong.
func (p *Preview) Handlers() channel.Handlers {
	return channel.Handlers{
		OnUpdate: func(_ context.Context, doc *board.Document) error {
			p.Replace(doc)
			return nil
		},
	}
}

// Run drives the preview until ctx is done: the direct channel when conn is
// non-nil (announcing readiness first), the poller when configured, and the
// redraw ticker.
func (p *Preview) Run(ctx context.Context, conn channel.Conn) error {
	g, ctx := errgroup.WithContext(ctx)
	if conn != nil {
		d := channel.NewDispatcher(conn, p.Handlers(), p.log)
		g.Go(func() error { return d.Run(ctx) })
		if err := conn.Send(ctx, channel.Ready{}); err != nil {
			p.log.Warn("ready not delivered", zap.Error(err))
		}
	}
	if p.poller != nil {
		g.Go(func() error { return p.poller.Run(ctx) })
	}
	g.Go(func() error {
		p.sched.Run(ctx, overlay.DefaultTick)
		return ctx.Err()
	})
	return g.Wait()
}
