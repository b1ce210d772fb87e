// Package poll keeps a view's document fresh by conditionally polling the
// store, backing off while the store misbehaves.
package poll

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/foundry-planner/internal/board"
	"github.com/DoyleJ11/foundry-planner/internal/store"
)

const (
	DefaultInterval   = 2500 * time.Millisecond
	MinInterval       = 1000 * time.Millisecond
	DefaultTimeout    = 8000 * time.Millisecond
	DefaultMaxBackoff = 32
	DefaultOverride   = 5 * time.Minute
)

// Outcome is what a single poll did.
type Outcome int

const (
	// Skipped: the view was hidden or unfocused, or a poll was already
	// running. Backoff is untouched.
	Skipped Outcome = iota
	// Disabled: polling is switched off.
	Disabled
	// Unchanged: nothing new worth rebuilding for.
	Unchanged
	// Changed: a new document was handed to the change callback.
	Changed
	// Failed: transport failure, bad status or timeout. Backoff doubled.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Disabled:
		return "disabled"
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type State int

const (
	StateIdle State = iota
	StatePolling
	StateBackoff
)

// Visibility reports whether the hosting view is on screen and focused.
type Visibility interface {
	Visible() bool
	Focused() bool
}

// ChangeFunc receives every genuinely new document.
type ChangeFunc func(doc *board.Document, tok store.Token)

type Config struct {
	Enabled    bool
	Interval   time.Duration
	Timeout    time.Duration
	MaxBackoff int
}

func DefaultConfig() Config {
	return Config{Enabled: true, Interval: DefaultInterval, Timeout: DefaultTimeout, MaxBackoff: DefaultMaxBackoff}
}

type Poller struct {
	r        store.Reader
	vis      Visibility
	onChange ChangeFunc
	log      *zap.Logger
	now      func() time.Time
	floor    time.Duration

	inFlight atomic.Bool
	wake     chan struct{}

	mu            sync.Mutex
	cfg           Config
	forced        bool
	overrideUntil time.Time
	backoff       int
	token         store.Token
	lastText      []byte
	lastDoc       *board.Document
}

type Option func(*Poller)

func WithVisibility(v Visibility) Option { return func(p *Poller) { p.vis = v } }

func WithLogger(l *zap.Logger) Option { return func(p *Poller) { p.log = l } }

func WithClock(now func() time.Time) Option { return func(p *Poller) { p.now = now } }

func New(r store.Reader, cfg Config, onChange ChangeFunc, opts ...Option) *Poller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBackoff < 1 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	p := &Poller{
		r:        r,
		cfg:      cfg,
		onChange: onChange,
		log:      zap.NewNop(),
		now:      time.Now,
		floor:    MinInterval,
		wake:     make(chan struct{}, 1),
		backoff:  1,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Prime records the document the view already shows, so the first poll only
// reports a change if the store really moved on. raw may be nil.
func (p *Poller) Prime(doc *board.Document, tok store.Token, raw []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastDoc = doc
	p.token = tok
	p.lastText = raw
	p.backoff = 1
}

// Accept records a document that arrived by other means (a direct push), so
// the poller does not report it again.
func (p *Poller) Accept(doc *board.Document) {
	p.mu.Lock()
	p.lastDoc = doc
	p.mu.Unlock()
}

// NextDelay is base × backoff, clamped to [base, base × max backoff], where
// base is the configured interval but never under one second.
func (p *Poller) NextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextDelayLocked()
}

func (p *Poller) nextDelayLocked() time.Duration {
	base := max(p.floor, p.cfg.Interval)
	delay := base * time.Duration(p.backoff)
	return min(max(delay, base), base*time.Duration(p.cfg.MaxBackoff))
}

func (p *Poller) Backoff() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backoff
}

func (p *Poller) State() State {
	if p.inFlight.Load() {
		return StatePolling
	}
	if p.Backoff() > 1 {
		return StateBackoff
	}
	return StateIdle
}

func (p *Poller) Token() store.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// Enabled reports whether polls run, expiring a temporary override first.
func (p *Poller) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabledLocked()
}

func (p *Poller) enabledLocked() bool {
	if p.forced && !p.now().Before(p.overrideUntil) {
		p.forced = false
		p.log.Info("polling override expired")
	}
	return p.cfg.Enabled || p.forced
}

// EnableFor switches polling on for d even if configuration disabled it.
// A larger interval than the configured one is adopted.
func (p *Poller) EnableFor(d, interval time.Duration) {
	p.mu.Lock()
	p.forced = true
	p.overrideUntil = p.now().Add(d)
	if interval >= p.cfg.Interval {
		p.cfg.Interval = interval
	}
	p.backoff = 1
	p.mu.Unlock()
	p.log.Info("polling enabled by override", zap.Duration("for", d))
	p.poke()
}

// Disable turns polling off, including any override.
func (p *Poller) Disable() {
	p.mu.Lock()
	p.forced = false
	p.cfg.Enabled = false
	p.mu.Unlock()
	p.poke()
}

func (p *Poller) poke() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Poll runs one conditional fetch. At most one runs at a time; overlapping
// calls return Skipped.
func (p *Poller) Poll(ctx context.Context) (Outcome, error) {
	if !p.Enabled() {
		return Disabled, nil
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		return Skipped, nil
	}
	defer p.inFlight.Store(false)

	if p.vis != nil && (!p.vis.Visible() || !p.vis.Focused()) {
		return Skipped, nil
	}

	p.mu.Lock()
	tok := p.token
	timeout := p.cfg.Timeout
	p.mu.Unlock()

	tctx, cancel := context.WithTimeout(ctx, timeout)
	res, err := p.r.Read(tctx, tok)
	cancel()
	if err != nil {
		p.fail(err)
		return Failed, err
	}
	return p.handle(res), nil
}

func (p *Poller) fail(err error) {
	p.mu.Lock()
	p.backoff = min(p.cfg.MaxBackoff, p.backoff*2)
	b := p.backoff
	p.mu.Unlock()
	p.log.Warn("poll failed", zap.Error(err), zap.Int("backoff", b))
}

func (p *Poller) handle(res store.ReadResult) Outcome {
	p.mu.Lock()
	p.backoff = 1
	if res.Unchanged {
		p.mu.Unlock()
		return Unchanged
	}
	if res.Token.ETag != "" {
		p.token.ETag = res.Token.ETag
	}
	if res.Token.LastModified != "" {
		p.token.LastModified = res.Token.LastModified
	}
	tok := p.token
	text := res.Body
	if len(text) == 0 {
		p.mu.Unlock()
		return Unchanged
	}
	if p.lastText == nil && p.lastDoc == nil {
		// nothing to compare against yet, this body is the baseline
		p.lastText = text
		p.mu.Unlock()
		return Unchanged
	}
	if bytes.Equal(text, p.lastText) {
		p.mu.Unlock()
		return Unchanged
	}
	p.lastText = text
	prev := p.lastDoc
	p.mu.Unlock()

	doc, err := board.Parse(text)
	if err != nil {
		// keep showing the last good document
		p.log.Warn("poll parse failed", zap.Error(err))
		return Unchanged
	}
	if prev != nil && board.SameContent(doc, prev) {
		return Unchanged
	}

	p.mu.Lock()
	p.lastDoc = doc
	p.mu.Unlock()
	p.log.Info("poll detected change",
		zap.Int("buildings", len(doc.Buildings)),
		zap.Int("legions", len(doc.LegionData)),
		zap.Int("version", doc.Meta.Version))
	if p.onChange != nil {
		p.onChange(doc, tok)
	}
	return Changed
}

// Run polls until ctx is done, sleeping NextDelay between polls. While
// disabled it waits for EnableFor.
func (p *Poller) Run(ctx context.Context) error {
	for {
		if !p.Enabled() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.wake:
			}
			continue
		}

		delay := p.NextDelay()
		p.log.Debug("next poll", zap.Duration("in", delay), zap.Int("backoff", p.Backoff()))
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-p.wake:
			t.Stop()
			continue
		case <-t.C:
		}
		outcome, _ := p.Poll(ctx)
		p.log.Debug("poll", zap.Stringer("outcome", outcome))
	}
}

// Switch is a Visibility the host flips as its view is shown or focused.
// The zero Switch is hidden.
type Switch struct {
	visible atomic.Bool
	focused atomic.Bool
}

func NewSwitch(visible, focused bool) *Switch {
	s := &Switch{}
	s.visible.Store(visible)
	s.focused.Store(focused)
	return s
}

func (s *Switch) Visible() bool { return s.visible.Load() }
func (s *Switch) Focused() bool { return s.focused.Load() }
func (s *Switch) SetVisible(v bool) { s.visible.Store(v) }
func (s *Switch) SetFocused(v bool) { s.focused.Store(v) }
