package overlay

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultTick is one display frame.
const DefaultTick = time.Second / 60

// Scheduler coalesces redraw requests: Request marks the overlay dirty and
// each Tick redraws at most once.
type Scheduler struct {
	dirty atomic.Bool
	draws atomic.Int64
	draw  func()
}

func NewScheduler(draw func()) *Scheduler { return &Scheduler{draw: draw} }

func (s *Scheduler) Request() { s.dirty.Store(true) }

func (s *Scheduler) Dirty() bool { return s.dirty.Load() }

// Tick runs the pending redraw, if any, and reports whether it drew.
func (s *Scheduler) Tick() bool {
	if !s.dirty.CompareAndSwap(true, false) {
		return false
	}
	s.draws.Add(1)
	if s.draw != nil {
		s.draw()
	}
	return true
}

func (s *Scheduler) Draws() int64 { return s.draws.Load() }

// Run ticks every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTick
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick()
		}
	}
}
