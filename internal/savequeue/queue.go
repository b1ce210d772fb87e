// Package savequeue serializes document writes: one write in flight at a
// time, and no write at all when nothing changed since the last success.
package savequeue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/DoyleJ11/foundry-planner/internal/board"
	"github.com/DoyleJ11/foundry-planner/internal/store"
)

const (
	DefaultRetryDelay     = 250 * time.Millisecond
	DefaultMaxLockRetries = 3
)

// Result describes a finished save. Skipped means the payload matched the
// last persisted one and no write was issued.
type Result struct {
	Skipped bool
	Version int
	Message string
}

// PersistedFunc runs after every successful write with the document that was
// written.
type PersistedFunc func(doc *board.Document, ack store.WriteAck)

type Queue struct {
	w              store.Writer
	sem            *semaphore.Weighted
	retryDelay     time.Duration
	maxLockRetries int
	onPersisted    PersistedFunc
	log            *zap.Logger

	mu          sync.Mutex
	lastSaved   []byte
	lastVersion int
}

type Option func(*Queue)

func WithRetryDelay(d time.Duration) Option { return func(q *Queue) { q.retryDelay = d } }

// WithMaxLockRetries bounds how many times a write rejected because the
// store was locked is tried again before the error is returned.
func WithMaxLockRetries(n int) Option { return func(q *Queue) { q.maxLockRetries = n } }

func WithPersisted(fn PersistedFunc) Option { return func(q *Queue) { q.onPersisted = fn } }

func WithLogger(l *zap.Logger) Option { return func(q *Queue) { q.log = l } }

func New(w store.Writer, opts ...Option) *Queue {
	q := &Queue{
		w:              w,
		sem:            semaphore.NewWeighted(1),
		retryDelay:     DefaultRetryDelay,
		maxLockRetries: DefaultMaxLockRetries,
		log:            zap.NewNop(),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Prime records doc as already persisted, typically the document a view
// loaded at startup.
func (q *Queue) Prime(doc *board.Document) error {
	payload, err := board.Encode(doc)
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.lastSaved = payload
	q.lastVersion = doc.Meta.Version
	q.mu.Unlock()
	return nil
}

// LastVersion is the version acknowledged by the most recent write.
func (q *Queue) LastVersion() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastVersion
}

// Save writes doc unless it serializes identically to the last persisted
// payload. Calls made while another write is in flight wait, polling the
// lock every retry delay, instead of writing concurrently.
func (q *Queue) Save(ctx context.Context, doc *board.Document) (Result, error) {
	payload, err := board.Encode(doc)
	if err != nil {
		return Result{}, fmt.Errorf("encode payload: %w", err)
	}
	snapshot := doc.Clone()

	if err := q.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer q.sem.Release(1)

	q.mu.Lock()
	unchanged := q.lastSaved != nil && bytes.Equal(payload, q.lastSaved)
	version := q.lastVersion
	q.mu.Unlock()
	if unchanged {
		q.log.Debug("save skipped, no changes")
		return Result{Skipped: true, Version: version, Message: "No changes to save"}, nil
	}

	for attempt := 0; ; attempt++ {
		ack, err := q.w.Write(ctx, snapshot)
		if err == nil {
			q.mu.Lock()
			q.lastSaved = payload
			q.lastVersion = ack.Version
			q.mu.Unlock()
			q.log.Info("saved", zap.Int("version", ack.Version))
			if q.onPersisted != nil {
				q.onPersisted(snapshot, ack)
			}
			return Result{Version: ack.Version, Message: ack.Message}, nil
		}
		if !errors.Is(err, store.ErrConcurrentWrite) || attempt >= q.maxLockRetries {
			q.log.Warn("save failed", zap.Error(err), zap.Int("attempts", attempt+1))
			return Result{}, err
		}
		if err := sleep(ctx, q.retryDelay); err != nil {
			return Result{}, err
		}
	}
}

func (q *Queue) acquire(ctx context.Context) error {
	for !q.sem.TryAcquire(1) {
		if err := sleep(ctx, q.retryDelay); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
