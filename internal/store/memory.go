package store

import (
	"context"
	"sync"
	"time"

	"github.com/DoyleJ11/foundry-planner/internal/board"
)

// MemoryStore keeps the document in process. Used for tests and for running
// a throwaway server.
type MemoryStore struct {
	mu   sync.Mutex
	snap Snapshot
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snap: newSnapshot(emptyBody(), 0, time.Time{}), now: time.Now}
}

func (m *MemoryStore) Load(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, nil
}

func (m *MemoryStore) Save(ctx context.Context, doc *board.Document) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	now := m.now()
	body, version, err := prepare(doc, m.snap.Version, now)
	if err != nil {
		return Snapshot{}, err
	}
	m.snap = newSnapshot(body, version, now)
	return m.snap, nil
}

func (m *MemoryStore) Close() error { return nil }
