package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/DoyleJ11/foundry-planner/internal/board"
)

// FileStore keeps the document in one JSON file, replaced atomically on
// every write, with a timestamped copy of each revision in a history dir.
type FileStore struct {
	path        string
	historyDir  string
	lock        *semaphore.Weighted
	lockTimeout time.Duration
	now         func() time.Time
	log         *zap.Logger
}

type FileOption func(*FileStore)

// WithHistoryDir keeps a copy of every written revision in dir. Empty
// disables history.
func WithHistoryDir(dir string) FileOption {
	return func(s *FileStore) { s.historyDir = dir }
}

// WithLockTimeout bounds how long a writer waits for another write to finish
// before failing with lock_failed.
func WithLockTimeout(d time.Duration) FileOption {
	return func(s *FileStore) { s.lockTimeout = d }
}

func WithLogger(l *zap.Logger) FileOption {
	return func(s *FileStore) { s.log = l }
}

func WithClock(now func() time.Time) FileOption {
	return func(s *FileStore) { s.now = now }
}

func NewFileStore(path string, opts ...FileOption) *FileStore {
	s := &FileStore{
		path:        path,
		lock:        semaphore.NewWeighted(1),
		lockTimeout: 2 * time.Second,
		now:         time.Now,
		log:         zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (Snapshot, error) {
	body, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return newSnapshot(emptyBody(), 0, time.Time{}), nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	var mod time.Time
	if info, err := os.Stat(s.path); err == nil {
		mod = info.ModTime()
	}
	return newSnapshot(body, versionOf(body), mod), nil
}

func (s *FileStore) Save(ctx context.Context, doc *board.Document) (Snapshot, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	if err := s.lock.Acquire(lockCtx, 1); err != nil {
		return Snapshot{}, lockFailed()
	}
	defer s.lock.Release(1)

	stored := 0
	if cur, err := os.ReadFile(s.path); err == nil {
		stored = versionOf(cur)
	}

	now := s.now()
	body, version, err := prepare(doc, stored, now)
	if err != nil {
		return Snapshot{}, err
	}

	if s.historyDir != "" {
		s.writeHistory(body, now)
	}

	if err := writeAtomic(s.path, body); err != nil {
		return Snapshot{}, err
	}
	s.log.Info("document saved", zap.String("path", s.path), zap.Int("version", version))
	return newSnapshot(body, version, now), nil
}

// writeHistory is best effort: a failed copy never fails the write.
func (s *FileStore) writeHistory(body []byte, now time.Time) {
	if err := os.MkdirAll(s.historyDir, 0o755); err != nil {
		s.log.Warn("history dir unavailable", zap.Error(err))
		return
	}
	base := filepath.Base(s.path)
	ext := filepath.Ext(base)
	name := fmt.Sprintf("%s_%s%s", base[:len(base)-len(ext)], now.Format("2006-01-02_15-04-05"), ext)
	if err := os.WriteFile(filepath.Join(s.historyDir, name), body, 0o644); err != nil {
		s.log.Warn("history copy failed", zap.String("file", name), zap.Error(err))
	}
}

// writeAtomic writes to a temp file next to path and renames it over path, so
// readers see either the old or the new document.
func writeAtomic(path string, body []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ioFailed("write_failed", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return ioFailed("write_failed", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		cleanup()
		return ioFailed("write_failed", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return ioFailed("write_failed", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return ioFailed("write_failed", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return ioFailed("write_failed", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return ioFailed("rename_failed", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
