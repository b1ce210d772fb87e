package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/foundry-planner/internal/board"
)

// planDocument is the current revision of one plan. Body is kept as text so
// the stored bytes are exactly what readers get back.
type planDocument struct {
	ID        string `gorm:"primaryKey;size:64"`
	Body      string `gorm:"type:text;not null"`
	Version   int    `gorm:"not null"`
	UpdatedAt time.Time
}

func (planDocument) TableName() string { return "plan_documents" }

// planRevision is the history copy written alongside every save.
type planRevision struct {
	ID         string `gorm:"primaryKey;size:36"`
	DocumentID string `gorm:"size:64;index"`
	Version    int
	Body       string `gorm:"type:text"`
	CreatedAt  time.Time
}

func (planRevision) TableName() string { return "plan_revisions" }

const (
	// lockNotAvailable is the postgres code for a NOWAIT row lock held elsewhere.
	lockNotAvailable = "55P03"
	// uniqueViolation is what the slower of two first-ever saves gets when
	// both insert the document row.
	uniqueViolation = "23505"
)

// PostgresStore keeps the document in a single row and every revision in a
// history table.
type PostgresStore struct {
	db  *gorm.DB
	key string
	now func() time.Time
	log *zap.Logger
}

// OpenPostgres connects with gorm's own logging silenced; the store logs
// through zap instead.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

func NewPostgresStore(db *gorm.DB, key string, log *zap.Logger) *PostgresStore {
	if log == nil {
		log = zap.NewNop()
	}
	if key == "" {
		key = "default"
	}
	return &PostgresStore{db: db, key: key, now: time.Now, log: log}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&planDocument{}, &planRevision{})
}

func (s *PostgresStore) Load(ctx context.Context) (Snapshot, error) {
	var row planDocument
	err := s.db.WithContext(ctx).Where("id = ?", s.key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newSnapshot(emptyBody(), 0, time.Time{}), nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return newSnapshot([]byte(row.Body), row.Version, row.UpdatedAt), nil
}

func (s *PostgresStore) Save(ctx context.Context, doc *board.Document) (Snapshot, error) {
	var snap Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row planDocument
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"}).
			Where("id = ?", s.key).Take(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = planDocument{ID: s.key}
		case err != nil:
			return err
		}

		now := s.now().UTC()
		body, version, err := prepare(doc, row.Version, now)
		if err != nil {
			return err
		}

		rev := planRevision{ID: uuid.NewString(), DocumentID: s.key, Version: version, Body: string(body), CreatedAt: now}
		if err := tx.Create(&rev).Error; err != nil {
			return err
		}
		row.Body, row.Version, row.UpdatedAt = string(body), version, now
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		snap = newSnapshot(body, version, now)
		return nil
	})
	if err != nil {
		return Snapshot{}, classifyDB(err)
	}
	s.log.Info("document saved", zap.String("key", s.key), zap.Int("version", snap.Version))
	return snap, nil
}

// Revisions lists stored versions newest first.
func (s *PostgresStore) Revisions(ctx context.Context, limit int) ([]int, error) {
	var versions []int
	err := s.db.WithContext(ctx).Model(&planRevision{}).
		Where("document_id = ?", s.key).
		Order("version desc").Limit(limit).
		Pluck("version", &versions).Error
	return versions, err
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func classifyDB(err error) error {
	var we *WriteError
	if errors.As(err, &we) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == lockNotAvailable || pgErr.Code == uniqueViolation) {
		return lockFailed()
	}
	return ioFailed("write_failed", err)
}
