package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hyperjump/sokuin/internal/models"
)

// GormStore implements Store with gorm over pure-Go SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens or creates the database at dbPath and migrates the records table.
// When debug is set, gorm logs every statement.
func NewGormStore(dbPath string, debug bool) (*GormStore, error) {
	memory := strings.HasPrefix(dbPath, ":memory:")
	if !memory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	if memory {
		sqlDB.SetMaxOpenConns(1)
	} else if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := db.AutoMigrate(&models.Record{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Query returns a query over every record.
func (s *GormStore) Query() Query {
	return &gormQuery{db: s.db}
}

// Scoped returns a query restricted to ids.
func (s *GormStore) Scoped(ids []int64) Query {
	return &gormQuery{db: s.db, spec: querySpec{}.whereIn(ids)}
}

// Create inserts a record.
func (s *GormStore) Create(ctx context.Context, r *models.Record) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// Get returns a record by ID.
func (s *GormStore) Get(ctx context.Context, id int64) (*models.Record, error) {
	var r models.Record
	err := s.db.WithContext(ctx).First(&r, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Update overwrites the mutable columns of an existing record.
func (s *GormStore) Update(ctx context.Context, r *models.Record) error {
	res := s.db.WithContext(ctx).Model(r).
		Select("source", "title", "content", "metadata", "updated_at").
		Updates(r)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, r.ID)
	}
	return nil
}

// Delete removes a record by ID.
func (s *GormStore) Delete(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&models.Record{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// List returns records newest first with offset and limit.
func (s *GormStore) List(ctx context.Context, offset, limit int) ([]*models.Record, error) {
	var out []*models.Record
	err := s.db.WithContext(ctx).Order("id desc").Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// Chunk walks all records in primary key order.
func (s *GormStore) Chunk(ctx context.Context, size int, fn func([]*models.Record) error) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", size)
	}
	var batch []*models.Record
	return s.db.WithContext(ctx).FindInBatches(&batch, size, func(_ *gorm.DB, _ int) error {
		return fn(batch)
	}).Error
}

// Count returns the total number of records.
func (s *GormStore) Count(ctx context.Context) (int64, error) {
	return s.Query().Count(ctx)
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormQuery struct {
	db   *gorm.DB
	spec querySpec
}

func (q *gormQuery) Where(f Filter) Query {
	return &gormQuery{db: q.db, spec: q.spec.where(f)}
}

func (q *gormQuery) WhereIn(ids []int64) Query {
	return &gormQuery{db: q.db, spec: q.spec.whereIn(ids)}
}

// scope builds the statement for one batch of scoped identifiers.
func (q *gormQuery) scope(ctx context.Context, batch []int64) *gorm.DB {
	tx := q.db.WithContext(ctx).Model(&models.Record{})
	if q.spec.scoped {
		tx = tx.Where("id IN ?", batch)
	}
	for _, f := range q.spec.filters {
		tx = tx.Where(f.clause(), f.Value)
	}
	return tx
}

func (q *gormQuery) Get(ctx context.Context) ([]*models.Record, error) {
	if q.spec.err != nil {
		return nil, q.spec.err
	}
	if q.spec.matchesNothing() {
		return nil, nil
	}
	var out []*models.Record
	for _, batch := range q.spec.batches() {
		var records []*models.Record
		if err := q.scope(ctx, batch).Find(&records).Error; err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

func (q *gormQuery) Count(ctx context.Context) (int64, error) {
	if q.spec.err != nil {
		return 0, q.spec.err
	}
	if q.spec.matchesNothing() {
		return 0, nil
	}
	var total int64
	for _, batch := range q.spec.batches() {
		var n int64
		if err := q.scope(ctx, batch).Count(&n).Error; err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
