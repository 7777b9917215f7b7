package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/sokuin/internal/models"
)

const recordColumns = `id, source, title, content, metadata, created_at, updated_at`

// SQLiteStore implements Store with database/sql over mattn/go-sqlite3.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	memory := strings.HasPrefix(dbPath, ":memory:")
	if !memory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_records_source ON records(source);
	`
	_, err := db.Exec(schema)
	return err
}

// Query returns a query over every record.
func (s *SQLiteStore) Query() Query {
	return &sqlQuery{db: s.db}
}

// Scoped returns a query restricted to ids.
func (s *SQLiteStore) Scoped(ids []int64) Query {
	return &sqlQuery{db: s.db, spec: querySpec{}.whereIn(ids)}
}

// Create inserts a record. A zero ID is assigned by the database.
func (s *SQLiteStore) Create(ctx context.Context, r *models.Record) error {
	metadataJSON, err := marshalMetadata(r.Metadata)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	var res sql.Result
	if r.ID != 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Source, r.Title, r.Content, metadataJSON, r.CreatedAt, r.UpdatedAt,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO records (source, title, content, metadata, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.Source, r.Title, r.Content, metadataJSON, r.CreatedAt, r.UpdatedAt,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	if r.ID == 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read record id: %w", err)
		}
		r.ID = id
	}
	return nil
}

// Get returns a record by ID.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Update overwrites an existing record.
func (s *SQLiteStore) Update(ctx context.Context, r *models.Record) error {
	metadataJSON, err := marshalMetadata(r.Metadata)
	if err != nil {
		return err
	}

	r.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx,
		`UPDATE records SET source = ?, title = ?, content = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		r.Source, r.Title, r.Content, metadataJSON, r.UpdatedAt, r.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, r.ID)
	}
	return nil
}

// Delete removes a record by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// List returns records newest first with offset and limit.
func (s *SQLiteStore) List(ctx context.Context, offset, limit int) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records ORDER BY id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// Chunk walks all records in ID order using keyset pagination.
func (s *SQLiteStore) Chunk(ctx context.Context, size int, fn func([]*models.Record) error) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", size)
	}
	var after int64
	for {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+recordColumns+` FROM records WHERE id > ? ORDER BY id LIMIT ?`,
			after, size,
		)
		if err != nil {
			return err
		}
		batch, err := scanRecords(rows)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < size {
			return nil
		}
		after = batch[len(batch)-1].ID
	}
}

// Count returns the total number of records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	return s.Query().Count(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqlQuery struct {
	db   *sql.DB
	spec querySpec
}

func (q *sqlQuery) Where(f Filter) Query {
	return &sqlQuery{db: q.db, spec: q.spec.where(f)}
}

func (q *sqlQuery) WhereIn(ids []int64) Query {
	return &sqlQuery{db: q.db, spec: q.spec.whereIn(ids)}
}

func (q *sqlQuery) Get(ctx context.Context) ([]*models.Record, error) {
	if q.spec.err != nil {
		return nil, q.spec.err
	}
	if q.spec.matchesNothing() {
		return nil, nil
	}
	var out []*models.Record
	for _, batch := range q.spec.batches() {
		where, args := q.spec.whereClause(batch)
		stmt := `SELECT ` + recordColumns + ` FROM records`
		if where != "" {
			stmt += ` WHERE ` + where
		}
		rows, err := q.db.QueryContext(ctx, stmt, args...)
		if err != nil {
			return nil, err
		}
		records, err := scanRecords(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

func (q *sqlQuery) Count(ctx context.Context) (int64, error) {
	if q.spec.err != nil {
		return 0, q.spec.err
	}
	if q.spec.matchesNothing() {
		return 0, nil
	}
	var total int64
	for _, batch := range q.spec.batches() {
		where, args := q.spec.whereClause(batch)
		stmt := `SELECT COUNT(*) FROM records`
		if where != "" {
			stmt += ` WHERE ` + where
		}
		var n int64
		if err := q.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var r models.Record
	var metadataJSON sql.NullString
	if err := row.Scan(&r.ID, &r.Source, &r.Title, &r.Content, &metadataJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &r.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &r, nil
}

func scanRecords(rows *sql.Rows) ([]*models.Record, error) {
	defer rows.Close()
	var out []*models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func marshalMetadata(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
