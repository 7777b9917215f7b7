// Package storage defines the local record store that engine hits are hydrated from.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/sokuin/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidFilter is returned for filters on unknown columns or with unknown operators.
	ErrInvalidFilter = errors.New("invalid filter")
)

// Query is a narrowing of the record table. Queries are values: Where and
// WhereIn return a new Query and never modify the receiver.
type Query interface {
	Where(f Filter) Query
	WhereIn(ids []int64) Query
	// Get returns matching records in no particular order.
	Get(ctx context.Context) ([]*models.Record, error)
	Count(ctx context.Context) (int64, error)
}

// Store defines record persistence operations.
type Store interface {
	// Query returns a query over every record.
	Query() Query
	// Scoped returns a query restricted to exactly ids. An empty ids matches nothing.
	Scoped(ids []int64) Query

	Create(ctx context.Context, r *models.Record) error
	Get(ctx context.Context, id int64) (*models.Record, error)
	Update(ctx context.Context, r *models.Record) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, offset, limit int) ([]*models.Record, error)

	// Chunk walks every record in ID order, size records at a time.
	// The slice passed to fn is only valid for the duration of the call.
	Chunk(ctx context.Context, size int, fn func([]*models.Record) error) error

	Count(ctx context.Context) (int64, error)

	Close() error
}
