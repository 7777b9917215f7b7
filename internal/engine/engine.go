// Package engine defines the search engine contract, its error taxonomy, and the
// registry that resolves a configured driver name to an engine at startup.
package engine

import (
	"context"

	"github.com/hyperjump/sokuin/internal/models"
)

// Index is one named index on an engine.
type Index interface {
	Name() string
	// Search returns hits for term in relevance order. The engine interprets term;
	// callers pass it through unchanged.
	Search(ctx context.Context, term string, opts models.SearchOptions) (*models.SearchResponse, error)
	// Upsert makes records searchable, replacing any previous copy.
	Upsert(ctx context.Context, records []*models.Record) error
	// Delete removes records from the index. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []int64) error
	// Flush removes every record from the index.
	Flush(ctx context.Context) error
}

// Engine is a connection to a search backend.
type Engine interface {
	// Driver returns the registry name the engine was opened under.
	Driver() string
	Index(ctx context.Context, name string) (Index, error)
	Close() error
}
