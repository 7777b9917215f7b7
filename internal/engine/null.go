package engine

import (
	"context"

	"github.com/hyperjump/sokuin/internal/models"
)

// NullDriver is the registry name of the engine that indexes nothing.
const NullDriver = "null"

// Null is an engine whose indexes accept writes and never match anything.
type Null struct{}

// NewNull returns a null engine.
func NewNull() *Null { return &Null{} }

func (Null) Driver() string { return NullDriver }

func (Null) Index(_ context.Context, name string) (Index, error) {
	return nullIndex(name), nil
}

func (Null) Close() error { return nil }

type nullIndex string

func (n nullIndex) Name() string { return string(n) }

func (nullIndex) Search(ctx context.Context, _ string, _ models.SearchOptions) (*models.SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &models.SearchResponse{Hits: []models.Hit{}}, nil
}

func (nullIndex) Upsert(context.Context, []*models.Record) error { return nil }
func (nullIndex) Delete(context.Context, []int64) error          { return nil }
func (nullIndex) Flush(context.Context) error                    { return nil }
