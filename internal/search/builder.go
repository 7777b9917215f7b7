package search

import (
	"context"

	"github.com/hyperjump/sokuin/internal/models"
)

// Builder accumulates a search and runs it. Each method returns a new Builder,
// so a Builder can be shared and extended without affecting other users.
type Builder struct {
	searcher *Searcher
	term     string
	refine   Refinement
	take     int
	filters  map[string]string
}

func (b *Builder) clone() *Builder {
	c := *b
	if b.filters != nil {
		c.filters = make(map[string]string, len(b.filters))
		for k, v := range b.filters {
			c.filters[k] = v
		}
	}
	return &c
}

// Term returns the search term.
func (b *Builder) Term() string { return b.term }

// Refine sets the local-store refinement applied when hydrating and counting.
func (b *Builder) Refine(fn Refinement) *Builder {
	c := b.clone()
	c.refine = fn
	return c
}

// Take caps the number of engine hits considered.
func (b *Builder) Take(n int) *Builder {
	c := b.clone()
	if n < 0 {
		n = 0
	}
	c.take = n
	return c
}

// Where adds an engine-side equality filter.
func (b *Builder) Where(field, value string) *Builder {
	c := b.clone()
	if c.filters == nil {
		c.filters = make(map[string]string)
	}
	c.filters[field] = value
	return c
}

func (b *Builder) options(limit, offset int) models.SearchOptions {
	return models.SearchOptions{Limit: limit, Offset: offset, Filters: b.filters}
}

func (b *Builder) limit() int {
	if b.take > 0 {
		return b.take
	}
	return DefaultTake
}

// Raw returns the engine response for up to Take hits.
func (b *Builder) Raw(ctx context.Context) (*models.SearchResponse, error) {
	return b.searcher.Search(ctx, b.term, b.options(b.limit(), 0))
}

// Keys returns the matching record IDs in engine order.
func (b *Builder) Keys(ctx context.Context) ([]int64, error) {
	resp, err := b.Raw(ctx)
	if err != nil {
		return nil, err
	}
	return resp.IDs(), nil
}

// Get returns the hydrated, refined records in engine order.
func (b *Builder) Get(ctx context.Context) ([]*models.Record, error) {
	resp, err := b.Raw(ctx)
	if err != nil {
		return nil, err
	}
	return Hydrate(ctx, b.searcher.store, resp.Hits, b.refine)
}

// Paginate returns page of perPage hydrated records. A perPage that is not
// positive fails with ErrInvalidPageSize; Searcher.PerPage is the usual value.
func (b *Builder) Paginate(ctx context.Context, page, perPage int) (*models.Page[*models.Record], error) {
	req, resp, err := b.page(ctx, page, perPage)
	if err != nil {
		return nil, err
	}
	return Paginate(ctx, b.searcher.store, resp, req)
}

// PaginateRaw is Paginate with the engine's hits as items.
func (b *Builder) PaginateRaw(ctx context.Context, page, perPage int) (*models.Page[models.Hit], error) {
	req, resp, err := b.page(ctx, page, perPage)
	if err != nil {
		return nil, err
	}
	return PaginateRaw(ctx, b.searcher.store, resp, req)
}

func (b *Builder) page(ctx context.Context, page, perPage int) (PageRequest, *models.SearchResponse, error) {
	req, err := PageRequest{
		Page:    page,
		PerPage: perPage,
		Refine:  b.refine,
		Take:    b.take,
		Refetch: func(ctx context.Context, limit int) (*models.SearchResponse, error) {
			return b.searcher.Search(ctx, b.term, b.options(limit, 0))
		},
	}.normalize()
	if err != nil {
		return req, nil, err
	}
	_, offset, err := PageOffset(req.Page, req.PerPage)
	if err != nil {
		return req, nil, err
	}
	resp, err := b.searcher.Search(ctx, b.term, b.options(req.PerPage, offset))
	if err != nil {
		return req, nil, err
	}
	return req, resp, nil
}
