// Package search turns engine responses into hydrated, correctly counted pages.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/hyperjump/sokuin/internal/models"
	"github.com/hyperjump/sokuin/internal/storage"
)

// DefaultPerPage is the page size used when the caller does not pick one.
const DefaultPerPage = 15

var (
	// ErrInvalidPageSize is returned when perPage is not positive.
	ErrInvalidPageSize = errors.New("per page must be positive")
	// ErrPageOutOfRange is returned when the page's hit offset does not fit in an int.
	ErrPageOutOfRange = errors.New("page out of range")
)

// Refinement narrows the local-store query built from engine hits.
// Errors it returns are passed to the caller unchanged.
type Refinement func(q storage.Query) (storage.Query, error)

// Refetch asks the engine for the same term again with a larger limit.
type Refetch func(ctx context.Context, limit int) (*models.SearchResponse, error)

// PageRequest describes the page to build from an engine response.
type PageRequest struct {
	Page    int
	PerPage int
	Refine  Refinement
	// Refetch collects every matching ID for a refined total when the response
	// holds fewer hits than TotalHits. Nil counts only the hits at hand.
	Refetch Refetch
	// Take caps the Refetch limit. Zero means TotalHits.
	Take int
}

func (r PageRequest) normalize() (PageRequest, error) {
	page, _, err := PageOffset(r.Page, r.PerPage)
	if err != nil {
		return r, err
	}
	r.Page = page
	return r, nil
}

// PageOffset validates page and perPage and returns the normalized page with the
// offset of its first hit. Pages below 1 become 1. The end of the page,
// page*perPage, must fit in an int.
func PageOffset(page, perPage int) (int, int, error) {
	if perPage <= 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidPageSize, perPage)
	}
	if page < 1 {
		page = 1
	}
	if page > math.MaxInt/perPage {
		return 0, 0, fmt.Errorf("%w: page %d with %d per page", ErrPageOutOfRange, page, perPage)
	}
	return page, (page - 1) * perPage, nil
}

// LastPage returns max(1, ceil(total/perPage)).
func LastPage(total, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 1
	}
	last := total / perPage
	if total%perPage != 0 {
		last++
	}
	return last
}

// Paginate builds a page of records hydrated from store for the hits in resp.
// Records keep the engine's order; hits missing from the store or removed by the
// refinement are dropped.
func Paginate(ctx context.Context, store storage.Store, resp *models.SearchResponse, req PageRequest) (*models.Page[*models.Record], error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	records, err := Hydrate(ctx, store, resp.Hits, req.Refine)
	if err != nil {
		return nil, err
	}
	if len(records) > req.PerPage {
		records = records[:req.PerPage]
	}
	total, err := totalFor(ctx, store, resp, req)
	if err != nil {
		return nil, err
	}
	return &models.Page[*models.Record]{
		Items:       records,
		Total:       total,
		PerPage:     req.PerPage,
		CurrentPage: req.Page,
		LastPage:    LastPage(total, req.PerPage),
	}, nil
}

// PaginateRaw is Paginate without hydration: items are the engine hits as
// returned. The total is computed the same way.
func PaginateRaw(ctx context.Context, store storage.Store, resp *models.SearchResponse, req PageRequest) (*models.Page[models.Hit], error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	hits := resp.Hits
	if len(hits) > req.PerPage {
		hits = hits[:req.PerPage]
	}
	items := make([]models.Hit, len(hits))
	copy(items, hits)

	total, err := totalFor(ctx, store, resp, req)
	if err != nil {
		return nil, err
	}
	return &models.Page[models.Hit]{
		Items:       items,
		Total:       total,
		PerPage:     req.PerPage,
		CurrentPage: req.Page,
		LastPage:    LastPage(total, req.PerPage),
	}, nil
}

// Hydrate loads the records for hits, applies refine, and returns them in hit order.
func Hydrate(ctx context.Context, store storage.Store, hits []models.Hit, refine Refinement) ([]*models.Record, error) {
	if len(hits) == 0 {
		return []*models.Record{}, nil
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	q, err := refined(store.Scoped(ids), refine)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found, err := q.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("hydrate records: %w", err)
	}

	byID := make(map[int64]*models.Record, len(found))
	for _, r := range found {
		byID[r.ID] = r
	}
	out := make([]*models.Record, 0, len(found))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
			delete(byID, id)
		}
	}
	return out, nil
}

// totalFor is TotalHits without a refinement. With one, it is the refined count
// over every engine ID, fetched again when the response only carries a page.
func totalFor(ctx context.Context, store storage.Store, resp *models.SearchResponse, req PageRequest) (int, error) {
	if req.Refine == nil {
		return resp.TotalHits, nil
	}
	ids := resp.IDs()
	if len(ids) < resp.TotalHits && req.Refetch != nil {
		limit := resp.TotalHits
		if req.Take > 0 && req.Take < limit {
			limit = req.Take
		}
		all, err := req.Refetch(ctx, limit)
		if err != nil {
			return 0, err
		}
		ids = all.IDs()
	}
	q, err := refined(store.Scoped(ids), req.Refine)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return int(n), nil
}

func refined(q storage.Query, refine Refinement) (storage.Query, error) {
	if refine == nil {
		return q, nil
	}
	out, err := refine(q)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("refinement returned a nil query")
	}
	return out, nil
}

// WhereAll returns a Refinement applying every filter. No filters is the identity.
func WhereAll(filters ...storage.Filter) Refinement {
	if len(filters) == 0 {
		return nil
	}
	fs := append([]storage.Filter(nil), filters...)
	return func(q storage.Query) (storage.Query, error) {
		for _, f := range fs {
			q = q.Where(f)
		}
		return q, nil
	}
}
