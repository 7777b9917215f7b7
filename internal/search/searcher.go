package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/sokuin/internal/engine"
	"github.com/hyperjump/sokuin/internal/metrics"
	"github.com/hyperjump/sokuin/internal/models"
	"github.com/hyperjump/sokuin/internal/storage"
)

// DefaultTake bounds Get, Keys, and Raw when no Take is set.
const DefaultTake = 1000

// Searcher binds an engine index to the local store its hits are hydrated from.
// It holds no mutable state and is safe for concurrent use.
type Searcher struct {
	index   engine.Index
	store   storage.Store
	logger  *zap.Logger
	perPage int
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPerPage sets the default page size reported by PerPage.
func WithPerPage(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.perPage = n
		}
	}
}

// NewSearcher creates a Searcher over index and store.
func NewSearcher(index engine.Index, store storage.Store, opts ...Option) *Searcher {
	s := &Searcher{index: index, store: store, logger: zap.NewNop(), perPage: DefaultPerPage}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PerPage returns the default page size.
func (s *Searcher) PerPage() int { return s.perPage }

// Search passes term and opts to the engine. Engine failures are returned unchanged.
func (s *Searcher) Search(ctx context.Context, term string, opts models.SearchOptions) (*models.SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := s.index.Search(ctx, term, opts)
	metrics.ObserveSearch(s.index.Name(), time.Since(start), err)
	if err != nil {
		s.logger.Debug("engine search failed",
			zap.String("index", s.index.Name()), zap.String("term", term), zap.Error(err))
		return nil, err
	}
	s.logger.Debug("engine search",
		zap.String("index", s.index.Name()),
		zap.String("term", term),
		zap.Int("limit", opts.Limit),
		zap.Int("offset", opts.Offset),
		zap.Int("hits", len(resp.Hits)),
		zap.Int("total_hits", resp.TotalHits),
	)
	return resp, nil
}

// Query starts a builder for term.
func (s *Searcher) Query(term string) *Builder {
	return &Builder{searcher: s, term: term}
}
