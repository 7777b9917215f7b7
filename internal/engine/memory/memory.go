// Package memory provides an in-process search engine driver. It matches terms by
// case-insensitive substring over title and content and orders hits by record ID.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/sokuin/internal/config"
	"github.com/hyperjump/sokuin/internal/engine"
	"github.com/hyperjump/sokuin/internal/models"
)

// Driver is the registry name of this engine.
const Driver = "memory"

// Engine holds every index in process memory.
type Engine struct {
	mu      sync.Mutex
	indexes map[string]*Index
	logger  *zap.Logger
}

// New returns an empty engine.
func New(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{indexes: make(map[string]*Index), logger: logger}
}

// Factory adapts New to engine.Factory.
func Factory(_ config.EngineConfig, logger *zap.Logger) (engine.Engine, error) {
	return New(logger), nil
}

func (e *Engine) Driver() string { return Driver }

// Index returns the named index, creating it on first use.
func (e *Engine) Index(_ context.Context, name string) (engine.Index, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.indexes[name]
	if !ok {
		idx = &Index{name: name, docs: make(map[int64]map[string]any)}
		e.indexes[name] = idx
		e.logger.Debug("memory index created", zap.String("index", name))
	}
	return idx, nil
}

func (e *Engine) Close() error { return nil }

// Index is one in-memory index.
type Index struct {
	name string
	mu   sync.RWMutex
	docs map[int64]map[string]any
}

func (i *Index) Name() string { return i.name }

// Len returns the number of indexed records.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}

func (i *Index) Search(ctx context.Context, term string, opts models.SearchOptions) (*models.SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.Wrap(Driver, engine.OpSearch, err)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("memory search: %w", err)
	}
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "*" {
		needle = ""
	}

	i.mu.RLock()
	var ids []int64
	for id, fields := range i.docs {
		if matches(fields, needle) && matchesFilters(fields, opts.Filters) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	resp := &models.SearchResponse{Hits: []models.Hit{}, TotalHits: len(ids)}
	if opts.Offset < len(ids) {
		end := min(opts.Offset+opts.Limit, len(ids))
		for _, id := range ids[opts.Offset:end] {
			resp.Hits = append(resp.Hits, models.Hit{ID: id, Fields: copyFields(i.docs[id])})
		}
	}
	i.mu.RUnlock()
	return resp, nil
}

func (i *Index) Upsert(ctx context.Context, records []*models.Record) error {
	if err := ctx.Err(); err != nil {
		return engine.Wrap(Driver, engine.OpUpsert, err)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, r := range records {
		i.docs[r.ID] = r.Searchable()
	}
	return nil
}

func (i *Index) Delete(ctx context.Context, ids []int64) error {
	if err := ctx.Err(); err != nil {
		return engine.Wrap(Driver, engine.OpDelete, err)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, id := range ids {
		delete(i.docs, id)
	}
	return nil
}

func (i *Index) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return engine.Wrap(Driver, engine.OpFlush, err)
	}
	i.mu.Lock()
	i.docs = make(map[int64]map[string]any)
	i.mu.Unlock()
	return nil
}

func matches(fields map[string]any, needle string) bool {
	if needle == "" {
		return true
	}
	for _, key := range []string{"title", "content"} {
		if s, ok := fields[key].(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func matchesFilters(fields map[string]any, filters map[string]string) bool {
	for k, want := range filters {
		v, ok := fields[k]
		if !ok || fmt.Sprint(v) != want {
			return false
		}
	}
	return true
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
