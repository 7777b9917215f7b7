// Package bleve provides the embedded Bleve search engine driver.
// Each index lives in its own directory under the configured path, or in memory
// when no path is set.
package bleve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	blevelib "github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/hyperjump/sokuin/internal/config"
	"github.com/hyperjump/sokuin/internal/engine"
	"github.com/hyperjump/sokuin/internal/models"
)

// Driver is the registry name of this engine.
const Driver = "bleve"

// fuzziness is the edit distance used for fuzzy term queries.
const fuzziness = 2

// Engine opens Bleve indexes on demand and keeps them open until Close.
type Engine struct {
	root   string
	fuzzy  bool
	logger *zap.Logger

	mu      sync.Mutex
	indexes map[string]*Index
}

// New returns an engine rooted at cfg.BlevePath.
func New(cfg config.EngineConfig, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BlevePath != "" {
		if err := os.MkdirAll(cfg.BlevePath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create Bleve directory: %w", err)
		}
	}
	return &Engine{
		root:    cfg.BlevePath,
		fuzzy:   cfg.Fuzzy,
		logger:  logger,
		indexes: make(map[string]*Index),
	}, nil
}

// Factory adapts New to engine.Factory.
func Factory(cfg config.EngineConfig, logger *zap.Logger) (engine.Engine, error) {
	return New(cfg, logger)
}

func (e *Engine) Driver() string { return Driver }

// Index opens or creates the named index. An existing directory is reused.
func (e *Engine) Index(_ context.Context, name string) (engine.Index, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid index name %q", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx, ok := e.indexes[name]; ok {
		return idx, nil
	}
	idx := &Index{name: name, fuzzy: e.fuzzy, logger: e.logger}
	if e.root != "" {
		idx.path = filepath.Join(e.root, name+".bleve")
	}
	if err := idx.open(); err != nil {
		return nil, engine.Wrap(Driver, engine.OpOpen, err)
	}
	e.indexes[name] = idx
	return idx, nil
}

// Close closes every open index.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for name, idx := range e.indexes {
		if err := idx.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(e.indexes, name)
	}
	return firstErr
}

// Index is one Bleve index.
type Index struct {
	name   string
	path   string
	fuzzy  bool
	logger *zap.Logger

	mu    sync.RWMutex
	index blevelib.Index
}

func newMapping() mapping.IndexMapping {
	im := blevelib.NewIndexMapping()

	docMapping := blevelib.NewDocumentMapping()
	textFieldMapping := blevelib.NewTextFieldMapping()
	// Standard analyzer: lowercase and tokenize without stemming, so terms match as typed.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	keywordFieldMapping := blevelib.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("source", keywordFieldMapping)
	im.AddDocumentMapping("record", docMapping)
	im.DefaultType = "record"
	im.DefaultMapping = docMapping
	return im
}

func (i *Index) open() error {
	if i.path == "" {
		idx, err := blevelib.NewMemOnly(newMapping())
		if err != nil {
			return fmt.Errorf("failed to create Bleve index: %w", err)
		}
		i.index = idx
		return nil
	}
	if _, err := os.Stat(i.path); err == nil {
		idx, openErr := blevelib.Open(i.path)
		if openErr != nil {
			return fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		i.index = idx
		return nil
	}
	idx, err := blevelib.New(i.path, newMapping())
	if err != nil {
		return fmt.Errorf("failed to create Bleve index: %w", err)
	}
	i.index = idx
	return nil
}

func (i *Index) close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.index == nil {
		return nil
	}
	err := i.index.Close()
	i.index = nil
	return err
}

func (i *Index) Name() string { return i.name }

// Search runs a match query (fuzzy term queries when enabled) and pages with From/Size.
func (i *Index) Search(ctx context.Context, term string, opts models.SearchOptions) (*models.SearchResponse, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}
	req := blevelib.NewSearchRequestOptions(i.buildQuery(term, opts.Filters), opts.Limit, opts.Offset, false)
	req.Fields = []string{"*"}
	req.SortBy([]string{"-_score", "_id"})

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.index == nil {
		return nil, engine.Wrap(Driver, engine.OpSearch, fmt.Errorf("index %q is closed", i.name))
	}
	results, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, engine.Wrap(Driver, engine.OpSearch, fmt.Errorf("Bleve search failed: %w", err))
	}

	resp := &models.SearchResponse{Hits: make([]models.Hit, 0, len(results.Hits)), TotalHits: int(results.Total)}
	for _, hit := range results.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			i.logger.Warn("skipping Bleve document with non-numeric id", zap.String("id", hit.ID))
			continue
		}
		resp.Hits = append(resp.Hits, models.Hit{ID: id, Score: hit.Score, Fields: hit.Fields})
	}
	return resp, nil
}

func (i *Index) buildQuery(term string, filters map[string]string) blevequery.Query {
	var q blevequery.Query
	trimmed := strings.TrimSpace(term)
	switch {
	case trimmed == "" || trimmed == "*":
		q = blevelib.NewMatchAllQuery()
	case i.fuzzy:
		q = buildFuzzyQuery(trimmed)
	default:
		q = blevelib.NewMatchQuery(trimmed)
	}
	if len(filters) == 0 {
		return q
	}

	fields := make([]string, 0, len(filters))
	for f := range filters {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	conjuncts := []blevequery.Query{q}
	for _, f := range fields {
		mq := blevelib.NewMatchQuery(filters[f])
		mq.SetField(f)
		mq.SetOperator(blevequery.MatchQueryOperatorAnd)
		conjuncts = append(conjuncts, mq)
	}
	return blevelib.NewConjunctionQuery(conjuncts...)
}

// buildFuzzyQuery creates a disjunction of fuzzy queries, one per lowercase term.
func buildFuzzyQuery(term string) blevequery.Query {
	terms := strings.Fields(strings.ToLower(term))
	if len(terms) == 1 {
		fq := blevelib.NewFuzzyQuery(terms[0])
		fq.SetFuzziness(fuzziness)
		return fq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, t := range terms {
		fq := blevelib.NewFuzzyQuery(t)
		fq.SetFuzziness(fuzziness)
		queries = append(queries, fq)
	}
	return blevelib.NewDisjunctionQuery(queries...)
}

// Upsert indexes records in one batch, keyed by record ID.
func (i *Index) Upsert(ctx context.Context, records []*models.Record) error {
	if err := ctx.Err(); err != nil {
		return engine.Wrap(Driver, engine.OpUpsert, err)
	}
	if len(records) == 0 {
		return nil
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.index == nil {
		return engine.Wrap(Driver, engine.OpUpsert, fmt.Errorf("index %q is closed", i.name))
	}
	batch := i.index.NewBatch()
	for _, r := range records {
		doc := r.Searchable()
		doc["id"] = r.Key()
		if err := batch.Index(r.Key(), doc); err != nil {
			return engine.Wrap(Driver, engine.OpUpsert, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return engine.Wrap(Driver, engine.OpUpsert, fmt.Errorf("Bleve batch failed: %w", err))
	}
	return nil
}

func (i *Index) Delete(ctx context.Context, ids []int64) error {
	if err := ctx.Err(); err != nil {
		return engine.Wrap(Driver, engine.OpDelete, err)
	}
	if len(ids) == 0 {
		return nil
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.index == nil {
		return engine.Wrap(Driver, engine.OpDelete, fmt.Errorf("index %q is closed", i.name))
	}
	batch := i.index.NewBatch()
	for _, id := range ids {
		batch.Delete(strconv.FormatInt(id, 10))
	}
	if err := i.index.Batch(batch); err != nil {
		return engine.Wrap(Driver, engine.OpDelete, fmt.Errorf("Bleve batch failed: %w", err))
	}
	return nil
}

// Flush drops the index and recreates it empty.
func (i *Index) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return engine.Wrap(Driver, engine.OpFlush, err)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.index != nil {
		if err := i.index.Close(); err != nil {
			return engine.Wrap(Driver, engine.OpFlush, err)
		}
		i.index = nil
	}
	if i.path != "" {
		if err := os.RemoveAll(i.path); err != nil {
			return engine.Wrap(Driver, engine.OpFlush, err)
		}
	}
	if err := i.open(); err != nil {
		return engine.Wrap(Driver, engine.OpFlush, err)
	}
	i.logger.Info("Bleve index flushed", zap.String("index", i.name))
	return nil
}

// DocCount returns the number of documents in the index.
func (i *Index) DocCount() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.index == nil {
		return 0, fmt.Errorf("index %q is closed", i.name)
	}
	return i.index.DocCount()
}
