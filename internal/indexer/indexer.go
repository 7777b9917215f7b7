// Package indexer keeps a search index in step with the local record store.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/sokuin/internal/engine"
	"github.com/hyperjump/sokuin/internal/extract"
	"github.com/hyperjump/sokuin/internal/fileid"
	"github.com/hyperjump/sokuin/internal/metrics"
	"github.com/hyperjump/sokuin/internal/models"
	"github.com/hyperjump/sokuin/internal/storage"
)

// DefaultChunkSize is the number of records pushed to the engine per import batch.
const DefaultChunkSize = 500

// Indexer writes records to the store and mirrors them into an engine index.
type Indexer struct {
	store      storage.Store
	index      engine.Index
	loader     *extract.Loader
	chunkSize  int
	extensions []string
	logger     *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithChunkSize sets the import batch size.
func WithChunkSize(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.chunkSize = n
		}
	}
}

// WithExtensions restricts file imports to the given extensions. Empty allows all.
func WithExtensions(exts []string) IndexerOption {
	return func(idx *Indexer) { idx.extensions = exts }
}

// NewIndexer creates an indexer. loader may be nil, in which case files are loaded
// with extract.NewLoader.
func NewIndexer(store storage.Store, index engine.Index, loader *extract.Loader, opts ...IndexerOption) *Indexer {
	if loader == nil {
		loader = extract.NewLoader()
	}
	idx := &Indexer{
		store:     store,
		index:     index,
		loader:    loader,
		chunkSize: DefaultChunkSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// ImportReport summarizes one Import run.
type ImportReport struct {
	RunID    string        `json:"run_id"`
	Index    string        `json:"index"`
	Records  int           `json:"records"`
	Batches  int           `json:"batches"`
	Duration time.Duration `json:"duration"`
}

// Import pushes every stored record to the index in batches.
func (idx *Indexer) Import(ctx context.Context) (ImportReport, error) {
	report := ImportReport{RunID: uuid.New().String(), Index: idx.index.Name()}
	start := time.Now()
	idx.logger.Info("import started", zap.String("run_id", report.RunID), zap.String("index", report.Index))

	err := idx.store.Chunk(ctx, idx.chunkSize, func(batch []*models.Record) error {
		if err := idx.index.Upsert(ctx, batch); err != nil {
			return err
		}
		report.Records += len(batch)
		report.Batches++
		metrics.AddImported(report.Index, len(batch))
		idx.logger.Debug("import batch",
			zap.String("run_id", report.RunID),
			zap.Int("batch", report.Batches),
			zap.Int("size", len(batch)),
			zap.Int64("last_id", batch[len(batch)-1].ID))
		return nil
	})
	report.Duration = time.Since(start)
	if err != nil {
		metrics.ObserveEngineError(err)
		return report, fmt.Errorf("import %s: %w", report.Index, err)
	}
	idx.logger.Info("import finished",
		zap.String("run_id", report.RunID),
		zap.Int("records", report.Records),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// Flush removes every record from the index. The store is untouched.
func (idx *Indexer) Flush(ctx context.Context) error {
	if err := idx.index.Flush(ctx); err != nil {
		metrics.ObserveEngineError(err)
		return fmt.Errorf("flush %s: %w", idx.index.Name(), err)
	}
	idx.logger.Info("index flushed", zap.String("index", idx.index.Name()))
	return nil
}

// Save creates or updates a record and syncs it to the index. An input with an ID
// updates that record; otherwise a non-empty Source updates the record holding
// that source, and anything else is created. When the engine sync fails the stored
// record is still returned with the error.
func (idx *Indexer) Save(ctx context.Context, input *models.RecordInput) (*models.Record, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	r, err := idx.upsert(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := idx.sync(ctx, r); err != nil {
		return r, err
	}
	return r, nil
}

func (idx *Indexer) upsert(ctx context.Context, input *models.RecordInput) (*models.Record, error) {
	var existing *models.Record
	switch {
	case input.ID > 0:
		r, err := idx.store.Get(ctx, input.ID)
		if err != nil {
			return nil, err
		}
		existing = r
	case input.Source != "":
		found, err := idx.store.Query().Where(storage.Filter{Column: "source", Op: "=", Value: input.Source}).Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("find record by source: %w", err)
		}
		if len(found) > 0 {
			existing = found[0]
		}
	}

	if existing == nil {
		r := &models.Record{}
		input.Apply(r)
		if err := idx.store.Create(ctx, r); err != nil {
			return nil, err
		}
		return r, nil
	}
	input.Apply(existing)
	if err := idx.store.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (idx *Indexer) sync(ctx context.Context, records ...*models.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := idx.index.Upsert(ctx, records); err != nil {
		metrics.ObserveEngineError(err)
		idx.logger.Warn("engine sync failed", zap.Int("records", len(records)), zap.Error(err))
		return fmt.Errorf("sync %d records: %w", len(records), err)
	}
	return nil
}

// Delete removes a record from the store and the index.
func (idx *Indexer) Delete(ctx context.Context, id int64) error {
	if err := idx.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := idx.index.Delete(ctx, []int64{id}); err != nil {
		metrics.ObserveEngineError(err)
		idx.logger.Warn("engine delete failed", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("unindex record %d: %w", id, err)
	}
	idx.logger.Debug("record deleted", zap.Int64("id", id))
	return nil
}

const (
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
)

// fileRecords returns every stored record loaded from absPath, keyed by source.
func (idx *Indexer) fileRecords(ctx context.Context, absPath string) (map[string]*models.Record, error) {
	found, err := idx.store.Query().
		Where(storage.Filter{Column: "source", Op: "like", Value: fileid.Pattern(absPath)}).
		Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("find file records: %w", err)
	}
	out := make(map[string]*models.Record, len(found))
	for _, r := range found {
		out[r.Source] = r
	}
	return out, nil
}

// ImportFile loads the records in the file at path, upserts them by source key,
// removes rows the file no longer has, and syncs the index. It returns the number
// of records written. Files already imported with the same mtime and size are
// skipped, though their records are pushed to the index again.
func (idx *Indexer) ImportFile(ctx context.Context, path string) (int, error) {
	idx.logger.Debug("importing file", zap.String("path", path))
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(idx.extensions) > 0 && !extensionAllowed(ext, idx.extensions) {
		return 0, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", absPath)
	}

	existing, err := idx.fileRecords(ctx, absPath)
	if err != nil {
		return 0, err
	}
	if first, ok := existing[fileid.SourceKey(absPath)]; ok && unchanged(first, absPath, info) {
		records := make([]*models.Record, 0, len(existing))
		for _, r := range existing {
			records = append(records, r)
		}
		idx.logger.Debug("skipping unchanged file", zap.String("path", absPath))
		return 0, idx.sync(ctx, records...)
	}

	inputs, err := idx.loader.Load(absPath)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", absPath, err)
	}

	var saved []*models.Record
	kept := make(map[string]struct{}, len(inputs))
	for n := range inputs {
		in := &inputs[n]
		in.ID = 0
		in.Source = fileid.RowKey(absPath, n)
		// documents carry the file name as title; row formats keep their own text
		if base := filepath.Base(absPath); in.Title == "" || in.Title == base {
			in.Title = titleFromName(base)
			in.Content = collapseSpace(in.Content)
		}
		if in.Metadata == nil {
			in.Metadata = make(map[string]any, 3)
		}
		in.Metadata[metaKeySourcePath] = absPath
		in.Metadata[metaKeySourceMtime] = strconv.FormatInt(info.ModTime().UnixNano(), 10)
		in.Metadata[metaKeySourceSize] = strconv.FormatInt(info.Size(), 10)
		if err := in.Validate(); err != nil {
			idx.logger.Warn("skipping row", zap.String("path", absPath), zap.Int("row", n), zap.Error(err))
			continue
		}

		var r *models.Record
		if prev, ok := existing[in.Source]; ok {
			r = prev
			in.Apply(r)
			err = idx.store.Update(ctx, r)
		} else {
			r = &models.Record{}
			in.Apply(r)
			err = idx.store.Create(ctx, r)
		}
		if err != nil {
			return len(saved), fmt.Errorf("store row %d of %s: %w", n, absPath, err)
		}
		kept[in.Source] = struct{}{}
		saved = append(saved, r)
	}

	var stale []int64
	for source, r := range existing {
		if _, ok := kept[source]; ok {
			continue
		}
		if err := idx.store.Delete(ctx, r.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return len(saved), err
		}
		stale = append(stale, r.ID)
	}
	if len(stale) > 0 {
		if err := idx.index.Delete(ctx, stale); err != nil {
			metrics.ObserveEngineError(err)
			return len(saved), fmt.Errorf("unindex stale rows: %w", err)
		}
	}
	if err := idx.sync(ctx, saved...); err != nil {
		return len(saved), err
	}
	idx.logger.Debug("file imported",
		zap.String("path", absPath), zap.Int("records", len(saved)), zap.Int("removed", len(stale)))
	return len(saved), nil
}

// unchanged reports whether r was imported from absPath at the file's current mtime and size.
func unchanged(r *models.Record, absPath string, info os.FileInfo) bool {
	if r.Metadata == nil || r.Metadata[metaKeySourcePath] != absPath {
		return false
	}
	// Stored as strings: UnixNano exceeds float64 precision after a JSON round trip.
	return metadataInt64(r.Metadata, metaKeySourceMtime) == info.ModTime().UnixNano() &&
		metadataInt64(r.Metadata, metaKeySourceSize) == info.Size()
}

func metadataInt64(m map[string]any, key string) int64 {
	switch n := m[key].(type) {
	case string:
		x, _ := strconv.ParseInt(n, 10, 64)
		return x
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// RemoveFile deletes every record loaded from the file at path and unindexes it.
// The file itself need not exist.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	existing, err := idx.fileRecords(ctx, absPath)
	if err != nil {
		return 0, err
	}
	ids := make([]int64, 0, len(existing))
	for _, r := range existing {
		if err := idx.store.Delete(ctx, r.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return len(ids), err
		}
		ids = append(ids, r.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := idx.index.Delete(ctx, ids); err != nil {
		metrics.ObserveEngineError(err)
		return len(ids), fmt.Errorf("unindex %s: %w", absPath, err)
	}
	idx.logger.Debug("file removed", zap.String("path", absPath), zap.Int("records", len(ids)))
	return len(ids), nil
}

// ImportDirectory walks dir recursively and imports each regular file with an
// allowed extension. It returns the number of files imported and stops at the
// first error.
func (idx *Indexer) ImportDirectory(ctx context.Context, dir string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if len(idx.extensions) > 0 && !extensionAllowed(filepath.Ext(path), idx.extensions) {
			return nil
		}
		// follow symlinks so only regular files are imported
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, importErr := idx.ImportFile(ctx, path); importErr != nil {
			return importErr
		}
		n++
		return nil
	})
	return n, err
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
