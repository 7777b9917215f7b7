package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/sokuin/internal/config"
	"github.com/hyperjump/sokuin/internal/engine"
	"github.com/hyperjump/sokuin/internal/models"
	"github.com/hyperjump/sokuin/internal/search"
	"github.com/hyperjump/sokuin/internal/storage"
)

// errStatus maps an error to its HTTP status.
func errStatus(err error) int {
	switch {
	case errors.Is(err, search.ErrInvalidPageSize),
		errors.Is(err, search.ErrPageOutOfRange),
		errors.Is(err, storage.ErrInvalidFilter),
		errors.Is(err, engine.ErrUnsupportedFilter):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrEngineUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

// handleSearch serves GET /api/v1/search.
//
//	q         search term
//	page      1-based page, default 1
//	per_page  page size, default search.per_page
//	raw       "true" returns engine hits instead of records
//	take      cap on engine hits counted for refined totals, 0 for all
//	where     local refinement "column:op:value", repeatable
//	filter    engine equality filter "field:value", repeatable
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(r, "page", 1)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	perPage, err := intParam(r, "per_page", s.searcher.PerPage())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit := s.config.Search.MaxPerPage; limit > 0 && perPage > limit {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("per_page must not exceed %d", limit))
		return
	}
	take, err := intParam(r, "take", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if take < 0 {
		s.respondError(w, http.StatusBadRequest, "take must not be negative")
		return
	}

	var filters []storage.Filter
	for _, raw := range q["where"] {
		f, err := storage.ParseFilter(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		filters = append(filters, f)
	}
	builder := s.searcher.Query(q.Get("q")).Refine(search.WhereAll(filters...)).Take(take)
	for _, raw := range q["filter"] {
		field, value, ok := strings.Cut(raw, ":")
		if !ok || field == "" {
			s.respondError(w, http.StatusBadRequest, "filter must be field:value")
			return
		}
		builder = builder.Where(field, value)
	}

	s.logger.Debug("search request",
		zap.String("query", builder.Term()),
		zap.Int("page", page),
		zap.Int("per_page", perPage),
		zap.Int("take", take),
		zap.Int("refinements", len(filters)))

	var result any
	if q.Get("raw") == "true" {
		result, err = builder.PaginateRaw(r.Context(), page, perPage)
	} else {
		result, err = builder.Paginate(r.Context(), page, perPage)
	}
	if err != nil {
		status := errStatus(err)
		if status < http.StatusInternalServerError {
			s.logger.Debug("search rejected", zap.Int("status", status), zap.Error(err))
		} else {
			s.logger.Error("search failed", zap.Error(err))
		}
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, "page", 1)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	perPage, err := intParam(r, "per_page", s.searcher.PerPage())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, offset, err := search.PageOffset(page, perPage)
	if err != nil {
		s.respondError(w, errStatus(err), err.Error())
		return
	}
	total, err := s.store.Count(r.Context())
	if err != nil {
		s.respondError(w, errStatus(err), err.Error())
		return
	}
	records, err := s.store.List(r.Context(), offset, perPage)
	if err != nil {
		s.respondError(w, errStatus(err), err.Error())
		return
	}
	if records == nil {
		records = []*models.Record{}
	}
	s.respondJSON(w, http.StatusOK, &models.Page[*models.Record]{
		Items:       records,
		Total:       int(total),
		PerPage:     perPage,
		CurrentPage: page,
		LastPage:    search.LastPage(int(total), perPage),
	})
}

func (s *Server) handleSaveRecord(w http.ResponseWriter, r *http.Request) {
	var input models.RecordInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := input.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("save record request", zap.Int64("id", input.ID), zap.String("source", input.Source))
	rec, err := s.indexer.Save(r.Context(), &input)
	if err != nil {
		s.logger.Error("save failed", zap.Error(err))
		s.respondError(w, errStatus(err), err.Error())
		return
	}
	status := http.StatusCreated
	if input.ID > 0 {
		status = http.StatusOK
	}
	s.respondJSON(w, status, rec)
}

func recordID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid record id")
	}
	return id, nil
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, errStatus(err), "record not found")
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("delete record request", zap.Int64("id", id))
	if err := s.indexer.Delete(r.Context(), id); err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, errStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	report, err := s.indexer.Import(r.Context())
	if err != nil {
		s.logger.Error("import failed", zap.Error(err))
		s.respondError(w, errStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.indexer.Flush(r.Context()); err != nil {
		s.logger.Error("flush failed", zap.Error(err))
		s.respondError(w, errStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Error("status: count records failed", zap.Error(err))
		s.respondError(w, errStatus(err), err.Error())
		return
	}
	resp := map[string]any{
		"records": count,
		"config": map[string]any{
			"storage_driver": s.config.Storage.Driver,
			"database_path":  s.config.Storage.DatabasePath,
			"engine_driver":  s.config.Engine.Driver,
			"index":          s.config.Engine.Index,
			"per_page":       s.searcher.PerPage(),
			"max_per_page":   s.config.Search.MaxPerPage,
		},
	}
	paths := []string{s.config.Storage.DatabasePath}
	if s.config.Engine.Driver == "bleve" {
		paths = append(paths, s.config.Engine.BlevePath)
	}
	if diskBytes, err := storage.DiskUsageBytes(paths...); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	if s.watch != nil {
		resp["watch_directories"] = s.watch.Directories()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := req.Sync == nil || *req.Sync
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatch()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatch()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistWatch writes the current watch roots to the config file, if one is known.
func (s *Server) persistWatch() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
