package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hyperjump/sokuin/internal/engine"
)

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/api/v1/records/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest("GET", "/api/v1/records/42", http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/v1/records/{id}", "404"))
	if val < 1 {
		t.Errorf("expected requests_total for route pattern >= 1, got %f", val)
	}
}

func TestMiddleware_WithoutRouter(t *testing.T) {
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/plain", http.NoBody))

	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unknown", "200")); val < 1 {
		t.Errorf("expected unknown path label, got %f", val)
	}
}

func TestObserveSearch_CountsEngineErrors(t *testing.T) {
	before := testutil.ToFloat64(engineErrorsTotal.WithLabelValues("bleve", engine.OpSearch))

	ObserveSearch("records", time.Millisecond, nil)
	ObserveSearch("records", time.Millisecond, errors.New("not an engine error"))
	ObserveSearch("records", time.Millisecond, engine.Wrap("bleve", engine.OpSearch, errors.New("boom")))

	after := testutil.ToFloat64(engineErrorsTotal.WithLabelValues("bleve", engine.OpSearch))
	if after-before != 1 {
		t.Errorf("engine errors delta = %f, want 1", after-before)
	}
	if testutil.CollectAndCount(searchDuration) == 0 {
		t.Error("expected search duration observations")
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	AddImported("records", 3)
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", http.NoBody))
	if !strings.Contains(rr.Body.String(), "sokuin_imported_records_total") {
		t.Error("metrics output missing sokuin_imported_records_total")
	}
}

func TestNormalizePath(t *testing.T) {
	if got := normalizePath(""); got != "unknown" {
		t.Errorf("normalizePath(\"\") = %q", got)
	}
	if got := normalizePath("/x"); got != "/x" {
		t.Errorf("normalizePath(/x) = %q", got)
	}
}
