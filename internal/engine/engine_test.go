package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/sokuin/internal/config"
	"github.com/hyperjump/sokuin/internal/models"
)

func TestError_MatchesEngineUnavailable(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap("redis", OpSearch, cause)
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Error("wrapped error should match ErrEngineUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error should unwrap to the cause")
	}
	if got := err.Error(); got != "redis search: dial tcp: connection refused" {
		t.Errorf("Error() = %q", got)
	}
	outer := fmt.Errorf("paginate: %w", err)
	if !errors.Is(outer, ErrEngineUnavailable) {
		t.Error("match should survive further wrapping")
	}
	if Wrap("redis", OpSearch, nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if again := Wrap("bleve", OpFlush, err); again != err {
		t.Error("Wrap should not double-wrap an *Error")
	}
}

func TestError_ContextCancellationStillVisible(t *testing.T) {
	err := Wrap("redis", OpSearch, context.Canceled)
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("err = %v", err)
	}
}

type stubEngine struct{ Null }

func (stubEngine) Driver() string { return "stub" }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("stub", func(config.EngineConfig, *zap.Logger) (Engine, error) {
		return stubEngine{}, nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("stub", func(config.EngineConfig, *zap.Logger) (Engine, error) { return nil, nil }); err == nil {
		t.Error("duplicate registration should fail")
	}
	if err := r.Register("", nil); err == nil {
		t.Error("empty registration should fail")
	}

	if got := fmt.Sprint(r.Drivers()); got != "[null stub]" {
		t.Errorf("Drivers() = %s", got)
	}

	e, err := r.Open(config.EngineConfig{Driver: "stub"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if e.Driver() != "stub" {
		t.Errorf("Driver() = %s", e.Driver())
	}

	if _, err := r.Open(config.EngineConfig{Driver: "algolia"}, zap.NewNop()); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("unknown driver: got %v", err)
	}
}

func TestRegistry_FactoryErrorIsUnavailable(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("down", func(config.EngineConfig, *zap.Logger) (Engine, error) {
		return nil, errors.New("no route to host")
	})
	_, err := r.Open(config.EngineConfig{Driver: "down"}, nil)
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("factory failure should be ErrEngineUnavailable, got %v", err)
	}
}

func TestNull(t *testing.T) {
	ctx := context.Background()
	idx, err := NewNull().Index(ctx, "records")
	if err != nil {
		t.Fatal(err)
	}
	if idx.Name() != "records" {
		t.Errorf("Name() = %s", idx.Name())
	}
	if err := idx.Upsert(ctx, []*models.Record{{ID: 1}}); err != nil {
		t.Fatal(err)
	}
	resp, err := idx.Search(ctx, "anything", models.SearchOptions{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalHits != 0 || len(resp.Hits) != 0 {
		t.Errorf("null search = %+v", resp)
	}
}
