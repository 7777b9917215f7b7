package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hyperjump/sokuin/internal/engine"
	"github.com/hyperjump/sokuin/internal/models"
)

func seeded(t *testing.T) engine.Index {
	t.Helper()
	ctx := context.Background()
	idx, err := New(nil).Index(ctx, "users")
	if err != nil {
		t.Fatal(err)
	}
	var records []*models.Record
	for i := 1; i <= 100; i++ {
		title := fmt.Sprintf("User %d", i)
		if i%2 == 0 {
			title = fmt.Sprintf("Laravel %d", i)
		}
		records = append(records, &models.Record{ID: int64(i), Title: title, Metadata: map[string]any{"team": fmt.Sprint(i % 3)}})
	}
	if err := idx.Upsert(ctx, records); err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestSearch_PagingAndTotals(t *testing.T) {
	idx := seeded(t)
	ctx := context.Background()

	resp, err := idx.Search(ctx, "laravel", models.SearchOptions{Limit: 15})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalHits != 50 || len(resp.Hits) != 15 {
		t.Fatalf("total=%d hits=%d", resp.TotalHits, len(resp.Hits))
	}
	if resp.Hits[0].ID != 2 || resp.Hits[14].ID != 30 {
		t.Errorf("first page ids: %d..%d", resp.Hits[0].ID, resp.Hits[14].ID)
	}
	if resp.Hits[0].Fields["title"] != "Laravel 2" {
		t.Errorf("fields = %v", resp.Hits[0].Fields)
	}

	resp, err = idx.Search(ctx, "laravel", models.SearchOptions{Limit: 15, Offset: 45})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalHits != 50 || len(resp.Hits) != 5 {
		t.Errorf("last page: total=%d hits=%d", resp.TotalHits, len(resp.Hits))
	}

	resp, err = idx.Search(ctx, "laravel", models.SearchOptions{Limit: 15, Offset: 60})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalHits != 50 || len(resp.Hits) != 0 {
		t.Errorf("past the end: total=%d hits=%d", resp.TotalHits, len(resp.Hits))
	}
}

func TestSearch_Filters(t *testing.T) {
	idx := seeded(t)
	resp, err := idx.Search(context.Background(), "laravel", models.SearchOptions{Limit: 100, Filters: map[string]string{"team": "0"}})
	if err != nil {
		t.Fatal(err)
	}
	// even ids divisible by 3: 6, 12, ..., 96
	if resp.TotalHits != 16 {
		t.Errorf("filtered total = %d, want 16", resp.TotalHits)
	}
}

func TestSearch_MatchAll(t *testing.T) {
	idx := seeded(t)
	for _, term := range []string{"", "*"} {
		resp, err := idx.Search(context.Background(), term, models.SearchOptions{Limit: 1})
		if err != nil {
			t.Fatal(err)
		}
		if resp.TotalHits != 100 {
			t.Errorf("term %q: total = %d", term, resp.TotalHits)
		}
	}
}

func TestSearch_InvalidOptions(t *testing.T) {
	idx := seeded(t)
	if _, err := idx.Search(context.Background(), "x", models.SearchOptions{}); err == nil {
		t.Error("zero limit should fail")
	}
}

func TestSearch_CancelledContext(t *testing.T) {
	idx := seeded(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := idx.Search(ctx, "x", models.SearchOptions{Limit: 1})
	if !errors.Is(err, engine.ErrEngineUnavailable) || !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestDeleteAndFlush(t *testing.T) {
	idx := seeded(t)
	ctx := context.Background()
	if err := idx.Delete(ctx, []int64{2, 4, 9999}); err != nil {
		t.Fatal(err)
	}
	resp, _ := idx.Search(ctx, "laravel", models.SearchOptions{Limit: 1})
	if resp.TotalHits != 48 {
		t.Errorf("after delete total = %d", resp.TotalHits)
	}
	if err := idx.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if n := idx.(*Index).Len(); n != 0 {
		t.Errorf("after flush len = %d", n)
	}
}

func TestEngine_IndexIsShared(t *testing.T) {
	e := New(nil)
	ctx := context.Background()
	a, _ := e.Index(ctx, "x")
	b, _ := e.Index(ctx, "x")
	if a != b {
		t.Error("same name should return the same index")
	}
}
