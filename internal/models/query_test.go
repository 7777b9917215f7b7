package models

import (
	"testing"
)

func TestSearchOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    SearchOptions
		wantErr bool
	}{
		{"zero limit", SearchOptions{}, true},
		{"negative limit", SearchOptions{Limit: -1}, true},
		{"valid first page", SearchOptions{Limit: 15}, false},
		{"valid offset", SearchOptions{Limit: 15, Offset: 30}, false},
		{"negative offset", SearchOptions{Limit: 15, Offset: -15}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecordInput_Validate(t *testing.T) {
	if err := (&RecordInput{}).Validate(); err == nil {
		t.Error("empty input should fail")
	}
	if err := (&RecordInput{Title: "t"}).Validate(); err != nil {
		t.Errorf("title only: %v", err)
	}
	if err := (&RecordInput{Content: "c", ID: -3}).Validate(); err == nil {
		t.Error("negative id should fail")
	}
}

func TestRecord_Searchable(t *testing.T) {
	r := &Record{ID: 7, Title: "Laravel", Content: "body", Metadata: map[string]any{"lang": "php", "title": "shadowed"}}
	got := r.Searchable()
	if got["id"] != int64(7) {
		t.Errorf("id = %v", got["id"])
	}
	if got["title"] != "Laravel" {
		t.Errorf("core field should win over metadata, got %v", got["title"])
	}
	if got["lang"] != "php" {
		t.Errorf("metadata not copied: %v", got)
	}
	if _, ok := got["source"]; ok {
		t.Error("empty source should be omitted")
	}
	if r.Key() != "7" {
		t.Errorf("Key() = %q", r.Key())
	}
}

func TestPage_Navigation(t *testing.T) {
	p := &Page[int]{CurrentPage: 1, LastPage: 4}
	if !p.OnFirstPage() || !p.HasMorePages() {
		t.Errorf("page 1 of 4: first=%v more=%v", p.OnFirstPage(), p.HasMorePages())
	}
	p.CurrentPage = 4
	if p.OnFirstPage() || p.HasMorePages() {
		t.Errorf("page 4 of 4: first=%v more=%v", p.OnFirstPage(), p.HasMorePages())
	}
}

func TestSearchResponse_IDs(t *testing.T) {
	r := &SearchResponse{Hits: []Hit{{ID: 3}, {ID: 1}, {ID: 2}}}
	ids := r.IDs()
	want := []int64{3, 1, 2}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("IDs() = %v, want %v", ids, want)
		}
	}
}
