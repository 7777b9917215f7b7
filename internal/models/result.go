package models

// Hit is one engine-reported match. Fields are the engine's denormalized copy
// of the record and are not authoritative.
type Hit struct {
	ID     int64          `json:"id"`
	Score  float64        `json:"score,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// SearchResponse is what an engine returns for one search call.
// Hits are in engine relevance order. TotalHits counts every match the engine
// knows about and may exceed len(Hits).
type SearchResponse struct {
	Hits      []Hit `json:"hits"`
	TotalHits int   `json:"total_hits"`
}

// IDs returns the hit identifiers in relevance order.
func (r *SearchResponse) IDs() []int64 {
	ids := make([]int64, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.ID
	}
	return ids
}

// Page is one bounded slice of results plus pagination metadata.
type Page[T any] struct {
	Items       []T `json:"data"`
	Total       int `json:"total"`
	PerPage     int `json:"per_page"`
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
}

// HasMorePages reports whether a page exists after this one.
func (p *Page[T]) HasMorePages() bool {
	return p.CurrentPage < p.LastPage
}

// OnFirstPage reports whether this is the first page.
func (p *Page[T]) OnFirstPage() bool {
	return p.CurrentPage <= 1
}
