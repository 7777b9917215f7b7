// Package models defines core data structures for records, engine hits, and result pages.
package models

import (
	"fmt"
	"strconv"
	"time"
)

// Record is a row in the local store. The engine only holds a denormalized copy.
type Record struct {
	ID        int64          `json:"id" db:"id" gorm:"primaryKey;autoIncrement"`
	Source    string         `json:"source,omitempty" db:"source" gorm:"index"`
	Title     string         `json:"title" db:"title"`
	Content   string         `json:"content" db:"content"`
	Metadata  map[string]any `json:"metadata,omitempty" db:"metadata" gorm:"serializer:json"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// Key returns the record ID in the string form engines use for document keys.
func (r *Record) Key() string {
	return strconv.FormatInt(r.ID, 10)
}

// Searchable returns the fields pushed to a search engine for this record.
// Metadata keys are copied as-is unless they collide with a core field.
func (r *Record) Searchable() map[string]any {
	out := make(map[string]any, len(r.Metadata)+4)
	for k, v := range r.Metadata {
		out[k] = v
	}
	out["id"] = r.ID
	out["title"] = r.Title
	out["content"] = r.Content
	if r.Source != "" {
		out["source"] = r.Source
	}
	return out
}

// RecordInput is the input for creating or updating a record.
// A zero ID creates a new record; a non-empty Source upserts by source key.
type RecordInput struct {
	ID       int64          `json:"id,omitempty"`
	Source   string         `json:"source,omitempty"`
	Title    string         `json:"title,omitempty"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate reports whether the input carries anything worth storing.
func (in *RecordInput) Validate() error {
	if in.Title == "" && in.Content == "" {
		return fmt.Errorf("record needs a title or content")
	}
	if in.ID < 0 {
		return fmt.Errorf("invalid record id: %d", in.ID)
	}
	return nil
}

// Apply copies the input fields onto r, leaving ID and timestamps alone.
func (in *RecordInput) Apply(r *Record) {
	r.Source = in.Source
	r.Title = in.Title
	r.Content = in.Content
	r.Metadata = in.Metadata
}
