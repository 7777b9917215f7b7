package models

import "fmt"

// SearchOptions are the engine-level options for one search call.
// Offset 0 means the first hit; drivers leave it out of the request entirely.
type SearchOptions struct {
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

// Validate checks the options before they reach a driver.
func (o SearchOptions) Validate() error {
	if o.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", o.Limit)
	}
	if o.Offset < 0 {
		return fmt.Errorf("offset cannot be negative, got %d", o.Offset)
	}
	return nil
}
