// Package cli renders search pages and reports for the sokuin command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/sokuin/internal/models"
	"github.com/hyperjump/sokuin/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const (
	rule          = "---------------------------------------------------------"
	contentLength = 200
)

// ParseFormat maps a flag value to a format. Anything but "json" is text.
func ParseFormat(s string) OutputFormat {
	if strings.EqualFold(strings.TrimSpace(s), string(OutputJSON)) {
		return OutputJSON
	}
	return OutputText
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WritePage writes a page of hydrated records to w in the given format.
// The JSON form is the same document the HTTP API returns.
func WritePage(w io.Writer, page *models.Page[*models.Record], format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, page)
	}
	writeHeader(w, page.Total, len(page.Items), page.CurrentPage, page.LastPage)
	for _, r := range page.Items {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "ID: %d\n", r.ID)
		if r.Title != "" {
			fmt.Fprintf(w, "Title: %s\n", r.Title)
		}
		if r.Source != "" {
			fmt.Fprintf(w, "Source: %s\n", r.Source)
		}
		if r.Content != "" {
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(r.Content, contentLength))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteRawPage writes a page of engine hits to w in the given format.
func WriteRawPage(w io.Writer, page *models.Page[models.Hit], format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, page)
	}
	writeHeader(w, page.Total, len(page.Items), page.CurrentPage, page.LastPage)
	for _, h := range page.Items {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "ID: %d", h.ID)
		if h.Score != 0 {
			fmt.Fprintf(w, " | Score: %.4f", h.Score)
		}
		fmt.Fprintln(w)
		keys := make([]string, 0, len(h.Fields))
		for k := range h.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %s\n", k, utils.Truncate(fmt.Sprint(h.Fields[k]), contentLength))
		}
		fmt.Fprintln(w)
	}
	return nil
}

func writeHeader(w io.Writer, total, shown, current, last int) {
	fmt.Fprintf(w, "\nFound %d results, showing %d (page %d of %d)\n\n", total, shown, current, last)
}

// WriteValue writes v as JSON, or as its text form when text is not nil.
func WriteValue(w io.Writer, v any, format OutputFormat, text func(io.Writer)) error {
	if format == OutputJSON || text == nil {
		return writeJSON(w, v)
	}
	text(w)
	return nil
}
