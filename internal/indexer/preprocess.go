package indexer

import (
	"strings"
	"unicode"
)

// collapseSpace trims text and collapses every whitespace run to one space.
func collapseSpace(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	pending := false
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsSpace(r) {
			pending = true
			continue
		}
		if pending {
			b.WriteByte(' ')
			pending = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// titleFromName turns a file name into a searchable title: analyzers do not
// split on underscores, so "company_profile_2021.pdf" becomes "company profile 2021.pdf".
func titleFromName(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}
