// Package extract loads records from files. Row formats (JSON, JSON Lines, YAML,
// spreadsheets) yield one record per row; document formats yield one record per file.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/sokuin/internal/models"
)

// SupportedExtensions lists every extension Load understands.
var SupportedExtensions = []string{
	".json", ".jsonl", ".yaml", ".yml", ".xlsx",
	".pdf", ".docx", ".odt", ".rtf",
	".txt", ".md", ".rst",
}

// Loader turns files into record inputs.
type Loader struct{}

// NewLoader returns a new Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads the file at path and returns its records. Document records are
// titled with the file's base name.
func (l *Loader) Load(path string) ([]models.RecordInput, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return l.LoadBytes(content, filepath.Base(path))
}

// LoadBytes parses content as the file name would be parsed by Load.
// Unknown extensions are treated as plain text.
func (l *Loader) LoadBytes(content []byte, name string) ([]models.RecordInput, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".json":
		return loadJSON(content)
	case ".jsonl":
		return loadJSONLines(content)
	case ".yaml", ".yml":
		return loadYAML(content)
	case ".xlsx":
		return loadSheets(content)
	}

	var text string
	var err error
	switch ext {
	case ".pdf":
		text, err = extractPDF(content)
	case ".docx":
		text, err = extractDOCX(content)
	case ".odt", ".rtf":
		text, err = extractWithCat(content)
	default:
		text, err = extractPlain(content)
	}
	if err != nil {
		return nil, err
	}
	return []models.RecordInput{{Title: name, Content: strings.TrimSpace(text)}}, nil
}
