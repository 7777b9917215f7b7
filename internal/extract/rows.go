package extract

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/sokuin/internal/models"
)

// contentKeys are the row keys that can supply Content, in order of preference.
var contentKeys = []string{"content", "body", "text"}

// fromMap builds a record input from one decoded row. "title" fills Title and the
// first of contentKeys present fills Content; every other key goes to metadata.
// Keys are matched case-insensitively and visited in sorted order.
func fromMap(row map[string]any) models.RecordInput {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	contentKey := ""
	for _, want := range contentKeys {
		for _, k := range keys {
			if strings.EqualFold(k, want) {
				contentKey = k
				break
			}
		}
		if contentKey != "" {
			break
		}
	}

	in := models.RecordInput{}
	titled := false
	meta := make(map[string]any)
	for _, k := range keys {
		v := row[k]
		switch lower := strings.ToLower(k); {
		case k == contentKey:
			in.Content = fmt.Sprint(v)
		case lower == "title" && !titled:
			in.Title = fmt.Sprint(v)
			titled = true
		case lower == "id", lower == "source":
			// assigned by the importer
		default:
			meta[k] = v
		}
	}
	if len(meta) > 0 {
		in.Metadata = meta
	}
	return in
}

func fromMaps(rows []map[string]any) []models.RecordInput {
	out := make([]models.RecordInput, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromMap(row))
	}
	return out
}

// loadJSON accepts an array of objects or a single object.
func loadJSON(content []byte) ([]models.RecordInput, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '{' {
		var row map[string]any
		if err := json.Unmarshal(trimmed, &row); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
		return fromMaps([]map[string]any{row}), nil
	}
	var rows []map[string]any
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	return fromMaps(rows), nil
}

// loadJSONLines reads one object per non-blank line.
func loadJSONLines(content []byte) ([]models.RecordInput, error) {
	var rows []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(text, &row); err != nil {
			return nil, fmt.Errorf("parse JSON line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read JSON lines: %w", err)
	}
	return fromMaps(rows), nil
}

// loadYAML accepts a list of mappings or a single mapping.
func loadYAML(content []byte) ([]models.RecordInput, error) {
	var doc any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	switch v := doc.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return fromMaps([]map[string]any{v}), nil
	case []any:
		rows := make([]map[string]any, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("parse YAML: item %d is not a mapping", i)
			}
			rows = append(rows, m)
		}
		return fromMaps(rows), nil
	default:
		return nil, fmt.Errorf("parse YAML: expected a list of mappings, got %T", doc)
	}
}
