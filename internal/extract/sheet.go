package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/sokuin/internal/models"
)

// loadSheets reads every sheet. The first row of a sheet is its header; each
// later non-empty row becomes a record keyed by header names. Sheets without a
// title or content column get "<sheet> row <n>" titles and tab-joined content.
func loadSheets(content []byte) ([]models.RecordInput, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var out []models.RecordInput
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		if len(rows) < 2 {
			continue
		}
		header := rows[0]
		keyed := hasCoreColumn(header)
		for n, row := range rows[1:] {
			if isBlank(row) {
				continue
			}
			if !keyed {
				out = append(out, models.RecordInput{
					Title:    fmt.Sprintf("%s row %d", sheet, n+2),
					Content:  strings.Join(row, "\t"),
					Metadata: map[string]any{"sheet": sheet},
				})
				continue
			}
			m := make(map[string]any, len(header)+1)
			for i, name := range header {
				if name = strings.TrimSpace(name); name == "" || i >= len(row) {
					continue
				}
				m[name] = row[i]
			}
			m["sheet"] = sheet
			out = append(out, fromMap(m))
		}
	}
	return out, nil
}

func hasCoreColumn(header []string) bool {
	for _, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "title", "content", "body", "text":
			return true
		}
	}
	return false
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
