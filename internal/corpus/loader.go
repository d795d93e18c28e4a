package corpus

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadCSV reads a corpus from a CSV file with optional "question" and
// "answer" header columns. A missing column defaults to empty strings
// for every row; header matching is case-insensitive. Rows shorter than
// the header are tolerated.
func LoadCSV(path string) ([]Pair, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open corpus %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows are tolerated

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	qCol, aCol := -1, -1
	for i, name := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "question":
			qCol = i
		case "answer":
			aCol = i
		}
	}

	pairs := make([]Pair, 0, len(rows)-1)
	for _, row := range rows[1:] {
		pairs = append(pairs, Pair{
			Question: cell(row, qCol),
			Answer:   cell(row, aCol),
		})
	}
	return pairs, nil
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}
