package datastoreMatching

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// referenceColumns are the header names recognized for the canonical
// datastore column, checked case-insensitively. Files without a recognized
// header are read from the first column, header row included.
var referenceColumns = []string{"Datastore", "Data Store", "Datastore Name"}

// LoadReference reads the ACAT reference list from a CSV or TSV file.
// Values are whitespace-trimmed but otherwise untouched: file order and
// duplicates are preserved, since both may matter to the matching prompt.
func LoadReference(path string) ([]string, error) {
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	col, start := resolveColumn(rows[0], referenceColumns)
	names := make([]string, 0, len(rows)-start)
	for _, row := range rows[start:] {
		if col >= len(row) {
			continue
		}
		value := cleanCell(row[col])
		if value == "" {
			continue
		}
		names = append(names, value)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no datastore names in %s", ErrFormat, filepath.Base(path))
	}
	return names, nil
}

// readTable loads every row of a CSV/TSV file, wrapping the setup error
// taxonomy around the stdlib failures.
func readTable(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		reader.Comma = '\t'
	}
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrFormat, filepath.Base(path), err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrFormat, filepath.Base(path))
	}
	return rows, nil
}

// resolveColumn finds the first header cell matching one of the candidate
// names. It returns the column index and the first data row (1 when a header
// was recognized and must be skipped, 0 otherwise, falling back to the first
// column).
func resolveColumn(header []string, candidates []string) (int, int) {
	for i, cell := range header {
		cell = cleanCell(cell)
		for _, cand := range candidates {
			if strings.EqualFold(cell, cand) {
				return i, 1
			}
		}
	}
	return 0, 0
}

func cleanCell(v string) string {
	v = strings.TrimPrefix(v, "\uFEFF")
	return strings.TrimSpace(v)
}
