package datastoreMatching

import (
	"strings"
)

// InputRow is one user-supplied datastore name, with the optional row
// identifier carried through to the report's JSON form.
type InputRow struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

var (
	inputNameColumns = []string{"Datastore", "Name", "Datastore Name", "Data Store"}
	inputIDColumns   = []string{"ID", "Identifier", "Row ID"}
)

// LoadInput reads the user datastore names from a CSV or TSV file. The name
// column is resolved like the reference column; an identifier column is
// optional. Rows whose name is blank after trimming are dropped.
func LoadInput(path string) ([]InputRow, error) {
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	nameCol, start := resolveColumn(rows[0], inputNameColumns)
	idCol := -1
	if start == 1 {
		// Only trust an ID column when the file actually has a header.
		for i, cell := range rows[0] {
			if i == nameCol {
				continue
			}
			for _, cand := range inputIDColumns {
				if strings.EqualFold(cleanCell(cell), cand) {
					idCol = i
				}
			}
		}
	}
	out := make([]InputRow, 0, len(rows)-start)
	for _, row := range rows[start:] {
		if nameCol >= len(row) {
			continue
		}
		name := cleanCell(row[nameCol])
		if name == "" {
			continue
		}
		rec := InputRow{Name: name}
		if idCol >= 0 && idCol < len(row) {
			rec.ID = cleanCell(row[idCol])
		}
		out = append(out, rec)
	}
	return out, nil
}
