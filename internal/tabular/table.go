package tabular

import "fmt"

// Value is a single cell: a text value or an explicit null. Cells are never
// typed beyond text so identifiers with leading zeros survive ingestion
// unchanged.
type Value struct {
	Str  string
	Null bool
}

// String returns a text-valued cell.
func String(s string) Value { return Value{Str: s} }

// Null returns an explicit null cell.
func NullValue() Value { return Value{Null: true} }

// Table is the uniform in-memory representation of one uploaded file: an
// ordered set of named columns and text-valued rows. It is built fresh per
// request and discarded when the request completes.
type Table struct {
	Columns []string
	Rows    [][]Value
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// ColumnSet returns the column names as a set.
func (t *Table) ColumnSet() map[string]struct{} {
	set := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		set[c] = struct{}{}
	}
	return set
}

// NullCount returns how many rows hold an explicit null in the named column.
func (t *Table) NullCount(name string) int {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return 0
	}
	count := 0
	for _, row := range t.Rows {
		if idx < len(row) && row[idx].Null {
			count++
		}
	}
	return count
}

// NormalizeColumns rewrites every column name through NormalizeColumn and
// de-duplicates collisions with a numeric suffix, so names stay unique.
func (t *Table) NormalizeColumns() {
	seen := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		name := NormalizeColumn(c)
		if name == "" {
			name = fmt.Sprintf("column_%d", i)
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		if _, ok := seen[name]; !ok {
			seen[name] = 1
		}
		t.Columns[i] = name
	}
}

// NormalizeCells rewrites every non-null cell through NormalizeCell.
func (t *Table) NormalizeCells() {
	for _, row := range t.Rows {
		for j := range row {
			if !row[j].Null {
				row[j].Str = NormalizeCell(row[j].Str)
			}
		}
	}
}

// AddConstantColumn appends a column holding the same text value in every row.
func (t *Table) AddConstantColumn(name, value string) {
	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], String(value))
	}
}
