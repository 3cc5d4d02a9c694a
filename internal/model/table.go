package model

import "fmt"

// ColumnType is the semantic type of a tabular column
type ColumnType string

const (
	// ColumnTypeInteger holds int64 values
	ColumnTypeInteger ColumnType = "integer"
	// ColumnTypeFloat holds float64 values
	ColumnTypeFloat ColumnType = "float"
	// ColumnTypeBoolean holds bool values
	ColumnTypeBoolean ColumnType = "boolean"
	// ColumnTypeString holds string values
	ColumnTypeString ColumnType = "string"
	// ColumnTypeDatetime holds time.Time values
	ColumnTypeDatetime ColumnType = "datetime"
)

// Valid reports whether t is a known column type
func (t ColumnType) Valid() bool {
	switch t {
	case ColumnTypeInteger, ColumnTypeFloat, ColumnTypeBoolean, ColumnTypeString, ColumnTypeDatetime:
		return true
	default:
		return false
	}
}

// Column describes one named column of a Table
type Column struct {
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Nullable bool       `json:"nullable"`
}

// Table is an ordered set of typed columns and ordered rows.
// A nil cell is a null. Index carries optional row labels; nil means 0..n-1.
type Table struct {
	Columns []Column `json:"columns"`
	Index   []int64  `json:"index,omitempty"`
	Rows    [][]any  `json:"rows"`
}

// NewTable creates an empty table with the given columns
func NewTable(columns ...Column) *Table {
	return &Table{
		Columns: columns,
		Rows:    make([][]any, 0),
	}
}

// NumRows returns the number of rows
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// NumColumns returns the number of columns
func (t *Table) NumColumns() int {
	if t == nil {
		return 0
	}
	return len(t.Columns)
}

// ColumnNames returns the column names in order
func (t *Table) ColumnNames() []string {
	if t == nil {
		return nil
	}
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of the named column, or -1
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// AppendRow appends a row; the row length must match the column count
func (t *Table) AppendRow(values ...any) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}
	t.Rows = append(t.Rows, values)
	return nil
}

// Value returns the cell at row i for the named column
func (t *Table) Value(i int, column string) (any, bool) {
	j := t.ColumnIndex(column)
	if j < 0 || i < 0 || i >= len(t.Rows) {
		return nil, false
	}
	return t.Rows[i][j], true
}

// Records returns each row as a column-name keyed map
func (t *Table) Records() []map[string]any {
	if t == nil {
		return []map[string]any{}
	}
	records := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		record := make(map[string]any, len(t.Columns))
		for j, c := range t.Columns {
			if j < len(row) {
				record[c.Name] = row[j]
			}
		}
		records[i] = record
	}
	return records
}

// StringColumn returns the named column as strings, skipping nulls
func (t *Table) StringColumn(name string) ([]string, error) {
	j := t.ColumnIndex(name)
	if j < 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	values := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if row[j] == nil {
			continue
		}
		values = append(values, fmt.Sprint(row[j]))
	}
	return values, nil
}
