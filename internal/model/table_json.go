package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// UnmarshalJSON decodes a table and converts every cell back to its column's Go type:
// int64, float64, bool, string or time.Time. Nulls stay nil.
func (t *Table) UnmarshalJSON(data []byte) error {
	type plain Table

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var decoded plain
	if err := dec.Decode(&decoded); err != nil {
		return err
	}

	out := Table(decoded)
	if err := out.restoreTypes(); err != nil {
		return err
	}
	*t = out
	return nil
}

func (t *Table) restoreTypes() error {
	if t.Rows == nil {
		t.Rows = make([][]any, 0)
	}
	if t.Index != nil && len(t.Index) != len(t.Rows) {
		return fmt.Errorf("index has %d labels for %d rows", len(t.Index), len(t.Rows))
	}

	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(t.Columns))
		}
		for j, cell := range row {
			v, err := restoreCell(t.Columns[j].Type, cell)
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", i, t.Columns[j].Name, err)
			}
			row[j] = v
		}
	}
	return nil
}

func restoreCell(typ ColumnType, cell any) (any, error) {
	if cell == nil {
		return nil, nil
	}

	switch typ {
	case ColumnTypeInteger:
		n, ok := cell.(json.Number)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", cell)
		}
		return n.Int64()
	case ColumnTypeFloat:
		n, ok := cell.(json.Number)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", cell)
		}
		return n.Float64()
	case ColumnTypeBoolean:
		b, ok := cell.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", cell)
		}
		return b, nil
	case ColumnTypeString:
		s, ok := cell.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", cell)
		}
		return s, nil
	case ColumnTypeDatetime:
		s, ok := cell.(string)
		if !ok {
			return nil, fmt.Errorf("expected timestamp, got %T", cell)
		}
		return time.Parse(time.RFC3339Nano, s)
	default:
		return nil, fmt.Errorf("unknown column type %q", typ)
	}
}
