// Package warehouse runs SQL against the analytical warehouse.
package warehouse

import (
	"context"
	"fmt"
	"strconv"

	"github.com/devrev/bqsync/internal/model"
)

// QueryExecutor runs SQL against the warehouse
type QueryExecutor interface {
	// Execute runs sql and returns all rows
	Execute(ctx context.Context, sql string) (*model.Table, error)
	// ExecuteCount runs sql and returns the first column of the first row
	ExecuteCount(ctx context.Context, sql string) (int64, error)
	// ProjectID is the project used to qualify table names
	ProjectID() string
	Close() error
}

// QualifiedTable returns the backtick-quoted project.dataset.table name
func QualifiedTable(project, dataset, table string) string {
	return fmt.Sprintf("`%s.%s.%s`", project, dataset, table)
}

// FirstInt64 extracts the first cell of t as an int64
func FirstInt64(t *model.Table) (int64, error) {
	if t.NumRows() == 0 || t.NumColumns() == 0 {
		return 0, fmt.Errorf("count query returned no rows")
	}
	return ToInt64(t.Rows[0][0])
}

// ToInt64 converts a numeric cell to int64
func ToInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected numeric value %v (%T)", v, v)
	}
}
