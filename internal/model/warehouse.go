package model

// FieldSchema names a column and its warehouse type
type FieldSchema struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TableInfo is the schema, preview and size of a warehouse table
type TableInfo struct {
	RowCount int64            `json:"row_count" yaml:"row_count"`
	Schema   []FieldSchema    `json:"schema" yaml:"schema"`
	Preview  []map[string]any `json:"preview" yaml:"preview"`
}

// DatasetStats summarizes the tables of a warehouse dataset
type DatasetStats struct {
	TableCount     int64             `json:"table_count" yaml:"table_count"`
	TotalSizeBytes int64             `json:"total_size_bytes" yaml:"total_size_bytes"`
	LastModified   string            `json:"last_modified" yaml:"last_modified"`
	Created        string            `json:"created" yaml:"created"`
	Description    *string           `json:"description" yaml:"description"`
	Labels         map[string]string `json:"labels" yaml:"labels"`
}

// QueryResponse is the result of an ad hoc warehouse query
type QueryResponse struct {
	Rows      []map[string]any `json:"rows" yaml:"rows"`
	Schema    []FieldSchema    `json:"schema" yaml:"schema"`
	TotalRows int              `json:"total_rows" yaml:"total_rows"`
}

// QueryResponseFromTable builds a QueryResponse from a result table
func QueryResponseFromTable(t *Table) *QueryResponse {
	schema := make([]FieldSchema, len(t.Columns))
	for i, c := range t.Columns {
		schema[i] = FieldSchema{Name: c.Name, Type: string(c.Type)}
	}
	return &QueryResponse{
		Rows:      t.Records(),
		Schema:    schema,
		TotalRows: t.NumRows(),
	}
}
