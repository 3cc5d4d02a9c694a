package model

import (
	"encoding/json"
	"time"
)

// SyncStatus is the outcome of a sync attempt
type SyncStatus string

const (
	// SyncStatusSuccess indicates the sync completed
	SyncStatusSuccess SyncStatus = "success"
	// SyncStatusError indicates the sync aborted
	SyncStatusError SyncStatus = "error"
)

// WriteMode controls how rows land in the destination table
type WriteMode string

const (
	// WriteModeReplace drops and recreates the destination before writing
	WriteModeReplace WriteMode = "replace"
	// WriteModeAppend adds rows to the destination, creating it if missing
	WriteModeAppend WriteMode = "append"
)

// Valid reports whether m is a known write mode
func (m WriteMode) Valid() bool {
	return m == WriteModeReplace || m == WriteModeAppend
}

// Duration is a time.Duration that serializes as its text form ("1.5s")
type Duration time.Duration

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// String returns the duration text
func (d Duration) String() string {
	return time.Duration(d).String()
}

// SyncJob is the result of one table sync attempt
type SyncJob struct {
	Status     SyncStatus `json:"status" yaml:"status"`
	Message    string     `json:"message" yaml:"message"`
	RowsSynced *int64     `json:"rows_synced,omitempty" yaml:"rows_synced,omitempty"`
	Duration   Duration   `json:"duration" yaml:"duration"`
}

// Failed reports whether the job ended in error
func (j *SyncJob) Failed() bool {
	return j.Status == SyncStatusError
}

// TableSyncResult is one entry of a dataset sync
type TableSyncResult struct {
	TableID string `json:"table_id" yaml:"table_id"`
	SyncJob `yaml:",inline"`
}

// DatasetSyncJob aggregates the per-table jobs of a dataset sync.
// Status reflects enumeration and pass completion, not per-table success.
type DatasetSyncJob struct {
	Status       SyncStatus        `json:"status" yaml:"status"`
	Message      string            `json:"message,omitempty" yaml:"message,omitempty"`
	TablesSynced int               `json:"tables_synced" yaml:"tables_synced"`
	Results      []TableSyncResult `json:"results" yaml:"results"`
	Duration     Duration          `json:"duration" yaml:"duration"`
}

// Result returns the job recorded for tableID
func (j *DatasetSyncJob) Result(tableID string) (TableSyncResult, bool) {
	for _, r := range j.Results {
		if r.TableID == tableID {
			return r, true
		}
	}
	return TableSyncResult{}, false
}

// TableStatus is the physical state of one mirrored table
type TableStatus struct {
	DatasetID    string     `json:"dataset_id" yaml:"dataset_id"`
	TableID      string     `json:"table_id" yaml:"table_id"`
	Size         string     `json:"size" yaml:"size"`
	RowCount     int64      `json:"row_count" yaml:"row_count"`
	LastSync     *time.Time `json:"last_sync" yaml:"last_sync"`
	LastAnalyzed *time.Time `json:"last_analyzed" yaml:"last_analyzed"`
}

// TableStats are the size and tuple statistics of a mirrored table
type TableStats struct {
	TotalSize   string     `json:"total_size" yaml:"total_size"`
	TableSize   string     `json:"table_size" yaml:"table_size"`
	IndexSize   string     `json:"index_size" yaml:"index_size"`
	RowCount    int64      `json:"row_count" yaml:"row_count"`
	DeadTuples  int64      `json:"dead_tuples" yaml:"dead_tuples"`
	LastVacuum  *time.Time `json:"last_vacuum" yaml:"last_vacuum"`
	LastAnalyze *time.Time `json:"last_analyze" yaml:"last_analyze"`
}

// ColumnStats describes one column of a mirrored table
type ColumnStats struct {
	ColumnName    string `json:"column_name" yaml:"column_name"`
	DataType      string `json:"data_type" yaml:"data_type"`
	EstimatedSize string `json:"estimated_size" yaml:"estimated_size"`
}

// TableAnalysis is the detailed report for one mirrored table
type TableAnalysis struct {
	TableStats TableStats    `json:"table_stats" yaml:"table_stats"`
	Columns    []ColumnStats `json:"columns" yaml:"columns"`
}
