package service

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/devrev/bqsync/internal/errors"
	"github.com/devrev/bqsync/internal/metrics"
	"github.com/devrev/bqsync/internal/model"
	"github.com/devrev/bqsync/internal/store"
	"github.com/devrev/bqsync/internal/warehouse"
	"go.uber.org/zap"
)

// DefaultChunkSize is the number of warehouse rows fetched per chunk
const DefaultChunkSize = 10000

const (
	syncStatusSQL = `
SELECT schemaname::text AS dataset_id,
       relname::text AS table_id,
       pg_size_pretty(pg_total_relation_size(relid)) AS size,
       n_live_tup AS row_count,
       last_vacuum AS last_sync,
       last_analyze AS last_analyzed
FROM pg_stat_user_tables
ORDER BY dataset_id, table_id`

	tableStatsSQL = `
SELECT pg_size_pretty(pg_total_relation_size(relid)) AS total_size,
       pg_size_pretty(pg_table_size(relid)) AS table_size,
       pg_size_pretty(pg_indexes_size(relid)) AS index_size,
       n_live_tup AS row_count,
       n_dead_tup AS dead_tuples,
       last_vacuum,
       last_analyze
FROM pg_stat_user_tables
WHERE schemaname = $1 AND relname = $2`

	columnStatsSQL = `
SELECT c.column_name::text AS column_name,
       c.data_type::text AS data_type,
       COALESCE(pg_size_pretty(s.avg_width::bigint), 'unknown') AS estimated_size
FROM information_schema.columns c
LEFT JOIN pg_stats s
       ON s.schemaname = c.table_schema
      AND s.tablename = c.table_name
      AND s.attname = c.column_name
WHERE c.table_schema = $1 AND c.table_name = $2
ORDER BY c.ordinal_position`
)

// SyncService mirrors warehouse tables into the relational store
type SyncService struct {
	executor         warehouse.QueryExecutor
	store            store.RelationalStore
	metrics          *metrics.Metrics
	logger           *zap.Logger
	defaultChunkSize int
}

// NewSyncService creates a new sync service.
// A chunk size <= 0 uses DefaultChunkSize.
func NewSyncService(
	executor warehouse.QueryExecutor,
	relational store.RelationalStore,
	defaultChunkSize int,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SyncService {
	if defaultChunkSize <= 0 {
		defaultChunkSize = DefaultChunkSize
	}
	return &SyncService{
		executor:         executor,
		store:            relational,
		metrics:          m,
		logger:           logger,
		defaultChunkSize: defaultChunkSize,
	}
}

// SyncTable copies one warehouse table into schema datasetID, table tableID.
// The returned job is never nil; err is non-nil exactly when the job failed.
// A cancelled ctx stops the sync before the next chunk; a chunk already fetching runs to completion.
func (s *SyncService) SyncTable(ctx context.Context, datasetID, tableID string, chunkSize int, mode model.WriteMode) (*model.SyncJob, error) {
	start := time.Now()

	rows, err := s.syncTable(ctx, datasetID, tableID, chunkSize, mode)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("Table sync failed",
			zap.String("dataset_id", datasetID),
			zap.String("table_id", tableID),
			zap.Duration("duration", duration),
			zap.Error(err))
		s.metrics.RecordSync(datasetID, string(model.SyncStatusError), 0, duration)

		job := &model.SyncJob{
			Status:   model.SyncStatusError,
			Message:  err.Error(),
			Duration: model.Duration(duration),
		}
		return job, apperrors.New(apperrors.ErrCodeSyncFailed, fmt.Sprintf("sync of %s.%s failed", datasetID, tableID), err).
			WithDetail("job", job)
	}

	message := fmt.Sprintf("Synced %d rows", rows)
	if rows == 0 {
		message = "Table is empty"
	}

	s.logger.Info("Table synced",
		zap.String("dataset_id", datasetID),
		zap.String("table_id", tableID),
		zap.Int64("rows_synced", rows),
		zap.Duration("duration", duration))
	s.metrics.RecordSync(datasetID, string(model.SyncStatusSuccess), rows, duration)

	return &model.SyncJob{
		Status:     model.SyncStatusSuccess,
		Message:    message,
		RowsSynced: &rows,
		Duration:   model.Duration(duration),
	}, nil
}

func (s *SyncService) syncTable(ctx context.Context, datasetID, tableID string, chunkSize int, mode model.WriteMode) (int64, error) {
	if err := ValidateIdentifier("dataset_id", datasetID); err != nil {
		return 0, err
	}
	if err := ValidateIdentifier("table_id", tableID); err != nil {
		return 0, err
	}
	if mode == "" {
		mode = model.WriteModeReplace
	}
	if !mode.Valid() {
		return 0, apperrors.InvalidRequest("unknown write mode %q", mode)
	}
	if chunkSize <= 0 {
		chunkSize = s.defaultChunkSize
	}

	source := warehouse.QualifiedTable(s.executor.ProjectID(), datasetID, tableID)
	dest := store.TableRef{Schema: datasetID, Table: tableID}

	// fetches and writes run to completion; ctx is only checked before each chunk
	work := context.WithoutCancel(ctx)

	total, err := s.executor.ExecuteCount(work, "SELECT COUNT(*) AS count FROM "+source)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}

	selectAll := "SELECT * FROM " + source

	var (
		synced  int64
		columns []model.Column
	)

	if total <= int64(chunkSize) {
		table, err := s.executor.Execute(work, selectAll)
		if err != nil {
			return 0, err
		}
		n, err := s.write(work, dest, table, mode)
		if err != nil {
			return 0, err
		}
		synced, columns = n, table.Columns
	} else {
		for offset := int64(0); offset < total; offset += int64(chunkSize) {
			if err := ctx.Err(); err != nil {
				return synced, err
			}

			chunkMode := model.WriteModeAppend
			if offset == 0 {
				chunkMode = mode
			}

			table, err := s.executor.Execute(work, fmt.Sprintf("%s LIMIT %d OFFSET %d", selectAll, chunkSize, offset))
			if err != nil {
				return synced, err
			}
			n, err := s.write(work, dest, table, chunkMode)
			if err != nil {
				return synced, err
			}
			synced += n
			if columns == nil {
				columns = table.Columns
			}

			s.logger.Debug("Chunk written",
				zap.String("table", dest.String()),
				zap.Int64("offset", offset),
				zap.Int64("rows", n),
				zap.Int64("total", total))

			if table.NumRows() == 0 {
				// source shrank while paging
				break
			}
		}
	}

	s.createIndexes(work, dest, columns)
	return synced, nil
}

func (s *SyncService) write(ctx context.Context, dest store.TableRef, table *model.Table, mode model.WriteMode) (int64, error) {
	n, err := s.store.Write(ctx, dest, table.Columns, table.Rows, mode)
	if err != nil {
		return 0, apperrors.TransientStore("postgres", err)
	}
	s.metrics.RecordChunk(string(mode))
	return n, nil
}

// createIndexes adds single-column indexes for hinted columns; failures are logged and skipped
func (s *SyncService) createIndexes(ctx context.Context, dest store.TableRef, columns []model.Column) {
	for _, c := range columns {
		if !IndexHintFor(c.Name) {
			continue
		}
		name := IndexName(dest.Schema, dest.Table, c.Name)
		if err := s.store.Exec(ctx, store.CreateIndexSQL(name, dest, c.Name)); err != nil {
			s.logger.Warn("Failed to create index",
				zap.String("table", dest.String()),
				zap.String("column", c.Name),
				zap.String("index", name),
				zap.Error(err))
			s.metrics.RecordIndexFailure(dest.Schema)
			continue
		}
		s.logger.Debug("Index ensured", zap.String("index", name))
	}
}

// SyncDataset syncs every table of datasetID not in excludeTables, one at a time.
// The dataset job succeeds once the tables are enumerated, whatever the per-table outcomes.
// A cancelled ctx stops the pass; tables not yet attempted are left out of the results.
func (s *SyncService) SyncDataset(ctx context.Context, datasetID string, excludeTables []string) (*model.DatasetSyncJob, error) {
	start := time.Now()

	fail := func(err error) (*model.DatasetSyncJob, error) {
		s.logger.Error("Dataset sync failed",
			zap.String("dataset_id", datasetID),
			zap.Error(err))
		job := &model.DatasetSyncJob{
			Status:   model.SyncStatusError,
			Message:  err.Error(),
			Results:  []model.TableSyncResult{},
			Duration: model.Duration(time.Since(start)),
		}
		return job, apperrors.New(apperrors.ErrCodeSyncFailed, fmt.Sprintf("sync of dataset %s failed", datasetID), err).
			WithDetail("job", job)
	}

	if err := ValidateIdentifier("dataset_id", datasetID); err != nil {
		return fail(err)
	}

	listing, err := s.executor.Execute(ctx, fmt.Sprintf("SELECT table_id FROM `%s.%s.__TABLES__`", s.executor.ProjectID(), datasetID))
	if err != nil {
		return fail(err)
	}
	tableIDs, err := listing.StringColumn("table_id")
	if err != nil {
		return fail(apperrors.Query("table listing", err))
	}

	excluded := make(map[string]struct{}, len(excludeTables))
	for _, t := range excludeTables {
		excluded[t] = struct{}{}
	}

	results := make([]model.TableSyncResult, 0, len(tableIDs))
	for _, tableID := range tableIDs {
		if _, skip := excluded[tableID]; skip {
			continue
		}
		if ctx.Err() != nil {
			s.logger.Warn("Dataset sync interrupted",
				zap.String("dataset_id", datasetID),
				zap.Int("tables_synced", len(results)))
			break
		}

		// per-table failures are recorded in the job
		job, _ := s.SyncTable(ctx, datasetID, tableID, s.defaultChunkSize, model.WriteModeReplace)
		results = append(results, model.TableSyncResult{TableID: tableID, SyncJob: *job})
	}

	failed := 0
	for i := range results {
		if results[i].Failed() {
			failed++
		}
	}
	s.logger.Info("Dataset sync finished",
		zap.String("dataset_id", datasetID),
		zap.Int("tables_synced", len(results)),
		zap.Int("tables_failed", failed))

	return &model.DatasetSyncJob{
		Status:       model.SyncStatusSuccess,
		TablesSynced: len(results),
		Results:      results,
		Duration:     model.Duration(time.Since(start)),
	}, nil
}

// GetSyncStatus lists every mirrored table ordered by dataset and table
func (s *SyncService) GetSyncStatus(ctx context.Context) ([]model.TableStatus, error) {
	table, err := s.store.Query(ctx, syncStatusSQL)
	if err != nil {
		return nil, apperrors.TransientStore("postgres", err)
	}

	statuses := make([]model.TableStatus, table.NumRows())
	for i := range statuses {
		r := rowReader{table: table, row: i}
		statuses[i] = model.TableStatus{
			DatasetID:    r.String("dataset_id"),
			TableID:      r.String("table_id"),
			Size:         r.String("size"),
			RowCount:     r.Int64("row_count"),
			LastSync:     r.Time("last_sync"),
			LastAnalyzed: r.Time("last_analyzed"),
		}
	}
	return statuses, nil
}

// AnalyzeTable reports sizes, tuple counts and per-column details of a mirrored table
func (s *SyncService) AnalyzeTable(ctx context.Context, datasetID, tableID string) (*model.TableAnalysis, error) {
	if err := ValidateIdentifier("dataset_id", datasetID); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier("table_id", tableID); err != nil {
		return nil, err
	}

	stats, err := s.store.Query(ctx, tableStatsSQL, datasetID, tableID)
	if err != nil {
		return nil, apperrors.TransientStore("postgres", err)
	}
	if stats.NumRows() == 0 {
		return nil, apperrors.NotFound("table %s.%s has not been synced", datasetID, tableID)
	}

	cols, err := s.store.Query(ctx, columnStatsSQL, datasetID, tableID)
	if err != nil {
		return nil, apperrors.TransientStore("postgres", err)
	}

	r := rowReader{table: stats}
	analysis := &model.TableAnalysis{
		TableStats: model.TableStats{
			TotalSize:   r.String("total_size"),
			TableSize:   r.String("table_size"),
			IndexSize:   r.String("index_size"),
			RowCount:    r.Int64("row_count"),
			DeadTuples:  r.Int64("dead_tuples"),
			LastVacuum:  r.Time("last_vacuum"),
			LastAnalyze: r.Time("last_analyze"),
		},
		Columns: make([]model.ColumnStats, cols.NumRows()),
	}
	for i := range analysis.Columns {
		c := rowReader{table: cols, row: i}
		analysis.Columns[i] = model.ColumnStats{
			ColumnName:    c.String("column_name"),
			DataType:      c.String("data_type"),
			EstimatedSize: c.String("estimated_size"),
		}
	}
	return analysis, nil
}

// rowReader reads typed cells of one catalog row, treating absent and null cells as zero
type rowReader struct {
	table *model.Table
	row   int
}

func (r rowReader) String(column string) string {
	v, ok := r.table.Value(r.row, column)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (r rowReader) Int64(column string) int64 {
	v, _ := r.table.Value(r.row, column)
	n, err := warehouse.ToInt64(v)
	if err != nil {
		return 0
	}
	return n
}

func (r rowReader) Time(column string) *time.Time {
	v, _ := r.table.Value(r.row, column)
	t, ok := v.(time.Time)
	if !ok {
		return nil
	}
	return &t
}
