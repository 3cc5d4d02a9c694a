package service

import (
	"context"
	"fmt"
	"time"

	"github.com/devrev/bqsync/internal/cache"
	"github.com/devrev/bqsync/internal/metrics"
	"github.com/devrev/bqsync/internal/model"
	"github.com/devrev/bqsync/internal/warehouse"
	"go.uber.org/zap"
)

// DefaultPreviewLimit is the number of preview rows in TableInfo
const DefaultPreviewLimit = 5

// WarehouseService answers read requests against the warehouse through the result cache
type WarehouseService struct {
	executor warehouse.QueryExecutor
	cache    *cache.ResultCache
	ttl      time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger

	cachedQuery func(ctx context.Context, args cache.Args, fn func(context.Context) (*model.Table, error)) (*model.Table, error)
}

// NewWarehouseService creates a new warehouse service.
// A nil cache disables memoization; ttl <= 0 uses the cache default.
func NewWarehouseService(
	executor warehouse.QueryExecutor,
	resultCache *cache.ResultCache,
	ttl time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *WarehouseService {
	return &WarehouseService{
		executor:    executor,
		cache:       resultCache,
		ttl:         ttl,
		metrics:     m,
		logger:      logger,
		cachedQuery: cache.Cached[*model.Table](resultCache, "query", ttl),
	}
}

// ListDatasets returns the dataset names of the project, sorted
func (s *WarehouseService) ListDatasets(ctx context.Context) ([]string, error) {
	return cache.Memoize(ctx, s.cache, "list_datasets", cache.Positional(s.executor.ProjectID()), s.ttl,
		func(ctx context.Context) ([]string, error) {
			sql := fmt.Sprintf(
				"SELECT schema_name FROM `%s`.INFORMATION_SCHEMA.SCHEMATA WHERE schema_name <> 'INFORMATION_SCHEMA' ORDER BY schema_name",
				s.executor.ProjectID())
			table, err := s.execute(ctx, "list_datasets", sql)
			if err != nil {
				return nil, err
			}
			return table.StringColumn("schema_name")
		})
}

// ListTables returns the table names of datasetID, sorted
func (s *WarehouseService) ListTables(ctx context.Context, datasetID string) ([]string, error) {
	if err := ValidateIdentifier("dataset_id", datasetID); err != nil {
		return nil, err
	}

	return cache.Memoize(ctx, s.cache, "list_tables", cache.Positional(s.executor.ProjectID(), datasetID), s.ttl,
		func(ctx context.Context) ([]string, error) {
			sql := fmt.Sprintf(
				"SELECT table_name FROM `%s.%s`.INFORMATION_SCHEMA.TABLES ORDER BY table_name",
				s.executor.ProjectID(), datasetID)
			table, err := s.execute(ctx, "list_tables", sql)
			if err != nil {
				return nil, err
			}
			return table.StringColumn("table_name")
		})
}

// TableInfo returns the column schema, the first limit rows and the row count of a table
func (s *WarehouseService) TableInfo(ctx context.Context, datasetID, tableID string, limit int) (*model.TableInfo, error) {
	if err := ValidateIdentifier("dataset_id", datasetID); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier("table_id", tableID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}

	args := cache.Positional(s.executor.ProjectID(), datasetID, tableID).With("result_limit", limit)
	entry, err := cache.Memoize(ctx, s.cache, "table_info", args, s.ttl,
		func(ctx context.Context) (*tableInfoEntry, error) {
			project := s.executor.ProjectID()

			schemaSQL := fmt.Sprintf(
				"SELECT column_name AS name, data_type AS type FROM `%s.%s`.INFORMATION_SCHEMA.COLUMNS WHERE table_name = '%s' ORDER BY ordinal_position",
				project, datasetID, tableID)
			schemaTable, err := s.execute(ctx, "table_schema", schemaSQL)
			if err != nil {
				return nil, err
			}

			source := warehouse.QualifiedTable(project, datasetID, tableID)
			preview, err := s.execute(ctx, "table_preview", fmt.Sprintf("SELECT * FROM %s LIMIT %d", source, limit))
			if err != nil {
				return nil, err
			}

			count, err := s.executor.ExecuteCount(ctx, "SELECT COUNT(*) AS count FROM "+source)
			if err != nil {
				return nil, err
			}

			schema := make([]model.FieldSchema, 0, schemaTable.NumRows())
			for i := 0; i < schemaTable.NumRows(); i++ {
				r := rowReader{table: schemaTable, row: i}
				schema = append(schema, model.FieldSchema{Name: r.String("name"), Type: r.String("type")})
			}

			return &tableInfoEntry{RowCount: count, Schema: schema, Preview: preview}, nil
		})
	if err != nil {
		return nil, err
	}

	return &model.TableInfo{
		RowCount: entry.RowCount,
		Schema:   entry.Schema,
		Preview:  entry.Preview.Records(),
	}, nil
}

// tableInfoEntry is the cached form of TableInfo; Preview keeps its cell types through the cache
type tableInfoEntry struct {
	RowCount int64               `json:"row_count"`
	Schema   []model.FieldSchema `json:"schema"`
	Preview  *model.Table        `json:"preview"`
}

// DatasetStats aggregates table count, size and timestamps of a dataset
func (s *WarehouseService) DatasetStats(ctx context.Context, datasetID string) (*model.DatasetStats, error) {
	if err := ValidateIdentifier("dataset_id", datasetID); err != nil {
		return nil, err
	}

	return cache.Memoize(ctx, s.cache, "dataset_stats", cache.Positional(s.executor.ProjectID(), datasetID), s.ttl,
		func(ctx context.Context) (*model.DatasetStats, error) {
			sql := fmt.Sprintf(`SELECT COUNT(*) AS table_count,
       COALESCE(SUM(size_bytes), 0) AS total_size_bytes,
       MAX(last_modified_time) AS last_modified,
       MIN(creation_time) AS created
FROM `+"`%s.%s.__TABLES__`", s.executor.ProjectID(), datasetID)

			table, err := s.execute(ctx, "dataset_stats", sql)
			if err != nil {
				return nil, err
			}

			r := rowReader{table: table}
			return &model.DatasetStats{
				TableCount:     r.Int64("table_count"),
				TotalSizeBytes: r.Int64("total_size_bytes"),
				LastModified:   millisToRFC3339(r.Int64("last_modified")),
				Created:        millisToRFC3339(r.Int64("created")),
				Labels:         map[string]string{},
			}, nil
		})
}

// Query runs a read-only statement as given
func (s *WarehouseService) Query(ctx context.Context, sql string) (*model.QueryResponse, error) {
	if err := ValidateReadOnlyQuery(sql); err != nil {
		return nil, err
	}

	table, err := s.cachedQuery(ctx, cache.Positional(sql), func(ctx context.Context) (*model.Table, error) {
		return s.execute(ctx, "query", sql)
	})
	if err != nil {
		return nil, err
	}
	return model.QueryResponseFromTable(table), nil
}

// Health runs SELECT 1 against the warehouse
func (s *WarehouseService) Health(ctx context.Context) error {
	_, err := s.execute(ctx, "health", "SELECT 1")
	return err
}

func (s *WarehouseService) execute(ctx context.Context, op, sql string) (*model.Table, error) {
	start := time.Now()
	table, err := s.executor.Execute(ctx, sql)

	status := "success"
	if err != nil {
		status = "error"
		s.logger.Warn("Warehouse query failed",
			zap.String("operation", op),
			zap.Error(err))
	}
	s.metrics.RecordQuery(op, status, time.Since(start))
	return table, err
}

func millisToRFC3339(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
