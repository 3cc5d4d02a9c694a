package warehouse

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	apperrors "github.com/devrev/bqsync/internal/errors"
	"github.com/devrev/bqsync/internal/model"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// BigQueryExecutor implements QueryExecutor on BigQuery
type BigQueryExecutor struct {
	client    *bigquery.Client
	projectID string
	location  string
	logger    *zap.Logger
}

// BigQueryOptions holds client settings for NewBigQueryExecutor
type BigQueryOptions struct {
	ProjectID       string
	CredentialsFile string
	Location        string
}

// NewBigQueryExecutor creates a BigQuery client for the project
func NewBigQueryExecutor(ctx context.Context, opts BigQueryOptions, logger *zap.Logger) (*BigQueryExecutor, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := bigquery.NewClient(ctx, opts.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}

	logger.Info("BigQuery client initialized",
		zap.String("project_id", opts.ProjectID),
		zap.String("location", opts.Location))

	return &BigQueryExecutor{
		client:    client,
		projectID: opts.ProjectID,
		location:  opts.Location,
		logger:    logger,
	}, nil
}

// ProjectID returns the client's project
func (e *BigQueryExecutor) ProjectID() string {
	return e.projectID
}

// Execute runs sql and converts every row to table cells
func (e *BigQueryExecutor) Execute(ctx context.Context, sql string) (*model.Table, error) {
	start := time.Now()

	q := e.client.Query(sql)
	if e.location != "" {
		q.Location = e.location
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, apperrors.Query(sql, err)
	}

	var rows [][]any
	for {
		var values []bigquery.Value
		err := it.Next(&values)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, apperrors.Query(sql, err)
		}

		row := make([]any, len(values))
		for i, v := range values {
			row[i] = convertValue(v)
		}
		rows = append(rows, row)
	}

	table := model.NewTable(columnsFromSchema(it.Schema)...)
	if rows != nil {
		table.Rows = rows
	}

	e.logger.Debug("Warehouse query completed",
		zap.Int("rows", table.NumRows()),
		zap.Duration("duration", time.Since(start)))

	return table, nil
}

// ExecuteCount runs sql and returns its first cell as an integer
func (e *BigQueryExecutor) ExecuteCount(ctx context.Context, sql string) (int64, error) {
	table, err := e.Execute(ctx, sql)
	if err != nil {
		return 0, err
	}
	n, err := FirstInt64(table)
	if err != nil {
		return 0, apperrors.Query(sql, err)
	}
	return n, nil
}

// Close closes the BigQuery client
func (e *BigQueryExecutor) Close() error {
	return e.client.Close()
}

func columnsFromSchema(schema bigquery.Schema) []model.Column {
	columns := make([]model.Column, len(schema))
	for i, f := range schema {
		columns[i] = model.Column{
			Name:     f.Name,
			Type:     columnType(f),
			Nullable: !f.Required,
		}
	}
	return columns
}

func columnType(f *bigquery.FieldSchema) model.ColumnType {
	if f.Repeated {
		return model.ColumnTypeString
	}
	switch f.Type {
	case bigquery.IntegerFieldType:
		return model.ColumnTypeInteger
	case bigquery.FloatFieldType, bigquery.NumericFieldType, bigquery.BigNumericFieldType:
		return model.ColumnTypeFloat
	case bigquery.BooleanFieldType:
		return model.ColumnTypeBoolean
	case bigquery.TimestampFieldType, bigquery.DateFieldType, bigquery.DateTimeFieldType:
		return model.ColumnTypeDatetime
	default:
		return model.ColumnTypeString
	}
}

// civilInstant matches civil.Date and civil.DateTime
type civilInstant interface {
	In(loc *time.Location) time.Time
}

// convertValue narrows BigQuery values to table cell types
func convertValue(v bigquery.Value) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int64, float64, bool, string:
		return x
	case time.Time:
		return x.UTC()
	case civilInstant:
		return x.In(time.UTC)
	case *big.Rat:
		f, _ := x.Float64()
		return f
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	case []bigquery.Value:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
