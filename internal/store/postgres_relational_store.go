package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/devrev/bqsync/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresRelationalStore implements RelationalStore for PostgreSQL
type PostgresRelationalStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// PostgresOptions holds connection settings for NewPostgresRelationalStore.
// URL takes precedence over the discrete fields when set.
type PostgresOptions struct {
	URL             string
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	MaxConnections  int
	MinConnections  int
	ConnMaxLifetime time.Duration
}

// NewPostgresRelationalStore creates the connection pool and verifies it
func NewPostgresRelationalStore(ctx context.Context, opts PostgresOptions, logger *zap.Logger) (*PostgresRelationalStore, error) {
	connString := opts.URL
	if connString == "" {
		connString = fmt.Sprintf(
			"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
			opts.Host, opts.Port, opts.Database, opts.User, opts.Password, opts.MaxConnections, opts.MinConnections,
		)
	}

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if opts.ConnMaxLifetime > 0 {
		config.MaxConnLifetime = opts.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", config.ConnConfig.Host),
		zap.String("database", config.ConnConfig.Database),
		zap.Int32("max_conns", config.MaxConns))

	return &PostgresRelationalStore{
		pool:   pool,
		logger: logger,
	}, nil
}

// Write stores rows into dest inside a single transaction.
// Replace drops and recreates the table; append creates it only if missing.
func (s *PostgresRelationalStore) Write(
	ctx context.Context,
	dest TableRef,
	columns []model.Column,
	rows [][]any,
	mode model.WriteMode,
) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("write %s: no columns", dest)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ident := pgx.Identifier{dest.Schema, dest.Table}

	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{dest.Schema}.Sanitize()); err != nil {
		return 0, fmt.Errorf("failed to create schema %s: %w", dest.Schema, err)
	}

	if mode == model.WriteModeReplace {
		if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ident.Sanitize()); err != nil {
			return 0, fmt.Errorf("failed to drop table %s: %w", dest, err)
		}
	}

	if _, err := tx.Exec(ctx, CreateTableSQL(dest, columns)); err != nil {
		return 0, fmt.Errorf("failed to create table %s: %w", dest, err)
	}

	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}

	copied, err := tx.CopyFrom(ctx, ident, names, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to copy rows into %s: %w", dest, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit write to %s: %w", dest, err)
	}

	s.logger.Debug("Wrote rows",
		zap.String("table", dest.String()),
		zap.String("mode", string(mode)),
		zap.Int64("rows", copied))

	return copied, nil
}

// Exec runs a statement that returns no rows
func (s *PostgresRelationalStore) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := s.pool.Exec(ctx, sql, args...)
	return err
}

// Query runs a statement and returns its rows as a table
func (s *PostgresRelationalStore) Query(ctx context.Context, sql string, args ...any) (*model.Table, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]model.Column, len(fields))
	for i, f := range fields {
		columns[i] = model.Column{
			Name:     f.Name,
			Type:     columnTypeForOID(f.DataTypeOID),
			Nullable: true,
		}
	}

	table := model.NewTable(columns...)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		table.Rows = append(table.Rows, values)
	}

	return table, rows.Err()
}

// Ping checks the database connection
func (s *PostgresRelationalStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresRelationalStore) Close() {
	s.pool.Close()
}

// CreateTableSQL builds the CREATE TABLE IF NOT EXISTS statement for columns
func CreateTableSQL(dest TableRef, columns []model.Column) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = fmt.Sprintf("%s %s", pgx.Identifier{c.Name}.Sanitize(), PostgresType(c.Type))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		pgx.Identifier{dest.Schema, dest.Table}.Sanitize(),
		strings.Join(defs, ", "))
}

// CreateIndexSQL builds a single-column CREATE INDEX IF NOT EXISTS statement
func CreateIndexSQL(name string, dest TableRef, column string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		pgx.Identifier{name}.Sanitize(),
		pgx.Identifier{dest.Schema, dest.Table}.Sanitize(),
		pgx.Identifier{column}.Sanitize())
}

// PostgresType maps a column type to its PostgreSQL type
func PostgresType(t model.ColumnType) string {
	switch t {
	case model.ColumnTypeInteger:
		return "BIGINT"
	case model.ColumnTypeFloat:
		return "DOUBLE PRECISION"
	case model.ColumnTypeBoolean:
		return "BOOLEAN"
	case model.ColumnTypeDatetime:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func columnTypeForOID(oid uint32) model.ColumnType {
	switch oid {
	case pgtype.Int2OID, pgtype.Int4OID, pgtype.Int8OID, pgtype.OIDOID:
		return model.ColumnTypeInteger
	case pgtype.Float4OID, pgtype.Float8OID, pgtype.NumericOID:
		return model.ColumnTypeFloat
	case pgtype.BoolOID:
		return model.ColumnTypeBoolean
	case pgtype.TimestampOID, pgtype.TimestamptzOID, pgtype.DateOID:
		return model.ColumnTypeDatetime
	default:
		return model.ColumnTypeString
	}
}

// normalizeValue narrows driver values to the table cell types
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint32:
		return int64(x)
	case int64, float64, bool, string, time.Time:
		return x
	case float32:
		return float64(x)
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
