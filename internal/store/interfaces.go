package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devrev/bqsync/internal/model"
)

// ErrNotFound is returned when a key is not found
var ErrNotFound = errors.New("not found")

// KeyValueStore is a byte-oriented store with per-key TTL
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// TableRef names a destination table inside a schema
type TableRef struct {
	Schema string
	Table  string
}

// String returns the dotted name
func (r TableRef) String() string {
	return fmt.Sprintf("%s.%s", r.Schema, r.Table)
}

// RelationalStore accepts bulk writes and runs DDL and catalog queries.
// Connections are acquired and released per call.
type RelationalStore interface {
	// Write stores rows into dest; replace recreates the table first
	Write(ctx context.Context, dest TableRef, columns []model.Column, rows [][]any, mode model.WriteMode) (int64, error)
	// Exec runs a statement that returns no rows
	Exec(ctx context.Context, sql string, args ...any) error
	// Query runs a statement and returns its rows as a table
	Query(ctx context.Context, sql string, args ...any) (*model.Table, error)

	Ping(ctx context.Context) error
	Close()
}
