package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/devrev/bqsync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryKVStore_TTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryKVStore(100, 0, clock, nil)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.SetEx(ctx, "k", 60*time.Second, []byte("v")))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	clock.Advance(59 * time.Second)
	_, err = s.Get(ctx, "k")
	assert.NoError(t, err)

	clock.Advance(1 * time.Second)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryKVStore_DeleteAndMissing(t *testing.T) {
	s := NewMemoryKVStore(10, 0, nil, nil)
	defer s.Close()

	ctx := context.Background()
	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetEx(ctx, "k", time.Minute, []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))

	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryKVStore_EvictsWhenFull(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryKVStore(2, 0, clock, nil)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.SetEx(ctx, "short", time.Second, []byte("1")))
	require.NoError(t, s.SetEx(ctx, "long", time.Hour, []byte("2")))
	require.NoError(t, s.SetEx(ctx, "new", time.Hour, []byte("3")))

	assert.Equal(t, 2, s.Size())
	_, err := s.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "long")
	assert.NoError(t, err)
}

func TestMemoryKVStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryKVStore(10, 0, nil, nil)
	defer s.Close()

	ctx := context.Background()
	value := []byte("abc")
	require.NoError(t, s.SetEx(ctx, "k", time.Minute, value))
	value[0] = 'z'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestCreateTableSQL(t *testing.T) {
	sql := CreateTableSQL(TableRef{Schema: "sales", Table: "orders"}, []model.Column{
		{Name: "order_id", Type: model.ColumnTypeInteger},
		{Name: "amount", Type: model.ColumnTypeFloat},
		{Name: "paid", Type: model.ColumnTypeBoolean},
		{Name: "note", Type: model.ColumnTypeString},
		{Name: "created_at", Type: model.ColumnTypeDatetime},
	})

	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "sales"."orders" ("order_id" BIGINT, "amount" DOUBLE PRECISION, "paid" BOOLEAN, "note" TEXT, "created_at" TIMESTAMPTZ)`,
		sql)
}

func TestCreateIndexSQL(t *testing.T) {
	sql := CreateIndexSQL("idx_sales_orders_user_id", TableRef{Schema: "sales", Table: "orders"}, "user_id")
	assert.Equal(t,
		`CREATE INDEX IF NOT EXISTS "idx_sales_orders_user_id" ON "sales"."orders" ("user_id")`,
		sql)
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, int64(7), normalizeValue(int32(7)))
	assert.Equal(t, float64(1.5), normalizeValue(float32(1.5)))
	assert.Equal(t, "abc", normalizeValue([]byte("abc")))
	assert.Nil(t, normalizeValue(nil))
}
