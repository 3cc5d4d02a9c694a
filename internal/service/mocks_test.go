package service

import (
	"context"

	"github.com/devrev/bqsync/internal/model"
	"github.com/devrev/bqsync/internal/store"
	"github.com/stretchr/testify/mock"
)

// MockQueryExecutor is a mock implementation of warehouse.QueryExecutor
type MockQueryExecutor struct {
	mock.Mock
}

func (m *MockQueryExecutor) Execute(ctx context.Context, sql string) (*model.Table, error) {
	args := m.Called(ctx, sql)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Table), args.Error(1)
}

func (m *MockQueryExecutor) ExecuteCount(ctx context.Context, sql string) (int64, error) {
	args := m.Called(ctx, sql)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockQueryExecutor) ProjectID() string {
	return "proj"
}

func (m *MockQueryExecutor) Close() error {
	return nil
}

// MockRelationalStore is a mock implementation of store.RelationalStore
type MockRelationalStore struct {
	mock.Mock
}

func (m *MockRelationalStore) Write(ctx context.Context, dest store.TableRef, columns []model.Column, rows [][]any, mode model.WriteMode) (int64, error) {
	args := m.Called(ctx, dest, columns, rows, mode)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRelationalStore) Exec(ctx context.Context, sql string, params ...any) error {
	args := m.Called(append([]any{ctx, sql}, params...)...)
	return args.Error(0)
}

func (m *MockRelationalStore) Query(ctx context.Context, sql string, params ...any) (*model.Table, error) {
	args := m.Called(append([]any{ctx, sql}, params...)...)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Table), args.Error(1)
}

func (m *MockRelationalStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRelationalStore) Close() {}
