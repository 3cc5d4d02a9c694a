package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/bqsync/internal/config"
	apierrors "github.com/devrev/bqsync/internal/errors"
	"github.com/devrev/bqsync/internal/health"
	"github.com/devrev/bqsync/internal/model"
)

type MockSyncer struct {
	mock.Mock
}

func (m *MockSyncer) SyncTable(ctx context.Context, datasetID, tableID string, chunkSize int, mode model.WriteMode) (*model.SyncJob, error) {
	args := m.Called(ctx, datasetID, tableID, chunkSize, mode)
	job, _ := args.Get(0).(*model.SyncJob)
	return job, args.Error(1)
}

func (m *MockSyncer) SyncDataset(ctx context.Context, datasetID string, excludeTables []string) (*model.DatasetSyncJob, error) {
	args := m.Called(ctx, datasetID, excludeTables)
	job, _ := args.Get(0).(*model.DatasetSyncJob)
	return job, args.Error(1)
}

func (m *MockSyncer) GetSyncStatus(ctx context.Context) ([]model.TableStatus, error) {
	args := m.Called(ctx)
	statuses, _ := args.Get(0).([]model.TableStatus)
	return statuses, args.Error(1)
}

func (m *MockSyncer) AnalyzeTable(ctx context.Context, datasetID, tableID string) (*model.TableAnalysis, error) {
	args := m.Called(ctx, datasetID, tableID)
	analysis, _ := args.Get(0).(*model.TableAnalysis)
	return analysis, args.Error(1)
}

type MockExplorer struct {
	mock.Mock
}

func (m *MockExplorer) ListDatasets(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	datasets, _ := args.Get(0).([]string)
	return datasets, args.Error(1)
}

func (m *MockExplorer) ListTables(ctx context.Context, datasetID string) ([]string, error) {
	args := m.Called(ctx, datasetID)
	tables, _ := args.Get(0).([]string)
	return tables, args.Error(1)
}

func (m *MockExplorer) TableInfo(ctx context.Context, datasetID, tableID string, limit int) (*model.TableInfo, error) {
	args := m.Called(ctx, datasetID, tableID, limit)
	info, _ := args.Get(0).(*model.TableInfo)
	return info, args.Error(1)
}

func (m *MockExplorer) DatasetStats(ctx context.Context, datasetID string) (*model.DatasetStats, error) {
	args := m.Called(ctx, datasetID)
	stats, _ := args.Get(0).(*model.DatasetStats)
	return stats, args.Error(1)
}

func (m *MockExplorer) Query(ctx context.Context, sql string) (*model.QueryResponse, error) {
	args := m.Called(ctx, sql)
	resp, _ := args.Get(0).(*model.QueryResponse)
	return resp, args.Error(1)
}

type testCLI struct {
	syncer   *MockSyncer
	explorer *MockExplorer
	opts     *RootOptions
	out      *bytes.Buffer
	cfg      *config.Config
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	tc := &testCLI{
		syncer:   &MockSyncer{},
		explorer: &MockExplorer{},
		out:      &bytes.Buffer{},
	}
	tc.opts = &RootOptions{
		Logger: zap.NewNop(),
		Bootstrap: func(_ context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
			tc.cfg = cfg
			return &App{
				Config:   cfg,
				Logger:   logger,
				Syncer:   tc.syncer,
				Explorer: tc.explorer,
				Health:   health.NewHealthChecker(time.Second, logger),
			}, nil
		},
	}
	return tc
}

func (tc *testCLI) run(args ...string) error {
	cmd := newRootCommand(tc.opts)
	cmd.SetOut(tc.out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"serve"}, {"sync", "table"}, {"sync", "dataset"}, {"status"}, {"analyze"},
		{"query"}, {"datasets"}, {"tables"}, {"info"}, {"stats"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	tc := newTestCLI(t)

	err := tc.run("status", "--format", "xml")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	tc.syncer.AssertNotCalled(t, "GetSyncStatus", mock.Anything)
}

func TestSyncTableCommand(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		tc := newTestCLI(t)
		tc.syncer.On("SyncTable", mock.Anything, "sales", "orders", 5000, model.WriteModeAppend).
			Return(fixtureSyncJob(), nil)

		err := tc.run("sync", "table", "sales", "orders", "--chunksize", "5000", "--mode", "append", "--format", "json")

		require.NoError(t, err)
		var job model.SyncJob
		require.NoError(t, json.Unmarshal(tc.out.Bytes(), &job))
		assert.Equal(t, "Synced 25000 rows", job.Message)
	})

	t.Run("defaults", func(t *testing.T) {
		tc := newTestCLI(t)
		tc.syncer.On("SyncTable", mock.Anything, "sales", "orders", 0, model.WriteModeReplace).
			Return(fixtureSyncJob(), nil)

		require.NoError(t, tc.run("sync", "table", "sales", "orders"))
		tc.syncer.AssertExpectations(t)
	})

	t.Run("failure prints job and exits 1", func(t *testing.T) {
		tc := newTestCLI(t)
		job := &model.SyncJob{Status: model.SyncStatusError, Message: "warehouse query failed: boom"}
		tc.syncer.On("SyncTable", mock.Anything, "sales", "orders", 0, model.WriteModeReplace).
			Return(job, apierrors.New(apierrors.ErrCodeSyncFailed, "sync of sales.orders failed", errors.New("boom")))

		err := tc.run("sync", "table", "sales", "orders")

		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Equal(t, apierrors.ErrCodeSyncFailed, apierrors.GetCode(err))
		assert.Contains(t, tc.out.String(), "warehouse query failed: boom")
	})

	t.Run("error job without error value still exits 1", func(t *testing.T) {
		tc := newTestCLI(t)
		job := &model.SyncJob{Status: model.SyncStatusError, Message: "Access Denied"}
		tc.syncer.On("SyncTable", mock.Anything, "sales", "orders", 0, model.WriteModeReplace).Return(job, nil)

		err := tc.run("sync", "table", "sales", "orders")

		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, err.Error(), "Access Denied")
	})

	t.Run("rejects non-positive chunksize", func(t *testing.T) {
		tc := newTestCLI(t)

		err := tc.run("sync", "table", "sales", "orders", "--chunksize", "0")

		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("rejects unknown mode", func(t *testing.T) {
		tc := newTestCLI(t)

		err := tc.run("sync", "table", "sales", "orders", "--mode", "merge")

		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}

func TestSyncDatasetCommand(t *testing.T) {
	tc := newTestCLI(t)
	tc.syncer.On("SyncDataset", mock.Anything, "sales", []string{"tmp", "staging"}).
		Return(fixtureDatasetJob(), nil)

	require.NoError(t, tc.run("sync", "dataset", "sales", "--exclude", "tmp,staging"))
	assert.Contains(t, tc.out.String(), "tables_synced:  2")
}

func TestStatusCommand_StoreDown(t *testing.T) {
	tc := newTestCLI(t)
	tc.syncer.On("GetSyncStatus", mock.Anything).
		Return(nil, apierrors.TransientStore("postgres", errors.New("connection refused")))

	err := tc.run("status")

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, apierrors.ErrCodeTransientStore, apierrors.GetCode(err))
}

func TestQueryCommand(t *testing.T) {
	t.Run("inline statement", func(t *testing.T) {
		tc := newTestCLI(t)
		tc.explorer.On("Query", mock.Anything, "SELECT 1 AS one").Return(&model.QueryResponse{
			Rows:      []map[string]any{{"one": int64(1)}},
			Schema:    []model.FieldSchema{{Name: "one", Type: "integer"}},
			TotalRows: 1,
		}, nil)

		require.NoError(t, tc.run("query", "SELECT 1 AS one"))
		assert.Equal(t, "one\n1\n(1 rows)\n", tc.out.String())
	})

	t.Run("from file", func(t *testing.T) {
		tc := newTestCLI(t)
		path := filepath.Join(t.TempDir(), "report.sql")
		require.NoError(t, os.WriteFile(path, []byte("SELECT 2\n"), 0o600))
		tc.explorer.On("Query", mock.Anything, "SELECT 2").Return(&model.QueryResponse{}, nil)

		require.NoError(t, tc.run("query", "--file", path))
		tc.explorer.AssertExpectations(t)
	})

	t.Run("missing statement", func(t *testing.T) {
		tc := newTestCLI(t)

		err := tc.run("query")

		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}

func TestExplorerCommands(t *testing.T) {
	tc := newTestCLI(t)
	tc.explorer.On("ListDatasets", mock.Anything).Return([]string{"marketing", "sales"}, nil)
	tc.explorer.On("ListTables", mock.Anything, "sales").Return([]string{"orders"}, nil)
	tc.explorer.On("TableInfo", mock.Anything, "sales", "orders", 10).Return(&model.TableInfo{RowCount: 3}, nil)
	tc.explorer.On("DatasetStats", mock.Anything, "sales").Return(&model.DatasetStats{TableCount: 4}, nil)

	require.NoError(t, tc.run("datasets"))
	require.NoError(t, tc.run("tables", "sales"))
	require.NoError(t, tc.run("info", "sales", "orders", "--limit", "10"))
	require.NoError(t, tc.run("stats", "sales"))

	tc.explorer.AssertExpectations(t)
	assert.Contains(t, tc.out.String(), "marketing\nsales\n")
}

func TestConfigFlagIsLoaded(t *testing.T) {
	tc := newTestCLI(t)
	path := filepath.Join(t.TempDir(), "bqsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  chunk_size: 750\n"), 0o600))
	tc.syncer.On("GetSyncStatus", mock.Anything).Return([]model.TableStatus{}, nil)

	require.NoError(t, tc.run("status", "--config", path))
	assert.Equal(t, 750, tc.cfg.Sync.ChunkSize)
}

func TestBootstrapFailure(t *testing.T) {
	tc := newTestCLI(t)
	tc.opts.Bootstrap = func(context.Context, *config.Config, *zap.Logger) (*App, error) {
		return nil, errors.New("failed to connect to database")
	}

	err := tc.run("status")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
