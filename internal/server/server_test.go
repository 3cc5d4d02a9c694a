package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/bqsync/internal/config"
	apierrors "github.com/devrev/bqsync/internal/errors"
	"github.com/devrev/bqsync/internal/handler"
	"github.com/devrev/bqsync/internal/health"
	"github.com/devrev/bqsync/internal/metrics"
	"github.com/devrev/bqsync/internal/model"
	"github.com/devrev/bqsync/internal/util/workerpool"
)

type stubSyncer struct{}

func (stubSyncer) SyncTable(context.Context, string, string, int, model.WriteMode) (*model.SyncJob, error) {
	return &model.SyncJob{Status: model.SyncStatusSuccess, Message: "Table is empty"}, nil
}

func (stubSyncer) SyncDataset(context.Context, string, []string) (*model.DatasetSyncJob, error) {
	return &model.DatasetSyncJob{Status: model.SyncStatusSuccess, Results: []model.TableSyncResult{}}, nil
}

func (stubSyncer) GetSyncStatus(context.Context) ([]model.TableStatus, error) {
	return []model.TableStatus{}, nil
}

func (stubSyncer) AnalyzeTable(_ context.Context, datasetID, tableID string) (*model.TableAnalysis, error) {
	return nil, apierrors.NotFound("table %s.%s has not been synced", datasetID, tableID)
}

type stubExplorer struct{}

func (stubExplorer) ListDatasets(context.Context) ([]string, error) {
	return []string{"sales"}, nil
}

func (stubExplorer) ListTables(_ context.Context, datasetID string) ([]string, error) {
	return []string{datasetID + "_orders"}, nil
}

func (stubExplorer) TableInfo(context.Context, string, string, int) (*model.TableInfo, error) {
	return &model.TableInfo{}, nil
}

func (stubExplorer) DatasetStats(context.Context, string) (*model.DatasetStats, error) {
	return &model.DatasetStats{Labels: map[string]string{}}, nil
}

func (stubExplorer) Query(context.Context, string) (*model.QueryResponse, error) {
	return &model.QueryResponse{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           0,
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   5 * time.Second,
			RequestTimeout: time.Minute,
			CORSOrigins:    []string{"*"},
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *metrics.Metrics) {
	t.Helper()
	logger := zap.NewNop()

	pool := workerpool.NewWorkerPool(&workerpool.Config{Name: "test", MaxWorkers: 2, QueueSize: 4, Logger: logger})
	t.Cleanup(func() { _ = pool.Stop(time.Second) })

	m := metrics.NewMetrics(prometheus.NewRegistry())
	errorHandler := apierrors.NewHandler(logger)
	handlers := handler.NewHandlers(stubSyncer{}, stubExplorer{}, pool, errorHandler, logger)
	hc := health.NewHealthChecker(time.Second, logger)
	hc.Register(health.CheckWarehouse, func(context.Context) error { return nil })

	srv := NewServer(cfg, handlers, hc, m, errorHandler, logger)
	srv.SetupRoutes()
	return srv, m
}

func TestServer_Routes(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/api/", http.StatusOK},
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/api/datasets", http.StatusOK},
		{http.MethodGet, "/api/datasets/sales/tables", http.StatusOK},
		{http.MethodGet, "/api/datasets/sales/tables/orders", http.StatusOK},
		{http.MethodGet, "/api/datasets/sales/stats", http.StatusOK},
		{http.MethodGet, "/api/sync/status", http.StatusOK},
		{http.MethodGet, "/api/sync/analyze/sales/orders", http.StatusNotFound},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
		{http.MethodDelete, "/api/datasets", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.GetHandler().ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestServer_RequestIDAndErrorEnvelope(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/sync/analyze/sales/orders", nil)
	req.Header.Set("X-Request-ID", "trace-7")
	w := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, "trace-7", w.Header().Get("X-Request-ID"))
	var resp apierrors.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, apierrors.ErrCodeNotFound, resp.ErrorCode)
	assert.Equal(t, "trace-7", resp.RequestID)
}

func TestServer_CORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/api/query", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	w := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://dash.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_RecordsRouteMetrics(t *testing.T) {
	srv, m := newTestServer(t, testConfig())

	w := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/datasets/sales/tables", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.RequestsTotal.WithLabelValues(http.MethodGet, "/api/datasets/{dataset_id}/tables", "200")))
}

func TestServer_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimiter = config.RateLimiterConfig{Enabled: true, RequestsPerSecond: 0.001, BurstSize: 1}
	srv, _ := newTestServer(t, cfg)

	first := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/datasets", nil))
	second := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/datasets", nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestServer_IndexListsRoutes(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	paths := make(map[string]bool)
	for _, r := range srv.Routes() {
		paths[r.Path] = true
	}
	assert.True(t, paths["/api/sync/analyze/{dataset_id}/{table_id}"])
	assert.True(t, paths["/health"])
	assert.False(t, paths["/api"])
}

func TestServer_ServeAndShutdown(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()

	resp, err := http.Get(fmt.Sprintf("http://%s/health", l.Addr()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}
