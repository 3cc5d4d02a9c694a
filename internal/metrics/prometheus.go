package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Cache metrics
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheErrors    *prometheus.CounterVec
	CacheEvictions *prometheus.CounterVec

	// Sync metrics
	SyncsTotal    *prometheus.CounterVec
	SyncDuration  *prometheus.HistogramVec
	RowsSynced    *prometheus.CounterVec
	ChunksWritten *prometheus.CounterVec
	IndexFailures *prometheus.CounterVec

	// Warehouse metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	registry prometheus.Gatherer
}

// NewMetrics creates metrics registered on reg.
// A nil reg registers on a fresh private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg = r
		gatherer = r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	factory := promauto.With(reg)

	return &Metrics{
		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bqsync_cache_hits_total",
				Help: "Total number of result cache hits",
			},
			[]string{"operation"},
		),

		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bqsync_cache_misses_total",
				Help: "Total number of result cache misses",
			},
			[]string{"operation"},
		),

		CacheErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bqsync_cache_errors_total",
				Help: "Total number of absorbed result cache store or codec errors",
			},
			[]string{"operation", "stage"},
		),

		CacheEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bqsync_cache_corrupt_evictions_total",
				Help: "Total number of cache entries deleted because they failed to decode",
			},
			[]string{"operation"},
		),

		SyncsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bqsync_table_syncs_total",
				Help: "Total number of table sync attempts",
			},
			[]string{"dataset_id", "status"},
		),

		SyncDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bqsync_table_sync_duration_seconds",
				Help:    "Duration of table syncs",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 1800},
			},
			[]string{"dataset_id", "status"},
		),

		RowsSynced: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bqsync_rows_synced_total",
				Help: "Total number of rows written to the relational store",
			},
			[]string{"dataset_id"},
		),

		ChunksWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bqsync_chunks_written_total",
				Help: "Total number of chunk writes by mode",
			},
			[]string{"mode"},
		),

		IndexFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bqsync_index_failures_total",
				Help: "Total number of secondary index creations that failed",
			},
			[]string{"dataset_id"},
		),

		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bqsync_warehouse_queries_total",
				Help: "Total number of warehouse queries",
			},
			[]string{"operation", "status"},
		),

		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bqsync_warehouse_query_duration_seconds",
				Help:    "Duration of warehouse queries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bqsync_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bqsync_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),

		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bqsync_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		registry: gatherer,
	}
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(operation string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(operation).Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(operation string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(operation).Inc()
}

// RecordCacheError records an absorbed cache failure at stage get, set, encode or decode
func (m *Metrics) RecordCacheError(operation, stage string) {
	if m == nil {
		return
	}
	m.CacheErrors.WithLabelValues(operation, stage).Inc()
}

// RecordCacheEviction records a corrupt entry being deleted
func (m *Metrics) RecordCacheEviction(operation string) {
	if m == nil {
		return
	}
	m.CacheEvictions.WithLabelValues(operation).Inc()
}

// RecordSync records a finished table sync
func (m *Metrics) RecordSync(datasetID, status string, rows int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.SyncsTotal.WithLabelValues(datasetID, status).Inc()
	m.SyncDuration.WithLabelValues(datasetID, status).Observe(duration.Seconds())
	if rows > 0 {
		m.RowsSynced.WithLabelValues(datasetID).Add(float64(rows))
	}
}

// RecordChunk records one chunk write
func (m *Metrics) RecordChunk(mode string) {
	if m == nil {
		return
	}
	m.ChunksWritten.WithLabelValues(mode).Inc()
}

// RecordIndexFailure records a failed index creation
func (m *Metrics) RecordIndexFailure(datasetID string) {
	if m == nil {
		return
	}
	m.IndexFailures.WithLabelValues(datasetID).Inc()
}

// RecordQuery records a warehouse query
func (m *Metrics) RecordQuery(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(operation, status).Inc()
	m.QueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPRequest records metrics for an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// MetricsServer provides a separate HTTP server for Prometheus metrics
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewMetricsServer creates a new metrics server
func NewMetricsServer(m *Metrics, port int, path string, logger *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	return &MetricsServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start starts the metrics server and blocks until it stops
func (ms *MetricsServer) Start() error {
	ms.logger.Info("Starting metrics server", zap.String("addr", ms.server.Addr))
	if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the metrics server
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

// MetricsMiddleware records request counts and latency per route template
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			m.RecordHTTPRequest(r.Method, routeLabel(r), rw.statusCode, time.Since(start))
		})
	}
}

// routeLabel keeps path parameters out of label values
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
