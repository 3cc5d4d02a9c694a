// Package server provides the HTTP server implementation for bqsync.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/devrev/bqsync/internal/config"
	apierrors "github.com/devrev/bqsync/internal/errors"
	"github.com/devrev/bqsync/internal/handler"
	"github.com/devrev/bqsync/internal/health"
	"github.com/devrev/bqsync/internal/metrics"
	"github.com/devrev/bqsync/internal/middleware"
)

// Route describes one registered endpoint
type Route struct {
	Path    string   `json:"path"`
	Methods []string `json:"methods,omitempty"`
}

// Server represents the HTTP server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	handlers     *handler.Handlers
	healthCheck  *health.HealthChecker
	metrics      *metrics.Metrics
	errorHandler *apierrors.Handler
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg *config.Config,
	handlers *handler.Handlers,
	healthCheck *health.HealthChecker,
	m *metrics.Metrics,
	errorHandler *apierrors.Handler,
	logger *zap.Logger,
) *Server {
	router := mux.NewRouter()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		router:       router,
		httpServer:   httpServer,
		handlers:     handlers,
		healthCheck:  healthCheck,
		metrics:      m,
		errorHandler: errorHandler,
		logger:       logger,
		cfg:          cfg,
	}
}

// SetupRoutes configures all HTTP routes.
func (s *Server) SetupRoutes() {
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		metrics.MetricsMiddleware(s.metrics),
		middleware.CORS(s.cfg.Server.CORSOrigins),
	}

	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	middlewareChain = append(middlewareChain, middleware.Timeout(s.cfg.Server.RequestTimeout))

	s.router.Use(middleware.Chain(middlewareChain...))

	// Health check endpoints
	s.router.HandleFunc("/health", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/", s.index).Methods(http.MethodGet)
	api.HandleFunc("/health", s.healthCheck.LivenessHandler).Methods(http.MethodGet)

	// Warehouse exploration
	api.HandleFunc("/datasets", s.handlers.ListDatasets).Methods(http.MethodGet)
	api.HandleFunc("/datasets/{dataset_id}/tables", s.handlers.ListTables).Methods(http.MethodGet)
	api.HandleFunc("/datasets/{dataset_id}/tables/{table_id}", s.handlers.TableInfo).Methods(http.MethodGet)
	api.HandleFunc("/datasets/{dataset_id}/stats", s.handlers.DatasetStats).Methods(http.MethodGet)
	api.HandleFunc("/query", s.handlers.Query).Methods(http.MethodPost, http.MethodOptions)

	// Replication
	api.HandleFunc("/sync/table", s.handlers.SyncTable).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sync/dataset", s.handlers.SyncDataset).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sync/status", s.handlers.SyncStatus).Methods(http.MethodGet)
	api.HandleFunc("/sync/analyze/{dataset_id}/{table_id}", s.handlers.AnalyzeTable).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(middleware.RequestIDHeader)
		s.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.ErrCodeNotFound, "endpoint not found", requestID)
	})

	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(middleware.RequestIDHeader)
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, apierrors.ErrCodeInvalidRequest, "method not allowed", requestID)
	})
}

// Routes lists every registered path template
func (s *Server) Routes() []Route {
	var routes []Route
	_ = s.router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		if route.GetHandler() == nil {
			return nil
		}
		path, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, _ := route.GetMethods()
		routes = append(routes, Route{Path: path, Methods: methods})
		return nil
	})
	return routes
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"message": "BigQuery exploration and sync API",
		"routes":  s.Routes(),
	}); err != nil {
		s.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.Int("port", s.cfg.Server.Port))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	if err := s.httpServer.Serve(l); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the http.Handler for the server.
func (s *Server) GetHandler() http.Handler {
	return s.router
}
