// Package handler provides HTTP request handlers for the bqsync API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	apierrors "github.com/devrev/bqsync/internal/errors"
	"github.com/devrev/bqsync/internal/middleware"
	"github.com/devrev/bqsync/internal/model"
	"github.com/devrev/bqsync/internal/util/workerpool"
)

const defaultResultLimit = 5

// Syncer replicates warehouse tables into the relational store
type Syncer interface {
	SyncTable(ctx context.Context, datasetID, tableID string, chunkSize int, mode model.WriteMode) (*model.SyncJob, error)
	SyncDataset(ctx context.Context, datasetID string, excludeTables []string) (*model.DatasetSyncJob, error)
	GetSyncStatus(ctx context.Context) ([]model.TableStatus, error)
	AnalyzeTable(ctx context.Context, datasetID, tableID string) (*model.TableAnalysis, error)
}

// Explorer answers cached read-only warehouse questions
type Explorer interface {
	ListDatasets(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, datasetID string) ([]string, error)
	TableInfo(ctx context.Context, datasetID, tableID string, limit int) (*model.TableInfo, error)
	DatasetStats(ctx context.Context, datasetID string) (*model.DatasetStats, error)
	Query(ctx context.Context, sql string) (*model.QueryResponse, error)
}

// Runner executes blocking work on a bounded pool
type Runner interface {
	Run(ctx context.Context, id string, fn func(context.Context) error) error
}

// SyncTableRequest is the body of POST /api/sync/table
type SyncTableRequest struct {
	DatasetID string          `json:"dataset_id"`
	TableID   string          `json:"table_id"`
	ChunkSize *int            `json:"chunksize,omitempty"`
	Mode      model.WriteMode `json:"mode,omitempty"`
}

// SyncDatasetRequest is the body of POST /api/sync/dataset
type SyncDatasetRequest struct {
	DatasetID     string   `json:"dataset_id"`
	ExcludeTables []string `json:"exclude_tables,omitempty"`
}

// QueryRequest is the body of POST /api/query
type QueryRequest struct {
	Query string `json:"query"`
}

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	syncer       Syncer
	explorer     Explorer
	pool         Runner
	errorHandler *apierrors.Handler
	logger       *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	syncer Syncer,
	explorer Explorer,
	pool Runner,
	errorHandler *apierrors.Handler,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		syncer:       syncer,
		explorer:     explorer,
		pool:         pool,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// ListDatasets handles GET /api/datasets requests.
func (h *Handlers) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := call(h, r, "list_datasets", func(ctx context.Context) ([]string, error) {
		return h.explorer.ListDatasets(ctx)
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, datasets)
}

// ListTables handles GET /api/datasets/{dataset_id}/tables requests.
func (h *Handlers) ListTables(w http.ResponseWriter, r *http.Request) {
	datasetID := mux.Vars(r)["dataset_id"]

	tables, err := call(h, r, "list_tables", func(ctx context.Context) ([]string, error) {
		return h.explorer.ListTables(ctx, datasetID)
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, tables)
}

// TableInfo handles GET /api/datasets/{dataset_id}/tables/{table_id} requests.
func (h *Handlers) TableInfo(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(middleware.RequestIDHeader)
	vars := mux.Vars(r)

	limit := defaultResultLimit
	if raw := r.URL.Query().Get("result_limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.errorHandler.WriteValidationError(w, "result_limit must be a positive integer", requestID)
			return
		}
		limit = n
	}

	info, err := call(h, r, "table_info", func(ctx context.Context) (*model.TableInfo, error) {
		return h.explorer.TableInfo(ctx, vars["dataset_id"], vars["table_id"], limit)
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, info)
}

// DatasetStats handles GET /api/datasets/{dataset_id}/stats requests.
func (h *Handlers) DatasetStats(w http.ResponseWriter, r *http.Request) {
	datasetID := mux.Vars(r)["dataset_id"]

	stats, err := call(h, r, "dataset_stats", func(ctx context.Context) (*model.DatasetStats, error) {
		return h.explorer.DatasetStats(ctx, datasetID)
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, stats)
}

// Query handles POST /api/query requests.
func (h *Handlers) Query(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(middleware.RequestIDHeader)

	var req QueryRequest
	if err := decodeBody(r, &req); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}
	if req.Query == "" {
		h.errorHandler.WriteValidationError(w, "query is required", requestID)
		return
	}

	resp, err := call(h, r, "query", func(ctx context.Context) (*model.QueryResponse, error) {
		return h.explorer.Query(ctx, req.Query)
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// SyncTable handles POST /api/sync/table requests.
// The sync outlives a client that disconnects.
func (h *Handlers) SyncTable(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(middleware.RequestIDHeader)

	var req SyncTableRequest
	if err := decodeBody(r, &req); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}
	if err := req.validate(); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	chunkSize := 0
	if req.ChunkSize != nil {
		chunkSize = *req.ChunkSize
	}

	job, err := call(h, r, "sync_table", func(ctx context.Context) (*model.SyncJob, error) {
		return h.syncer.SyncTable(context.WithoutCancel(ctx), req.DatasetID, req.TableID, chunkSize, req.Mode)
	})
	if err != nil {
		h.handleSyncError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, job)
}

// SyncDataset handles POST /api/sync/dataset requests.
// The pass outlives a client that disconnects.
func (h *Handlers) SyncDataset(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(middleware.RequestIDHeader)

	var req SyncDatasetRequest
	if err := decodeBody(r, &req); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}
	if req.DatasetID == "" {
		h.errorHandler.WriteValidationError(w, "dataset_id is required", requestID)
		return
	}

	job, err := call(h, r, "sync_dataset", func(ctx context.Context) (*model.DatasetSyncJob, error) {
		return h.syncer.SyncDataset(context.WithoutCancel(ctx), req.DatasetID, req.ExcludeTables)
	})
	if err != nil {
		h.handleSyncError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, job)
}

// SyncStatus handles GET /api/sync/status requests.
func (h *Handlers) SyncStatus(w http.ResponseWriter, r *http.Request) {
	tables, err := call(h, r, "sync_status", func(ctx context.Context) ([]model.TableStatus, error) {
		return h.syncer.GetSyncStatus(ctx)
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, tables)
}

// AnalyzeTable handles GET /api/sync/analyze/{dataset_id}/{table_id} requests.
func (h *Handlers) AnalyzeTable(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	analysis, err := call(h, r, "analyze_table", func(ctx context.Context) (*model.TableAnalysis, error) {
		return h.syncer.AnalyzeTable(ctx, vars["dataset_id"], vars["table_id"])
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, analysis)
}

// handleSyncError answers a failed sync with the job as details
func (h *Handlers) handleSyncError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apierrors.AppError
	if errors.As(err, &ae) && ae.Code == apierrors.ErrCodeSyncFailed {
		h.errorHandler.WriteErrorWithDetails(w, ae.HTTPStatus(), ae.Code, ae.Error(),
			r.Header.Get(middleware.RequestIDHeader), ae.Details["job"])
		return
	}
	h.errorHandler.HandleError(w, r, err)
}

// call runs fn on the worker pool and hands back its result.
// Pool shutdown and request cancellation surface as SERVICE_UNAVAILABLE.
func call[T any](h *Handlers, r *http.Request, op string, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)

	id := op + ":" + r.Header.Get(middleware.RequestIDHeader)
	runErr := h.pool.Run(r.Context(), id, func(ctx context.Context) error {
		v, err := fn(ctx)
		done <- result{value: v, err: err}
		return err
	})

	select {
	case res := <-done:
		return res.value, mapRunError(res.err)
	default:
		var zero T
		h.logger.Warn("Request abandoned before completion",
			zap.String("operation", op),
			zap.Error(runErr))
		return zero, mapRunError(runErr)
	}
}

func mapRunError(err error) error {
	if err == nil {
		return nil
	}
	var ae *apierrors.AppError
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, workerpool.ErrStopped):
		return apierrors.Unavailable("server is shutting down", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apierrors.Unavailable("request timed out", err)
	case errors.Is(err, context.Canceled):
		return apierrors.Unavailable("request cancelled", err)
	}
	return err
}

func (req *SyncTableRequest) validate() error {
	if req.DatasetID == "" {
		return fmt.Errorf("dataset_id is required")
	}
	if req.TableID == "" {
		return fmt.Errorf("table_id is required")
	}
	if req.ChunkSize != nil && *req.ChunkSize <= 0 {
		return fmt.Errorf("chunksize must be positive")
	}
	if req.Mode != "" && !req.Mode.Valid() {
		return fmt.Errorf("mode must be %q or %q", model.WriteModeReplace, model.WriteModeAppend)
	}
	return nil
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeJSONResponse writes a JSON response.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}
