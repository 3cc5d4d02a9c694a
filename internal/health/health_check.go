package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CheckWarehouse is the check reported by the liveness endpoint
const CheckWarehouse = "bigquery"

// CheckFunc reports whether one dependency is usable
type CheckFunc func(ctx context.Context) error

// HealthChecker provides health check endpoints
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
	logger  *zap.Logger
}

// HealthStatus represents the readiness response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// LivenessStatus represents the liveness response
type LivenessStatus struct {
	Status   string `json:"status"`
	BigQuery string `json:"bigquery,omitempty"`
}

// NewHealthChecker creates a new health checker.
// Each probe gives all checks timeout to answer.
func NewHealthChecker(timeout time.Duration, logger *zap.Logger) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{
		checks:  make(map[string]CheckFunc),
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds or replaces a named check
func (h *HealthChecker) Register(name string, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = fn
}

// Check runs every registered check concurrently and reports each result
func (h *HealthChecker) Check(ctx context.Context) (map[string]string, bool) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]string, len(names))
		healthy = true
		g       errgroup.Group
	)

	for _, name := range names {
		name := name
		g.Go(func() error {
			result := h.run(ctx, name)
			mu.Lock()
			defer mu.Unlock()
			results[name] = result
			if result != "healthy" {
				healthy = false
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, healthy
}

func (h *HealthChecker) run(ctx context.Context, name string) string {
	h.mu.RLock()
	fn, ok := h.checks[name]
	h.mu.RUnlock()
	if !ok {
		return "healthy"
	}

	if err := fn(ctx); err != nil {
		h.logger.Error("Health check failed", zap.String("check", name), zap.Error(err))
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}

// LivenessHandler handles GET /health.
// It always answers 200 and reports the warehouse connection when a warehouse check is registered.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	status := LivenessStatus{Status: "ok"}

	h.mu.RLock()
	_, hasWarehouse := h.checks[CheckWarehouse]
	h.mu.RUnlock()

	if hasWarehouse {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		status.BigQuery = h.run(ctx, CheckWarehouse)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// ReadinessHandler handles GET /ready
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.Check(r.Context())

	status := HealthStatus{
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")

	if healthy {
		status.Status = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		status.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(status)
}
