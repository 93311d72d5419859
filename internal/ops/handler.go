// Package ops exposes the operational HTTP surface: health, metrics and a
// small read-only admin view over the audit trail.
package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"catalog/internal/audit"
)

// HealthChecker reports the liveness of one backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// RecentLister is the slice of the audit store the admin view reads.
type RecentLister interface {
	Recent(ctx context.Context, limit int) ([]audit.Record, error)
}

// Handler serves the operational endpoints.
type Handler struct {
	logger *slog.Logger
	audit  RecentLister
	deps   map[string]HealthChecker
}

// New creates an ops handler. deps maps a dependency name to its health
// check; nil checkers are skipped so optional backends wire in cleanly.
func New(logger *slog.Logger, auditStore RecentLister, deps map[string]HealthChecker) *Handler {
	return &Handler{logger: logger, audit: auditStore, deps: deps}
}

// Register mounts the ops routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/admin/audit/recent", h.handleRecentAudit)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := http.StatusOK
	checks := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if dep == nil {
			continue
		}
		if err := dep.Health(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			h.logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
			continue
		}
		checks[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(checks)
}

func (h *Handler) handleRecentAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(w, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := h.audit.Recent(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "recent audit query failed", "error", err)
		http.Error(w, "audit store unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}
