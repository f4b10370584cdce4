package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/tutorlens/internal/store"
	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store store.SettingsStore
	ready Readiness
}

// NewHealthHandler creates a new health handler. ready may be nil.
func NewHealthHandler(st store.SettingsStore, ready Readiness) *HealthHandler {
	return &HealthHandler{store: st, ready: ready}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	switch {
	case h.ready == nil:
	case h.ready.Ready():
		checks["interception"] = "active"
	default:
		checks["interception"] = "inactive"
		if statusCode == http.StatusOK {
			status["status"] = "starting"
		}
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
