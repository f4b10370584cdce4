// Package api provides HTTP handlers for the tutorlens control API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/tutorlens/internal/debuglog"
	"github.com/ashureev/tutorlens/internal/domain"
	"github.com/ashureev/tutorlens/internal/messenger"
	"github.com/ashureev/tutorlens/internal/store"
)

// Readiness reports whether the interception layer is installed.
type Readiness interface {
	Ready() bool
}

// Handler provides common handler dependencies.
type Handler struct {
	store    store.SettingsStore
	bus      *messenger.Bus
	policy   messenger.RetryPolicy
	defaults domain.Settings
	ring     *debuglog.Ring
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(st store.SettingsStore, bus *messenger.Bus, policy messenger.RetryPolicy, defaults domain.Settings, ring *debuglog.Ring) *Handler {
	return &Handler{
		store:    st,
		bus:      bus,
		policy:   policy,
		defaults: defaults,
		ring:     ring,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
