package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/tutorlens/internal/debuglog"
	"github.com/ashureev/tutorlens/internal/domain"
	"github.com/ashureev/tutorlens/internal/messenger"
	"github.com/go-chi/chi/v5"
)

const maxSettingsBody = 64 << 10

// SettingsHandler handles the settings and debug log endpoints.
type SettingsHandler struct {
	*Handler
	// updateMu serializes persist-then-deliver so updates reach the layer in
	// the order they were stored.
	updateMu sync.Mutex
}

// NewSettingsHandler creates a settings handler.
func NewSettingsHandler(base *Handler) *SettingsHandler {
	return &SettingsHandler{Handler: base}
}

// settingsResponse is returned by both settings endpoints.
type settingsResponse struct {
	Settings domain.SettingsView `json:"settings"`
	// Applied is set on updates: whether the running layer accepted them.
	Applied *bool  `json:"applied,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// RegisterRoutes registers settings routes.
func (h *SettingsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)
		r.Get("/debug/log", h.DebugLog)
		r.Delete("/debug/log", h.ClearDebugLog)
	})
}

// GetSettings returns the stored settings with the credential redacted.
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	record, err := h.store.Get(r.Context(), domain.SettingsKeys...)
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		Error(w, http.StatusInternalServerError, "failed_to_load_settings")
		return
	}
	s := domain.SettingsFromRecord(h.defaults, record)
	JSON(w, http.StatusOK, settingsResponse{Settings: s.View()})
}

// UpdateSettings persists a partial update and relays it to the running layer.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch domain.SettingsPatch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		Error(w, http.StatusBadRequest, "invalid_settings")
		return
	}
	if patch.IsEmpty() {
		Error(w, http.StatusBadRequest, "empty_settings")
		return
	}

	h.updateMu.Lock()
	defer h.updateMu.Unlock()

	set, deleted := patch.Record()
	if len(set) > 0 {
		if err := h.store.Set(r.Context(), set); err != nil {
			slog.Error("Failed to save settings", "error", err)
			Error(w, http.StatusInternalServerError, "failed_to_save_settings")
			return
		}
	}
	if len(deleted) > 0 {
		if err := h.store.Delete(r.Context(), deleted...); err != nil {
			slog.Error("Failed to clear settings", "error", err, "keys", deleted)
			Error(w, http.StatusInternalServerError, "failed_to_save_settings")
			return
		}
	}

	record, err := h.store.Get(r.Context(), domain.SettingsKeys...)
	if err != nil {
		slog.Error("Failed to reload settings", "error", err)
		Error(w, http.StatusInternalServerError, "failed_to_load_settings")
		return
	}
	s := domain.SettingsFromRecord(h.defaults, record)
	h.ring.Log("settings_saved", s.View(), s.DebugMode)

	resp := settingsResponse{Settings: s.View()}
	applied := true
	start := time.Now()
	// The layer gets the stored view, so a cleared key falls back to the
	// default exactly as it will after a restart.
	full := s.Patch()
	_, err = h.bus.Deliver(r.Context(), messenger.Message{Type: messenger.TypeUpdateSettings, Settings: &full}, h.policy)
	if err != nil {
		applied = false
		var merr *messenger.MessagingError
		if errors.As(err, &merr) {
			resp.Warning = "settings saved but not applied: " + merr.Err.Error()
		} else {
			resp.Warning = "settings saved but not applied"
		}
	}
	resp.Applied = &applied
	slog.Info("Settings saved", "applied", applied, "duration_ms", time.Since(start).Milliseconds())
	JSON(w, http.StatusOK, resp)
}

// DebugLog returns the recorded debug entries, oldest first.
func (h *SettingsHandler) DebugLog(w http.ResponseWriter, _ *http.Request) {
	entries := []debuglog.Entry{}
	capacity := 0
	if h.ring != nil {
		entries = h.ring.Entries()
		capacity = h.ring.Capacity()
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"entries":  entries,
		"capacity": capacity,
	})
}

// ClearDebugLog drops all recorded debug entries.
func (h *SettingsHandler) ClearDebugLog(w http.ResponseWriter, _ *http.Request) {
	if h.ring != nil {
		h.ring.Reset()
	}
	w.WriteHeader(http.StatusNoContent)
}
