//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/tutorlens/internal/debuglog"
	"github.com/ashureev/tutorlens/internal/domain"
	"github.com/ashureev/tutorlens/internal/messenger"
	"github.com/go-chi/chi/v5"
)

type fakeStore struct {
	mu      sync.Mutex
	data    map[string]string
	pingErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, keys ...string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string)
	for _, k := range keys {
		if v, ok := f.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (f *fakeStore) Set(_ context.Context, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range values {
		f.data[k] = v
	}
	return nil
}

func (f *fakeStore) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) Ping(_ context.Context) error { return f.pingErr }
func (f *fakeStore) Close() error                 { return nil }

type readyFlag bool

func (r readyFlag) Ready() bool { return bool(r) }

func newTestRouter(st *fakeStore, bus *messenger.Bus, ring *debuglog.Ring) http.Handler {
	return newTestRouterWithDefaults(st, bus, ring, domain.Settings{
		Flags: domain.Flags{SocraticQuestioning: true},
	})
}

func newTestRouterWithDefaults(st *fakeStore, bus *messenger.Bus, ring *debuglog.Ring, defaults domain.Settings) http.Handler {
	base := NewHandler(st, bus, messenger.RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond}, defaults, ring)
	r := chi.NewRouter()
	NewSettingsHandler(base).RegisterRoutes(r)
	return r
}

func decodeSettings(t *testing.T, w *httptest.ResponseRecorder) settingsResponse {
	t.Helper()
	var got settingsResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return got
}

func TestGetSettings_RedactsCredential(t *testing.T) {
	st := newFakeStore()
	st.data[domain.KeyCredential] = "sk-secret"
	st.data[domain.KeyDebugMode] = "true"
	r := newTestRouter(st, messenger.NewBus(nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "sk-secret") {
		t.Fatal("Credential leaked in response")
	}
	got := decodeSettings(t, w)
	if !got.Settings.CredentialConfigured {
		t.Error("Expected credential_configured=true")
	}
	if !got.Settings.DebugMode || !got.Settings.SocraticQuestioning {
		t.Errorf("Expected stored and default flags, got %+v", got.Settings.Flags)
	}
}

func TestUpdateSettings_PersistsAndDelivers(t *testing.T) {
	st := newFakeStore()
	bus := messenger.NewBus(nil)
	var delivered *domain.SettingsPatch
	bus.On(messenger.TypeUpdateSettings, func(_ context.Context, msg messenger.Message) (*messenger.Message, error) {
		delivered = msg.Settings
		return &messenger.Message{Type: messenger.TypeUpdateSettings}, nil
	})
	r := newTestRouter(st, bus, debuglog.NewRing(8, nil))

	body := `{"credential":"  sk-new  ","interactive_checks":true}`
	req := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if st.data[domain.KeyCredential] != "sk-new" {
		t.Errorf("Expected trimmed credential stored, got %q", st.data[domain.KeyCredential])
	}
	if st.data[domain.KeyInteractiveChecks] != "true" {
		t.Errorf("Expected interactive_checks stored, got %q", st.data[domain.KeyInteractiveChecks])
	}
	if delivered == nil || delivered.InteractiveChecks == nil || !*delivered.InteractiveChecks {
		t.Errorf("Expected UPDATE_SETTINGS delivered, got %+v", delivered)
	}

	got := decodeSettings(t, w)
	if got.Applied == nil || !*got.Applied {
		t.Error("Expected applied=true")
	}
}

func TestUpdateSettings_BlankCredentialDeletes(t *testing.T) {
	st := newFakeStore()
	st.data[domain.KeyCredential] = "sk-old"
	r := newTestRouter(st, messenger.NewBus(nil), nil)

	req := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(`{"credential":"   "}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if _, ok := st.data[domain.KeyCredential]; ok {
		t.Error("Expected blank credential to be deleted")
	}
	if decodeSettings(t, w).Settings.CredentialConfigured {
		t.Error("Expected credential_configured=false")
	}
}

func TestUpdateSettings_ClearFallsBackToDefaultCredential(t *testing.T) {
	st := newFakeStore()
	st.data[domain.KeyCredential] = "sk-stored"
	bus := messenger.NewBus(nil)
	layer := domain.Settings{Credential: "sk-stored"}
	bus.On(messenger.TypeUpdateSettings, func(_ context.Context, msg messenger.Message) (*messenger.Message, error) {
		layer = layer.Apply(*msg.Settings)
		return &messenger.Message{Type: messenger.TypeUpdateSettings}, nil
	})
	r := newTestRouterWithDefaults(st, bus, nil, domain.Settings{Credential: "sk-default"})

	req := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(`{"credential":""}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if _, ok := st.data[domain.KeyCredential]; ok {
		t.Error("Expected stored credential to be deleted")
	}
	if !decodeSettings(t, w).Settings.CredentialConfigured {
		t.Error("Expected credential_configured=true from the default")
	}
	if layer.Credential != "sk-default" {
		t.Errorf("Expected layer to use the default credential, got %q", layer.Credential)
	}
}

func TestUpdateSettings_NotAppliedStillSaved(t *testing.T) {
	st := newFakeStore()
	bus := messenger.NewBus(nil)
	var calls int
	bus.On(messenger.TypeUpdateSettings, func(context.Context, messenger.Message) (*messenger.Message, error) {
		calls++
		return nil, errors.New("loader: layer not ready")
	})
	r := newTestRouter(st, bus, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(`{"debug_mode":true}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if calls != 2 {
		t.Errorf("Expected 2 delivery attempts, got %d", calls)
	}
	if st.data[domain.KeyDebugMode] != "true" {
		t.Error("Expected setting to be persisted")
	}
	got := decodeSettings(t, w)
	if got.Applied == nil || *got.Applied {
		t.Error("Expected applied=false")
	}
	if !strings.Contains(got.Warning, "not ready") {
		t.Errorf("Expected warning to carry the cause, got %q", got.Warning)
	}
}

func TestUpdateSettings_RejectsBadInput(t *testing.T) {
	r := newTestRouter(newFakeStore(), messenger.NewBus(nil), nil)

	for _, body := range []string{`not json`, `{}`, `{"unknown":1}`} {
		req := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected status 400, got %d", body, w.Code)
		}
	}
}

func TestDebugLog(t *testing.T) {
	ring := debuglog.NewRing(4, nil)
	ring.Log("turn", map[string]string{"student_message": "hi"}, false)
	r := newTestRouter(newFakeStore(), messenger.NewBus(nil), ring)

	req := httptest.NewRequest(http.MethodGet, "/api/debug/log", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var got struct {
		Entries  []debuglog.Entry `json:"entries"`
		Capacity int              `json:"capacity"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].Type != "turn" {
		t.Errorf("Unexpected entries: %+v", got.Entries)
	}
	if got.Capacity != 4 {
		t.Errorf("Expected capacity 4, got %d", got.Capacity)
	}
}

func TestClearDebugLog(t *testing.T) {
	ring := debuglog.NewRing(4, nil)
	ring.Log("turn", "hi", false)
	r := newTestRouter(newFakeStore(), messenger.NewBus(nil), ring)

	req := httptest.NewRequest(http.MethodDelete, "/api/debug/log", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if ring.Len() != 0 {
		t.Errorf("Expected empty ring, got %d entries", ring.Len())
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		ready      readyFlag
		wantCode   int
		wantStatus string
	}{
		{"ready", nil, true, http.StatusOK, "healthy"},
		{"starting", nil, false, http.StatusOK, "starting"},
		{"db down", errors.New("closed"), true, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newFakeStore()
			st.pingErr = tt.pingErr
			r := chi.NewRouter()
			NewHealthHandler(st, tt.ready).RegisterHealth(r)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, w.Code)
			}
			var got map[string]interface{}
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if got["status"] != tt.wantStatus {
				t.Errorf("Expected status %q, got %v", tt.wantStatus, got["status"])
			}
		})
	}
}
