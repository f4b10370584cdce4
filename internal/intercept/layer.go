package intercept

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/tutorlens/internal/debuglog"
	"github.com/ashureev/tutorlens/internal/domain"
)

// ErrNilSlot is returned when activating against a nil slot.
var ErrNilSlot = errors.New("intercept: nil slot")

// Layer wraps a slot's network primitive with a pipeline of interceptors.
// It is inactive until Activate installs it and inactive again after
// Deactivate restores the captured original.
type Layer struct {
	pipeline *Pipeline
	logger   *slog.Logger
	debug    *debuglog.Ring

	mu       sync.Mutex
	slot     *Slot
	original http.RoundTripper
	active   bool

	settingsMu sync.RWMutex
	settings   domain.Settings
}

// NewLayer creates an inactive layer seeded with settings.
func NewLayer(settings domain.Settings, logger *slog.Logger, ring *debuglog.Ring) *Layer {
	if logger == nil {
		logger = slog.Default()
	}
	settings.Credential = domain.NormalizeCredential(settings.Credential)
	return &Layer{
		pipeline: NewPipeline(logger),
		logger:   logger,
		debug:    ring,
		settings: settings,
	}
}

// Use registers an interceptor on the layer's pipeline.
func (l *Layer) Use(ic Interceptor) {
	l.pipeline.Register(ic)
}

// Pipeline returns the layer's interceptor pipeline.
func (l *Layer) Pipeline() *Pipeline {
	return l.pipeline
}

// Activate captures the slot's current primitive and installs the layer in
// its place. A different layer found in the slot is deactivated first.
// Activating an already active layer is a no-op.
func (l *Layer) Activate(slot *Slot) error {
	if slot == nil {
		return ErrNilSlot
	}
	if prev := slot.ActiveLayer(); prev != nil && prev != l {
		prev.Deactivate()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active {
		return nil
	}
	l.original = slot.install(l)
	l.slot = slot
	l.active = true
	l.logger.Info("Interception layer activated", "interceptors", l.pipeline.Names())
	return nil
}

// Deactivate restores the captured primitive. It reports whether anything was
// restored; repeated calls return false.
func (l *Layer) Deactivate() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return false
	}
	l.active = false
	restored := l.slot.restore(l, l.original)
	if restored {
		l.logger.Info("Interception layer deactivated")
	} else {
		l.logger.Warn("Interception layer no longer owned its slot")
	}
	return restored
}

// IsActive reports whether the layer is installed.
func (l *Layer) IsActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Settings returns a snapshot of the layer's settings.
func (l *Layer) Settings() domain.Settings {
	l.settingsMu.RLock()
	defer l.settingsMu.RUnlock()
	return l.settings
}

// UpdateSettings replaces the fields present in patch.
func (l *Layer) UpdateSettings(patch domain.SettingsPatch) domain.Settings {
	l.settingsMu.Lock()
	l.settings = l.settings.Apply(patch)
	s := l.settings
	l.settingsMu.Unlock()

	l.debug.Log("settings_updated", s.View(), s.DebugMode)
	return s
}

func (l *Layer) next() http.RoundTripper {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.original != nil {
		return l.original
	}
	return http.DefaultTransport
}

// RoundTrip is the request-object calling convention.
func (l *Layer) RoundTrip(req *http.Request) (*http.Response, error) {
	return l.pipeline.Handle(FromHTTP(req), l.next())
}

// Fetch accepts either calling convention: a *http.Request, or a URL with
// options.
func (l *Layer) Fetch(ctx context.Context, resource any, opts *FetchOptions) (*http.Response, error) {
	req, err := Normalize(ctx, resource, opts)
	if err != nil {
		return nil, err
	}
	return l.pipeline.Handle(req, l.next())
}
