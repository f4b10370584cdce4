// Package loader bootstraps the interception layer and relays settings to it.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/tutorlens/internal/debuglog"
	"github.com/ashureev/tutorlens/internal/domain"
	"github.com/ashureev/tutorlens/internal/intercept"
	"github.com/ashureev/tutorlens/internal/messenger"
	"github.com/ashureev/tutorlens/internal/store"
)

var (
	// ErrGaveUp is returned by Run when every initialization attempt failed.
	ErrGaveUp = errors.New("loader: initialization gave up")
	// ErrNotReady is returned to settings updates that arrive before the layer exists.
	ErrNotReady = errors.New("loader: layer not ready")

	errNoSettings = errors.New("loader: UPDATE_SETTINGS without settings")
)

// Factory builds a layer for the given settings.
type Factory func(settings domain.Settings) (*intercept.Layer, error)

// StatusReporter receives serving state changes.
type StatusReporter interface {
	SetServing(serving bool)
}

// Options configures a Loader.
type Options struct {
	MaxAttempts   int
	RetryInterval time.Duration
	Defaults      domain.Settings
	// Public is the INIT_INJECTOR payload. CredentialConfigured is filled in
	// from the loaded settings.
	Public   domain.InjectorConfig
	Reporter StatusReporter
	Logger   *slog.Logger
}

// Loader owns the active layer on a slot.
type Loader struct {
	store   store.SettingsStore
	slot    *intercept.Slot
	bus     *messenger.Bus
	factory Factory
	opts    Options
	logger  *slog.Logger

	mu    sync.RWMutex
	layer *intercept.Layer
	ready bool

	offs []func()
}

// New creates a loader and registers its message handlers on bus.
func New(st store.SettingsStore, slot *intercept.Slot, bus *messenger.Bus, factory Factory, opts Options) *Loader {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		store:   st,
		slot:    slot,
		bus:     bus,
		factory: factory,
		opts:    opts,
		logger:  logger,
	}
	l.offs = []func(){
		bus.On(messenger.TypeUpdateSettings, l.handleUpdateSettings),
		bus.On(messenger.TypeGetAPIKey, l.handleGetAPIKey),
	}
	return l
}

// TutoringFactory returns a Factory whose layers carry the tutoring interceptor.
func TutoringFactory(gen intercept.Generator, cfg intercept.TutoringConfig, logger *slog.Logger, ring *debuglog.Ring) Factory {
	return func(settings domain.Settings) (*intercept.Layer, error) {
		layer := intercept.NewLayer(settings, logger, ring)
		layer.Use(intercept.NewTutoringInterceptor(gen, cfg, layer.Settings, logger, ring))
		return layer, nil
	}
}

// Run initializes the layer, retrying failures at a fixed interval. After
// MaxAttempts failures it reports not serving and returns ErrGaveUp.
func (l *Loader) Run(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= l.opts.MaxAttempts; attempt++ {
		err := l.initialize(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		l.logger.Warn("Loader initialization failed", "attempt", attempt, "max_attempts", l.opts.MaxAttempts, "error", err)

		if attempt == l.opts.MaxAttempts {
			break
		}
		timer := time.NewTimer(l.opts.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.report(false)
			return ctx.Err()
		case <-timer.C:
		}
	}

	l.logger.Error("Loader gave up", "attempts", l.opts.MaxAttempts, "error", lastErr)
	l.report(false)
	return fmt.Errorf("%w after %d attempts: %v", ErrGaveUp, l.opts.MaxAttempts, lastErr)
}

func (l *Loader) initialize(ctx context.Context) error {
	record, err := l.store.Get(ctx, domain.SettingsKeys...)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	settings := domain.SettingsFromRecord(l.opts.Defaults, record)

	layer, err := l.factory(settings)
	if err != nil {
		return fmt.Errorf("build layer: %w", err)
	}
	if err := l.install(layer); err != nil {
		return err
	}

	public := l.opts.Public
	public.CredentialConfigured = settings.HasCredential()
	l.bus.Emit(ctx, messenger.Message{Type: messenger.TypeInitInjector, Config: &public})

	l.logger.Info("Interception layer ready",
		"credential_configured", settings.HasCredential(),
		"debug_mode", settings.DebugMode)
	l.report(true)
	return nil
}

// install replaces the owned layer with layer.
func (l *Loader) install(layer *intercept.Layer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.layer != nil && l.layer != layer {
		l.layer.Deactivate()
	}
	if err := layer.Activate(l.slot); err != nil {
		return fmt.Errorf("activate layer: %w", err)
	}
	l.layer = layer
	l.ready = true
	return nil
}

// Ready reports whether a layer is installed.
func (l *Loader) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ready
}

// Layer returns the owned layer, or nil before initialization.
func (l *Loader) Layer() *intercept.Layer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.layer
}

// Cleanup deactivates the owned layer and unregisters the message handlers.
func (l *Loader) Cleanup() {
	l.mu.Lock()
	if l.layer != nil {
		l.layer.Deactivate()
	}
	l.ready = false
	offs := l.offs
	l.offs = nil
	l.mu.Unlock()

	for _, off := range offs {
		off()
	}
	l.report(false)
	l.logger.Info("Loader cleaned up")
}

func (l *Loader) report(serving bool) {
	if l.opts.Reporter != nil {
		l.opts.Reporter.SetServing(serving)
	}
}

func (l *Loader) handleUpdateSettings(_ context.Context, msg messenger.Message) (*messenger.Message, error) {
	layer := l.Layer()
	if layer == nil || !l.Ready() {
		return nil, ErrNotReady
	}
	if msg.Settings == nil {
		return nil, errNoSettings
	}

	s := layer.UpdateSettings(*msg.Settings)
	l.logger.Info("Settings updated",
		"credential_configured", s.HasCredential(),
		"socratic_questioning", s.SocraticQuestioning,
		"error_prevention", s.ErrorPrevention,
		"interactive_checks", s.InteractiveChecks,
		"debug_mode", s.DebugMode)
	return &messenger.Message{Type: messenger.TypeUpdateSettings}, nil
}

func (l *Loader) handleGetAPIKey(ctx context.Context, _ messenger.Message) (*messenger.Message, error) {
	record, err := l.store.Get(ctx, domain.KeyCredential)
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}
	key := domain.NormalizeCredential(record[domain.KeyCredential])
	if key == "" {
		key = domain.NormalizeCredential(l.opts.Defaults.Credential)
	}
	return &messenger.Message{Type: messenger.TypeAPIKeyResponse, Key: key}, nil
}
