package intercept

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/tutorlens/internal/augment"
	"github.com/ashureev/tutorlens/internal/debuglog"
	"github.com/ashureev/tutorlens/internal/domain"
)

// TutoringName is the pipeline name of the tutoring interceptor.
const TutoringName = "tutoring"

// Generator produces guidance for a student message.
type Generator interface {
	GenerateGuidance(ctx context.Context, studentMessage, credential string, flags domain.Flags) (string, error)
}

// TutoringConfig configures the tutoring interceptor.
type TutoringConfig struct {
	TargetPath string
	Fallback   string
	Splicer    augment.Splicer
}

// TutoringInterceptor augments chat requests to the tutoring endpoint with
// generated guidance. Failures never block the request: the original is
// forwarded instead.
type TutoringInterceptor struct {
	gen      Generator
	cfg      TutoringConfig
	settings func() domain.Settings
	logger   *slog.Logger
	debug    *debuglog.Ring
}

// NewTutoringInterceptor creates the interceptor. settings is read once per
// request.
func NewTutoringInterceptor(gen Generator, cfg TutoringConfig, settings func() domain.Settings, logger *slog.Logger, ring *debuglog.Ring) *TutoringInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Splicer == nil {
		cfg.Splicer, _ = augment.NewSplicer("")
	}
	return &TutoringInterceptor{
		gen:      gen,
		cfg:      cfg,
		settings: settings,
		logger:   logger.With("interceptor", TutoringName),
		debug:    ring,
	}
}

// Name implements Interceptor.
func (t *TutoringInterceptor) Name() string { return TutoringName }

// ShouldIntercept claims requests whose URL contains the target path.
func (t *TutoringInterceptor) ShouldIntercept(req *Request) bool {
	return t.cfg.TargetPath != "" && strings.Contains(req.URL, t.cfg.TargetPath)
}

// Intercept implements Interceptor.
func (t *TutoringInterceptor) Intercept(req *Request, next http.RoundTripper) (*http.Response, error) {
	settings := t.settings()
	debug := settings.DebugMode
	t.debug.Log("request_intercepted", map[string]string{"url": req.URL, "method": req.Method}, debug)

	raw, err := req.Body()
	if err != nil {
		t.logger.Error("Failed to read tutoring request body", "error", err)
		return t.forwardOriginal(req, next, debug)
	}
	body, err := augment.ParseBody(raw)
	if err != nil {
		t.logger.Warn("Tutoring request body is not a JSON object, forwarding as is", "error", err)
		return t.forwardOriginal(req, next, debug)
	}
	msg := body.Message()
	if strings.TrimSpace(msg) == "" {
		t.logger.Debug("No student message in tutoring request")
		return t.forwardOriginal(req, next, debug)
	}

	turn := domain.Turn{StudentMessage: msg}
	guidance, err := t.gen.GenerateGuidance(req.Context(), msg, settings.Credential, settings.Flags)
	switch {
	case augment.IsConfigurationError(err):
		t.logger.Warn("Guidance unavailable, forwarding original request", "error", err)
		t.debug.Log("guidance_skipped", err.Error(), debug)
		return t.forwardOriginal(req, next, debug)
	case err != nil:
		t.logger.Error("Guidance request failed, using fallback", "error", err)
		guidance = t.cfg.Fallback
		turn.Fallback = true
	}
	turn.Guidance = guidance

	if err := t.cfg.Splicer.Splice(body, msg, guidance); err != nil {
		t.logger.Error("Failed to splice guidance", "error", err)
		return t.forwardOriginal(req, next, debug)
	}
	rewritten, err := json.Marshal(body)
	if err != nil {
		t.logger.Error("Failed to encode rewritten body", "error", err)
		return t.forwardOriginal(req, next, debug)
	}
	t.debug.Log("turn", turn, debug)

	resp, err := next.RoundTrip(req.WithBody(rewritten))
	if err != nil {
		t.logger.Error("Forwarding rewritten request failed, retrying original", "error", err)
		return t.forwardOriginal(req, next, debug)
	}
	return t.wrap(resp, debug), nil
}

func (t *TutoringInterceptor) forwardOriginal(req *Request, next http.RoundTripper, debug bool) (*http.Response, error) {
	orig, err := req.Original()
	if err != nil {
		return nil, err
	}
	resp, err := next.RoundTrip(orig)
	if err != nil {
		return nil, err
	}
	return t.wrap(resp, debug), nil
}

func (t *TutoringInterceptor) wrap(resp *http.Response, debug bool) *http.Response {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		t.logger.Warn("Tutoring endpoint returned non-success status", "status", resp.StatusCode)
	}
	t.debug.Log("response", map[string]any{"status": resp.StatusCode}, debug)

	var observe func([]byte)
	if debug {
		events := newEventObserver(func(payload string) {
			t.debug.Log("stream_event", payload, true)
		})
		observe = events.observe
	}
	return pipeResponse(resp, observe)
}
