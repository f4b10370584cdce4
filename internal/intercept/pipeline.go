package intercept

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// Interceptor claims and handles a class of requests.
type Interceptor interface {
	Name() string
	ShouldIntercept(req *Request) bool
	// Intercept handles a claimed request. next is the original primitive.
	Intercept(req *Request, next http.RoundTripper) (*http.Response, error)
}

// Pipeline is an ordered set of named interceptors. The first interceptor
// whose ShouldIntercept returns true handles the request.
type Pipeline struct {
	mu     sync.RWMutex
	items  []Interceptor
	logger *slog.Logger
}

// NewPipeline creates an empty pipeline.
func NewPipeline(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{logger: logger}
}

// Register adds an interceptor. An interceptor with the same name is replaced
// in place.
func (p *Pipeline) Register(ic Interceptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.items {
		if existing.Name() == ic.Name() {
			p.items[i] = ic
			return
		}
	}
	p.items = append(p.items, ic)
}

// Unregister removes the named interceptor. It reports whether one was removed.
func (p *Pipeline) Unregister(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.items {
		if existing.Name() == name {
			p.items = append(p.items[:i], p.items[i+1:]...)
			return true
		}
	}
	return false
}

// Names lists registered interceptors in order.
func (p *Pipeline) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, len(p.items))
	for i, ic := range p.items {
		names[i] = ic.Name()
	}
	return names
}

func (p *Pipeline) claim(req *Request) Interceptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ic := range p.items {
		if ic.ShouldIntercept(req) {
			return ic
		}
	}
	return nil
}

// Handle routes req to the first claiming interceptor, or straight to next
// when nobody claims it. An interceptor that panics is logged and the
// original request is forwarded instead.
func (p *Pipeline) Handle(req *Request, next http.RoundTripper) (resp *http.Response, err error) {
	ic := p.claim(req)
	if ic == nil {
		return next.RoundTrip(req.orig)
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Interceptor panicked, forwarding original request",
				"interceptor", ic.Name(), "panic", fmt.Sprint(r))
			orig, oerr := req.Original()
			if oerr != nil {
				resp, err = nil, oerr
				return
			}
			resp, err = next.RoundTrip(orig)
		}
	}()
	return ic.Intercept(req, next)
}
