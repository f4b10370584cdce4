// Package intercept implements the request interception layer: a swappable
// network primitive, a pipeline of named interceptors, and the tutoring
// interceptor that augments chat requests with generated guidance.
package intercept

import (
	"net/http"
	"sync"
)

// Slot holds the network primitive used by a context. Everything that sends
// requests through the Slot sees whichever RoundTripper is currently installed.
type Slot struct {
	mu sync.RWMutex
	rt http.RoundTripper
}

// NewSlot creates a slot whose original primitive is base.
// A nil base means http.DefaultTransport.
func NewSlot(base http.RoundTripper) *Slot {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Slot{rt: base}
}

// Current returns the installed primitive.
func (s *Slot) Current() http.RoundTripper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rt
}

// RoundTrip sends req through the installed primitive.
func (s *Slot) RoundTrip(req *http.Request) (*http.Response, error) {
	return s.Current().RoundTrip(req)
}

// ActiveLayer returns the Layer installed in the slot, if any.
func (s *Slot) ActiveLayer() *Layer {
	l, _ := s.Current().(*Layer)
	return l
}

// install puts l in the slot and returns what it replaced.
func (s *Slot) install(l *Layer) http.RoundTripper {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.rt
	s.rt = l
	return prev
}

// restore puts original back only if l still owns the slot.
func (s *Slot) restore(l *Layer, original http.RoundTripper) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.rt.(*Layer); !ok || cur != l {
		return false
	}
	s.rt = original
	return true
}
