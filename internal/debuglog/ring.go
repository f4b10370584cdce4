// Package debuglog keeps a bounded in-memory trail of interception events.
package debuglog

import (
	"log/slog"
	"sync"
	"time"
)

// Entry is one recorded event.
type Entry struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Ring is a fixed-size circular log of entries.
// When full, the oldest entry is overwritten.
type Ring struct {
	buf    []Entry
	size   int
	head   int // next write position
	full   bool
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewRing creates a ring holding at most size entries.
func NewRing(size int, logger *slog.Logger) *Ring {
	if size <= 0 {
		size = 200
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ring{
		buf:    make([]Entry, size),
		size:   size,
		logger: logger,
	}
}

// Log records an entry. When echo is set the entry is also written to the
// structured log at debug level.
func (r *Ring) Log(typ string, data any, echo bool) {
	if r == nil {
		return
	}
	e := Entry{Type: typ, Data: data, Timestamp: time.Now()}

	r.mu.Lock()
	r.buf[r.head] = e
	r.head = (r.head + 1) % r.size
	if r.head == 0 {
		r.full = true
	}
	r.mu.Unlock()

	if echo {
		r.logger.Debug("[TutorDebugger] "+typ, "data", data)
	}
}

// Entries returns the recorded entries, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full {
		out := make([]Entry, r.head)
		copy(out, r.buf[:r.head])
		return out
	}
	out := make([]Entry, 0, r.size)
	out = append(out, r.buf[r.head:]...)
	return append(out, r.buf[:r.head]...)
}

// Len returns the number of recorded entries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return r.size
	}
	return r.head
}

// Reset clears the ring.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = make([]Entry, r.size)
	r.head = 0
	r.full = false
}

// Capacity returns the maximum number of entries.
func (r *Ring) Capacity() int {
	return r.size
}
