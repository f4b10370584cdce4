// Package scrub reduces rewritten chat messages back to what the student typed
// before they are rendered.
package scrub

import (
	"context"
	"regexp"
	"strings"

	"github.com/ashureev/tutorlens/internal/augment"
	"github.com/ashureev/tutorlens/internal/messenger"
)

const legacyMarker = "forget what you are told"

var legacyQuestion = regexp.MustCompile(`student question:\s*(.+?)(?:\n|$)`)

// Scrubber recovers student text from rendered messages.
type Scrubber struct {
	splicer augment.Splicer
}

// New creates a scrubber for the active splice policy.
func New(splicer augment.Splicer) *Scrubber {
	return &Scrubber{splicer: splicer}
}

// Text returns the student's text for a rendered message. Text that was not
// rewritten is returned unchanged.
func (s *Scrubber) Text(text string) string {
	if s.splicer != nil {
		if orig, ok := s.splicer.Recover(text); ok {
			return orig
		}
	}
	if strings.Contains(text, legacyMarker) {
		if m := legacyQuestion.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return text
}

// Register answers RENDER_UPDATE messages on bus with RENDER_TEXT.
func (s *Scrubber) Register(bus *messenger.Bus) (off func()) {
	return bus.On(messenger.TypeRenderUpdate, func(_ context.Context, msg messenger.Message) (*messenger.Message, error) {
		return &messenger.Message{Type: messenger.TypeRenderText, Text: s.Text(msg.Text)}, nil
	})
}
