package augment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashureev/tutorlens/internal/config"
)

const (
	// MessageField is the tutoring payload field holding the student's text.
	MessageField = "message"
	// GuidanceField carries guidance in field mode.
	GuidanceField = "customPrompt"

	commandField   = "command"
	commandChat    = "chat_message"
	guidanceOpen   = "\n\n[tutor-guidance]\n"
	guidanceClose  = "\n[/tutor-guidance]"
	principalJoint = ", a message from the principal to you: "
)

// Body is a tutoring request payload with unknown fields preserved verbatim.
type Body map[string]json.RawMessage

// ParseBody decodes a tutoring payload.
func ParseBody(raw []byte) (Body, error) {
	var b Body
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode tutoring body: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("decode tutoring body: not an object")
	}
	return b, nil
}

// Message returns the student's message, or "" when absent or not a string.
func (b Body) Message() string {
	raw, ok := b[MessageField]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func (b Body) setString(field, value string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", field, err)
	}
	b[field] = raw
	return nil
}

// Splicer embeds guidance into a tutoring body and can undo it for display.
type Splicer interface {
	// Splice rewrites body in place so the forwarded request carries guidance.
	Splice(body Body, studentMessage, guidance string) error
	// Recover returns the student's original text from a rewritten message.
	// ok is false when text carries no guidance.
	Recover(text string) (original string, ok bool)
}

// NewSplicer returns the splicer for a config splice mode.
func NewSplicer(mode string) (Splicer, error) {
	switch mode {
	case config.SpliceTagged, "":
		return taggedSplicer{}, nil
	case config.SplicePrincipal:
		return principalSplicer{}, nil
	case config.SpliceField:
		return fieldSplicer{}, nil
	default:
		return nil, fmt.Errorf("unknown splice mode %q", mode)
	}
}

type taggedSplicer struct{}

func (taggedSplicer) Splice(body Body, msg, guidance string) error {
	if err := body.setString(MessageField, msg+guidanceOpen+guidance+guidanceClose); err != nil {
		return err
	}
	return body.setString(commandField, commandChat)
}

// Recover anchors on the trailing close tag and takes the last open tag, so
// a student message that quotes the markers survives intact.
func (taggedSplicer) Recover(text string) (string, bool) {
	body, ok := strings.CutSuffix(strings.TrimRight(text, " \t\r\n"), guidanceClose)
	if !ok {
		return text, false
	}
	i := strings.LastIndex(body, guidanceOpen)
	if i < 0 {
		return text, false
	}
	return body[:i], true
}

type principalSplicer struct{}

func (principalSplicer) Splice(body Body, msg, guidance string) error {
	if err := body.setString(MessageField, msg+principalJoint+guidance); err != nil {
		return err
	}
	return body.setString(commandField, commandChat)
}

func (principalSplicer) Recover(text string) (string, bool) {
	i := strings.LastIndex(text, principalJoint)
	if i < 0 {
		return text, false
	}
	return text[:i], true
}

// fieldSplicer leaves the message untouched, so there is nothing to recover.
type fieldSplicer struct{}

func (fieldSplicer) Splice(body Body, msg, guidance string) error {
	if err := body.setString(MessageField, msg); err != nil {
		return err
	}
	if err := body.setString(GuidanceField, guidance); err != nil {
		return err
	}
	return body.setString(commandField, commandChat)
}

func (fieldSplicer) Recover(text string) (string, bool) {
	return text, false
}
