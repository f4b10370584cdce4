// Package messenger carries typed messages between the interception layer,
// the loader and external clients.
package messenger

import (
	"fmt"

	"github.com/ashureev/tutorlens/internal/domain"
)

// Type identifies a message.
type Type string

// Message types.
const (
	TypeInitInjector   Type = "INIT_INJECTOR"
	TypeUpdateSettings Type = "UPDATE_SETTINGS"
	TypeGetAPIKey      Type = "GET_API_KEY"
	TypeAPIKeyResponse Type = "API_KEY_RESPONSE"
	TypeRenderUpdate   Type = "RENDER_UPDATE"
	TypeRenderText     Type = "RENDER_TEXT"
	TypeError          Type = "ERROR"
)

// Message is the envelope exchanged on the bus and over the bridge.
type Message struct {
	Type     Type                   `json:"type"`
	Config   *domain.InjectorConfig `json:"config,omitempty"`
	Settings *domain.SettingsPatch  `json:"settings,omitempty"`
	Key      string                 `json:"key,omitempty"`
	Text     string                 `json:"text,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// ErrorMessage builds an ERROR reply.
func ErrorMessage(err error) Message {
	return Message{Type: TypeError, Error: err.Error()}
}

// MessagingError is returned when delivery gave up after its retry budget.
type MessagingError struct {
	Type     Type
	Attempts int
	Err      error
}

func (e *MessagingError) Error() string {
	return fmt.Sprintf("deliver %s: gave up after %d attempts: %v", e.Type, e.Attempts, e.Err)
}

func (e *MessagingError) Unwrap() error { return e.Err }
