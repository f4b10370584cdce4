package augment

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential is returned when no credential is configured.
	ErrMissingCredential = errors.New("API key not configured")
	// ErrEmptyMessage is returned when there is no student message to augment.
	ErrEmptyMessage = errors.New("student message is empty")
	// ErrMalformedResponse is returned when the completion lacks choices[0].message.content.
	ErrMalformedResponse = errors.New("invalid response format")
)

// ConfigurationError means the call was never attempted.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string { return "augment configuration: " + e.Err.Error() }
func (e *ConfigurationError) Unwrap() error { return e.Err }

// UpstreamAPIError means the LLM endpoint was called and the call failed.
// Status is zero for transport failures.
type UpstreamAPIError struct {
	Status int
	Err    error
}

func (e *UpstreamAPIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("LLM API error: status %d: %v", e.Status, e.Err)
	}
	return "LLM API error: " + e.Err.Error()
}

func (e *UpstreamAPIError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
