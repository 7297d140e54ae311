package providers

import (
	"errors"
	"fmt"
)

// ErrRateLimited marks an HTTP 429 from the remote provider so callers
// can show a specific "try again shortly" message.
var ErrRateLimited = errors.New("provider rate limited")

// ErrEmptyGeneration marks a 2xx response carrying no usable text. It is
// a failure, never a valid result.
var ErrEmptyGeneration = errors.New("provider returned empty text")

// ProviderError wraps a transport or API failure from a backend.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// wrapStatus classifies an API failure by HTTP status. 429 maps to
// ErrRateLimited; everything else becomes a ProviderError.
func wrapStatus(provider string, status int, message string, err error) error {
	if status == 429 {
		return fmt.Errorf("%s: %w", provider, ErrRateLimited)
	}
	return &ProviderError{Provider: provider, Status: status, Message: message, Err: err}
}
