package asr

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoAPIKey is returned when the API key is missing.
	ErrNoAPIKey = errors.New("asr: API key required")

	// ErrEmptyUtterance is returned when the utterance holds no audio.
	ErrEmptyUtterance = errors.New("asr: empty utterance")

	// ErrClosed is returned when using a closed provider.
	ErrClosed = errors.New("asr: provider closed")
)

// APIError represents an error response from a speech-to-text API.
type APIError struct {
	// StatusCode is the HTTP status code, if the error came over HTTP.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Provider identifies which provider returned the error.
	Provider string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("asr [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("asr [%s]: API error: %s", e.Provider, e.Message)
}
