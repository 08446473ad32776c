package client

import (
	"errors"
	"fmt"
)

var (
	// ErrOffline is returned before any request is attempted when no connectivity is detected.
	ErrOffline = errors.New("offline")
	// ErrTransport wraps failures to reach the provider at all (DNS, dial, reset, timeout).
	ErrTransport        = errors.New("transport failure")
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrUpstreamFailure  = errors.New("upstream failure")
)

// ProviderError is a non-2xx response not covered by a more specific sentinel.
// It unwraps to ErrUpstreamFailure.
type ProviderError struct {
	Endpoint   string
	StatusCode int
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: HTTP %d", ErrUpstreamFailure, e.Endpoint, e.StatusCode)
}

func (e *ProviderError) Unwrap() error {
	return ErrUpstreamFailure
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode
	}
	return 0
}

// UserMessage returns actionable text for a provider failure.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrOffline):
		return "No internet connection. Check Wi-Fi or mobile data."
	case errors.Is(err, ErrTransport):
		return "Could not reach the weather service. Check your connection and try again."
	case errors.Is(err, ErrLocationNotFound):
		return `City not found. Try adding the country (e.g. "Paris, FR").`
	case errors.Is(err, ErrInvalidAPIKey):
		return "Invalid weather API key. Check the service configuration."
	case errors.Is(err, ErrRateLimited):
		return "Too many requests. Try again later."
	}
	if code := StatusCode(err); code != 0 {
		return fmt.Sprintf("Weather service error (%d).", code)
	}
	return "Unable to load weather data."
}
