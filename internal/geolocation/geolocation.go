// Package geolocation resolves the device position for the GPS entry.
package geolocation

import (
	"context"
	"errors"
	"time"

	"github.com/kjstillabower/weather-deck/internal/models"
)

var (
	// ErrPermissionDenied is returned when the user or platform refused location access.
	ErrPermissionDenied = errors.New("geolocation permission denied")
	// ErrPositionUnavailable is returned when no fix could be obtained (weak signal, service off).
	ErrPositionUnavailable = errors.New("geolocation position unavailable")
	// ErrTimeout is returned when no fix arrived within Options.Timeout.
	ErrTimeout = errors.New("geolocation timeout")
	// ErrUnsupported is returned when no geolocation capability is configured.
	ErrUnsupported = errors.New("geolocation unsupported")
)

// DefaultTimeout bounds a single position request.
const DefaultTimeout = 10 * time.Second

// Options mirror the hints a position request carries.
type Options struct {
	Timeout      time.Duration
	HighAccuracy bool
	// MaximumAge is the oldest cached fix the caller accepts. Zero demands a fresh fix.
	MaximumAge time.Duration
}

// FreshFix is the request used for the GPS entry: 10s timeout, high accuracy, no cached fix.
func FreshFix() Options {
	return Options{Timeout: DefaultTimeout, HighAccuracy: true, MaximumAge: 0}
}

// Provider yields the current position or one of the sentinel errors above.
type Provider interface {
	CurrentPosition(ctx context.Context, opts Options) (models.Coordinates, error)
}

// UserMessage returns the actionable message shown for a geolocation failure.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Location permission denied. Enable location access in your settings."
	case errors.Is(err, ErrPositionUnavailable):
		return "Weak GPS signal or location services turned off. Turn location on."
	case errors.Is(err, ErrTimeout):
		return "Location request timed out. Move to an open area or try again."
	case errors.Is(err, ErrUnsupported):
		return "Geolocation is not supported on this device."
	default:
		return "Unable to determine your position."
	}
}

// Bounded wraps p so every call resolves within opts.Timeout. A provider that
// ignores its context still yields ErrTimeout once the deadline passes.
func Bounded(p Provider) Provider {
	if p == nil {
		return Unsupported{}
	}
	return bounded{inner: p}
}

type bounded struct {
	inner Provider
}

type fixResult struct {
	coord models.Coordinates
	err   error
}

func (b bounded) CurrentPosition(ctx context.Context, opts Options) (models.Coordinates, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan fixResult, 1)
	go func() {
		c, err := b.inner.CurrentPosition(ctx, opts)
		done <- fixResult{coord: c, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return models.Coordinates{}, ErrTimeout
		}
		return r.coord, r.err
	case <-ctx.Done():
		return models.Coordinates{}, ErrTimeout
	}
}

// Unsupported always fails with ErrUnsupported.
type Unsupported struct{}

func (Unsupported) CurrentPosition(context.Context, Options) (models.Coordinates, error) {
	return models.Coordinates{}, ErrUnsupported
}
