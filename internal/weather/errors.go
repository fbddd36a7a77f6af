package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced station or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRange is returned when a day range is reversed or too wide.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrUpstream matches every *UpstreamError via errors.Is.
	ErrUpstream = errors.New("upstream failure")
)

// UpstreamError describes a failed call to the forecast or place-search
// provider. StatusCode is zero when no HTTP response was received (timeout,
// connection error, open circuit).
type UpstreamError struct {
	Provider   string
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d", e.Provider, e.Endpoint, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s %s: upstream failure", e.Provider, e.Endpoint)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is reports ErrUpstream as a match so callers need not know the concrete type.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}
