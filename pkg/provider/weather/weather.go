// Package weather defines the Provider interface for current-conditions
// lookups.
//
// A weather provider wraps a remote read-only API and returns a normalised
// [types.WeatherReading]. Lookups are idempotent; callers may retry them.
//
// Implementations must be safe for concurrent use.
package weather

import (
	"context"
	"errors"
	"fmt"

	"github.com/Den9mn/novi-weather/pkg/types"
)

// ErrLookupFailed is wrapped by every error a Provider returns, whether the
// cause was a transport failure, a non-2xx response, or an unusable payload.
// Callers use errors.Is to tell lookup failures apart from their own errors.
var ErrLookupFailed = errors.New("capability lookup failed")

// Provider performs a single current-conditions lookup by free-form location
// name.
type Provider interface {
	// Lookup fetches current conditions for location. The location is passed
	// to the remote service unmodified; empty and unresolvable names are the
	// remote service's to reject.
	//
	// The returned reading may have any subset of fields set. A non-nil error
	// always wraps [ErrLookupFailed].
	Lookup(ctx context.Context, location string) (*types.WeatherReading, error)
}

// StatusError reports a non-2xx answer from the remote service. It is wrapped
// together with [ErrLookupFailed].
type StatusError struct {
	StatusCode int
	Message    string
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// IsClientError reports whether err carries a 4xx [StatusError], i.e. the
// request itself was rejected and the service is otherwise healthy.
func IsClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}
