package resilience

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Den9mn/novi-weather/internal/observe"
	"github.com/Den9mn/novi-weather/pkg/provider/weather"
	"github.com/Den9mn/novi-weather/pkg/types"
)

var _ weather.Provider = (*GuardedWeather)(nil)

// GuardedWeather wraps a [weather.Provider] with a bounded retry on transport
// errors and a circuit breaker. Client errors (4xx) neither retry nor count
// against the breaker, and neither do lookups abandoned because the caller's
// context was cancelled. Timeouts do count. When the breaker is open, Lookup
// fails fast with an error wrapping both [weather.ErrLookupFailed] and
// [ErrCircuitOpen].
//
// Every attempt is counted in the provider request metrics under provider
// "weather" and kind "lookup"; a lookup that finally fails is counted once
// as a provider error.
type GuardedWeather struct {
	inner   weather.Provider
	breaker *CircuitBreaker
	retry   RetryPolicy
	metrics *observe.Metrics
}

// NewGuardedWeather builds a GuardedWeather. The breaker's own IsFailure is
// ignored in favour of the weather-specific classification. A nil
// retry.Retryable means [IsRetryableLookup]; nil metrics means
// [observe.DefaultMetrics].
func NewGuardedWeather(inner weather.Provider, breaker CircuitBreakerConfig, retry RetryPolicy, metrics *observe.Metrics) *GuardedWeather {
	breaker.IsFailure = countsAgainstBreaker
	if retry.Retryable == nil {
		retry.Retryable = IsRetryableLookup
	}
	if breaker.Name == "" {
		breaker.Name = "weather"
	}
	if retry.Name == "" {
		retry.Name = "weather lookup"
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &GuardedWeather{
		inner:   inner,
		breaker: NewCircuitBreaker(breaker),
		retry:   retry,
		metrics: metrics,
	}
}

// Lookup implements weather.Provider.
func (g *GuardedWeather) Lookup(ctx context.Context, location string) (*types.WeatherReading, error) {
	var reading *types.WeatherReading
	err := g.breaker.Execute(func() error {
		err := Retry(ctx, g.retry, func(ctx context.Context) error {
			r, err := g.inner.Lookup(ctx, location)
			g.metrics.RecordProviderRequest(ctx, "weather", "lookup", lookupStatus(err))
			if err != nil {
				return err
			}
			reading = r
			return nil
		})
		if err != nil && errors.Is(ctx.Err(), context.Canceled) && !errors.Is(err, context.Canceled) {
			// Some transports report a cancelled request as a plain read error.
			err = fmt.Errorf("%w: %w", err, context.Canceled)
		}
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		g.metrics.RecordProviderError(ctx, "weather", "lookup")
	}
	switch {
	case err == nil:
		return reading, nil
	case errors.Is(err, ErrCircuitOpen):
		return nil, fmt.Errorf("%w: %w", weather.ErrLookupFailed, err)
	case !errors.Is(err, weather.ErrLookupFailed):
		// ctx ended during backoff.
		return nil, fmt.Errorf("%w: %w", weather.ErrLookupFailed, err)
	default:
		return nil, err
	}
}

// lookupStatus labels one attempt: "ok", the HTTP status of a rejected
// request, or "error" when no status came back.
func lookupStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var se *weather.StatusError
	if errors.As(err, &se) {
		return strconv.Itoa(se.StatusCode)
	}
	return "error"
}

// countsAgainstBreaker reports whether a failed lookup says something about
// the provider's health. A 4xx is the caller's fault and a cancelled context
// means nobody is waiting for the answer any more.
func countsAgainstBreaker(err error) bool {
	return !weather.IsClientError(err) && !errors.Is(err, context.Canceled)
}

// IsRetryableLookup reports whether a failed lookup is worth another attempt:
// a transport error, or an attempt cut short by the HTTP client's own
// timeout. [Retry] stops by itself once the caller's context has ended, so a
// deadline seen here belongs to the attempt.
func IsRetryableLookup(err error) bool {
	return IsTransportError(err) || errors.Is(err, context.DeadlineExceeded)
}

// BreakerState reports the state of the breaker guarding the provider.
func (g *GuardedWeather) BreakerState() State {
	return g.breaker.State()
}
