package resilience

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"
)

// Default retry parameters.
const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
)

// RetryPolicy configures [Retry]. Zero fields take defaults.
type RetryPolicy struct {
	// Name labels log lines, e.g. "retrieve run".
	Name string

	// MaxAttempts is the total number of calls including the first.
	// Default: 3.
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt. It doubles on
	// every further attempt up to MaxBackoff. Default: 200ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts. Default: 2s.
	MaxBackoff time.Duration

	// Retryable decides whether an error is worth another attempt. Nil means
	// [IsTransportError].
	Retryable func(error) bool

	// After overrides the timer source. Nil means time.After.
	After func(time.Duration) <-chan time.Time

	// Logger receives one line per retried failure. Nil means slog.Default().
	Logger *slog.Logger
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.Retryable == nil {
		p.Retryable = IsTransportError
	}
	if p.After == nil {
		p.After = time.After
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return p
}

// MaxElapsed returns the longest a [Retry] under p can take when every
// attempt is bounded by attempt: all attempts plus the backoff between them.
func (p RetryPolicy) MaxElapsed(attempt time.Duration) time.Duration {
	p = p.withDefaults()
	total := time.Duration(p.MaxAttempts) * attempt
	backoff := p.InitialBackoff
	for range p.MaxAttempts - 1 {
		total += backoff
		backoff = min(backoff*2, p.MaxBackoff)
	}
	return total
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. The last error is returned unchanged. If ctx ends
// while waiting between attempts, ctx.Err() is returned.
//
// fn must be idempotent.
func Retry(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) error {
	p := policy.withDefaults()
	backoff := p.InitialBackoff

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxAttempts || !p.Retryable(err) || ctx.Err() != nil {
			return err
		}

		p.Logger.Debug("retrying after transient error",
			"op", p.Name,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"backoff", backoff,
			"err", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.After(backoff):
		}

		backoff *= 2
		if backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
}

// IsTransportError reports whether err is a network-level failure such as a
// refused connection, a reset, a DNS error or a dial timeout. Context
// cancellation is not a transport error.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ne net.Error
	return errors.As(err, &ne)
}
