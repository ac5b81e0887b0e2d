package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Den9mn/novi-weather/internal/observe"
	"github.com/Den9mn/novi-weather/internal/resilience"
	"github.com/Den9mn/novi-weather/pkg/provider/assistant"
	"github.com/Den9mn/novi-weather/pkg/types"
)

// Default poll parameters.
const (
	DefaultPollInterval = 1200 * time.Millisecond
	DefaultPollTimeout  = 60 * time.Second
)

// PollerConfig bounds the status loop.
type PollerConfig struct {
	// Interval is the wait between two status retrievals.
	Interval time.Duration

	// Timeout is the wall-clock budget of one run, measured on the Clock from
	// the first retrieval. Zero disables the time bound.
	Timeout time.Duration

	// MaxPolls caps the number of retrievals of one run. Zero disables the
	// count bound.
	MaxPolls int

	// Retry applies to each retrieval. Only transport errors are retried.
	Retry resilience.RetryPolicy
}

// Validate reports configuration errors.
func (c PollerConfig) Validate() error {
	var errs []error
	if c.Interval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("poll timeout must not be negative"))
	}
	if c.MaxPolls < 0 {
		errs = append(errs, errors.New("max polls must not be negative"))
	}
	if c.Timeout == 0 && c.MaxPolls == 0 {
		errs = append(errs, errors.New("at least one of poll timeout and max polls must be set"))
	}
	return errors.Join(errs...)
}

// Budget tracks how much of the poll bounds a run has used. One Budget
// spans every Await call of the same run, so a run that keeps asking for
// tool output still times out.
type Budget struct {
	start   time.Time
	started bool
	polls   int
}

// Polls returns the number of retrievals charged so far.
func (b *Budget) Polls() int { return b.polls }

// Poller retrieves run status until the run is actionable or terminal.
//
// Poller is safe for concurrent use; per-run state lives in [Budget].
type Poller struct {
	svc     assistant.Service
	cfg     PollerConfig
	clock   Clock
	metrics *observe.Metrics
	log     *slog.Logger
}

// NewPoller builds a Poller. cfg must pass Validate.
func NewPoller(svc assistant.Service, cfg PollerConfig, clock Clock, metrics *observe.Metrics, log *slog.Logger) (*Poller, error) {
	if svc == nil {
		return nil, errors.New("chat: poller needs an assistant service")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	if clock == nil {
		clock = RealClock()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = assistant.IsTransient
	}
	if cfg.Retry.After == nil {
		cfg.Retry.After = clock.After
	}
	if cfg.Retry.Name == "" {
		cfg.Retry.Name = "retrieve run"
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = log
	}
	return &Poller{svc: svc, cfg: cfg, clock: clock, metrics: metrics, log: log}, nil
}

// Await polls the run until its status is actionable (requires_action) or
// terminal, and returns that snapshot. budget may be nil, in which case the
// bounds apply to this call alone.
//
// Errors wrap [ErrRunRetrievalFailed], [ErrRunTimedOut] or [ErrCancelled].
func (p *Poller) Await(ctx context.Context, threadID, runID string, budget *Budget) (*types.Run, error) {
	if budget == nil {
		budget = &Budget{}
	}
	if !budget.started {
		budget.start = p.clock.Now()
		budget.started = true
	} else if err := p.exhausted(budget, types.RunStatusRequiresAction); err != nil {
		// Re-entry after a tool output submission.
		return nil, err
	}

	for {
		run, err := p.retrieve(ctx, threadID, runID, budget)
		if err != nil {
			return nil, err
		}
		budget.polls++
		p.metrics.RecordRunPoll(ctx, string(run.Status))

		if run.Status.IsActionable() || run.Status.IsTerminal() {
			return run, nil
		}
		if err := p.exhausted(budget, run.Status); err != nil {
			return nil, err
		}

		p.log.Debug("run not ready",
			"thread_id", threadID,
			"run_id", runID,
			"status", run.Status,
			"polls", budget.polls,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		case <-p.clock.After(p.cfg.Interval):
		}
	}
}

// exhausted returns an ErrRunTimedOut error once either bound is used up.
func (p *Poller) exhausted(budget *Budget, last types.RunStatus) error {
	if p.cfg.MaxPolls > 0 && budget.polls >= p.cfg.MaxPolls {
		return fmt.Errorf("%w: status %q after %d polls", ErrRunTimedOut, last, budget.polls)
	}
	elapsed := p.clock.Now().Sub(budget.start)
	if p.cfg.Timeout > 0 && elapsed >= p.cfg.Timeout {
		return fmt.Errorf("%w: status %q after %s", ErrRunTimedOut, last, elapsed)
	}
	return nil
}

// retrieve fetches one snapshot. When a wall-clock bound is set, the call
// and its retries share the time left in the budget; running out surfaces as
// ErrRunTimedOut rather than a retrieval failure.
func (p *Poller) retrieve(ctx context.Context, threadID, runID string, budget *Budget) (*types.Run, error) {
	callCtx := ctx
	if p.cfg.Timeout > 0 {
		remaining := p.cfg.Timeout - p.clock.Now().Sub(budget.start)
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, remaining)
		defer cancel()
	}

	var run *types.Run
	err := resilience.Retry(callCtx, p.cfg.Retry, func(ctx context.Context) error {
		r, err := p.svc.GetRun(ctx, threadID, runID)
		if err != nil {
			return err
		}
		run = r
		return nil
	})
	switch {
	case ctx.Err() != nil:
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	case err != nil && callCtx.Err() != nil:
		return nil, fmt.Errorf("%w: retrieval still pending after %s: %w", ErrRunTimedOut, p.cfg.Timeout, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrRunRetrievalFailed, err)
	case run == nil:
		return nil, fmt.Errorf("%w: empty response", ErrRunRetrievalFailed)
	}
	return run, nil
}
