// Package chat drives one conversation with a hosted assistant per request:
// create a thread, add the user message, start a run, poll it, answer its
// tool calls, and extract the reply.
//
// The flow is linear. Any failed step aborts the chat with a *[Failure];
// nothing is retried except idempotent status retrievals on transport errors.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Den9mn/novi-weather/internal/observe"
	"github.com/Den9mn/novi-weather/internal/tools"
	"github.com/Den9mn/novi-weather/pkg/provider/assistant"
	"github.com/Den9mn/novi-weather/pkg/types"
)

// NoReplyPlaceholder is the reply when the newest thread message carries no
// text block.
const NoReplyPlaceholder = "No reply received from assistant."

// DefaultMessageLimit is the number of messages fetched for reply extraction.
const DefaultMessageLimit = 10

// Config holds the orchestrator settings.
type Config struct {
	// AssistantID identifies the remote assistant that runs are started for.
	AssistantID string

	// MessageLimit caps the final message listing. Zero means
	// DefaultMessageLimit.
	MessageLimit int

	// Poll bounds the status loop.
	Poll PollerConfig
}

// Result is a successful chat.
type Result struct {
	Reply    string
	ThreadID string
	RunID    string

	// Polls is the number of status retrievals.
	Polls int

	// Submissions is the number of tool output batches submitted.
	Submissions int

	// Conditions lists tool failures that were answered with an error marker.
	Conditions []error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the wall clock used by the poll loop.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the base logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithProviderName sets the provider label of the assistant call metrics.
// Defaults to "assistant".
func WithProviderName(name string) Option {
	return func(o *Orchestrator) { o.provider = name }
}

// Orchestrator runs chats against an [assistant.Service].
//
// It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	svc          assistant.Service
	assistantID  string
	messageLimit int

	poller     *Poller
	dispatcher *Dispatcher

	clock    Clock
	metrics  *observe.Metrics
	log      *slog.Logger
	provider string
}

// New builds an Orchestrator.
func New(svc assistant.Service, registry *tools.Registry, cfg Config, opts ...Option) (*Orchestrator, error) {
	if svc == nil {
		return nil, errors.New("chat: assistant service must not be nil")
	}
	if cfg.AssistantID == "" {
		return nil, errors.New("chat: assistant id must not be empty")
	}
	if cfg.MessageLimit < 0 {
		return nil, errors.New("chat: message limit must not be negative")
	}
	if cfg.MessageLimit == 0 {
		cfg.MessageLimit = DefaultMessageLimit
	}

	o := &Orchestrator{
		svc:          svc,
		assistantID:  cfg.AssistantID,
		messageLimit: cfg.MessageLimit,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.clock == nil {
		o.clock = RealClock()
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	o.log = o.log.With("component", "chat")
	if o.provider == "" {
		o.provider = "assistant"
	}
	o.svc = &meteredService{inner: svc, provider: o.provider, metrics: o.metrics}

	var err error
	if o.poller, err = NewPoller(o.svc, cfg.Poll, o.clock, o.metrics, o.log); err != nil {
		return nil, err
	}
	if o.dispatcher, err = NewDispatcher(registry, o.metrics, o.log); err != nil {
		return nil, err
	}
	return o, nil
}

// chatRun is the per-request state of one orchestration.
type chatRun struct {
	state  State
	result Result
	log    *slog.Logger
}

// Chat sends message to a fresh thread and returns the assistant's reply.
// The message is sent as given; choosing a fallback for an empty message is
// the caller's job.
//
// A non-nil error is always a *[Failure].
func (o *Orchestrator) Chat(ctx context.Context, message string) (*Result, error) {
	start := o.clock.Now()
	o.metrics.ActiveChats.Add(ctx, 1)
	defer o.metrics.ActiveChats.Add(ctx, -1)

	ctx, span := observe.StartSpan(ctx, "chat.orchestrate")
	defer span.End()

	cr := &chatRun{state: StateNew, log: observe.LoggerFrom(ctx, o.log)}
	if id := observe.RequestID(ctx); id != "" {
		cr.log = cr.log.With("request_id", id)
	}

	res, err := o.run(ctx, cr, message)

	outcome := "ok"
	if err != nil {
		outcome = ReasonText(err)
		observe.FailSpan(span, err)
		cr.log.Error("chat failed", "err", err)
	} else {
		cr.log.Info("chat completed",
			"polls", res.Polls,
			"submissions", res.Submissions,
			"conditions", len(res.Conditions),
		)
	}
	span.SetAttributes(attribute.String("chat.outcome", outcome))
	o.metrics.RecordChat(ctx, outcome, o.clock.Now().Sub(start).Seconds())
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, cr *chatRun, message string) (*Result, error) {
	// New → Created
	threadID, err := step(ctx, "chat.create_thread", func(ctx context.Context) (string, error) {
		return o.svc.CreateThread(ctx)
	})
	if err != nil {
		return nil, cr.fail(ctx, ErrThreadCreateFailed, err)
	}
	cr.state = StateCreated
	cr.result.ThreadID = threadID
	cr.log = cr.log.With("thread_id", threadID)

	// Created → MessageAdded
	_, err = step(ctx, "chat.create_message", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.svc.CreateMessage(ctx, threadID, types.Message{Role: types.RoleUser, Content: message})
	})
	if err != nil {
		return nil, cr.fail(ctx, ErrMessageCreateFailed, err)
	}
	cr.state = StateMessageAdded

	// MessageAdded → RunStarted
	run, err := step(ctx, "chat.create_run", func(ctx context.Context) (*types.Run, error) {
		return o.svc.CreateRun(ctx, threadID, o.assistantID)
	})
	if err != nil {
		return nil, cr.fail(ctx, ErrRunCreateFailed, err)
	}
	if run == nil || run.ID == "" {
		return nil, cr.fail(ctx, ErrRunCreateFailed, errors.New("service returned no run id"))
	}
	runID := run.ID
	cr.state = StateRunStarted
	cr.result.RunID = runID
	cr.log = cr.log.With("run_id", runID)
	cr.log.Debug("run started", "status", run.Status)

	// Polling ⇄ Dispatching
	budget := &Budget{}
	for {
		cr.state = StatePolling
		run, err = step(ctx, "chat.poll", func(ctx context.Context) (*types.Run, error) {
			return o.poller.Await(ctx, threadID, runID, budget)
		})
		cr.result.Polls = budget.Polls()
		if err != nil {
			return nil, cr.fail(ctx, ErrRunRetrievalFailed, err)
		}

		if run.Status.IsSucceeded() {
			break
		}
		if run.Status.IsTerminal() {
			return nil, cr.fail(ctx, ErrRunFailed, runFailure(run))
		}

		cr.state = StateDispatching
		d, err := step(ctx, "chat.dispatch", func(ctx context.Context) (*Dispatch, error) {
			return o.dispatcher.Resolve(ctx, run)
		})
		if err != nil {
			return nil, cr.fail(ctx, ErrSubmitToolOutputsFailed, err)
		}
		cr.result.Conditions = append(cr.result.Conditions, d.Conditions...)

		_, err = step(ctx, "chat.submit_tool_outputs", func(ctx context.Context) (*types.Run, error) {
			return o.svc.SubmitToolOutputs(ctx, threadID, runID, d.Outputs)
		})
		if err != nil {
			return nil, cr.fail(ctx, ErrSubmitToolOutputsFailed, err)
		}
		cr.result.Submissions++
		cr.log.Debug("tool outputs submitted", "outputs", len(d.Outputs))
	}
	cr.state = StateCompleted

	// Completed → ReplyExtracted
	msgs, err := step(ctx, "chat.list_messages", func(ctx context.Context) ([]types.ThreadMessage, error) {
		return o.svc.ListMessages(ctx, threadID, assistant.ListOptions{
			Limit: o.messageLimit,
			Order: assistant.OrderDesc,
		})
	})
	if err != nil {
		return nil, cr.fail(ctx, ErrListMessagesFailed, err)
	}
	cr.result.Reply = extractReply(msgs)
	cr.state = StateReplyExtracted

	res := cr.result
	return &res, nil
}

// fail builds the Failure for the current state. A cancelled ctx always
// yields ErrCancelled; otherwise a reason already carried by err wins over
// def.
func (cr *chatRun) fail(ctx context.Context, def, err error) error {
	reason := classify(err, def)
	if ctx.Err() != nil {
		reason = ErrCancelled
	}
	f := &Failure{Reason: reason, State: cr.state, Err: err}
	cr.state = StateFailed
	return f
}

// step runs fn inside a child span.
func step[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := observe.StartSpan(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	v, err := fn(ctx)
	observe.FailSpan(span, err)
	return v, err
}

func runFailure(run *types.Run) error {
	if le := run.LastError; le != nil {
		return fmt.Errorf("run ended with status %q: %s: %s", run.Status, le.Code, le.Message)
	}
	return fmt.Errorf("run ended with status %q", run.Status)
}

// extractReply returns the first text block of the newest message.
func extractReply(newestFirst []types.ThreadMessage) string {
	if len(newestFirst) == 0 {
		return NoReplyPlaceholder
	}
	if text, ok := newestFirst[0].FirstText(); ok {
		return text
	}
	return NoReplyPlaceholder
}
