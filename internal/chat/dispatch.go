package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/Den9mn/novi-weather/internal/observe"
	"github.com/Den9mn/novi-weather/internal/tools"
	"github.com/Den9mn/novi-weather/pkg/types"
)

// Dispatch is the resolved answer set for one actionable run state.
type Dispatch struct {
	// Outputs holds exactly one output per distinct pending call id, in the
	// order the calls were listed.
	Outputs []types.ToolOutput

	// Conditions records handler failures that were answered with an error
	// marker instead of a result, e.g. a failed weather lookup.
	Conditions []error
}

// Dispatcher resolves pending tool calls through a tool registry.
type Dispatcher struct {
	registry *tools.Registry
	metrics  *observe.Metrics
	log      *slog.Logger
}

// NewDispatcher builds a Dispatcher over registry.
func NewDispatcher(registry *tools.Registry, metrics *observe.Metrics, log *slog.Logger) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("chat: dispatcher needs a tool registry")
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{registry: registry, metrics: metrics, log: log}, nil
}

// errorMarker is the output submitted for a call whose handler failed.
type errorMarker struct {
	Error string `json:"error"`
	Tool  string `json:"tool"`
}

// Resolve answers every pending tool call of run.
//
// The whole batch is validated before any handler runs: an unregistered tool
// name yields [ErrUnsupportedToolCall] and nothing is resolved, since a
// partial batch cannot be submitted. A required action of an unknown type,
// or one without calls, yields [ErrSubmitToolOutputsFailed]. Handler failures
// never abort the batch; they become error-marker outputs plus an entry in
// [Dispatch.Conditions]. Calls run sequentially.
func (d *Dispatcher) Resolve(ctx context.Context, run *types.Run) (*Dispatch, error) {
	if run == nil || run.RequiredAction == nil {
		return nil, fmt.Errorf("%w: run has no required action", ErrSubmitToolOutputsFailed)
	}
	if t := run.RequiredAction.Type; t != types.RequiredActionSubmitToolOutputs {
		return nil, fmt.Errorf("%w: unsupported required action %q", ErrSubmitToolOutputsFailed, t)
	}
	calls := run.PendingToolCalls()
	if len(calls) == 0 {
		return nil, fmt.Errorf("%w: required action lists no tool calls", ErrSubmitToolOutputsFailed)
	}

	type job struct {
		call types.ToolCall
		tool tools.Tool
	}
	jobs := make([]job, 0, len(calls))
	seen := make(map[string]struct{}, len(calls))
	for _, c := range calls {
		if c.ID == "" {
			return nil, fmt.Errorf("%w: tool call %q has no id", ErrSubmitToolOutputsFailed, c.Name)
		}
		if _, dup := seen[c.ID]; dup {
			d.log.Warn("duplicate tool call id in batch", "tool_call_id", c.ID, "tool", c.Name)
			continue
		}
		seen[c.ID] = struct{}{}

		t, err := d.registry.Lookup(c.Name)
		if err != nil {
			d.metrics.RecordToolCall(ctx, c.Name, "unsupported")
			return nil, fmt.Errorf("%w: call %s: %w", ErrUnsupportedToolCall, c.ID, err)
		}
		jobs = append(jobs, job{call: c, tool: t})
	}

	out := &Dispatch{Outputs: make([]types.ToolOutput, 0, len(jobs))}
	for _, j := range jobs {
		output, err := d.execute(ctx, j.tool, j.call)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
			}
			cond := fmt.Errorf("tool %s (call %s): %w", j.call.Name, j.call.ID, err)
			out.Conditions = append(out.Conditions, cond)
			d.log.Warn("tool call failed; submitting error marker",
				"tool", j.call.Name,
				"tool_call_id", j.call.ID,
				"err", err,
			)
			output = marker(j.call.Name, err)
		}
		out.Outputs = append(out.Outputs, types.ToolOutput{ToolCallID: j.call.ID, Output: output})
	}
	return out, nil
}

func (d *Dispatcher) execute(ctx context.Context, t tools.Tool, call types.ToolCall) (string, error) {
	ctx, span := observe.StartSpan(ctx, "chat.tool."+call.Name)
	defer span.End()

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	start := time.Now()
	output, err := t.Handler(ctx, call.Arguments)
	d.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("tool", call.Name)))

	status := "ok"
	if err != nil {
		status = "error"
		observe.FailSpan(span, err)
	}
	d.metrics.RecordToolCall(ctx, call.Name, status)
	return output, err
}

func marker(tool string, err error) string {
	b, mErr := json.Marshal(errorMarker{Error: err.Error(), Tool: tool})
	if mErr != nil {
		return `{"error":"tool failed"}`
	}
	return string(b)
}
