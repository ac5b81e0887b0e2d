package chat

import (
	"context"
	"errors"
	"strconv"

	"github.com/Den9mn/novi-weather/internal/observe"
	"github.com/Den9mn/novi-weather/pkg/provider/assistant"
	"github.com/Den9mn/novi-weather/pkg/types"
)

var _ assistant.Service = (*meteredService)(nil)

// meteredService counts every call to the wrapped service in the provider
// request metrics, and every failed call in the provider error metrics. The
// kind label names the operation.
type meteredService struct {
	inner    assistant.Service
	provider string
	metrics  *observe.Metrics
}

func (m *meteredService) record(ctx context.Context, kind string, err error) {
	m.metrics.RecordProviderRequest(ctx, m.provider, kind, callStatus(err))
	if err != nil && !errors.Is(err, context.Canceled) {
		m.metrics.RecordProviderError(ctx, m.provider, kind)
	}
}

// callStatus labels a call: "ok", the HTTP status of a rejected request, or
// "error".
func callStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var se *assistant.StatusError
	if errors.As(err, &se) {
		return strconv.Itoa(se.StatusCode)
	}
	return "error"
}

func (m *meteredService) CreateThread(ctx context.Context) (string, error) {
	id, err := m.inner.CreateThread(ctx)
	m.record(ctx, "create_thread", err)
	return id, err
}

func (m *meteredService) CreateMessage(ctx context.Context, threadID string, msg types.Message) error {
	err := m.inner.CreateMessage(ctx, threadID, msg)
	m.record(ctx, "create_message", err)
	return err
}

func (m *meteredService) CreateRun(ctx context.Context, threadID, assistantID string) (*types.Run, error) {
	run, err := m.inner.CreateRun(ctx, threadID, assistantID)
	m.record(ctx, "create_run", err)
	return run, err
}

func (m *meteredService) GetRun(ctx context.Context, threadID, runID string) (*types.Run, error) {
	run, err := m.inner.GetRun(ctx, threadID, runID)
	m.record(ctx, "get_run", err)
	return run, err
}

func (m *meteredService) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []types.ToolOutput) (*types.Run, error) {
	run, err := m.inner.SubmitToolOutputs(ctx, threadID, runID, outputs)
	m.record(ctx, "submit_tool_outputs", err)
	return run, err
}

func (m *meteredService) ListMessages(ctx context.Context, threadID string, opts assistant.ListOptions) ([]types.ThreadMessage, error) {
	msgs, err := m.inner.ListMessages(ctx, threadID, opts)
	m.record(ctx, "list_messages", err)
	return msgs, err
}
