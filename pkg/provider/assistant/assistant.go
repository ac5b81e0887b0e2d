// Package assistant defines the Service interface for hosted
// conversational-assistant backends that expose threads, messages, and runs.
//
// A Service wraps the remote API's wire mechanics (SDK or raw HTTP) so that
// the chat orchestrator drives exactly one normative protocol regardless of
// which adapter is configured. Adapters live in sub-packages:
//
//   - openai: the official openai-go SDK.
//   - rest:   hand-built JSON requests against the same endpoints.
//   - mock:   a scripted test double.
//
// Implementations must be safe for concurrent use. Adapters must not retry
// non-idempotent calls (CreateThread, CreateMessage, CreateRun,
// SubmitToolOutputs) on their own.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/Den9mn/novi-weather/pkg/types"
)

// Order selects the sort order of a message listing.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ListOptions controls a message listing.
type ListOptions struct {
	// Limit caps the number of messages returned. Zero means the service
	// default.
	Limit int

	// Order is the sort order by creation time. Empty means the service
	// default.
	Order Order
}

// Service is the remote conversation/run API.
type Service interface {
	// CreateThread allocates a new, empty thread and returns its id.
	CreateThread(ctx context.Context) (string, error)

	// CreateMessage appends msg to the thread.
	CreateMessage(ctx context.Context, threadID string, msg types.Message) error

	// CreateRun starts the assistant against the thread. The returned run may
	// lack an id if the service misbehaves; callers must check.
	CreateRun(ctx context.Context, threadID, assistantID string) (*types.Run, error)

	// GetRun retrieves the current snapshot of a run. It is idempotent.
	GetRun(ctx context.Context, threadID, runID string) (*types.Run, error)

	// SubmitToolOutputs answers every pending tool call of the run in one
	// batch.
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []types.ToolOutput) (*types.Run, error)

	// ListMessages returns thread messages in the requested order.
	ListMessages(ctx context.Context, threadID string, opts ListOptions) ([]types.ThreadMessage, error)
}

// StatusError is returned by adapters when the service answers with a
// non-2xx status.
type StatusError struct {
	// Op names the failed operation, e.g. "create run".
	Op string

	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the service-supplied error message, if any.
	Message string

	// Err is the underlying SDK error, if any.
	Err error
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s failed: %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %d", e.Op, e.StatusCode)
}

// Unwrap returns the underlying SDK error.
func (e *StatusError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a transport-level failure (connection
// refused, reset, DNS, timeouts) that is safe to retry on idempotent calls.
// Service status errors and context cancellation are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return false
	}
	var ne net.Error
	return errors.As(err, &ne)
}
