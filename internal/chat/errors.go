package chat

import (
	"errors"
	"fmt"

	"github.com/Den9mn/novi-weather/pkg/provider/weather"
)

// Failure reasons. Every error returned by [Orchestrator.Chat] is a *[Failure]
// whose Reason is one of these.
var (
	ErrThreadCreateFailed      = errors.New("thread create failed")
	ErrMessageCreateFailed     = errors.New("message create failed")
	ErrRunCreateFailed         = errors.New("run create failed")
	ErrRunRetrievalFailed      = errors.New("run retrieval failed")
	ErrRunTimedOut             = errors.New("run timed out")
	ErrRunFailed               = errors.New("run failed")
	ErrUnsupportedToolCall     = errors.New("unsupported tool call")
	ErrSubmitToolOutputsFailed = errors.New("submit tool outputs failed")
	ErrListMessagesFailed      = errors.New("list messages failed")
	ErrCancelled               = errors.New("cancelled")
)

// ErrCapabilityLookupFailed marks a failed weather lookup. It never aborts a
// chat on its own; it shows up in [Result.Conditions] while the tool call is
// answered with an error marker.
var ErrCapabilityLookupFailed = weather.ErrLookupFailed

// reasons lists every abort reason in match priority order.
var reasons = []error{
	ErrCancelled,
	ErrThreadCreateFailed,
	ErrMessageCreateFailed,
	ErrRunCreateFailed,
	ErrRunRetrievalFailed,
	ErrRunTimedOut,
	ErrRunFailed,
	ErrUnsupportedToolCall,
	ErrSubmitToolOutputsFailed,
	ErrListMessagesFailed,
}

// Failure is the error returned when a chat aborts.
type Failure struct {
	// Reason is one of the Err* sentinels of this package.
	Reason error

	// State is the state the orchestration was in when it failed.
	State State

	// Err is the underlying cause. It may be nil.
	Err error
}

// Error implements error.
func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("chat: %s in state %s", f.Reason, f.State)
	}
	return fmt.Sprintf("chat: %s in state %s: %v", f.Reason, f.State, f.Err)
}

// Unwrap lets errors.Is match both the reason and the cause.
func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Reason}
	}
	return []error{f.Reason, f.Err}
}

// ReasonText returns the opaque, caller-safe description of err: the reason
// text of a *[Failure], or a generic message for anything else.
func ReasonText(err error) string {
	var f *Failure
	if errors.As(err, &f) && f.Reason != nil {
		return f.Reason.Error()
	}
	return "internal error"
}

// classify picks the abort reason carried by err, falling back to def.
func classify(err, def error) error {
	for _, r := range reasons {
		if errors.Is(err, r) {
			return r
		}
	}
	return def
}
