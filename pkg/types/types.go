// Package types defines the shared types used across novi-weather packages.
//
// These types form the lingua franca between the assistant adapters, the
// weather provider, and the chat orchestrator. Each package keeps its own
// domain types; cross-cutting data structures live here to avoid circular
// imports.
package types

// Role identifies the author of a thread message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single outbound message appended to a thread before a run is
// started.
type Message struct {
	Role    Role
	Content string
}

// RunStatus is the lifecycle state of a run as reported by the remote
// assistant service.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusIncomplete     RunStatus = "incomplete"
	RunStatusExpired        RunStatus = "expired"
)

// IsActionable reports whether the run is blocked waiting for tool outputs.
func (s RunStatus) IsActionable() bool {
	return s == RunStatusRequiresAction
}

// IsSucceeded reports whether the run finished successfully.
func (s RunStatus) IsSucceeded() bool {
	return s == RunStatusCompleted
}

// IsTerminal reports whether no further progress is possible for the run.
// Completed counts as terminal; requires_action does not.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired, RunStatusIncomplete:
		return true
	}
	return false
}

// RequiredActionSubmitToolOutputs is the only required-action type the
// assistant service currently emits.
const RequiredActionSubmitToolOutputs = "submit_tool_outputs"

// Run is a snapshot of one execution of the assistant against a thread.
type Run struct {
	// ID is the server-issued run identifier. Empty means the service did not
	// return one.
	ID string

	// ThreadID is a non-owning back-reference to the thread the run belongs to.
	ThreadID string

	// Status is the run state at the time the snapshot was taken.
	Status RunStatus

	// RequiredAction is set when Status is requires_action.
	RequiredAction *RequiredAction

	// LastError carries the service-reported failure for failed runs.
	LastError *RunError
}

// PendingToolCalls returns the tool calls the run is waiting on, or nil.
func (r *Run) PendingToolCalls() []ToolCall {
	if r == nil || r.RequiredAction == nil {
		return nil
	}
	return r.RequiredAction.ToolCalls
}

// RequiredAction describes what the run needs before it can resume.
type RequiredAction struct {
	Type      string
	ToolCalls []ToolCall
}

// RunError is the failure detail reported for a run in a failed state.
type RunError struct {
	Code    string
	Message string
}

// ToolCall is a request from the assistant for externally computed
// information. Each call belongs to exactly one run and is resolved at most
// once.
type ToolCall struct {
	// ID correlates the call with its ToolOutput.
	ID string

	// Type is the call kind; "function" for function tools.
	Type string

	// Name is the function name, e.g. "get_weather".
	Name string

	// Arguments is the JSON-encoded argument object as produced by the model.
	// It may be malformed or empty.
	Arguments string
}

// ToolOutput is the result for one ToolCall. Outputs for one actionable state
// are submitted together.
type ToolOutput struct {
	ToolCallID string
	Output     string
}

// ThreadMessage is one entry in a thread transcript as returned by the
// assistant service.
type ThreadMessage struct {
	ID      string
	Role    Role
	Content []ContentBlock
}

// ContentBlockText is the content block type carrying plain text.
const ContentBlockText = "text"

// ContentBlock is one piece of a thread message's content.
type ContentBlock struct {
	// Type is the block kind, e.g. "text" or "image_file".
	Type string

	// Text is the block value when Type is "text".
	Text string
}

// FirstText returns the value of the first text-typed content block and
// whether one was found.
func (m ThreadMessage) FirstText() (string, bool) {
	for _, b := range m.Content {
		if b.Type == ContentBlockText {
			return b.Text, true
		}
	}
	return "", false
}

// WeatherReading is a read-only snapshot of current conditions for one
// location. Every field is optional; absent fields stay nil and are omitted
// from the JSON encoding rather than synthesised.
type WeatherReading struct {
	Location     *string  `json:"location,omitempty"`
	Country      *string  `json:"country,omitempty"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	Condition    *string  `json:"condition,omitempty"`
	Humidity     *int     `json:"humidity,omitempty"`
	WindKPH      *float64 `json:"wind_kph,omitempty"`
	FeelsLikeC   *float64 `json:"feelslike_c,omitempty"`
	Cloud        *int     `json:"cloud,omitempty"`
}
