// Package mock provides a scripted test double for the assistant.Service
// interface.
//
// GetRun returns the entries of Runs in order and repeats the last one once
// the script is exhausted, which is enough to drive a run through
// queued → requires_action → in_progress → completed in tests:
//
//	svc := &mock.Service{
//	    Runs: []*types.Run{
//	        {ID: "run_1", Status: types.RunStatusInProgress},
//	        {ID: "run_1", Status: types.RunStatusCompleted},
//	    },
//	    Messages: []types.ThreadMessage{...},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/Den9mn/novi-weather/pkg/provider/assistant"
	"github.com/Den9mn/novi-weather/pkg/types"
)

var _ assistant.Service = (*Service)(nil)

// Default identifiers used when the script does not set them.
const (
	DefaultThreadID = "thread_mock"
	DefaultRunID    = "run_mock"
)

// MessageCall records a CreateMessage invocation.
type MessageCall struct {
	ThreadID string
	Message  types.Message
}

// RunCall records a CreateRun invocation.
type RunCall struct {
	ThreadID    string
	AssistantID string
}

// SubmitCall records a SubmitToolOutputs invocation.
type SubmitCall struct {
	ThreadID string
	RunID    string
	Outputs  []types.ToolOutput
}

// ListCall records a ListMessages invocation.
type ListCall struct {
	ThreadID string
	Options  assistant.ListOptions
}

// Service is a mock implementation of assistant.Service.
type Service struct {
	mu sync.Mutex

	// ThreadID is returned by CreateThread. Defaults to DefaultThreadID.
	ThreadID string

	// CreatedRun is returned by CreateRun. Defaults to a queued run with
	// DefaultRunID.
	CreatedRun *types.Run

	// Runs is the GetRun script. The last entry repeats.
	Runs []*types.Run

	// GetRunFunc, if set, takes precedence over Runs. n is the zero-based
	// index of the GetRun call.
	GetRunFunc func(ctx context.Context, threadID, runID string, n int) (*types.Run, error)

	// SubmitResult is returned by SubmitToolOutputs. Defaults to a queued run
	// carrying the submitted run id.
	SubmitResult *types.Run

	// Messages is returned by ListMessages, already in the requested order.
	Messages []types.ThreadMessage

	// Errors injected per operation.
	CreateThreadErr  error
	CreateMessageErr error
	CreateRunErr     error
	SubmitErr        error
	ListErr          error

	// Recorded calls.
	CreateThreadCalls int
	MessageCalls      []MessageCall
	RunCalls          []RunCall
	GetRunCalls       int
	SubmitCalls       []SubmitCall
	ListCalls         []ListCall
}

// CreateThread implements assistant.Service.
func (s *Service) CreateThread(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateThreadCalls++
	if s.CreateThreadErr != nil {
		return "", s.CreateThreadErr
	}
	if s.ThreadID == "" {
		return DefaultThreadID, nil
	}
	return s.ThreadID, nil
}

// CreateMessage implements assistant.Service.
func (s *Service) CreateMessage(_ context.Context, threadID string, msg types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MessageCalls = append(s.MessageCalls, MessageCall{ThreadID: threadID, Message: msg})
	return s.CreateMessageErr
}

// CreateRun implements assistant.Service.
func (s *Service) CreateRun(_ context.Context, threadID, assistantID string) (*types.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RunCalls = append(s.RunCalls, RunCall{ThreadID: threadID, AssistantID: assistantID})
	if s.CreateRunErr != nil {
		return nil, s.CreateRunErr
	}
	if s.CreatedRun != nil {
		r := *s.CreatedRun
		return &r, nil
	}
	return &types.Run{ID: DefaultRunID, ThreadID: threadID, Status: types.RunStatusQueued}, nil
}

// GetRun implements assistant.Service.
func (s *Service) GetRun(ctx context.Context, threadID, runID string) (*types.Run, error) {
	s.mu.Lock()
	n := s.GetRunCalls
	s.GetRunCalls++
	fn := s.GetRunFunc
	var next *types.Run
	if fn == nil && len(s.Runs) > 0 {
		idx := min(n, len(s.Runs)-1)
		next = s.Runs[idx]
	}
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, threadID, runID, n)
	}
	if next == nil {
		return &types.Run{ID: runID, ThreadID: threadID, Status: types.RunStatusCompleted}, nil
	}
	r := *next
	return &r, nil
}

// SubmitToolOutputs implements assistant.Service.
func (s *Service) SubmitToolOutputs(_ context.Context, threadID, runID string, outputs []types.ToolOutput) (*types.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]types.ToolOutput, len(outputs))
	copy(cp, outputs)
	s.SubmitCalls = append(s.SubmitCalls, SubmitCall{ThreadID: threadID, RunID: runID, Outputs: cp})
	if s.SubmitErr != nil {
		return nil, s.SubmitErr
	}
	if s.SubmitResult != nil {
		r := *s.SubmitResult
		return &r, nil
	}
	return &types.Run{ID: runID, ThreadID: threadID, Status: types.RunStatusQueued}, nil
}

// ListMessages implements assistant.Service.
func (s *Service) ListMessages(_ context.Context, threadID string, opts assistant.ListOptions) ([]types.ThreadMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListCalls = append(s.ListCalls, ListCall{ThreadID: threadID, Options: opts})
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	msgs := s.Messages
	if opts.Limit > 0 && len(msgs) > opts.Limit {
		msgs = msgs[:opts.Limit]
	}
	out := make([]types.ThreadMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Submissions returns a snapshot of the recorded SubmitToolOutputs calls.
func (s *Service) Submissions() []SubmitCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SubmitCall, len(s.SubmitCalls))
	copy(out, s.SubmitCalls)
	return out
}

// Polls returns how many times GetRun was called.
func (s *Service) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.GetRunCalls
}

// TextMessage builds a single-block text message with the given role.
func TextMessage(id string, role types.Role, text string) types.ThreadMessage {
	return types.ThreadMessage{
		ID:      id,
		Role:    role,
		Content: []types.ContentBlock{{Type: types.ContentBlockText, Text: text}},
	}
}
