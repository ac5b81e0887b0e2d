// Package openai provides an assistant.Service backed by the OpenAI
// Assistants v2 API through the official openai-go SDK.
//
// The SDK's automatic retries are disabled: CreateThread, CreateMessage,
// CreateRun and SubmitToolOutputs are not idempotent, and retrying GetRun is
// the caller's decision.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Den9mn/novi-weather/pkg/provider/assistant"
	"github.com/Den9mn/novi-weather/pkg/types"
)

var _ assistant.Service = (*Client)(nil)

// Client implements assistant.Service using openai-go.
type Client struct {
	client oai.Client
}

// config holds optional configuration for the client.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	httpClient   *http.Client
}

// Option is a functional option for Client.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the HTTP client. It takes precedence over
// WithTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// New constructs a Client. apiKey must not be empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	switch {
	case cfg.httpClient != nil:
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	case cfg.timeout > 0:
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Client{client: oai.NewClient(reqOpts...)}, nil
}

// CreateThread implements assistant.Service.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	th, err := c.client.Beta.Threads.New(ctx, oai.BetaThreadNewParams{})
	if err != nil {
		return "", mapError("create thread", err)
	}
	if th.ID == "" {
		return "", errors.New("openai: create thread: response has no id")
	}
	return th.ID, nil
}

// CreateMessage implements assistant.Service.
func (c *Client) CreateMessage(ctx context.Context, threadID string, msg types.Message) error {
	role := oai.BetaThreadMessageNewParamsRoleUser
	if msg.Role == types.RoleAssistant {
		role = oai.BetaThreadMessageNewParamsRoleAssistant
	}
	_, err := c.client.Beta.Threads.Messages.New(ctx, threadID, oai.BetaThreadMessageNewParams{
		Role: role,
		Content: oai.BetaThreadMessageNewParamsContentUnion{
			OfString: oai.String(msg.Content),
		},
	})
	if err != nil {
		return mapError("create message", err)
	}
	return nil
}

// CreateRun implements assistant.Service.
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (*types.Run, error) {
	run, err := c.client.Beta.Threads.Runs.New(ctx, threadID, oai.BetaThreadRunNewParams{
		AssistantID: assistantID,
	})
	if err != nil {
		return nil, mapError("create run", err)
	}
	return convertRun(run, threadID), nil
}

// GetRun implements assistant.Service.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*types.Run, error) {
	run, err := c.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return nil, mapError("retrieve run", err)
	}
	return convertRun(run, threadID), nil
}

// SubmitToolOutputs implements assistant.Service.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []types.ToolOutput) (*types.Run, error) {
	params := oai.BetaThreadRunSubmitToolOutputsParams{
		ToolOutputs: make([]oai.BetaThreadRunSubmitToolOutputsParamsToolOutput, len(outputs)),
	}
	for i, o := range outputs {
		params.ToolOutputs[i] = oai.BetaThreadRunSubmitToolOutputsParamsToolOutput{
			ToolCallID: oai.String(o.ToolCallID),
			Output:     oai.String(o.Output),
		}
	}
	run, err := c.client.Beta.Threads.Runs.SubmitToolOutputs(ctx, threadID, runID, params)
	if err != nil {
		return nil, mapError("submit tool outputs", err)
	}
	return convertRun(run, threadID), nil
}

// ListMessages implements assistant.Service.
func (c *Client) ListMessages(ctx context.Context, threadID string, opts assistant.ListOptions) ([]types.ThreadMessage, error) {
	params := oai.BetaThreadMessageListParams{}
	if opts.Limit > 0 {
		params.Limit = oai.Int(int64(opts.Limit))
	}
	switch opts.Order {
	case assistant.OrderAsc:
		params.Order = oai.BetaThreadMessageListParamsOrderAsc
	case assistant.OrderDesc:
		params.Order = oai.BetaThreadMessageListParamsOrderDesc
	}

	page, err := c.client.Beta.Threads.Messages.List(ctx, threadID, params)
	if err != nil {
		return nil, mapError("list messages", err)
	}

	msgs := make([]types.ThreadMessage, 0, len(page.Data))
	for _, m := range page.Data {
		tm := types.ThreadMessage{ID: m.ID, Role: types.Role(m.Role)}
		for _, block := range m.Content {
			cb := types.ContentBlock{Type: block.Type}
			if block.Type == types.ContentBlockText {
				cb.Text = block.Text.Value
			}
			tm.Content = append(tm.Content, cb)
		}
		msgs = append(msgs, tm)
	}
	return msgs, nil
}

// convertRun maps an SDK run to the shared type.
func convertRun(r *oai.Run, threadID string) *types.Run {
	run := &types.Run{
		ID:       r.ID,
		ThreadID: r.ThreadID,
		Status:   types.RunStatus(r.Status),
	}
	if run.ThreadID == "" {
		run.ThreadID = threadID
	}

	ra := r.RequiredAction
	if ra.Type != "" || len(ra.SubmitToolOutputs.ToolCalls) > 0 {
		action := &types.RequiredAction{Type: string(ra.Type)}
		for _, tc := range ra.SubmitToolOutputs.ToolCalls {
			action.ToolCalls = append(action.ToolCalls, types.ToolCall{
				ID:        tc.ID,
				Type:      string(tc.Type),
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		run.RequiredAction = action
	}

	if le := r.LastError; le.Code != "" || le.Message != "" {
		run.LastError = &types.RunError{Code: string(le.Code), Message: le.Message}
	}
	return run
}

// mapError converts SDK API errors into *assistant.StatusError and wraps
// everything else with the operation name.
func mapError(op string, err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return &assistant.StatusError{
			Op:         op,
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	return fmt.Errorf("openai: %s: %w", op, err)
}
