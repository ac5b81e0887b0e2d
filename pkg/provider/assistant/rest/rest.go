// Package rest provides an assistant.Service that talks to the OpenAI
// Assistants v2 endpoints with hand-built JSON requests over net/http.
//
// It is the SDK-free counterpart of the openai adapter and is useful against
// compatible gateways that the SDK does not target. Every request carries a
// bearer token, the "OpenAI-Beta: assistants=v2" header, and a fresh
// X-Client-Request-Id for correlation in the provider's logs.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/Den9mn/novi-weather/pkg/provider/assistant"
	"github.com/Den9mn/novi-weather/pkg/types"
)

// DefaultBaseURL is the OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1"

const (
	betaHeader    = "OpenAI-Beta"
	betaValue     = "assistants=v2"
	requestIDHdr  = "X-Client-Request-Id"
	maxBodyBytes  = 4 << 20
	contentTypeJS = "application/json"
)

var _ assistant.Service = (*Client)(nil)

// Client implements assistant.Service over raw HTTP.
//
// Client is safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// config holds optional configuration collected from functional options.
type config struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// Option is a functional option for Client.
type Option func(*config)

// WithBaseURL overrides the default API root.
func WithBaseURL(u string) Option {
	return func(c *config) {
		c.baseURL = u
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// New constructs a Client. apiKey must not be empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("rest: apiKey must not be empty")
	}
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	baseURL := cfg.baseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
	}, nil
}

// ── Wire types ───────────────────────────────────────────────────────────────

type threadResponse struct {
	ID string `json:"id"`
}

type messageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type runRequest struct {
	AssistantID string `json:"assistant_id"`
}

type runResponse struct {
	ID             string `json:"id"`
	ThreadID       string `json:"thread_id"`
	Status         string `json:"status"`
	RequiredAction *struct {
		Type              string `json:"type"`
		SubmitToolOutputs struct {
			ToolCalls []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"submit_tool_outputs"`
	} `json:"required_action"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

type toolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

type submitRequest struct {
	ToolOutputs []toolOutput `json:"tool_outputs"`
}

type messageList struct {
	Data []struct {
		ID      string `json:"id"`
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text *struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// ── assistant.Service ────────────────────────────────────────────────────────

// CreateThread implements assistant.Service.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var out threadResponse
	if err := c.do(ctx, "create thread", http.MethodPost, "/threads", struct{}{}, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("rest: create thread: response has no id")
	}
	return out.ID, nil
}

// CreateMessage implements assistant.Service.
func (c *Client) CreateMessage(ctx context.Context, threadID string, msg types.Message) error {
	body := messageRequest{Role: string(msg.Role), Content: msg.Content}
	return c.do(ctx, "create message", http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", body, nil)
}

// CreateRun implements assistant.Service.
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (*types.Run, error) {
	var out runResponse
	path := "/threads/" + url.PathEscape(threadID) + "/runs"
	if err := c.do(ctx, "create run", http.MethodPost, path, runRequest{AssistantID: assistantID}, &out); err != nil {
		return nil, err
	}
	return toRun(out, threadID), nil
}

// GetRun implements assistant.Service.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*types.Run, error) {
	var out runResponse
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)
	if err := c.do(ctx, "retrieve run", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return toRun(out, threadID), nil
}

// SubmitToolOutputs implements assistant.Service.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []types.ToolOutput) (*types.Run, error) {
	req := submitRequest{ToolOutputs: make([]toolOutput, len(outputs))}
	for i, o := range outputs {
		req.ToolOutputs[i] = toolOutput{ToolCallID: o.ToolCallID, Output: o.Output}
	}
	var out runResponse
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID) + "/submit_tool_outputs"
	if err := c.do(ctx, "submit tool outputs", http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return toRun(out, threadID), nil
}

// ListMessages implements assistant.Service.
func (c *Client) ListMessages(ctx context.Context, threadID string, opts assistant.ListOptions) ([]types.ThreadMessage, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Order != "" {
		q.Set("order", string(opts.Order))
	}
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out messageList
	if err := c.do(ctx, "list messages", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	msgs := make([]types.ThreadMessage, 0, len(out.Data))
	for _, m := range out.Data {
		tm := types.ThreadMessage{ID: m.ID, Role: types.Role(m.Role)}
		for _, b := range m.Content {
			block := types.ContentBlock{Type: b.Type}
			if b.Text != nil {
				block.Text = b.Text.Value
			}
			tm.Content = append(tm.Content, block)
		}
		msgs = append(msgs, tm)
	}
	return msgs, nil
}

// ── HTTP plumbing ────────────────────────────────────────────────────────────

// do sends one JSON request and decodes the response into out (when non-nil).
// Non-2xx responses become *assistant.StatusError.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("rest: %s: encode request: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("rest: %s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set(betaHeader, betaValue)
	req.Header.Set(requestIDHdr, uuid.NewString())
	req.Header.Set("Accept", contentTypeJS)
	if in != nil {
		req.Header.Set("Content-Type", contentTypeJS)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rest: %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("rest: %s: read body: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &assistant.StatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    gjson.GetBytes(raw, "error.message").String(),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("rest: %s: decode response: %w", op, err)
	}
	return nil
}

// toRun converts the wire run into the shared type. threadID fills in the
// back-reference when the service omits it.
func toRun(r runResponse, threadID string) *types.Run {
	run := &types.Run{
		ID:       r.ID,
		ThreadID: r.ThreadID,
		Status:   types.RunStatus(r.Status),
	}
	if run.ThreadID == "" {
		run.ThreadID = threadID
	}
	if ra := r.RequiredAction; ra != nil {
		action := &types.RequiredAction{Type: ra.Type}
		for _, tc := range ra.SubmitToolOutputs.ToolCalls {
			action.ToolCalls = append(action.ToolCalls, types.ToolCall{
				ID:        tc.ID,
				Type:      tc.Type,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		run.RequiredAction = action
	}
	if le := r.LastError; le != nil {
		run.LastError = &types.RunError{Code: le.Code, Message: le.Message}
	}
	return run
}
