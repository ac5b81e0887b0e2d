// Package api serves the public HTTP endpoints:
//
//   - POST /api/chat: {message?} → 200 {reply} | 400 {error} | 500 {error}
//   - GET /api/events: 200 {events} | 500 {error}; only registered when an
//     events feed is configured.
//
// Error bodies never carry upstream detail; it is logged instead.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Den9mn/novi-weather/internal/chat"
	"github.com/Den9mn/novi-weather/internal/events"
	"github.com/Den9mn/novi-weather/internal/observe"
)

// maxRequestBytes caps the chat request body.
const maxRequestBytes = 64 << 10

// Chatter runs one chat. *chat.Orchestrator implements it.
type Chatter interface {
	Chat(ctx context.Context, message string) (*chat.Result, error)
}

// EventLister lists upcoming events. *events.Feed implements it.
type EventLister interface {
	Upcoming(ctx context.Context) ([]events.Event, error)
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the success body of POST /api/chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// EventsResponse is the success body of GET /api/events.
type EventsResponse struct {
	Events []events.Event `json:"events"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Option configures a Handler.
type Option func(*Handler)

// WithEvents enables GET /api/events.
func WithEvents(e EventLister) Option {
	return func(h *Handler) { h.events = e }
}

// WithLogger sets the base logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// Handler serves the public API.
type Handler struct {
	chat           Chatter
	events         EventLister
	defaultMessage string
	log            *slog.Logger
}

// New returns a Handler. defaultMessage replaces an empty or missing chat
// message.
func New(c Chatter, defaultMessage string, opts ...Option) *Handler {
	h := &Handler{chat: c, defaultMessage: defaultMessage}
	for _, o := range opts {
		o(h)
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	h.log = h.log.With("component", "api")
	return h
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.Chat)
	if h.events != nil {
		mux.HandleFunc("GET /api/events", h.Events)
	}
}

// Chat handles POST /api/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	log := observe.LoggerFrom(r.Context(), h.log)

	req, err := decodeChatRequest(r)
	if err != nil {
		log.Info("rejecting chat request", "err", err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	msg := req.Message
	if strings.TrimSpace(msg) == "" {
		msg = h.defaultMessage
	}

	res, err := h.chat.Chat(r.Context(), msg)
	if err != nil {
		// The orchestrator already logged the cause.
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: chat.ReasonText(err)})
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Reply: res.Reply})
}

// Events handles GET /api/events.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	evs, err := h.events.Upcoming(r.Context())
	if err != nil {
		observe.LoggerFrom(r.Context(), h.log).Error("listing events failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "events unavailable"})
		return
	}
	if evs == nil {
		evs = []events.Event{}
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: evs})
}

// decodeChatRequest reads the body. An empty body is a request without a
// message.
func decodeChatRequest(r *http.Request) (ChatRequest, error) {
	var req ChatRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		return req, err
	}
	if len(body) > maxRequestBytes {
		return req, errors.New("request body too large")
	}
	if strings.TrimSpace(string(body)) == "" {
		return req, nil
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, err
	}
	return req, nil
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}
