// Package weathertool provides the "get_weather" tool, which resolves a
// location to current conditions through a [weather.Provider].
package weathertool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Den9mn/novi-weather/internal/tools"
	"github.com/Den9mn/novi-weather/pkg/provider/weather"
)

// Name is the tool name the assistant uses.
const Name = "get_weather"

// DefaultLocation is used when the arguments carry no usable location.
const DefaultLocation = "Madrid"

// Option configures the tool.
type Option func(*handler)

// WithDefaultLocation overrides [DefaultLocation]. An empty value is ignored.
func WithDefaultLocation(loc string) Option {
	return func(h *handler) {
		if loc != "" {
			h.defaultLocation = loc
		}
	}
}

// WithTimeout bounds a single lookup including its retries.
func WithTimeout(d time.Duration) Option {
	return func(h *handler) {
		h.timeout = d
	}
}

type handler struct {
	provider        weather.Provider
	defaultLocation string
	timeout         time.Duration
}

// New returns the get_weather tool backed by p.
func New(p weather.Provider, opts ...Option) tools.Tool {
	h := &handler{provider: p, defaultLocation: DefaultLocation}
	for _, o := range opts {
		o(h)
	}
	return tools.Tool{
		Definition: tools.Definition{
			Name:        Name,
			Description: "Get the current weather conditions for a location.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"location": map[string]any{
						"type":        "string",
						"description": "City or place name, e.g. \"Paris\".",
					},
				},
				"required": []string{"location"},
			},
		},
		Handler: h.handle,
		Timeout: h.timeout,
	}
}

// Location extracts the "location" argument. Malformed JSON, a missing or
// non-string field, and an empty string all yield def.
func Location(args, def string) string {
	if !gjson.Valid(args) {
		return def
	}
	loc := gjson.Get(args, "location")
	if loc.Type != gjson.String || loc.Str == "" {
		return def
	}
	return loc.Str
}

func (h *handler) handle(ctx context.Context, args string) (string, error) {
	loc := Location(args, h.defaultLocation)

	reading, err := h.provider.Lookup(ctx, loc)
	if err != nil {
		return "", fmt.Errorf("weathertool: lookup %q: %w", loc, err)
	}
	out, err := json.Marshal(reading)
	if err != nil {
		return "", fmt.Errorf("weathertool: encode reading: %w", err)
	}
	return string(out), nil
}
