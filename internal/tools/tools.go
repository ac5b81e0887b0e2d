// Package tools defines the [Tool] type the assistant may invoke during a run
// and a name-keyed [Registry] used by the chat dispatcher.
//
// Each tool sub-package exports a constructor that returns a ready [Tool].
package tools

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrToolNotFound is returned by [Registry.Lookup] for unregistered names.
var ErrToolNotFound = errors.New("tool not found")

// Definition is the assistant-facing schema of a tool. It mirrors the
// function definition configured on the remote assistant.
type Definition struct {
	// Name is the tool's unique identifier.
	Name string `json:"name"`

	// Description explains what the tool does.
	Description string `json:"description"`

	// Parameters is the JSON Schema describing the tool's input.
	Parameters map[string]any `json:"parameters"`
}

// Tool is a callable tool.
type Tool struct {
	Definition Definition

	// Handler executes the tool with the raw JSON arguments from the run and
	// returns a JSON-encoded result, or an error. Implementations must be
	// safe for concurrent use and must respect context cancellation.
	Handler func(ctx context.Context, args string) (string, error)

	// Timeout bounds a single execution. Zero means no extra bound beyond the
	// caller's context.
	Timeout time.Duration
}

// Registry maps tool names to tools. It is built once and read-only after
// construction, so it is safe for concurrent use.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds a registry from ts. Duplicate or empty names and nil
// handlers are rejected.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		name := t.Definition.Name
		if name == "" {
			return nil, errors.New("tools: tool name must not be empty")
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("tools: tool %q has no handler", name)
		}
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool %q", name)
		}
		r.tools[name] = t
	}
	return r, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return Tool{}, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	return t, nil
}

// Definitions returns every registered definition sorted by name.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition)
	}
	slices.SortFunc(defs, func(a, b Definition) int { return cmp.Compare(a.Name, b.Name) })
	return defs
}
