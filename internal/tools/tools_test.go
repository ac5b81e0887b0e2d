package tools

import (
	"context"
	"errors"
	"testing"
)

func noop(context.Context, string) (string, error) { return "{}", nil }

func TestNewRegistry_Rejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		tools []Tool
	}{
		{"empty name", []Tool{{Handler: noop}}},
		{"nil handler", []Tool{{Definition: Definition{Name: "a"}}}},
		{"duplicate", []Tool{
			{Definition: Definition{Name: "a"}, Handler: noop},
			{Definition: Definition{Name: "a"}, Handler: noop},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.tools...); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestRegistry_Lookup(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry(
		Tool{Definition: Definition{Name: "zeta"}, Handler: noop},
		Tool{Definition: Definition{Name: "alpha"}, Handler: noop},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if _, err := r.Lookup("alpha"); err != nil {
		t.Errorf("Lookup(alpha): %v", err)
	}
	if _, err := r.Lookup("missing"); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("Lookup(missing) err = %v, want ErrToolNotFound", err)
	}

	defs := r.Definitions()
	if len(defs) != 2 || defs[0].Name != "alpha" || defs[1].Name != "zeta" {
		t.Errorf("Definitions() = %+v, want sorted alpha, zeta", defs)
	}
}
