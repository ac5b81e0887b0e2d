package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Den9mn/novi-weather/pkg/provider/assistant"
)

// ErrProviderNotRegistered is returned by [Registry.CreateAssistant] when no
// factory has been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// AssistantFactory builds an assistant adapter from its config block.
type AssistantFactory func(AssistantConfig) (assistant.Service, error)

// Registry maps assistant adapter names to their constructors. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	assistant map[string]AssistantFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{assistant: make(map[string]AssistantFactory)}
}

// RegisterAssistant registers an adapter factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterAssistant(name string, factory AssistantFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assistant[name] = factory
}

// CreateAssistant instantiates the adapter registered under cfg.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) CreateAssistant(cfg AssistantConfig) (assistant.Service, error) {
	r.mu.RLock()
	factory, ok := r.assistant[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: assistant/%q", ErrProviderNotRegistered, cfg.Name)
	}
	svc, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: create assistant %q: %w", cfg.Name, err)
	}
	return svc, nil
}

// AssistantNames returns the registered adapter names in sorted order.
func (r *Registry) AssistantNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.assistant))
	for n := range r.assistant {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
