// Package mock provides a test double for the weather.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Reading: &types.WeatherReading{Location: ptr("Paris")}}
//	r, err := p.Lookup(ctx, "Paris")
package mock

import (
	"context"
	"sync"

	"github.com/Den9mn/novi-weather/pkg/provider/weather"
	"github.com/Den9mn/novi-weather/pkg/types"
)

var _ weather.Provider = (*Provider)(nil)

// LookupCall records a single invocation of Lookup.
type LookupCall struct {
	Location string
}

// Provider is a mock implementation of weather.Provider.
type Provider struct {
	mu sync.Mutex

	// Reading is returned by Lookup when Err is nil and LookupFunc is unset.
	Reading *types.WeatherReading

	// Err, if non-nil, is returned from Lookup.
	Err error

	// LookupFunc, if set, takes precedence over Reading and Err.
	LookupFunc func(ctx context.Context, location string) (*types.WeatherReading, error)

	// Calls records every invocation of Lookup in order.
	Calls []LookupCall
}

// Lookup records the call and returns the configured result.
func (p *Provider) Lookup(ctx context.Context, location string) (*types.WeatherReading, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, LookupCall{Location: location})
	fn := p.LookupFunc
	reading, err := p.Reading, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, location)
	}
	return reading, err
}

// Locations returns the locations passed to Lookup in call order.
func (p *Provider) Locations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Location
	}
	return out
}
