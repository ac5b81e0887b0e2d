package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Den9mn/novi-weather/internal/observe"
	"github.com/Den9mn/novi-weather/internal/tools"
	"github.com/Den9mn/novi-weather/internal/tools/weathertool"
	"github.com/Den9mn/novi-weather/pkg/provider/assistant/mock"
	weathermock "github.com/Den9mn/novi-weather/pkg/provider/weather/mock"
	"github.com/Den9mn/novi-weather/pkg/types"
)

// fakeClock advances instantly whenever After is called.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
	block bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	if c.block {
		return ch
	}
	c.now = c.now.Add(d)
	ch <- c.now
	return ch
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// harness bundles an orchestrator with its doubles.
type harness struct {
	orch    *Orchestrator
	svc     *mock.Service
	weather *weathermock.Provider
	clock   *fakeClock
	reader  *sdkmetric.ManualReader
}

func defaultPoll() PollerConfig {
	return PollerConfig{Interval: 1200 * time.Millisecond, Timeout: 60 * time.Second}
}

func newHarness(t *testing.T, svc *mock.Service, wp *weathermock.Provider, poll PollerConfig) *harness {
	t.Helper()
	if wp == nil {
		wp = &weathermock.Provider{Reading: madridReading()}
	}

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	reg, err := tools.NewRegistry(weathertool.New(wp, weathertool.WithDefaultLocation("Madrid")))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	clock := newFakeClock()
	orch, err := New(svc, reg, Config{AssistantID: "asst_test", Poll: poll},
		WithClock(clock), WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{orch: orch, svc: svc, weather: wp, clock: clock, reader: reader}
}

func ptr[T any](v T) *T { return &v }

func madridReading() *types.WeatherReading {
	return &types.WeatherReading{
		Location:     ptr("Madrid"),
		Country:      ptr("Spain"),
		TemperatureC: ptr(24.0),
		Condition:    ptr("Sunny"),
	}
}

func status(s types.RunStatus) *types.Run {
	return &types.Run{ID: "run_1", ThreadID: "thread_1", Status: s}
}

func requiresAction(calls ...types.ToolCall) *types.Run {
	r := status(types.RunStatusRequiresAction)
	r.RequiredAction = &types.RequiredAction{
		Type:      types.RequiredActionSubmitToolOutputs,
		ToolCalls: calls,
	}
	return r
}

func weatherCall(id, args string) types.ToolCall {
	return types.ToolCall{ID: id, Type: "function", Name: "get_weather", Arguments: args}
}

// requireFailure asserts err is a *Failure with the given reason.
func requireFailure(t *testing.T, err, reason error) *Failure {
	t.Helper()
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("err = %v (%T), want *Failure", err, err)
	}
	if f.Reason != reason {
		t.Fatalf("reason = %v, want %v (err: %v)", f.Reason, reason, err)
	}
	return f
}

// outcomeCount returns the chat outcome counter for outcome.
func outcomeCount(t *testing.T, reader *sdkmetric.ManualReader, outcome string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "noviweather.chat.outcomes" {
				continue
			}
			sum := met.Data.(metricdata.Sum[int64])
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value("outcome"); ok && v.AsString() == outcome {
					return dp.Value
				}
			}
		}
	}
	return 0
}

// counterByAttrs sums the int64 counter name over data points whose
// attributes include every pair in want.
func counterByAttrs(t *testing.T, reader *sdkmetric.ManualReader, name string, want map[string]string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				match := true
				for k, v := range want {
					if got, ok := dp.Attributes.Value(attribute.Key(k)); !ok || got.AsString() != v {
						match = false
						break
					}
				}
				if match {
					total += dp.Value
				}
			}
		}
	}
	return total
}
