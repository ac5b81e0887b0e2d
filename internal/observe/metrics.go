// Package observe provides the service's observability primitives:
// OpenTelemetry metrics, tracing, trace-aware logging, and HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider]. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with their own [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/Den9mn/novi-weather"

// Metrics holds all OpenTelemetry metric instruments for the application.
// The underlying OTel types are safe for concurrent use.
type Metrics struct {
	// ChatDuration tracks end-to-end orchestration latency per request. Use
	// with attribute.String("outcome", ...).
	ChatDuration metric.Float64Histogram

	// ToolExecutionDuration tracks tool handler latency. Use with
	// attribute.String("tool", ...).
	ToolExecutionDuration metric.Float64Histogram

	// RunPolls counts run status retrievals. Use with
	// attribute.String("status", ...).
	RunPolls metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// ChatOutcomes counts finished chats by outcome ("ok" or a failure reason).
	ChatOutcomes metric.Int64Counter

	// ProviderRequests counts outbound API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts outbound API failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ActiveChats tracks chats currently being orchestrated.
	ActiveChats metric.Int64UpDownCounter

	// HTTPRequestDuration tracks inbound HTTP latency. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...), attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// chatBuckets covers polled runs, which routinely take several seconds.
var chatBuckets = []float64{
	0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120,
}

// latencyBuckets covers single outbound calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ChatDuration, err = m.Float64Histogram("noviweather.chat.duration",
		metric.WithDescription("End-to-end latency of a chat orchestration."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(chatBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("noviweather.tool_execution.duration",
		metric.WithDescription("Latency of tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.RunPolls, err = m.Int64Counter("noviweather.run.polls",
		metric.WithDescription("Total run status retrievals by observed status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("noviweather.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ChatOutcomes, err = m.Int64Counter("noviweather.chat.outcomes",
		metric.WithDescription("Total finished chats by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("noviweather.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("noviweather.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveChats, err = m.Int64UpDownCounter("noviweather.active_chats",
		metric.WithDescription("Number of chats currently in flight."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("noviweather.http.request.duration",
		metric.WithDescription("HTTP request latency by method, path, and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records one outbound call with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records one outbound failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordToolCall records one tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordRunPoll records one run status retrieval.
func (m *Metrics) RecordRunPoll(ctx context.Context, status string) {
	m.RunPolls.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordChat records a finished chat's outcome and duration in seconds.
func (m *Metrics) RecordChat(ctx context.Context, outcome string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.ChatOutcomes.Add(ctx, 1, attrs)
	m.ChatDuration.Record(ctx, seconds, attrs)
}
