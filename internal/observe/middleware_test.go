package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const incomingTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"

// testSetup installs an in-memory tracer and returns metrics backed by a
// manual reader. Tests using it must not run in parallel.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return m, reader, exp
}

// apiMux mimics the service routes: chat answers 200 unless the message asks
// for a failure.
func apiMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") != "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {})
	return mux
}

func TestMiddleware_TraceContext(t *testing.T) {
	tests := []struct {
		name        string
		traceparent string
		wantCID     string
	}{
		{name: "new trace"},
		{
			name:        "incoming traceparent",
			traceparent: "00-" + incomingTraceID + "-00f067aa0ba902b7-01",
			wantCID:     incomingTraceID,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := testSetup(t)

			var cid string
			handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				cid = CorrelationID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
			if tt.traceparent != "" {
				req.Header.Set("traceparent", tt.traceparent)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if len(cid) != 32 {
				t.Fatalf("correlation id = %q, want 32 hex chars", cid)
			}
			if tt.wantCID != "" && cid != tt.wantCID {
				t.Errorf("correlation id = %q, want %q", cid, tt.wantCID)
			}
			if got := rec.Header().Get("X-Correlation-ID"); got != cid {
				t.Errorf("X-Correlation-ID = %q, want %q", got, cid)
			}
			if tp := rec.Header().Get("traceparent"); !strings.Contains(tp, cid) {
				t.Errorf("traceparent = %q, want it to carry %q", tp, cid)
			}
		})
	}
}

func TestMiddleware_ServerSpan(t *testing.T) {
	m, _, exp := testSetup(t)
	handler := Middleware(m)(apiMux())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat?fail=1", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.Name != "HTTP POST /api/chat" {
		t.Errorf("span name = %q", s.Name)
	}
	attrs := map[string]string{}
	for _, a := range s.Attributes {
		attrs[string(a.Key)] = a.Value.Emit()
	}
	if attrs["http.response.status_code"] != "500" {
		t.Errorf("status attribute = %q, want 500", attrs["http.response.status_code"])
	}
	if attrs["http.route"] != "POST /api/chat" {
		t.Errorf("route attribute = %q", attrs["http.route"])
	}
}

func TestMiddleware_RecordsDurationByRoute(t *testing.T) {
	m, reader, _ := testSetup(t)
	handler := Middleware(m)(apiMux())

	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/api/chat", nil),
		httptest.NewRequest(http.MethodPost, "/api/chat?fail=1", nil),
		httptest.NewRequest(http.MethodGet, "/healthz", nil),
		httptest.NewRequest(http.MethodGet, "/api/events", nil),
		httptest.NewRequest(http.MethodGet, "/api/chat/../../etc", nil),
	} {
		handler.ServeHTTP(httptest.NewRecorder(), r)
	}

	met := findMetric(collect(t, reader), "noviweather.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}

	counts := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		if v, ok := dp.Attributes.Value("path"); ok {
			counts[v.AsString()] += dp.Count
		}
	}
	if counts["POST /api/chat"] != 2 {
		t.Errorf("chat count = %d, want 2 (counts: %v)", counts["POST /api/chat"], counts)
	}
	if counts["GET /healthz"] != 1 {
		t.Errorf("healthz count = %d, want 1 (counts: %v)", counts["GET /healthz"], counts)
	}
	if counts[unmatchedRoute] == 0 {
		t.Errorf("unmatched requests were not folded into %q (counts: %v)", unmatchedRoute, counts)
	}
	for route := range counts {
		if strings.Contains(route, "etc") {
			t.Errorf("raw path %q leaked into the route attribute", route)
		}
	}
}

func TestMiddleware_RequestID(t *testing.T) {
	m, _, _ := testSetup(t)

	var seen string
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generated"},
		{name: "from caller", incoming: "caller-42", keep: true},
		{name: "oversized is replaced", incoming: strings.Repeat("x", 200)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
				t.Fatalf("request id = %q, header = %q", seen, rec.Header().Get(RequestIDHeader))
			}
			if tt.keep && seen != tt.incoming {
				t.Errorf("request id = %q, want %q", seen, tt.incoming)
			}
			if !tt.keep && seen == tt.incoming {
				t.Errorf("request id %q should have been replaced", seen)
			}
		})
	}
}
