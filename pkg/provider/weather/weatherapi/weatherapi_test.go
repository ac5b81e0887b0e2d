package weatherapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Den9mn/novi-weather/pkg/provider/weather"
	"github.com/Den9mn/novi-weather/pkg/provider/weather/weatherapi"
)

const madridPayload = `{
  "location": {"name": "Madrid", "country": "Spain", "lat": 40.4, "lon": -3.68},
  "current": {
    "temp_c": 21.5,
    "condition": {"text": "Sunny", "code": 1000},
    "humidity": 40,
    "wind_kph": 11.2,
    "feelslike_c": 20.9,
    "cloud": 0
  }
}`

// mockWeatherServer starts a test server answering /current.json with the
// given status and body. It records the q parameter of the last request.
func mockWeatherServer(t *testing.T, status int, body string, gotQuery *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/current.json" {
			t.Errorf("unexpected path: got %q, want /current.json", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("key: got %q, want test-key", r.URL.Query().Get("key"))
		}
		if gotQuery != nil {
			*gotQuery = r.URL.Query().Get("q")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestNew_EmptyKey(t *testing.T) {
	if _, err := weatherapi.New(""); err == nil {
		t.Fatal("expected error for empty api key, got nil")
	}
}

func TestLookup_FullPayload(t *testing.T) {
	var q string
	srv := mockWeatherServer(t, http.StatusOK, madridPayload, &q)
	defer srv.Close()

	p, err := weatherapi.New("test-key", weatherapi.WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r, err := p.Lookup(context.Background(), "Madrid")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if q != "Madrid" {
		t.Errorf("q = %q, want Madrid", q)
	}
	if r.Location == nil || *r.Location != "Madrid" {
		t.Errorf("Location = %v, want Madrid", r.Location)
	}
	if r.Country == nil || *r.Country != "Spain" {
		t.Errorf("Country = %v, want Spain", r.Country)
	}
	if r.TemperatureC == nil || *r.TemperatureC != 21.5 {
		t.Errorf("TemperatureC = %v, want 21.5", r.TemperatureC)
	}
	if r.Condition == nil || *r.Condition != "Sunny" {
		t.Errorf("Condition = %v, want Sunny", r.Condition)
	}
	if r.Humidity == nil || *r.Humidity != 40 {
		t.Errorf("Humidity = %v, want 40", r.Humidity)
	}
	if r.WindKPH == nil || *r.WindKPH != 11.2 {
		t.Errorf("WindKPH = %v, want 11.2", r.WindKPH)
	}
	if r.FeelsLikeC == nil || *r.FeelsLikeC != 20.9 {
		t.Errorf("FeelsLikeC = %v, want 20.9", r.FeelsLikeC)
	}
	if r.Cloud == nil || *r.Cloud != 0 {
		t.Errorf("Cloud = %v, want 0", r.Cloud)
	}
}

// TestLookup_PartialPayload verifies that absent fields stay nil instead of
// being synthesised.
func TestLookup_PartialPayload(t *testing.T) {
	srv := mockWeatherServer(t, http.StatusOK, `{"location":{"name":"Nowhere"},"current":{"temp_c":"warm"}}`, nil)
	defer srv.Close()

	p, _ := weatherapi.New("test-key", weatherapi.WithBaseURL(srv.URL))
	r, err := p.Lookup(context.Background(), "Nowhere")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if r.Location == nil || *r.Location != "Nowhere" {
		t.Errorf("Location = %v, want Nowhere", r.Location)
	}
	if r.Country != nil {
		t.Errorf("Country = %v, want nil", *r.Country)
	}
	if r.TemperatureC != nil {
		t.Errorf("TemperatureC = %v, want nil for non-numeric value", *r.TemperatureC)
	}
	if r.Humidity != nil || r.Cloud != nil || r.WindKPH != nil {
		t.Error("expected absent numeric fields to be nil")
	}
}

// TestLookup_EmptyLocationPassedThrough verifies that the client does not
// validate or rewrite the location.
func TestLookup_EmptyLocationPassedThrough(t *testing.T) {
	var q = "unset"
	srv := mockWeatherServer(t, http.StatusBadRequest,
		`{"error":{"code":1003,"message":"Parameter q is missing."}}`, &q)
	defer srv.Close()

	p, _ := weatherapi.New("test-key", weatherapi.WithBaseURL(srv.URL))
	_, err := p.Lookup(context.Background(), "")
	if q != "" {
		t.Errorf("q = %q, want empty string passed through", q)
	}
	if !errors.Is(err, weather.ErrLookupFailed) {
		t.Fatalf("err = %v, want ErrLookupFailed", err)
	}
	if !strings.Contains(err.Error(), "Parameter q is missing.") {
		t.Errorf("error should carry provider message, got: %v", err)
	}
	if !weather.IsClientError(err) {
		t.Errorf("400 should be reported as a client error: %v", err)
	}
}

func TestLookup_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `oops`},
		{"malformed json", http.StatusOK, `{"location":`},
		{"unexpected shape", http.StatusOK, `{"foo":1}`},
		{"json array", http.StatusOK, `[1,2,3]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := mockWeatherServer(t, tc.status, tc.body, nil)
			defer srv.Close()

			p, _ := weatherapi.New("test-key", weatherapi.WithBaseURL(srv.URL))
			r, err := p.Lookup(context.Background(), "Paris")
			if !errors.Is(err, weather.ErrLookupFailed) {
				t.Fatalf("err = %v, want ErrLookupFailed", err)
			}
			if r != nil {
				t.Errorf("reading = %+v, want nil", r)
			}
		})
	}
}

// TestLookup_TransportErrorRedactsKey verifies that network failures surface
// as lookup failures without leaking the API key.
func TestLookup_TransportErrorRedactsKey(t *testing.T) {
	srv := mockWeatherServer(t, http.StatusOK, madridPayload, nil)
	url := srv.URL
	srv.Close()

	p, _ := weatherapi.New("test-key", weatherapi.WithBaseURL(url))
	_, err := p.Lookup(context.Background(), "Madrid")
	if !errors.Is(err, weather.ErrLookupFailed) {
		t.Fatalf("err = %v, want ErrLookupFailed", err)
	}
	if strings.Contains(err.Error(), "test-key") {
		t.Errorf("error leaks api key: %v", err)
	}
}
