// Package weatherapi provides a weather provider backed by the WeatherAPI.com
// current-conditions endpoint.
//
// Example usage:
//
//	p, err := weatherapi.New(os.Getenv("WEATHER_KEY"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	reading, err := p.Lookup(ctx, "Madrid")
//
// The response payload is read with gjson so that every field stays optional:
// a missing or mistyped field leaves the corresponding reading field nil.
package weatherapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Den9mn/novi-weather/pkg/provider/weather"
	"github.com/Den9mn/novi-weather/pkg/types"
)

// DefaultBaseURL is the WeatherAPI.com v1 API root.
const DefaultBaseURL = "https://api.weatherapi.com/v1"

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// Ensure Provider implements the weather.Provider interface at compile time.
var _ weather.Provider = (*Provider)(nil)

// Provider implements weather.Provider using WeatherAPI.com.
//
// Provider is safe for concurrent use.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// config holds optional configuration collected from functional options.
type config struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default API root. A trailing slash is stripped.
func WithBaseURL(u string) Option {
	return func(c *config) {
		c.baseURL = u
	}
}

// WithTimeout sets a per-request HTTP timeout. Ignored when WithHTTPClient is
// also given.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the HTTP client used for lookups.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// New constructs a WeatherAPI.com Provider. apiKey must not be empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("weatherapi: apiKey must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	baseURL := cfg.baseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}

	return &Provider{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: hc,
	}, nil
}

// Lookup implements weather.Provider.
//
// Returns an error wrapping [weather.ErrLookupFailed] when the request fails,
// the server answers with a non-2xx status, or the body is not a JSON object
// carrying at least one of the "location" and "current" sections.
func (p *Provider) Lookup(ctx context.Context, location string) (*types.WeatherReading, error) {
	q := url.Values{}
	q.Set("key", p.apiKey)
	q.Set("q", location)
	endpoint := p.baseURL + "/current.json?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("weatherapi: %w: build request: %w", weather.ErrLookupFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weatherapi: %w: %w", weather.ErrLookupFailed, redactKey(err, p.apiKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("weatherapi: %w: read body: %w", weather.ErrLookupFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("weatherapi: %w: %w", weather.ErrLookupFailed,
			&weather.StatusError{StatusCode: resp.StatusCode, Message: msg})
	}

	reading, err := parseReading(body)
	if err != nil {
		return nil, fmt.Errorf("weatherapi: %w: %w", weather.ErrLookupFailed, err)
	}
	return reading, nil
}

// parseReading extracts a WeatherReading from a current.json payload.
func parseReading(body []byte) (*types.WeatherReading, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("malformed JSON payload")
	}
	doc := gjson.ParseBytes(body)
	if !doc.Get("location").IsObject() && !doc.Get("current").IsObject() {
		return nil, errors.New("payload has neither location nor current conditions")
	}

	return &types.WeatherReading{
		Location:     optString(doc.Get("location.name")),
		Country:      optString(doc.Get("location.country")),
		TemperatureC: optFloat(doc.Get("current.temp_c")),
		Condition:    optString(doc.Get("current.condition.text")),
		Humidity:     optInt(doc.Get("current.humidity")),
		WindKPH:      optFloat(doc.Get("current.wind_kph")),
		FeelsLikeC:   optFloat(doc.Get("current.feelslike_c")),
		Cloud:        optInt(doc.Get("current.cloud")),
	}, nil
}

func optString(r gjson.Result) *string {
	if r.Type != gjson.String {
		return nil
	}
	s := r.String()
	return &s
}

func optFloat(r gjson.Result) *float64 {
	if r.Type != gjson.Number {
		return nil
	}
	f := r.Float()
	return &f
}

func optInt(r gjson.Result) *int {
	if r.Type != gjson.Number {
		return nil
	}
	i := int(r.Int())
	return &i
}

// redactKey strips the API key from URL errors so it never reaches logs.
func redactKey(err error, key string) error {
	var uerr *url.Error
	if errors.As(err, &uerr) && key != "" {
		redacted := *uerr
		redacted.URL = strings.ReplaceAll(uerr.URL, url.QueryEscape(key), "REDACTED")
		return &redacted
	}
	return err
}
