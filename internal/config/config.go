// Package config provides the configuration schema, loader, and assistant
// adapter registry for the novi-weather service.
package config

import "time"

// LogLevel controls log verbosity for the novi-weather server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for novi-weather.
// It is typically loaded with [Load] or [LoadFromReader]; environment
// overrides and defaults are applied before validation.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Weather    WeatherConfig    `yaml:"weather"`
	Chat       ChatConfig       `yaml:"chat"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Events     EventsConfig     `yaml:"events"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// ShutdownTimeout bounds graceful shutdown after a stop signal.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AssistantConfig selects and configures the hosted assistant adapter.
// Name is used to look up the constructor in the [Registry].
type AssistantConfig struct {
	// Name selects the registered adapter: "openai" (SDK) or "rest".
	Name string `yaml:"name"`

	// APIKey authenticates against the assistant service.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the service endpoint. Leave empty for the default.
	BaseURL string `yaml:"base_url"`

	// Organization is sent as the OpenAI-Organization header when set.
	Organization string `yaml:"organization"`

	// AssistantID identifies the pre-configured remote assistant.
	AssistantID string `yaml:"assistant_id"`

	// Timeout bounds each outbound request.
	Timeout time.Duration `yaml:"timeout"`
}

// WeatherConfig configures the WeatherAPI.com client.
type WeatherConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ChatConfig tunes the chat orchestration.
type ChatConfig struct {
	// DefaultMessage is sent when a request carries no message.
	DefaultMessage string `yaml:"default_message"`

	// DefaultLocation is used by get_weather when the assistant supplies
	// no usable location.
	DefaultLocation string `yaml:"default_location"`

	// PollInterval is the wait between two run status retrievals.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollTimeout bounds one run on the wall clock. Zero disables it.
	PollTimeout time.Duration `yaml:"poll_timeout"`

	// MaxPolls bounds one run by retrieval count. Zero disables it.
	MaxPolls int `yaml:"max_polls"`

	// MessageLimit caps the message listing used for reply extraction.
	MessageLimit int `yaml:"message_limit"`
}

// ResilienceConfig groups retry and circuit breaker settings.
type ResilienceConfig struct {
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig bounds retries of idempotent outbound calls.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// CircuitBreakerConfig configures the breaker around the weather provider.
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// EventsConfig configures the event listing feed. An empty SheetURL disables
// GET /api/events.
type EventsConfig struct {
	// SheetURL is the published CSV export of the events sheet.
	SheetURL string `yaml:"sheet_url"`

	// Timeout bounds the sheet download.
	Timeout time.Duration `yaml:"timeout"`

	// Timezone is an IANA zone name used to interpret event dates, or "Local".
	Timezone string `yaml:"timezone"`
}

// Enabled reports whether a sheet URL is configured.
func (e EventsConfig) Enabled() bool { return e.SheetURL != "" }

// TelemetryConfig configures the OpenTelemetry resource.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`

	// ServiceVersion overrides the build version reported in telemetry.
	ServiceVersion string `yaml:"service_version"`
}
