package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr       = ":8080"
	DefaultShutdownTimeout  = 15 * time.Second
	DefaultAssistantName    = "openai"
	DefaultAssistantTimeout = 30 * time.Second
	DefaultWeatherTimeout   = 10 * time.Second
	DefaultMessage          = "What's the weather like in Madrid?"
	DefaultLocation         = "Madrid"
	DefaultPollInterval     = 1200 * time.Millisecond
	DefaultPollTimeout      = 60 * time.Second
	DefaultMessageLimit     = 10
	DefaultEventsTimeout    = 10 * time.Second
	DefaultTimezone         = "Local"
	DefaultServiceName      = "novi-weather"
)

// Environment variables read by [ApplyEnv]. The first three keep the names of
// the deployment this service replaces.
const (
	EnvOpenAIKey       = "OPENAI_API_KEY"
	EnvAssistantID     = "ASSISTANT_ID"
	EnvWeatherKey      = "WEATHER_KEY"
	EnvDefaultLocation = "NOVI_DEFAULT_LOCATION"
	EnvDefaultMessage  = "NOVI_DEFAULT_MESSAGE"
	EnvListenAddr      = "NOVI_LISTEN_ADDR"
	EnvEventsSheetURL  = "NOVI_EVENTS_SHEET_URL"
)

// ValidAssistantNames lists the assistant adapters shipped with the service.
// Used by [Validate] to warn about unrecognised names.
var ValidAssistantNames = []string{"openai", "rest"}

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config].
//
// An empty path or a missing file is not an error: the configuration then
// comes from the environment and defaults alone.
func Load(path string) (*Config, error) {
	if path == "" {
		return finish(&Config{}, os.LookupEnv)
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("config file not found; using environment and defaults", "path", path)
		return finish(&Config{}, os.LookupEnv)
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return finish(cfg, os.LookupEnv)
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. The environment is not consulted, which keeps tests
// hermetic.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	return finish(cfg, nil)
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

func finish(cfg *Config, lookup func(string) (string, bool)) (*Config, error) {
	if lookup != nil {
		ApplyEnv(cfg, lookup)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the non-empty environment variables returned by
// lookup (normally os.LookupEnv).
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Assistant.APIKey, EnvOpenAIKey)
	set(&cfg.Assistant.AssistantID, EnvAssistantID)
	set(&cfg.Weather.APIKey, EnvWeatherKey)
	set(&cfg.Chat.DefaultLocation, EnvDefaultLocation)
	set(&cfg.Chat.DefaultMessage, EnvDefaultMessage)
	set(&cfg.Server.ListenAddr, EnvListenAddr)
	set(&cfg.Events.SheetURL, EnvEventsSheetURL)
}

// ApplyDefaults fills every unset field with its default. Fields where zero is
// meaningful (chat.max_polls, chat.poll_timeout) are left alone.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Assistant.Name == "" {
		cfg.Assistant.Name = DefaultAssistantName
	}
	if cfg.Assistant.Timeout == 0 {
		cfg.Assistant.Timeout = DefaultAssistantTimeout
	}
	if cfg.Weather.Timeout == 0 {
		cfg.Weather.Timeout = DefaultWeatherTimeout
	}

	if cfg.Chat.DefaultMessage == "" {
		cfg.Chat.DefaultMessage = DefaultMessage
	}
	if cfg.Chat.DefaultLocation == "" {
		cfg.Chat.DefaultLocation = DefaultLocation
	}
	if cfg.Chat.PollInterval == 0 {
		cfg.Chat.PollInterval = DefaultPollInterval
	}
	if cfg.Chat.PollTimeout == 0 && cfg.Chat.MaxPolls == 0 {
		cfg.Chat.PollTimeout = DefaultPollTimeout
	}
	if cfg.Chat.MessageLimit == 0 {
		cfg.Chat.MessageLimit = DefaultMessageLimit
	}

	if cfg.Events.Timeout == 0 {
		cfg.Events.Timeout = DefaultEventsTimeout
	}
	if cfg.Events.Timezone == "" {
		cfg.Events.Timezone = DefaultTimezone
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}

	// Assistant
	validateAssistantName(cfg.Assistant.Name)
	if cfg.Assistant.APIKey == "" {
		errs = append(errs, fmt.Errorf("assistant.api_key is required (or set %s)", EnvOpenAIKey))
	}
	if cfg.Assistant.AssistantID == "" {
		errs = append(errs, fmt.Errorf("assistant.assistant_id is required (or set %s)", EnvAssistantID))
	}
	if err := validateURL("assistant.base_url", cfg.Assistant.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if cfg.Assistant.Timeout < 0 {
		errs = append(errs, errors.New("assistant.timeout must not be negative"))
	}

	// Weather
	if cfg.Weather.APIKey == "" {
		errs = append(errs, fmt.Errorf("weather.api_key is required (or set %s)", EnvWeatherKey))
	}
	if err := validateURL("weather.base_url", cfg.Weather.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if cfg.Weather.Timeout < 0 {
		errs = append(errs, errors.New("weather.timeout must not be negative"))
	}

	// Chat
	if cfg.Chat.PollInterval <= 0 {
		errs = append(errs, errors.New("chat.poll_interval must be positive"))
	}
	if cfg.Chat.PollTimeout < 0 {
		errs = append(errs, errors.New("chat.poll_timeout must not be negative"))
	}
	if cfg.Chat.MaxPolls < 0 {
		errs = append(errs, errors.New("chat.max_polls must not be negative"))
	}
	if cfg.Chat.PollTimeout == 0 && cfg.Chat.MaxPolls == 0 {
		errs = append(errs, errors.New("chat: at least one of poll_timeout and max_polls must be set"))
	}
	if cfg.Chat.MessageLimit < 0 || cfg.Chat.MessageLimit > 100 {
		errs = append(errs, fmt.Errorf("chat.message_limit %d is out of range [1, 100]", cfg.Chat.MessageLimit))
	}

	// Resilience
	r := cfg.Resilience
	if r.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("resilience.retry.max_attempts must not be negative"))
	}
	if r.Retry.InitialBackoff < 0 || r.Retry.MaxBackoff < 0 {
		errs = append(errs, errors.New("resilience.retry backoffs must not be negative"))
	}
	if r.Retry.MaxBackoff > 0 && r.Retry.InitialBackoff > r.Retry.MaxBackoff {
		errs = append(errs, errors.New("resilience.retry.initial_backoff must not exceed max_backoff"))
	}
	if r.CircuitBreaker.MaxFailures < 0 || r.CircuitBreaker.HalfOpenMax < 0 {
		errs = append(errs, errors.New("resilience.circuit_breaker counts must not be negative"))
	}
	if r.CircuitBreaker.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience.circuit_breaker.reset_timeout must not be negative"))
	}

	// Events
	if err := validateURL("events.sheet_url", cfg.Events.SheetURL); err != nil {
		errs = append(errs, err)
	}
	if cfg.Events.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Events.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("events.timezone %q: %w", cfg.Events.Timezone, err))
		}
	}

	return errors.Join(errs...)
}

// Location resolves the configured events timezone.
func (e EventsConfig) Location() (*time.Location, error) {
	if e.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(e.Timezone)
}

func validateURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s %q must be an absolute http(s) URL", field, raw)
	}
	return nil
}

// validateAssistantName logs a warning if name is non-empty and not one of
// [ValidAssistantNames].
func validateAssistantName(name string) {
	if name == "" || slices.Contains(ValidAssistantNames, name) {
		return
	}
	slog.Warn("unknown assistant adapter name; it must be registered by the caller",
		"name", name,
		"known", ValidAssistantNames,
	)
}
