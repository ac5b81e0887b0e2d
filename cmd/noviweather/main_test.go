package main

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"unicode/utf8"

	"github.com/Den9mn/novi-weather/internal/config"
)

func TestBuildProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinAssistants(reg)

	if got := reg.AssistantNames(); len(got) != 2 || got[0] != "openai" || got[1] != "rest" {
		t.Fatalf("AssistantNames = %v", got)
	}

	for _, name := range []string{"openai", "rest"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{
				Assistant: config.AssistantConfig{Name: name, APIKey: "sk-test", AssistantID: "asst_1"},
				Weather:   config.WeatherConfig{APIKey: "w-test"},
			}
			config.ApplyDefaults(cfg)
			ps, err := buildProviders(cfg, reg)
			if err != nil {
				t.Fatalf("buildProviders: %v", err)
			}
			if ps.Assistant == nil || ps.Weather == nil {
				t.Errorf("providers = %+v", ps)
			}
		})
	}
}

func TestBuildProviders_UnknownAssistant(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Assistant: config.AssistantConfig{Name: "azure", APIKey: "k"}}
	_, err := buildProviders(cfg, config.NewRegistry())
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level config.LogLevel
		want  slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		l := newLogger(tt.level)
		if !l.Enabled(context.Background(), tt.want) {
			t.Errorf("newLogger(%q) disables %v", tt.level, tt.want)
		}
		if tt.want > slog.LevelDebug && l.Enabled(context.Background(), tt.want-1) {
			t.Errorf("newLogger(%q) enables below %v", tt.level, tt.want)
		}
	}
}

func TestServiceVersion(t *testing.T) {
	t.Parallel()

	if got := serviceVersion(config.TelemetryConfig{}); got != version {
		t.Errorf("serviceVersion() = %q, want build version %q", got, version)
	}
	if got := serviceVersion(config.TelemetryConfig{ServiceVersion: "1.4.0"}); got != "1.4.0" {
		t.Errorf("serviceVersion() = %q, want configured override", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "Lisbon", "Lisbon"},
		{"exact", "abcdefghijklmnopqrs", "abcdefghijklmnopqrs"},
		{"ascii", "https://api.example.com/v1", "https://api.exampl…"},
		{"multi-byte", "Sankt Pölten über Wien", "Sankt Pölten über …"},
		{"all multi-byte", "ÄÖÜäöüßÄÖÜäöüßÄÖÜäöüß", "ÄÖÜäöüßÄÖÜäöüßÄÖÜä…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := truncate(tt.in, 19)
			if got != tt.want {
				t.Errorf("truncate(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q) = %q is not valid UTF-8", tt.in, got)
			}
			if n := utf8.RuneCountInString(got); n > 19 {
				t.Errorf("truncate(%q) has %d runes, want at most 19", tt.in, n)
			}
		})
	}
}
