// Command noviweather is the main entry point for the novi-weather chat
// service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"
	"unicode/utf8"

	"github.com/Den9mn/novi-weather/internal/app"
	"github.com/Den9mn/novi-weather/internal/config"
	"github.com/Den9mn/novi-weather/internal/observe"
	"github.com/Den9mn/novi-weather/internal/tools/weathertool"
	"github.com/Den9mn/novi-weather/pkg/provider/assistant"
	"github.com/Den9mn/novi-weather/pkg/provider/assistant/openai"
	"github.com/Den9mn/novi-weather/pkg/provider/assistant/rest"
	"github.com/Den9mn/novi-weather/pkg/provider/weather/weatherapi"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to an optional YAML configuration file")
	printTools := flag.Bool("tools", false, "print the function tool definitions to configure on the assistant and exit")
	flag.Parse()

	if *printTools {
		return printToolDefinitions()
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "noviweather: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("novi-weather starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: serviceVersion(cfg.Telemetry),
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics, err := observe.NewMetrics(tel.MeterProvider)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinAssistants(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(metrics),
		app.WithMetricsHandler(tel.MetricsHandler),
		app.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	application.AddCloser(func() error {
		// The server is already stopped; flush telemetry on a fresh budget.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return tel.Shutdown(shutdownCtx)
	})

	slog.Info("server ready, press Ctrl+C to shut down")

	// Run returns after ctx is cancelled and the graceful shutdown finished.
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinAssistants wires the assistant adapters that ship with
// novi-weather into reg.
func registerBuiltinAssistants(reg *config.Registry) {
	reg.RegisterAssistant("openai", func(c config.AssistantConfig) (assistant.Service, error) {
		opts := []openai.Option{openai.WithTimeout(c.Timeout)}
		if c.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(c.BaseURL))
		}
		if c.Organization != "" {
			opts = append(opts, openai.WithOrganization(c.Organization))
		}
		return openai.New(c.APIKey, opts...)
	})

	reg.RegisterAssistant("rest", func(c config.AssistantConfig) (assistant.Service, error) {
		opts := []rest.Option{rest.WithTimeout(c.Timeout)}
		if c.BaseURL != "" {
			opts = append(opts, rest.WithBaseURL(c.BaseURL))
		}
		return rest.New(c.APIKey, opts...)
	})

	for _, name := range reg.AssistantNames() {
		slog.Debug("registered assistant adapter", "name", name)
	}
}

// buildProviders instantiates the assistant adapter named in cfg and the
// weather client.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	svc, err := reg.CreateAssistant(cfg.Assistant)
	if err != nil {
		return nil, err
	}
	slog.Info("provider created", "kind", "assistant", "name", cfg.Assistant.Name)

	wopts := []weatherapi.Option{weatherapi.WithTimeout(cfg.Weather.Timeout)}
	if cfg.Weather.BaseURL != "" {
		wopts = append(wopts, weatherapi.WithBaseURL(cfg.Weather.BaseURL))
	}
	wp, err := weatherapi.New(cfg.Weather.APIKey, wopts...)
	if err != nil {
		return nil, fmt.Errorf("create weather provider: %w", err)
	}
	slog.Info("provider created", "kind", "weather", "name", "weatherapi")

	return &app.Providers{Assistant: svc, Weather: wp}, nil
}

// printToolDefinitions writes the tool schemas as JSON to stdout.
func printToolDefinitions() int {
	defs := []any{weathertool.New(nil).Definition}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(defs); err != nil {
		fmt.Fprintf(os.Stderr, "noviweather: %v\n", err)
		return 1
	}
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      novi-weather startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Assistant", cfg.Assistant.Name)
	printRow("Assistant ID", cfg.Assistant.AssistantID)
	printRow("Default loc.", cfg.Chat.DefaultLocation)
	printRow("Poll interval", cfg.Chat.PollInterval.String())
	if cfg.Chat.PollTimeout > 0 {
		printRow("Poll timeout", cfg.Chat.PollTimeout.String())
	}
	if cfg.Chat.MaxPolls > 0 {
		printRow("Max polls", fmt.Sprint(cfg.Chat.MaxPolls))
	}
	if cfg.Events.Enabled() {
		printRow("Events", "enabled ("+cfg.Events.Timezone+")")
	} else {
		printRow("Events", "(disabled)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	fmt.Printf("║  %-13s   : %-19s ║\n", label, truncate(value, 19))
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// serviceVersion returns the version reported in telemetry: the configured
// override, or the build version.
func serviceVersion(tc config.TelemetryConfig) string {
	if tc.ServiceVersion != "" {
		return tc.ServiceVersion
	}
	return version
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
