// Package app wires the novi-weather subsystems into a running HTTP service.
//
// The App struct owns the full lifecycle: New builds the chat orchestrator,
// the event feed, and the HTTP handlers; Run serves until the context ends;
// and Shutdown stops the server and runs the registered closers in order.
//
// For testing, inject doubles via [Providers] and the functional options
// (WithMetrics, WithClock, etc.). When an option is not provided, New uses
// the process-wide defaults.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Den9mn/novi-weather/internal/api"
	"github.com/Den9mn/novi-weather/internal/chat"
	"github.com/Den9mn/novi-weather/internal/config"
	"github.com/Den9mn/novi-weather/internal/events"
	"github.com/Den9mn/novi-weather/internal/health"
	"github.com/Den9mn/novi-weather/internal/observe"
	"github.com/Den9mn/novi-weather/internal/resilience"
	"github.com/Den9mn/novi-weather/internal/tools"
	"github.com/Den9mn/novi-weather/internal/tools/weathertool"
	"github.com/Den9mn/novi-weather/pkg/provider/assistant"
	"github.com/Den9mn/novi-weather/pkg/provider/weather"
)

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// Providers holds the external service clients. Populated by main.go via the
// config registry.
type Providers struct {
	Assistant assistant.Service

	// Weather is the raw lookup client. New wraps it with retry and a circuit
	// breaker.
	Weather weather.Provider
}

// App owns all subsystem lifetimes and serves the HTTP API.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	clock          chat.Clock
	eventClient    *http.Client
	listener       net.Listener
	log            *slog.Logger

	// Subsystems, initialised in New.
	weather      *resilience.GuardedWeather
	tools        *tools.Registry
	orchestrator *chat.Orchestrator
	events       *events.Feed
	handler      http.Handler
	srv          *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithClock replaces the clock driving the run poll loop.
func WithClock(c chat.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithEventsClient replaces the HTTP client used to download the events sheet.
func WithEventsClient(hc *http.Client) Option {
	return func(a *App) { a.eventClient = hc }
}

// WithListener makes Run serve on l instead of listening on
// server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithLogger sets the base logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go. cfg must already be validated.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil || providers.Assistant == nil || providers.Weather == nil {
		return nil, errors.New("app: assistant and weather providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.log == nil {
		a.log = slog.Default()
	}

	// ── 1. Weather tool ──────────────────────────────────────────────────
	if err := a.initTools(); err != nil {
		return nil, fmt.Errorf("app: init tools: %w", err)
	}

	// ── 2. Chat orchestrator ─────────────────────────────────────────────
	if err := a.initChat(); err != nil {
		return nil, fmt.Errorf("app: init chat: %w", err)
	}

	// ── 3. Events feed (optional) ────────────────────────────────────────
	if err := a.initEvents(); err != nil {
		return nil, fmt.Errorf("app: init events: %w", err)
	}

	// ── 4. HTTP handlers ─────────────────────────────────────────────────
	a.initHTTP()

	a.log.InfoContext(ctx, "application initialised",
		"assistant", cfg.Assistant.Name,
		"tools", len(a.tools.Definitions()),
		"events", cfg.Events.Enabled(),
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// retryPolicy converts the configured retry settings.
func (a *App) retryPolicy(name string) resilience.RetryPolicy {
	rc := a.cfg.Resilience.Retry
	return resilience.RetryPolicy{
		Name:           name,
		MaxAttempts:    rc.MaxAttempts,
		InitialBackoff: rc.InitialBackoff,
		MaxBackoff:     rc.MaxBackoff,
		Logger:         a.log,
	}
}

// initTools guards the weather provider and registers the get_weather tool.
func (a *App) initTools() error {
	cb := a.cfg.Resilience.CircuitBreaker
	retry := a.retryPolicy("weather lookup")
	a.weather = resilience.NewGuardedWeather(a.providers.Weather, resilience.CircuitBreakerConfig{
		Name:         "weather",
		MaxFailures:  cb.MaxFailures,
		ResetTimeout: cb.ResetTimeout,
		HalfOpenMax:  cb.HalfOpenMax,
		Logger:       a.log,
	}, retry, a.metrics)

	// weather.timeout bounds each HTTP attempt; the tool gets room for all
	// of them.
	var err error
	a.tools, err = tools.NewRegistry(weathertool.New(a.weather,
		weathertool.WithDefaultLocation(a.cfg.Chat.DefaultLocation),
		weathertool.WithTimeout(retry.MaxElapsed(a.cfg.Weather.Timeout)),
	))
	return err
}

// initChat builds the orchestrator over the assistant service.
func (a *App) initChat() error {
	cc := a.cfg.Chat
	opts := []chat.Option{
		chat.WithMetrics(a.metrics),
		chat.WithLogger(a.log),
		chat.WithProviderName(a.cfg.Assistant.Name),
	}
	if a.clock != nil {
		opts = append(opts, chat.WithClock(a.clock))
	}
	var err error
	a.orchestrator, err = chat.New(a.providers.Assistant, a.tools, chat.Config{
		AssistantID:  a.cfg.Assistant.AssistantID,
		MessageLimit: cc.MessageLimit,
		Poll: chat.PollerConfig{
			Interval: cc.PollInterval,
			Timeout:  cc.PollTimeout,
			MaxPolls: cc.MaxPolls,
			Retry:    a.retryPolicy("retrieve run"),
		},
	}, opts...)
	return err
}

// initEvents builds the events feed when a sheet URL is configured.
func (a *App) initEvents() error {
	ec := a.cfg.Events
	if !ec.Enabled() {
		a.log.Info("events feed disabled")
		return nil
	}
	loc, err := ec.Location()
	if err != nil {
		return err
	}
	opts := []events.Option{
		events.WithTimeout(ec.Timeout),
		events.WithLocation(loc),
		events.WithRetry(a.retryPolicy("fetch events")),
		events.WithMetrics(a.metrics),
		events.WithLogger(a.log),
	}
	if a.eventClient != nil {
		opts = append(opts, events.WithHTTPClient(a.eventClient))
	}
	a.events, err = events.New(ec.SheetURL, opts...)
	return err
}

// initHTTP mounts the API, health, and metrics routes behind the
// observability middleware.
func (a *App) initHTTP() {
	mux := http.NewServeMux()

	apiOpts := []api.Option{api.WithLogger(a.log)}
	if a.events != nil {
		apiOpts = append(apiOpts, api.WithEvents(a.events))
	}
	api.New(a.orchestrator, a.cfg.Chat.DefaultMessage, apiOpts...).Register(mux)

	health.New(health.Breaker("weather", a.weather)).Register(mux)

	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}

	a.handler = observe.Middleware(a.metrics)(mux)
	a.srv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
	}
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Orchestrator returns the chat orchestrator.
func (a *App) Orchestrator() *chat.Orchestrator { return a.orchestrator }

// Tools returns the tool registry offered to the assistant.
func (a *App) Tools() *tools.Registry { return a.tools }

// AddCloser registers fn to run during Shutdown, after the server stopped.
func (a *App) AddCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled, then shuts down gracefully within
// server.shutdown_timeout. It returns nil after a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen on %q: %w", a.cfg.Server.ListenAddr, err)
		}
	}
	a.log.Info("http server listening", "addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops accepting requests, waits for in-flight ones, and then runs
// the closers in registration order. It respects the context deadline: if ctx
// expires first, the remaining closers are skipped and the context error is
// returned. Calls after the first are no-ops.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		if err := a.srv.Shutdown(ctx); err != nil {
			a.log.Warn("http server shutdown error", "err", err)
			shutdownErr = err
			return
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
