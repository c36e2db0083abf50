// Package app wires all timeturner subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the pipeline and HTTP server, and Shutdown
// tears everything down in order.
//
// For testing, inject collaborators via functional options (WithSetter,
// WithMetrics, WithInput). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/studioclock/timeturner/internal/api"
	"github.com/studioclock/timeturner/internal/clock"
	"github.com/studioclock/timeturner/internal/config"
	"github.com/studioclock/timeturner/internal/health"
	"github.com/studioclock/timeturner/internal/logbuf"
	"github.com/studioclock/timeturner/internal/observe"
	"github.com/studioclock/timeturner/internal/pipeline"
)

// Version is stamped by the build; "dev" otherwise.
var Version = "dev"

// App owns all subsystem lifetimes.
type App struct {
	cfg        *config.Config
	configPath string

	logLevel *slog.LevelVar
	logs     *logbuf.Buffer
	metrics  *observe.Metrics
	setter   clock.Setter
	input    io.Reader

	pipe    *pipeline.Pipeline
	server  *api.Server
	watcher *config.Watcher

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSetter injects a clock setter instead of building one from the
// config.
func WithSetter(s clock.Setter) Option {
	return func(a *App) { a.setter = s }
}

// WithMetrics injects a metrics set and skips global OTel provider
// initialisation. Tests use this to avoid cross-test pollution.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithInput substitutes the ingress byte source, bypassing the
// configured path.
func WithInput(r io.Reader) Option {
	return func(a *App) { a.input = r }
}

// WithConfigWatch enables hot reload by polling the given config file.
func WithConfigWatch(path string) Option {
	return func(a *App) { a.configPath = path }
}

// New creates an App by wiring all subsystems together: logging with
// the in-memory ring for /api/logs, the OTel providers, the clock
// setter, the decode pipeline and the HTTP API.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	a.initLogging()

	if a.metrics == nil {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceVersion: Version,
		})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.closers = append(a.closers, func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdown(closeCtx)
		})
		a.metrics = observe.DefaultMetrics()
	}

	if a.setter == nil {
		a.setter = setterFor(cfg.Sync.Setter)
	}

	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	a.initServer()

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.onConfigChange)
		if err != nil {
			return nil, fmt.Errorf("app: init config watcher: %w", err)
		}
		a.watcher = w
		a.closers = append(a.closers, func() error {
			w.Stop()
			return nil
		})
	}

	return a, nil
}

// initLogging installs the default slog logger: a text handler at the
// configured level, teed through the ring buffer behind /api/logs.
func (a *App) initLogging() {
	a.logLevel = new(slog.LevelVar)
	a.logLevel.Set(a.cfg.Server.LogLevel.Level())
	a.logs = logbuf.NewBuffer(logbuf.DefaultCapacity)

	text := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: a.logLevel})
	slog.SetDefault(slog.New(logbuf.NewHandler(text, a.logs)))
}

func (a *App) initPipeline() error {
	opts := []pipeline.Option{
		pipeline.WithSetter(a.setter),
		// The server does not exist yet; the indirection lets the
		// consumer broadcast to it once it does.
		pipeline.WithNotify(func(snap pipeline.Snapshot) {
			if a.server != nil {
				a.server.Broadcast(snap)
			}
		}),
	}
	if a.input != nil {
		opts = append(opts, pipeline.WithInput(a.input))
	}

	p, err := pipeline.New(a.cfg, a.metrics, opts...)
	if err != nil {
		return err
	}
	a.pipe = p
	return nil
}

func (a *App) initServer() {
	// Readiness follows ingress freshness: twice the signal timeout of
	// silence marks the daemon not ready.
	staleAfter := 2 * a.cfg.Sync.SignalTimeout.Std()
	h := health.New(
		health.Freshness("ingress", a.pipe.Consumer().LastIngress, staleAfter),
	)

	a.server = api.New(api.Options{
		Addr:     a.cfg.Server.ListenAddr,
		Consumer: a.pipe.Consumer(),
		Logs:     a.logs,
		Health:   h,
		Metrics:  a.metrics,
		Config:   a.currentConfig,
		TLS:      a.cfg.Server.TLS,
	})
}

// currentConfig returns the active configuration, preferring the
// watcher's latest valid load.
func (a *App) currentConfig() *config.Config {
	if a.watcher != nil {
		return a.watcher.Current()
	}
	return a.cfg
}

// onConfigChange applies what can be applied live: the log level
// immediately, the sync tunables via the consumer's retune queue.
// Tracker timing, history capacity, setter choice and the decode and
// ingress blocks take effect on restart.
func (a *App) onConfigChange(old, cfg *config.Config, diff config.ConfigDiff) {
	if diff.LogLevelChanged {
		a.logLevel.Set(diff.NewLogLevel.Level())
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.SyncChanged {
		if !a.pipe.Consumer().Retune(cfg.Sync) {
			slog.Warn("could not apply reloaded sync tunables, consumer not accepting retunes")
		}
		if old.Sync.StabilityWindow != cfg.Sync.StabilityWindow ||
			old.Sync.SignalTimeout != cfg.Sync.SignalTimeout ||
			old.Sync.History != cfg.Sync.History ||
			old.Sync.Setter != cfg.Sync.Setter {
			slog.Info("sync tuning changed, tracker, history and setter settings apply on restart")
		}
	}
	if diff.DecodeChanged {
		slog.Info("decode tuning changed, applies on restart")
	}
}

// Consumer exposes the pipeline consumer, mainly for subcommands and
// tests.
func (a *App) Consumer() *pipeline.Consumer { return a.pipe.Consumer() }

// Run executes the pipeline and the HTTP server until ctx is cancelled
// or either fails. A drained ingress (EOF on a file source) stops the
// pipeline but keeps the API serving the final state.
func (a *App) Run(ctx context.Context) error {
	slog.Info("timeturner running",
		"source", a.cfg.Ingress.Source,
		"listen_addr", a.cfg.Server.ListenAddr,
		"setter", a.setter.Name(),
		"auto_sync", a.cfg.Sync.AutoSync,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(ctx) })
	g.Go(func() error { return a.pipe.Run(ctx) })
	return g.Wait()
}

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers
// are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// setterFor maps the configured setter name onto an implementation. The
// system setter is wrapped in a failure guard so a broken privileged
// helper does not get retried on every eligible frame.
func setterFor(s config.Setter) clock.Setter {
	if s == config.SetterSystem {
		return clock.NewGuard(&clock.System{}, clock.GuardConfig{})
	}
	return clock.Nop{}
}
