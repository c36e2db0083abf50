package clock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrGuardTripped is returned by [Guard.Set] while the guard is refusing
// corrections after repeated setter failures.
var ErrGuardTripped = errors.New("clock: setter guard tripped")

// GuardConfig tunes a [Guard]. Zero fields take defaults.
type GuardConfig struct {
	// MaxFailures is how many consecutive Set failures trip the guard.
	// Default: 3.
	MaxFailures int

	// Cooldown is how long a tripped guard refuses corrections before
	// letting the next attempt through as a probe. Default: 1m.
	Cooldown time.Duration
}

// Guard wraps a [Setter] and trips after consecutive failures, so that a
// broken privileged helper (a missing binary, a permission error) is not
// retried on every eligible frame. After the cooldown a single probe call
// is allowed; its outcome decides whether the guard resets or re-trips.
//
// Safe for concurrent use, although the consumer loop is the only caller
// in practice.
type Guard struct {
	inner       Setter
	maxFailures int
	cooldown    time.Duration

	mu       sync.Mutex
	failures int
	tripped  bool
	lastFail time.Time
}

// NewGuard wraps inner. A nil inner panics; wrap [Nop] explicitly if a
// do-nothing setter is wanted.
func NewGuard(inner Setter, cfg GuardConfig) *Guard {
	if inner == nil {
		panic("clock: NewGuard called with nil setter")
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	return &Guard{inner: inner, maxFailures: cfg.MaxFailures, cooldown: cfg.Cooldown}
}

// Name reports the wrapped setter's name.
func (g *Guard) Name() string { return g.inner.Name() }

// Tripped reports whether the guard is currently refusing corrections.
// A guard past its cooldown reports false; the next Set is the probe.
func (g *Guard) Tripped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tripped && time.Since(g.lastFail) < g.cooldown
}

// Set forwards to the wrapped setter unless the guard is tripped and
// still cooling down, in which case it returns [ErrGuardTripped] without
// touching the clock.
func (g *Guard) Set(ctx context.Context, to time.Time) error {
	g.mu.Lock()
	if g.tripped {
		if time.Since(g.lastFail) < g.cooldown {
			g.mu.Unlock()
			return fmt.Errorf("%w after %d failures of %q", ErrGuardTripped, g.failures, g.inner.Name())
		}
		slog.Info("setter guard probing after cooldown", "setter", g.inner.Name())
	}
	g.mu.Unlock()

	err := g.inner.Set(ctx, to)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.failures++
		g.lastFail = time.Now()
		if g.tripped || g.failures >= g.maxFailures {
			g.tripped = true
			slog.Warn("setter guard tripped",
				"setter", g.inner.Name(),
				"consecutive_failures", g.failures,
				"cooldown", g.cooldown)
		}
		return err
	}
	if g.tripped || g.failures > 0 {
		slog.Info("setter guard reset", "setter", g.inner.Name())
	}
	g.failures = 0
	g.tripped = false
	return nil
}
