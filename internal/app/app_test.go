package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/studioclock/timeturner/internal/clock"
	"github.com/studioclock/timeturner/internal/config"
	"github.com/studioclock/timeturner/internal/observe"
	"github.com/studioclock/timeturner/pkg/timecode"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func TestNew_WiresSubsystems(t *testing.T) {
	cfg := config.Default()
	cfg.Ingress.Source = config.SourceLines
	cfg.Server.ListenAddr = "127.0.0.1:0"

	a, err := New(context.Background(), cfg,
		WithMetrics(testMetrics(t)),
		WithSetter(clock.Nop{}),
		WithInput(strings.NewReader("")),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Consumer() == nil {
		t.Fatal("no consumer wired")
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestRun_ProcessesInputAndStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Ingress.Source = config.SourceLines
	cfg.Server.ListenAddr = "127.0.0.1:0"

	pr, pw := io.Pipe()
	a, err := New(context.Background(), cfg,
		WithMetrics(testMetrics(t)),
		WithSetter(clock.Nop{}),
		WithInput(pr),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	if _, err := io.WriteString(pw, "[LOCK] 10:00:00:00 | 25.00fps\n"); err != nil {
		t.Fatalf("write line: %v", err)
	}

	// Wait for the consumer to pick the line up.
	deadline := time.After(2 * time.Second)
	for a.Consumer().Snapshot().Session.Lines == 0 {
		select {
		case <-deadline:
			t.Fatal("line never consumed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if got := a.Consumer().Snapshot().State; got != timecode.StatusLock {
		t.Errorf("state = %v, want LOCK", got)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}

	_ = pw.Close()
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestSetterFor(t *testing.T) {
	t.Parallel()
	if got := setterFor(config.SetterSystem).Name(); got != "system" {
		t.Errorf("system setter name = %q", got)
	}
	if got := setterFor(config.SetterNone).Name(); got != "none" {
		t.Errorf("none setter name = %q", got)
	}
}
