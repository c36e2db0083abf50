package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/studioclock/timeturner/internal/config"
)

func TestLoadFromReader_EmptyFileGetsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr: got %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Decode.Strategy != config.StrategyTwoMeans {
		t.Errorf("strategy: got %q, want two-means", cfg.Decode.Strategy)
	}
	if cfg.Ingress.SampleRate != 48000 {
		t.Errorf("sample_rate: got %d, want 48000", cfg.Ingress.SampleRate)
	}
	if cfg.Sync.SignalTimeout.Std() != 1500*time.Millisecond {
		t.Errorf("signal_timeout: got %v, want 1.5s", cfg.Sync.SignalTimeout)
	}
	if cfg.Decode.MinPulses != 1000 {
		t.Errorf("min_pulses: got %d, want 1000", cfg.Decode.MinPulses)
	}
	if cfg.Sync.DriftMultiple != 2 {
		t.Errorf("drift_multiple: got %v, want 2", cfg.Sync.DriftMultiple)
	}
}

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":9090"
  log_level: debug
ingress:
  source: audio
  path: /dev/snd/ltc
  format: wav
  sample_rate: 44100
  window_seconds: 0.5
decode:
  strategy: adaptive
  threshold_k: 1.4
  min_pulses: 100
sync:
  stability_window: 2s
  signal_timeout: 1.5s
  hardware_offset_ms: 12.5
  history: 50
  shift:
    hours: 1
    frames: 2
  auto_sync: true
  setter: system
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server block = %+v", cfg.Server)
	}
	if cfg.Ingress.Format != config.FormatWAV || cfg.Ingress.WindowSeconds != 0.5 {
		t.Errorf("ingress block = %+v", cfg.Ingress)
	}
	if cfg.Decode.Strategy != config.StrategyAdaptive || cfg.Decode.ThresholdK != 1.4 {
		t.Errorf("decode block = %+v", cfg.Decode)
	}
	// Omitted decode fields keep their defaults.
	if cfg.Decode.ScanWindowBits != 4096 {
		t.Errorf("scan_window_bits: got %d, want default 4096", cfg.Decode.ScanWindowBits)
	}
	if cfg.Sync.StabilityWindow.Std() != 2*time.Second {
		t.Errorf("stability_window: got %v, want 2s", cfg.Sync.StabilityWindow)
	}
	if cfg.Sync.Shift.Hours != 1 || cfg.Sync.Shift.Frames != 2 {
		t.Errorf("shift = %+v", cfg.Sync.Shift)
	}
	if !cfg.Sync.AutoSync || cfg.Sync.Setter != config.SetterSystem {
		t.Errorf("sync block = %+v", cfg.Sync)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_adr: ":8080"
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for misspelled field, got nil")
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: bananas
ingress:
  source: telepathy
decode:
  strategy: guesswork
  frame_rate: 60
  scan_window_bits: 10
sync:
  history: 9000
  drift_multiple: -1
  setter: ntp
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected validation errors, got nil")
	}
	for _, want := range []string{
		"server.log_level",
		"ingress.source",
		"decode.strategy",
		"decode.frame_rate",
		"decode.scan_window_bits",
		"sync.history",
		"sync.drift_multiple",
		"sync.setter",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_PartialTLS(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: /etc/ssl/tt.pem
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "server.tls") {
		t.Errorf("expected tls validation error, got: %v", err)
	}
}

func TestLoadFromReader_BadDuration(t *testing.T) {
	t.Parallel()
	yaml := `
sync:
  stability_window: soon
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unparseable duration, got nil")
	}
}

func TestLoadFromReader_NumericDurationIsSeconds(t *testing.T) {
	t.Parallel()
	yaml := `
sync:
  stability_window: 2.5
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sync.StabilityWindow.Std() != 2500*time.Millisecond {
		t.Errorf("stability_window: got %v, want 2.5s", cfg.Sync.StabilityWindow)
	}
}
