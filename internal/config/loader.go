package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/studioclock/timeturner/pkg/timecode"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults for absent
// fields and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Ingress
	if !cfg.Ingress.Source.IsValid() {
		errs = append(errs, fmt.Errorf("ingress.source %q is invalid; valid values: audio, lines", cfg.Ingress.Source))
	}
	if cfg.Ingress.Path == "" {
		errs = append(errs, errors.New(`ingress.path is required ("-" for stdin)`))
	}
	if cfg.Ingress.Source == SourceAudio {
		if !cfg.Ingress.Format.IsValid() {
			errs = append(errs, fmt.Errorf("ingress.format %q is invalid; valid values: pcm, wav", cfg.Ingress.Format))
		}
		if cfg.Ingress.SampleRate <= 0 {
			errs = append(errs, fmt.Errorf("ingress.sample_rate %d must be positive", cfg.Ingress.SampleRate))
		} else if cfg.Ingress.SampleRate < 8000 {
			slog.Warn("ingress.sample_rate is low; LTC pulse widths may fall below sample resolution",
				"sample_rate", cfg.Ingress.SampleRate)
		}
		if cfg.Ingress.WindowSeconds <= 0 || cfg.Ingress.WindowSeconds > 10 {
			errs = append(errs, fmt.Errorf("ingress.window_seconds %.2f is out of range (0, 10]", cfg.Ingress.WindowSeconds))
		}
	}

	// Decode
	if !cfg.Decode.Strategy.IsValid() {
		errs = append(errs, fmt.Errorf("decode.strategy %q is invalid; valid values: adaptive, two-means", cfg.Decode.Strategy))
	}
	if fps := cfg.Decode.FrameRate; fps != 0 {
		if _, err := timecode.FromFPS(fps); err != nil {
			errs = append(errs, fmt.Errorf("decode.frame_rate: %w", err))
		}
	}
	if cfg.Decode.ThresholdK <= 0 {
		errs = append(errs, fmt.Errorf("decode.threshold_k %.2f must be positive", cfg.Decode.ThresholdK))
	} else if cfg.Decode.ThresholdK < 1.2 || cfg.Decode.ThresholdK > 1.5 {
		slog.Warn("decode.threshold_k outside the usual 1.2-1.5 band", "threshold_k", cfg.Decode.ThresholdK)
	}
	if cfg.Decode.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("decode.max_iterations %d must be positive", cfg.Decode.MaxIterations))
	}
	if cfg.Decode.MinPulses <= 0 {
		errs = append(errs, fmt.Errorf("decode.min_pulses %d must be positive", cfg.Decode.MinPulses))
	}
	if cfg.Decode.HighPassHz < 0 {
		errs = append(errs, fmt.Errorf("decode.highpass_hz %.1f must not be negative", cfg.Decode.HighPassHz))
	}
	if cfg.Decode.ScanWindowBits < 96 {
		errs = append(errs, fmt.Errorf("decode.scan_window_bits %d is smaller than one frame", cfg.Decode.ScanWindowBits))
	}
	if lo, hi := cfg.Decode.BiphaseLowPct, cfg.Decode.BiphaseHighPct; lo < 0 || hi > 100 || lo >= hi {
		errs = append(errs, fmt.Errorf("decode.biphase_low_pct/high_pct %.1f/%.1f must satisfy 0 <= low < high <= 100", lo, hi))
	}

	// Sync
	if cfg.Sync.StabilityWindow <= 0 {
		errs = append(errs, fmt.Errorf("sync.stability_window %v must be positive", cfg.Sync.StabilityWindow))
	}
	if cfg.Sync.SignalTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sync.signal_timeout %v must be positive", cfg.Sync.SignalTimeout))
	}
	if cfg.Sync.SignalTimeout > 0 && cfg.Sync.SignalTimeout < cfg.Sync.StabilityWindow {
		slog.Warn("sync.signal_timeout shorter than sync.stability_window; locks may time out before becoming eligible",
			"signal_timeout", cfg.Sync.SignalTimeout,
			"stability_window", cfg.Sync.StabilityWindow)
	}
	if cfg.Sync.DriftMultiple <= 0 {
		errs = append(errs, fmt.Errorf("sync.drift_multiple %.1f must be positive", cfg.Sync.DriftMultiple))
	}
	if cfg.Sync.History < 1 || cfg.Sync.History > 512 {
		errs = append(errs, fmt.Errorf("sync.history %d is out of range [1, 512]", cfg.Sync.History))
	}
	if cfg.Sync.MatchTolerance <= 0 {
		errs = append(errs, fmt.Errorf("sync.match_tolerance %v must be positive", cfg.Sync.MatchTolerance))
	}
	if !cfg.Sync.Setter.IsValid() {
		errs = append(errs, fmt.Errorf("sync.setter %q is invalid; valid values: none, system", cfg.Sync.Setter))
	}
	if cfg.Sync.AutoSync && cfg.Sync.Setter == SetterNone {
		slog.Warn("sync.auto_sync is enabled but sync.setter is none; corrections will only be logged")
	}

	return errors.Join(errs...)
}
