// Package config provides the configuration schema, loader and file
// watcher for the timeturner daemon.
package config

import (
	"log/slog"
	"time"

	"github.com/studioclock/timeturner/internal/clocksync"
)

// LogLevel controls log verbosity for the timeturner daemon.
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

// Level maps l onto the slog levels. Unrecognised or empty values map to
// info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Source selects which ingress feeds the decode pipeline.
type Source string

const (
	// SourceAudio decodes raw LTC audio.
	SourceAudio Source = "audio"

	// SourceLines parses pre-decoded status lines from external decoder
	// hardware.
	SourceLines Source = "lines"
)

// IsValid reports whether s is a recognised ingress source.
func (s Source) IsValid() bool {
	return s == SourceAudio || s == SourceLines
}

// AudioFormat selects how the audio ingress bytes are framed.
type AudioFormat string

const (
	// FormatPCM is headerless s16le mono, as piped from arecord or ffmpeg.
	FormatPCM AudioFormat = "pcm"

	// FormatWAV is a RIFF capture with its own sample-rate header.
	FormatWAV AudioFormat = "wav"
)

// IsValid reports whether f is a recognised audio format.
func (f AudioFormat) IsValid() bool {
	return f == FormatPCM || f == FormatWAV
}

// Strategy selects the pulse classification algorithm.
type Strategy string

const (
	StrategyAdaptive Strategy = "adaptive"
	StrategyTwoMeans Strategy = "two-means"
)

// IsValid reports whether s is a recognised classification strategy.
func (s Strategy) IsValid() bool {
	return s == StrategyAdaptive || s == StrategyTwoMeans
}

// Setter selects which clock setter corrections are delegated to.
type Setter string

const (
	// SetterNone logs corrections without touching the system clock.
	SetterNone Setter = "none"

	// SetterSystem applies corrections to the system clock. Requires the
	// daemon to run with clock-setting privileges.
	SetterSystem Setter = "system"
)

// IsValid reports whether s is a recognised setter.
func (s Setter) IsValid() bool {
	return s == SetterNone || s == SetterSystem
}

// Config is the root configuration structure for timeturner.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Ingress IngressConfig `yaml:"ingress"`
	Decode  DecodeConfig  `yaml:"decode"`
	Sync    SyncConfig    `yaml:"sync"`
}

// ServerConfig holds network and logging settings for the HTTP API.
type ServerConfig struct {
	// ListenAddr is the TCP address the API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// IngressConfig describes where the timecode signal comes from.
type IngressConfig struct {
	// Source selects the ingress kind.
	Source Source `yaml:"source"`

	// Path is the input file, device or FIFO. "-" reads stdin, which is
	// the common arrangement behind an arecord pipe.
	Path string `yaml:"path"`

	// Format frames the audio bytes. Ignored for the lines source.
	Format AudioFormat `yaml:"format"`

	// SampleRate is the capture rate in Hz for headerless PCM. A WAV
	// source carries its own rate and overrides this.
	SampleRate int `yaml:"sample_rate"`

	// WindowSeconds is the analysis window length.
	WindowSeconds float64 `yaml:"window_seconds"`
}

// DecodeConfig tunes the pulse classifier and frame synchroniser.
type DecodeConfig struct {
	// Strategy selects the pulse classification algorithm.
	Strategy Strategy `yaml:"strategy"`

	// FrameRate pins the frame rate in fps instead of inferring it from
	// the bit cell width. 0 leaves inference on.
	FrameRate float64 `yaml:"frame_rate"`

	// ThresholdK scales the adaptive threshold's short-width estimate.
	ThresholdK float64 `yaml:"threshold_k"`

	// MaxIterations caps the two-means reassignment loop.
	MaxIterations int `yaml:"max_iterations"`

	// MinPulses is the minimum pulse count for a window to be analysed.
	// Genuine LTC yields well over a thousand pulses per second; short
	// probe windows configure this down explicitly.
	MinPulses int `yaml:"min_pulses"`

	// HighPassHz enables DC-bias removal before edge detection. 0 disables.
	HighPassHz float64 `yaml:"highpass_hz"`

	// ScanWindowBits bounds the sync-word search before the stream is
	// declared unframed.
	ScanWindowBits int `yaml:"scan_window_bits"`

	// BiphaseLowPct and BiphaseHighPct bound the short-pulse share a
	// window must show to be treated as biphase-mark at all.
	BiphaseLowPct  float64 `yaml:"biphase_low_pct"`
	BiphaseHighPct float64 `yaml:"biphase_high_pct"`
}

// SyncConfig tunes the lock tracker and the sync authority.
type SyncConfig struct {
	// StabilityWindow is how long a lock must hold before corrections are
	// trusted.
	StabilityWindow Duration `yaml:"stability_window"`

	// SignalTimeout forces FREE after this much silence while locked.
	SignalTimeout Duration `yaml:"signal_timeout"`

	// HardwareOffsetMs compensates fixed capture latency, in milliseconds.
	HardwareOffsetMs float64 `yaml:"hardware_offset_ms"`

	// History is the offset ring-buffer capacity.
	History int `yaml:"history"`

	// DriftMultiple is the tolerated jump between consecutive decodes,
	// in frame durations, before a drift warning is raised.
	DriftMultiple float64 `yaml:"drift_multiple"`

	// Shift is the deliberate displacement applied to every correction.
	Shift clocksync.Shift `yaml:"shift"`

	// AutoSync applies allowed corrections automatically instead of
	// waiting for an explicit /api/sync request.
	AutoSync bool `yaml:"auto_sync"`

	// MatchTolerance is the window within which the system clock counts
	// as in sync with the feed.
	MatchTolerance Duration `yaml:"match_tolerance"`

	// Setter selects who applies corrections.
	Setter Setter `yaml:"setter"`
}

// Default returns the configuration used when a field (or the whole file)
// is absent.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Ingress: IngressConfig{
			Source:        SourceAudio,
			Path:          "-",
			Format:        FormatPCM,
			SampleRate:    48000,
			WindowSeconds: 1,
		},
		Decode: DecodeConfig{
			Strategy:       StrategyTwoMeans,
			ThresholdK:     1.35,
			MaxIterations:  10,
			MinPulses:      1000,
			ScanWindowBits: 4096,
			BiphaseLowPct:  10,
			BiphaseHighPct: 90,
		},
		Sync: SyncConfig{
			StabilityWindow: Duration(time.Second),
			SignalTimeout:   Duration(1500 * time.Millisecond),
			History:         30,
			DriftMultiple:   2,
			MatchTolerance:  Duration(5 * time.Second),
			Setter:          SetterNone,
		},
	}
}
