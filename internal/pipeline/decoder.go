package pipeline

import (
	"errors"
	"fmt"

	"github.com/studioclock/timeturner/internal/config"
	"github.com/studioclock/timeturner/internal/dsp"
	"github.com/studioclock/timeturner/internal/ltc"
	"github.com/studioclock/timeturner/pkg/timecode"
)

// ErrNotBiphase is reported when a window carries plenty of pulses but
// their short/long balance rules out a biphase-mark stream, e.g. a plain
// tone or hum on the capture input.
var ErrNotBiphase = errors.New("pipeline: window is not biphase-mark")

// ErrRateUnknown is reported when the bit cell width matches no known
// frame rate and no earlier window established one.
var ErrRateUnknown = errors.New("pipeline: frame rate not yet inferred")

// AudioDecoder runs one window of samples through the full decode
// chain: optional high-pass, edge detection, pulse classification, bit
// accumulation and frame extraction. It carries the bitstream and the
// inferred frame rate across windows and is owned by the consumer
// goroutine; it is not safe for concurrent use.
type AudioDecoder struct {
	cfg        config.DecodeConfig
	classifier dsp.Classifier
	stream     *ltc.Bitstream

	filter     *dsp.HighPass
	filterRate int

	rate   timecode.FrameRate
	pinned bool
}

// NewAudioDecoder builds a decoder for the configured strategy. A
// non-zero cfg.FrameRate pins the rate and disables inference.
func NewAudioDecoder(cfg config.DecodeConfig) (*AudioDecoder, error) {
	c, err := dsp.NewClassifier(string(cfg.Strategy), cfg.ThresholdK, cfg.MaxIterations)
	if err != nil {
		return nil, err
	}
	d := &AudioDecoder{
		cfg:        cfg,
		classifier: c,
		stream:     ltc.NewBitstream(cfg.ScanWindowBits),
	}
	if cfg.FrameRate != 0 {
		rate, err := timecode.FromFPS(cfg.FrameRate)
		if err != nil {
			return nil, err
		}
		d.rate = rate
		d.pinned = true
	}
	return d, nil
}

// Strategy names the active classification strategy.
func (d *AudioDecoder) Strategy() string { return d.classifier.Name() }

// Rate returns the most recently inferred frame rate.
func (d *AudioDecoder) Rate() timecode.FrameRate { return d.rate }

// Reset drops the accumulated bitstream. Called after signal loss so a
// stale partial frame cannot bridge the gap.
func (d *AudioDecoder) Reset() { d.stream.Reset() }

// DecodeWindow processes one window and returns the decode events it
// completed. Events and an error can be returned together: frames
// extracted before a no-sync flush or an invalid payload are still
// good.
func (d *AudioDecoder) DecodeWindow(w Window) ([]timecode.Event, dsp.WindowStats, error) {
	if d.filter == nil || d.filterRate != w.SampleRate {
		d.filter = dsp.NewHighPass(d.cfg.HighPassHz, w.SampleRate)
		d.filterRate = w.SampleRate
	}
	samples := d.filter.Apply(w.Samples)

	edges := dsp.RisingEdges(samples)
	durations, err := dsp.Durations(edges, w.SampleRate)
	if err != nil {
		return nil, dsp.WindowStats{}, err
	}

	stats, labels, err := dsp.Analyze(durations, d.classifier, d.cfg.MinPulses)
	if err != nil {
		return nil, stats, err
	}
	if !stats.BiphaseLike(d.cfg.BiphaseLowPct, d.cfg.BiphaseHighPct) {
		return nil, stats, fmt.Errorf("%w: %.1f%% short pulses", ErrNotBiphase, stats.ShortPct)
	}

	// The long-pulse mean approximates one bit cell, which pins the
	// frame rate. A failed inference on a window that otherwise looks
	// fine keeps the previously established rate.
	if !d.pinned {
		if rate, rerr := ltc.InferRate(stats.LongMean); rerr == nil {
			d.rate = rate
		} else if d.rate == timecode.RateUnknown {
			return nil, stats, fmt.Errorf("%w: %v", ErrRateUnknown, rerr)
		}
	}

	d.stream.Append(labels)
	frames, ferr := d.stream.Frames()

	events := make([]timecode.Event, 0, len(frames))
	for _, f := range frames {
		tc, derr := f.Decode(d.rate)
		if derr != nil {
			return events, stats, derr
		}
		events = append(events, timecode.Event{
			Timecode:  tc,
			Status:    timecode.StatusLock,
			DropFrame: f.DropFrame(),
			At:        w.At,
		})
	}
	return events, stats, ferr
}
