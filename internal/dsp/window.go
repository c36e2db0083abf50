package dsp

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientPulses is reported when a window carries too few pulses to
// be trusted. At LTC bit rates a 1-second window should hold well over a
// thousand edges; a sparse window is noise, not timecode.
var ErrInsufficientPulses = errors.New("dsp: insufficient pulses in window")

// WindowStats summarises one analysed window of pulse durations.
type WindowStats struct {
	// Pulses is the total number of inter-edge durations in the window.
	Pulses int

	// MeanWidth is the arithmetic mean pulse width in seconds.
	MeanWidth float64

	// ShortMean and LongMean are the per-class mean widths in seconds.
	// LongMean approximates one full bit cell.
	ShortMean float64
	LongMean  float64

	ShortCount int
	LongCount  int

	// ShortPct and LongPct are the class shares in percent.
	ShortPct float64
	LongPct  float64
}

// Analyze classifies the window's durations and computes its statistics.
// minPulses below the observed count yields ErrInsufficientPulses; the
// stats are still returned for observability.
func Analyze(durations []float64, c Classifier, minPulses int) (WindowStats, []Label, error) {
	labels := c.Classify(durations)

	s := WindowStats{Pulses: len(durations)}
	if len(durations) > 0 {
		s.MeanWidth = stat.Mean(durations, nil)
	}

	var sumShort, sumLong float64
	for i, l := range labels {
		if l == Short {
			s.ShortCount++
			sumShort += durations[i]
		} else {
			s.LongCount++
			sumLong += durations[i]
		}
	}
	if s.ShortCount > 0 {
		s.ShortMean = sumShort / float64(s.ShortCount)
	}
	if s.LongCount > 0 {
		s.LongMean = sumLong / float64(s.LongCount)
	}
	if s.Pulses > 0 {
		s.ShortPct = float64(s.ShortCount) / float64(s.Pulses) * 100
		s.LongPct = float64(s.LongCount) / float64(s.Pulses) * 100
	}

	if s.Pulses < minPulses {
		return s, labels, fmt.Errorf("%w: %d < %d", ErrInsufficientPulses, s.Pulses, minPulses)
	}
	return s, labels, nil
}

// BiphaseLike reports whether the short-pulse share sits inside the band
// expected of a biphase-mark stream. Shares near 0%% or 100%% indicate a
// plain tone or a corrupted capture rather than LTC.
func (s WindowStats) BiphaseLike(loPct, hiPct float64) bool {
	return s.ShortPct >= loPct && s.ShortPct <= hiPct
}
