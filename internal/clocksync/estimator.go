package clocksync

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/studioclock/timeturner/pkg/timecode"
)

// ErrDriftWarning flags a jump between consecutive decodes larger than the
// drift tolerance. It is informational: the sample is still recorded and
// the lock state is untouched.
var ErrDriftWarning = errors.New("clocksync: drift warning")

// defaultDriftMultiple is the tolerated discrepancy, in frame durations,
// between a decode and its predecessor's expected successor.
const defaultDriftMultiple = 2

// Sample is one offset observation between the local clock and the
// decoded timecode.
type Sample struct {
	// OffsetMs is local minus decoded, hardware compensation already
	// subtracted. Positive means the local clock runs ahead.
	OffsetMs float64 `json:"offset_ms"`

	// FrameOffset is OffsetMs expressed in whole frames at the decode rate.
	FrameOffset int `json:"frame_offset"`

	At time.Time `json:"at"`
}

// Estimator keeps a bounded FIFO of offset samples and reports their
// arithmetic means. The ms mean and the frame mean are computed from their
// own columns, never derived from each other, so rounding in the frame
// column cannot leak into the ms figure.
type Estimator struct {
	hardwareOffsetMs float64
	driftMultiple    float64
	capacity         int

	samples []Sample
	prev    timecode.Timecode
	hasPrev bool
}

// NewEstimator builds an empty estimator. capacity <= 0 selects 30
// samples, roughly one second of history at common frame rates;
// driftMultiple <= 0 selects 2 frame durations.
func NewEstimator(capacity int, hardwareOffsetMs, driftMultiple float64) *Estimator {
	if capacity <= 0 {
		capacity = 30
	}
	if driftMultiple <= 0 {
		driftMultiple = defaultDriftMultiple
	}
	return &Estimator{
		hardwareOffsetMs: hardwareOffsetMs,
		driftMultiple:    driftMultiple,
		capacity:         capacity,
	}
}

// SetHardwareOffset replaces the hardware latency compensation. Applied
// by config hot-reload; called only from the consumer goroutine.
func (e *Estimator) SetHardwareOffset(ms float64) { e.hardwareOffsetMs = ms }

// SetDriftMultiple replaces the drift tolerance, in frame durations.
// Values <= 0 select the default of 2.
func (e *Estimator) SetDriftMultiple(m float64) {
	if m <= 0 {
		m = defaultDriftMultiple
	}
	e.driftMultiple = m
}

// Observe computes the offset sample for one decode event, appends it to
// the history (evicting the oldest on overflow) and returns it. A
// discontinuity against the previous decode is reported as ErrDriftWarning
// alongside the sample.
func (e *Estimator) Observe(ev timecode.Event) (Sample, error) {
	decoded := ev.Timecode.WallClock(ev.At)
	offsetMs := float64(ev.At.Sub(decoded))/float64(time.Millisecond) - e.hardwareOffsetMs

	s := Sample{
		OffsetMs:    offsetMs,
		FrameOffset: int(math.Round(offsetMs / (1000 / ev.Timecode.Rate.FPS()))),
		At:          ev.At,
	}
	if len(e.samples) >= e.capacity {
		e.samples = append(e.samples[:0], e.samples[1:]...)
	}
	e.samples = append(e.samples, s)

	var err error
	if e.hasPrev && e.prev.Rate == ev.Timecode.Rate {
		expect := e.prev.Advance(1)
		if delta := ev.Timecode.FrameIndex() - expect.FrameIndex(); float64(absInt64(delta)) > e.driftMultiple {
			err = fmt.Errorf("%w: %v follows %v, %d frames off expected %v",
				ErrDriftWarning, ev.Timecode, e.prev, delta, expect)
		}
	}
	e.prev, e.hasPrev = ev.Timecode, true
	return s, err
}

// MeanMs returns the arithmetic mean of the buffered ms offsets, or 0 when
// empty.
func (e *Estimator) MeanMs() float64 {
	if len(e.samples) == 0 {
		return 0
	}
	col := make([]float64, len(e.samples))
	for i, s := range e.samples {
		col[i] = s.OffsetMs
	}
	return stat.Mean(col, nil)
}

// MeanFrames returns the arithmetic mean of the buffered frame offsets, or
// 0 when empty.
func (e *Estimator) MeanFrames() float64 {
	if len(e.samples) == 0 {
		return 0
	}
	col := make([]float64, len(e.samples))
	for i, s := range e.samples {
		col[i] = float64(s.FrameOffset)
	}
	return stat.Mean(col, nil)
}

// JitterMs returns the sample standard deviation of the ms offsets, or 0
// with fewer than two samples.
func (e *Estimator) JitterMs() float64 {
	if len(e.samples) < 2 {
		return 0
	}
	col := make([]float64, len(e.samples))
	for i, s := range e.samples {
		col[i] = s.OffsetMs
	}
	return stat.StdDev(col, nil)
}

// Len returns the number of buffered samples.
func (e *Estimator) Len() int { return len(e.samples) }

// Samples returns a copy of the buffered history, oldest first.
func (e *Estimator) Samples() []Sample {
	out := make([]Sample, len(e.samples))
	copy(out, e.samples)
	return out
}

// Clear drops the whole history and the drift predecessor. Called on every
// lock release.
func (e *Estimator) Clear() {
	e.samples = e.samples[:0]
	e.hasPrev = false
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
