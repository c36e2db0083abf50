package dsp

import "math"

// HighPass is a single-pole high-pass filter used to strip DC bias from a
// capture before edge detection. LTC is an audio-band square-ish wave; a
// DC-shifted capture would otherwise miss zero crossings entirely.
type HighPass struct {
	alpha float64
	prevX float64
	prevY float64
	primed bool
}

// NewHighPass creates a filter with the given cutoff frequency for signals
// sampled at sampleRate Hz. A cutoff of 0 disables filtering (Apply becomes
// a copy).
func NewHighPass(cutoffHz float64, sampleRate int) *HighPass {
	if cutoffHz <= 0 {
		return &HighPass{alpha: 1}
	}
	rc := 1 / (2 * math.Pi * cutoffHz)
	dt := 1 / float64(sampleRate)
	return &HighPass{alpha: rc / (rc + dt)}
}

// Apply filters samples in place and returns the same slice. The filter
// carries state across calls so consecutive windows stay continuous.
func (h *HighPass) Apply(samples []float64) []float64 {
	if h.alpha >= 1 {
		return samples
	}
	for i, x := range samples {
		if !h.primed {
			h.primed = true
			h.prevX, h.prevY = x, 0
			samples[i] = 0
			continue
		}
		y := h.alpha * (h.prevY + x - h.prevX)
		h.prevX, h.prevY = x, y
		samples[i] = y
	}
	return samples
}
