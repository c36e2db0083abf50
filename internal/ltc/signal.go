package ltc

import (
	"math"

	"github.com/studioclock/timeturner/pkg/timecode"
)

// synthAmplitude keeps generated audio comfortably inside full scale.
const synthAmplitude = 0.8

// Synthesize renders a bit sequence as a square wave at the given sample
// rate. A 0 bit occupies one full bit cell between rising edges, a 1 bit
// half a cell, matching the pulse widths the classifier expects. The
// output starts with a short negative run so the first rising edge is
// observable.
func Synthesize(bits []byte, cellSeconds float64, sampleRate int) []float64 {
	lead := sampleRate / 1000
	if lead < 4 {
		lead = 4
	}
	out := make([]float64, lead, lead+len(bits)*int(cellSeconds*float64(sampleRate)+1))
	for i := range out {
		out[i] = -synthAmplitude
	}

	// Edges sit on a cumulative time grid so per-bit rounding cannot
	// accumulate into a rate error over a whole frame.
	pos := float64(lead)
	for _, b := range bits {
		interval := cellSeconds * float64(sampleRate)
		if b == 1 {
			interval /= 2
		}
		start := int(math.Round(pos))
		end := int(math.Round(pos + interval))
		for i := start; i < end; i++ {
			if i-start < (end-start)/2 {
				out = append(out, synthAmplitude)
			} else {
				out = append(out, -synthAmplitude)
			}
		}
		pos += interval
	}
	// Closing edge so the final bit's pulse width is measurable.
	out = append(out, synthAmplitude, synthAmplitude)
	return out
}

// SynthesizeTimecode renders one full frame (sync word plus payload) for
// the given timecode at its own rate. Used by the probe self-test and by
// pipeline tests.
func SynthesizeTimecode(tc timecode.Timecode, dropFrame bool, sampleRate int) []float64 {
	cell := 1 / (tc.Rate.FPS() * float64(bitsPerFrame))
	return Synthesize(EncodeBits(tc, dropFrame), cell, sampleRate)
}
