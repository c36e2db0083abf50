// Package dsp turns windows of raw audio samples into classified pulse
// streams: rising-edge detection, optional high-pass pre-filtering, and
// short/long pulse classification with two interchangeable strategies.
//
// Everything here is stateless per analysis window; the accumulating
// bitstream lives in the ltc package.
package dsp

import "errors"

// ErrNoSignal is reported when a window contains fewer than two rising
// edges, i.e. there is nothing to measure pulse widths against.
var ErrNoSignal = errors.New("dsp: no signal (fewer than 2 edges)")

// RisingEdges returns the sample indices where the signal crosses from
// non-positive to positive. The indices are strictly increasing.
func RisingEdges(samples []float64) []int {
	var edges []int
	for i := 0; i+1 < len(samples); i++ {
		if samples[i] <= 0 && samples[i+1] > 0 {
			edges = append(edges, i)
		}
	}
	return edges
}

// Durations converts rising-edge indices into inter-edge pulse widths in
// seconds at the given sample rate. It returns ErrNoSignal when fewer than
// two edges are present.
func Durations(edges []int, sampleRate int) ([]float64, error) {
	if len(edges) < 2 {
		return nil, ErrNoSignal
	}
	out := make([]float64, len(edges)-1)
	for i := 1; i < len(edges); i++ {
		out[i-1] = float64(edges[i]-edges[i-1]) / float64(sampleRate)
	}
	return out, nil
}
