package ltc

import (
	"testing"

	"github.com/studioclock/timeturner/internal/dsp"
	"github.com/studioclock/timeturner/pkg/timecode"
)

// Synthesized audio must survive the whole decode chain: edge detection,
// pulse classification, framing and BCD decode.
func TestSynthesize_DecodesBack(t *testing.T) {
	t.Parallel()
	want := timecode.Timecode{Hours: 14, Minutes: 30, Seconds: 5, Frames: 20, Rate: timecode.Rate25}
	samples := SynthesizeTimecode(want, false, 48000)

	edges := dsp.RisingEdges(samples)
	durations, err := dsp.Durations(edges, 48000)
	if err != nil {
		t.Fatalf("Durations: %v", err)
	}
	if len(durations) != SyncWordBits+FrameBits {
		t.Fatalf("got %d pulse durations, want %d", len(durations), SyncWordBits+FrameBits)
	}

	for _, c := range []dsp.Classifier{
		dsp.AdaptiveThreshold{K: 1.35},
		dsp.TwoMeans{MaxIter: 10},
	} {
		s := NewBitstream(0)
		s.Append(c.Classify(durations))
		frames, err := s.Frames()
		if err != nil || len(frames) != 1 {
			t.Fatalf("%s: frames=%d err=%v, want 1", c.Name(), len(frames), err)
		}
		got, err := frames[0].Decode(timecode.Rate25)
		if err != nil {
			t.Fatalf("%s: Decode: %v", c.Name(), err)
		}
		if got != want {
			t.Errorf("%s: decoded %v, want %v", c.Name(), got, want)
		}
	}
}

func TestSynthesize_RateInference(t *testing.T) {
	t.Parallel()
	tc := timecode.Timecode{Hours: 1, Rate: timecode.Rate25}
	samples := SynthesizeTimecode(tc, false, 48000)

	edges := dsp.RisingEdges(samples)
	durations, _ := dsp.Durations(edges, 48000)
	stats, _, err := dsp.Analyze(durations, dsp.TwoMeans{MaxIter: 10}, 10)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	rate, err := InferRate(stats.LongMean)
	if err != nil {
		t.Fatalf("InferRate: %v", err)
	}
	if rate != timecode.Rate25 {
		t.Errorf("inferred %v, want 25fps", rate)
	}
}
