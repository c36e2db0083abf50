package dsp

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestRisingEdges(t *testing.T) {
	t.Parallel()
	samples := []float64{-1, -1, 1, 1, -1, 1, -1}
	edges := RisingEdges(samples)
	want := []int{1, 4}
	if len(edges) != len(want) {
		t.Fatalf("edges = %v, want %v", edges, want)
	}
	for i := range want {
		if edges[i] != want[i] {
			t.Errorf("edges[%d] = %d, want %d", i, edges[i], want[i])
		}
	}
}

func TestRisingEdges_ConstantSignal(t *testing.T) {
	t.Parallel()
	flat := make([]float64, 48000)
	for i := range flat {
		flat[i] = 0.5
	}
	if edges := RisingEdges(flat); len(edges) != 0 {
		t.Errorf("constant signal produced %d edges, want 0", len(edges))
	}
}

func TestDurations_NoSignal(t *testing.T) {
	t.Parallel()
	if _, err := Durations(nil, 48000); !errors.Is(err, ErrNoSignal) {
		t.Errorf("Durations(nil) err = %v, want ErrNoSignal", err)
	}
	if _, err := Durations([]int{100}, 48000); !errors.Is(err, ErrNoSignal) {
		t.Errorf("Durations(single edge) err = %v, want ErrNoSignal", err)
	}
}

func TestDurations(t *testing.T) {
	t.Parallel()
	d, err := Durations([]int{0, 24, 72}, 48000)
	if err != nil {
		t.Fatalf("Durations: %v", err)
	}
	if math.Abs(d[0]-0.0005) > 1e-12 || math.Abs(d[1]-0.001) > 1e-12 {
		t.Errorf("durations = %v, want [0.0005 0.001]", d)
	}
}

// synthPopulation builds a pulse-duration population with the given number
// of short and long pulses, jittered by up to ±10% of the class width, and
// returns the durations together with the ground-truth labels.
func synthPopulation(rng *rand.Rand, nShort, nLong int) ([]float64, []Label) {
	const shortBase, longBase = 0.0005, 0.001
	n := nShort + nLong
	durations := make([]float64, 0, n)
	truth := make([]Label, 0, n)
	for range nShort {
		durations = append(durations, shortBase*(1+0.1*(rng.Float64()*2-1)))
		truth = append(truth, Short)
	}
	for range nLong {
		durations = append(durations, longBase*(1+0.1*(rng.Float64()*2-1)))
		truth = append(truth, Long)
	}
	rng.Shuffle(n, func(i, j int) {
		durations[i], durations[j] = durations[j], durations[i]
		truth[i], truth[j] = truth[j], truth[i]
	})
	return durations, truth
}

func accuracy(got, want []Label) float64 {
	correct := 0
	for i := range want {
		if got[i] == want[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(want))
}

func TestClassifiers_SkewedRatios(t *testing.T) {
	t.Parallel()
	classifiers := []Classifier{
		AdaptiveThreshold{K: 1.35},
		TwoMeans{MaxIter: 10},
	}
	ratios := []struct{ short, long int }{
		{100, 900},
		{300, 700},
		{500, 500},
		{700, 300},
		{900, 100},
	}

	for _, c := range classifiers {
		for _, r := range ratios {
			rng := rand.New(rand.NewSource(42))
			durations, truth := synthPopulation(rng, r.short, r.long)
			got := c.Classify(durations)
			if acc := accuracy(got, truth); acc < 0.95 {
				t.Errorf("%s at %d:%d accuracy = %.3f, want >= 0.95",
					c.Name(), r.short, r.long, acc)
			}
		}
	}
}

func TestTwoMeans_ExtremeSkewBeatsThresholdBias(t *testing.T) {
	t.Parallel()
	// At 95% long pulses the threshold strategy's short-width estimate
	// slides into the long cluster; two-means must still separate the
	// classes cleanly.
	rng := rand.New(rand.NewSource(7))
	durations, truth := synthPopulation(rng, 50, 950)
	got := TwoMeans{MaxIter: 10}.Classify(durations)
	if acc := accuracy(got, truth); acc < 0.99 {
		t.Errorf("two-means at 5:95 accuracy = %.3f, want >= 0.99", acc)
	}
}

func TestAnalyze_InsufficientPulses(t *testing.T) {
	t.Parallel()
	durations := []float64{0.0005, 0.001, 0.0005}
	stats, _, err := Analyze(durations, TwoMeans{}, 1000)
	if !errors.Is(err, ErrInsufficientPulses) {
		t.Errorf("err = %v, want ErrInsufficientPulses", err)
	}
	if stats.Pulses != 3 {
		t.Errorf("stats.Pulses = %d, want 3 (stats still reported)", stats.Pulses)
	}
}

func TestAnalyze_Stats(t *testing.T) {
	t.Parallel()
	durations := []float64{0.0005, 0.0005, 0.001, 0.001}
	stats, labels, err := Analyze(durations, TwoMeans{MaxIter: 10}, 1)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if stats.ShortCount != 2 || stats.LongCount != 2 {
		t.Errorf("split = %d/%d, want 2/2", stats.ShortCount, stats.LongCount)
	}
	if stats.ShortPct != 50 {
		t.Errorf("ShortPct = %v, want 50", stats.ShortPct)
	}
	if math.Abs(stats.MeanWidth-0.00075) > 1e-12 {
		t.Errorf("MeanWidth = %v, want 0.00075", stats.MeanWidth)
	}
	if math.Abs(stats.LongMean-0.001) > 1e-12 {
		t.Errorf("LongMean = %v, want 0.001", stats.LongMean)
	}
	if len(labels) != 4 {
		t.Errorf("labels len = %d, want 4", len(labels))
	}
	if !stats.BiphaseLike(10, 90) {
		t.Error("50/50 split should be biphase-like")
	}
}

func TestBiphaseLike_RejectsExtremes(t *testing.T) {
	t.Parallel()
	s := WindowStats{ShortPct: 2, LongPct: 98}
	if s.BiphaseLike(10, 90) {
		t.Error("2% short share should not look biphase-like")
	}
}

func TestHighPass_RemovesDCBias(t *testing.T) {
	t.Parallel()
	// A biased square wave has no zero crossings until the DC offset is
	// stripped.
	n := 4800
	samples := make([]float64, n)
	for i := range samples {
		if i/24%2 == 0 {
			samples[i] = 2.0 // entirely positive signal
		} else {
			samples[i] = 1.0
		}
	}
	if edges := RisingEdges(samples); len(edges) != 0 {
		t.Fatalf("biased signal should have no rising edges, got %d", len(edges))
	}

	filtered := NewHighPass(100, 48000).Apply(samples)
	if edges := RisingEdges(filtered); len(edges) < 50 {
		t.Errorf("filtered signal has %d edges, want many", len(edges))
	}
}

func TestHighPass_DisabledIsIdentity(t *testing.T) {
	t.Parallel()
	samples := []float64{0.1, -0.2, 0.3}
	got := NewHighPass(0, 48000).Apply(samples)
	if got[0] != 0.1 || got[1] != -0.2 || got[2] != 0.3 {
		t.Errorf("disabled filter altered samples: %v", got)
	}
}

func TestNewClassifier(t *testing.T) {
	t.Parallel()
	if _, err := NewClassifier("adaptive", 1.35, 10); err != nil {
		t.Errorf("adaptive: %v", err)
	}
	if _, err := NewClassifier("two-means", 1.35, 10); err != nil {
		t.Errorf("two-means: %v", err)
	}
	if _, err := NewClassifier("kmeans++", 0, 0); err == nil {
		t.Error("unknown strategy should error")
	}
}
