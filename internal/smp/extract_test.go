package smp

import (
	"math"
	"math/rand"
	"testing"
)

func TestExtractSamplesCountsAndMeans(t *testing.T) {
	depth := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	values := []float64{100, 110, 120, 130, 140, 150, 160, 170, 180, 190, 200}

	windows := []SamplingWindow{
		{Center: 2, HalfHeight: 1},  // encloses depths 1,2,3
		{Center: 8, HalfHeight: 2},  // encloses depths 6..10
		{Center: 50, HalfHeight: 1}, // nothing
	}

	out := ExtractSamples(depth, values, windows)

	if out[0].Count != 3 || math.Abs(out[0].Mean-120) > 1e-12 {
		t.Errorf("window 0: got count=%d mean=%f, want 3/120", out[0].Count, out[0].Mean)
	}
	if out[1].Count != 5 || math.Abs(out[1].Mean-180) > 1e-12 {
		t.Errorf("window 1: got count=%d mean=%f, want 5/180", out[1].Count, out[1].Mean)
	}
	if out[2].Count != 0 || !math.IsNaN(out[2].Mean) {
		t.Errorf("window 2: got count=%d mean=%f, want 0/NaN", out[2].Count, out[2].Mean)
	}
}

func TestExtractSamplesInclusiveBounds(t *testing.T) {
	depth := []float64{4.0, 6.0}
	values := []float64{10, 20}
	windows := []SamplingWindow{{Center: 5, HalfHeight: 1}} // bounds [4, 6]

	out := ExtractSamples(depth, values, windows)
	if out[0].Count != 2 {
		t.Errorf("points exactly on the window bounds must be enclosed, got count=%d", out[0].Count)
	}
}

func TestExtractSamplesSkipsNaNValues(t *testing.T) {
	depth := []float64{1, 2, 3}
	values := []float64{10, math.NaN(), 30}
	windows := []SamplingWindow{{Center: 2, HalfHeight: 5}}

	out := ExtractSamples(depth, values, windows)
	if out[0].Count != 2 || math.Abs(out[0].Mean-20) > 1e-12 {
		t.Errorf("NaN values must not count: got count=%d mean=%f", out[0].Count, out[0].Mean)
	}
}

func TestExtractSamplesOrderInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	depth := make([]float64, 200)
	values := make([]float64, 200)
	for i := range depth {
		depth[i] = rng.Float64() * 100
		values[i] = 100 + rng.Float64()*300
	}
	windows := []SamplingWindow{
		{Center: 20, HalfHeight: 15},
		{Center: 55, HalfHeight: 15},
		{Center: 90, HalfHeight: 15},
	}

	want := ExtractSamples(depth, values, windows)

	// Shuffle the point order; results must not move.
	perm := rng.Perm(len(depth))
	sd := make([]float64, len(depth))
	sv := make([]float64, len(depth))
	for i, j := range perm {
		sd[i], sv[i] = depth[j], values[j]
	}
	got := ExtractSamples(sd, sv, windows)

	for j := range windows {
		if got[j].Count != want[j].Count {
			t.Errorf("window %d: count changed under shuffle: %d vs %d", j, got[j].Count, want[j].Count)
		}
		if math.Abs(got[j].Mean-want[j].Mean) > 1e-9 {
			t.Errorf("window %d: mean changed under shuffle: %f vs %f", j, got[j].Mean, want[j].Mean)
		}
	}
}

func TestPairSamplesScreensWindows(t *testing.T) {
	windows := []SamplingWindow{
		{RefDensity: 200},
		{RefDensity: 250},
		{RefDensity: 300},
		{RefDensity: math.NaN()},
	}
	samples := []ExtractedSample{
		{Count: 30, Mean: 210},        // kept
		{Count: 2, Mean: 260},         // under-sampled
		{Count: 30, Mean: math.NaN()}, // empty mean
		{Count: 30, Mean: 310},        // NaN reference
	}

	retrieved, reference, excluded := pairSamples(samples, windows, 10)
	if len(retrieved) != 1 || len(reference) != 1 {
		t.Fatalf("expected 1 surviving pair, got %d/%d", len(retrieved), len(reference))
	}
	if retrieved[0] != 210 || reference[0] != 200 {
		t.Errorf("wrong surviving pair: %f/%f", retrieved[0], reference[0])
	}
	if excluded != 3 {
		t.Errorf("expected 3 excluded windows, got %d", excluded)
	}
}

func TestPairSamplesThresholdBoundary(t *testing.T) {
	// Exactly the minimum count is scoreable; one point fewer is not.
	windows := []SamplingWindow{
		{RefDensity: 200},
		{RefDensity: 250},
	}
	samples := []ExtractedSample{
		{Count: 30, Mean: 205},
		{Count: 29, Mean: 255},
	}

	retrieved, reference, excluded := pairSamples(samples, windows, 30)
	if len(retrieved) != 1 || len(reference) != 1 {
		t.Fatalf("expected only the at-threshold window to survive, got %d/%d", len(retrieved), len(reference))
	}
	if retrieved[0] != 205 {
		t.Errorf("wrong surviving window: %f", retrieved[0])
	}
	if excluded != 1 {
		t.Errorf("expected 1 excluded window, got %d", excluded)
	}
}
