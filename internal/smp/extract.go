package smp

import "math"

// ExtractSamples computes, for each sampling window, the count and arithmetic
// mean of the profile values whose (scaled) depth falls inside the window
// bounds, inclusive. Mean is NaN for a window enclosing no points.
//
// This runs once per (candidate, window) pair and dominates the search cost:
// one pass over the points with per-window accumulators, no allocation beyond
// the result slice. Sums commute, so the result is independent of point
// order.
func ExtractSamples(depth, values []float64, windows []SamplingWindow) []ExtractedSample {
	lo := make([]float64, len(windows))
	hi := make([]float64, len(windows))
	for j, w := range windows {
		lo[j], hi[j] = w.Bounds()
	}

	counts := make([]int, len(windows))
	sums := make([]float64, len(windows))
	for i, d := range depth {
		v := values[i]
		if math.IsNaN(v) {
			continue
		}
		for j := range windows {
			if d >= lo[j] && d <= hi[j] {
				counts[j]++
				sums[j] += v
			}
		}
	}

	out := make([]ExtractedSample, len(windows))
	for j := range windows {
		out[j].Count = counts[j]
		if counts[j] > 0 {
			out[j].Mean = sums[j] / float64(counts[j])
		} else {
			out[j].Mean = math.NaN()
		}
	}
	return out
}

// pairSamples assembles the (retrieved, reference) value pairs that survive
// screening: windows with enough enclosed points and finite values on both
// sides. The number of excluded windows is returned for accounting.
func pairSamples(samples []ExtractedSample, windows []SamplingWindow, minCount int) (retrieved, reference []float64, excluded int) {
	retrieved = make([]float64, 0, len(windows))
	reference = make([]float64, 0, len(windows))
	for j, s := range samples {
		if s.UnderSampled(minCount) || math.IsNaN(s.Mean) || math.IsNaN(windows[j].RefDensity) {
			excluded++
			continue
		}
		retrieved = append(retrieved, s.Mean)
		reference = append(reference, windows[j].RefDensity)
	}
	return retrieved, reference, excluded
}
