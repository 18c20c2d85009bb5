package classify

import (
	"math"

	"github.com/cryodata/density.report/internal/smp"
)

// MinSmoothingWidth returns the rolling-mode window width (in samples)
// covering at least minLayerMM of profile depth at the given resample step.
// The width is forced odd so the window is centered, and never below 3.
func MinSmoothingWidth(minLayerMM, stepMM float64) int {
	w := int(math.Ceil(minLayerMM / stepMM))
	if w%2 == 0 {
		w++
	}
	if w < 3 {
		w = 3
	}
	return w
}

// SmoothLabels applies a centered rolling-mode filter of the given width to
// raw per-sample predictions. Near the edges the window shrinks to the valid
// range. On a tied vote the label already assigned at the window center wins,
// so the filter never invents a transition: a run shorter than half the
// window is absorbed by its neighbours, which is what enforces the minimum
// layer thickness.
func SmoothLabels(labels []smp.LayerType, width int) []smp.LayerType {
	if width < 3 || len(labels) == 0 {
		return append([]smp.LayerType(nil), labels...)
	}
	if width%2 == 0 {
		width++
	}
	half := width / 2

	out := make([]smp.LayerType, len(labels))
	counts := make(map[smp.LayerType]int, 4)
	for i := range labels {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi > len(labels)-1 {
			hi = len(labels) - 1
		}

		for k := range counts {
			delete(counts, k)
		}
		for j := lo; j <= hi; j++ {
			counts[labels[j]]++
		}

		best := labels[i]
		bestCount := counts[best]
		for j := lo; j <= hi; j++ {
			if c := counts[labels[j]]; c > bestCount {
				best, bestCount = labels[j], c
			}
		}
		out[i] = best
	}
	return out
}

// Layer is one contiguous run of a single label after smoothing, with its
// aggregated density. Start and End are sample indexes; End is exclusive.
type Layer struct {
	Start, End  int
	Label       smp.LayerType
	MeanDensity float64
}

// Boundaries returns the sample indexes where the label changes. Transitions
// define the layer boundaries used for per-layer aggregation.
func Boundaries(labels []smp.LayerType) []int {
	var out []int
	for i := 1; i < len(labels); i++ {
		if labels[i] != labels[i-1] {
			out = append(out, i)
		}
	}
	return out
}

// AggregateLayers splits a smoothed label series at its transitions and
// averages the density column over each run. The density slice must be
// index-aligned with the labels.
func AggregateLayers(labels []smp.LayerType, density []float64) []Layer {
	if len(labels) == 0 {
		return nil
	}

	var out []Layer
	start := 0
	for i := 1; i <= len(labels); i++ {
		if i < len(labels) && labels[i] == labels[start] {
			continue
		}
		layer := Layer{Start: start, End: i, Label: labels[start]}
		var sum float64
		var n int
		for j := start; j < i && j < len(density); j++ {
			if !math.IsNaN(density[j]) {
				sum += density[j]
				n++
			}
		}
		if n > 0 {
			layer.MeanDensity = sum / float64(n)
		} else {
			layer.MeanDensity = math.NaN()
		}
		out = append(out, layer)
		start = i
	}
	return out
}
