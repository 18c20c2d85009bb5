package smp

import (
	"fmt"
	"math"
	"math/rand"
)

// StretchPlan is a piecewise length-distortion of a profile: one scale factor
// per fixed-size depth segment of the unscaled resampled profile. Plans are
// ephemeral; only the winning plan per profile is retained.
type StretchPlan struct {
	SegmentSize float64 // mm
	Factors     []float64
}

// NumSegments returns the segment count a plan must carry for a profile
// spanning totalLength millimetres.
func NumSegments(totalLength, segmentSize float64) int {
	return int(math.Ceil(totalLength / segmentSize))
}

// IdentityPlan returns a plan with all factors 1, covering totalLength.
func IdentityPlan(totalLength, segmentSize float64) StretchPlan {
	factors := make([]float64, NumSegments(totalLength, segmentSize))
	for i := range factors {
		factors[i] = 1.0
	}
	return StretchPlan{SegmentSize: segmentSize, Factors: factors}
}

// NetStretch returns the plan's net effect on total profile length as a
// fraction. The final segment may be shorter than the nominal segment size;
// it contributes proportionally to its truncated length, so the bound is a
// true weighted sum against the real profile length.
func (sp StretchPlan) NetStretch(totalLength float64) float64 {
	if totalLength <= 0 {
		return 0
	}
	var delta float64
	remaining := totalLength
	for _, f := range sp.Factors {
		segLen := math.Min(sp.SegmentSize, remaining)
		if segLen <= 0 {
			break
		}
		delta += (f - 1) * segLen
		remaining -= segLen
	}
	return delta / totalLength
}

// WithinBounds reports whether every factor respects the per-segment bound
// and the net stretch respects the whole-profile bound. The boundary value
// itself is accepted; anything beyond it is not.
func (sp StretchPlan) WithinBounds(maxLayerStretch, maxOverallStretch, totalLength float64) bool {
	for _, f := range sp.Factors {
		if f < 1-maxLayerStretch || f > 1+maxLayerStretch {
			return false
		}
	}
	return math.Abs(sp.NetStretch(totalLength)) <= maxOverallStretch
}

// GeneratePlan draws per-segment factors uniformly from
// [1-maxLayerStretch, 1+maxLayerStretch] and rejects-and-retries until the
// whole-profile bound holds. It is a pure function of (pa, totalLength,
// seed): no sampler state is shared across calls, which keeps parallel
// fan-out safe and reproducible.
//
// The rejected count is returned for accounting. ErrPlanRetriesExhausted is
// returned if no valid plan appears within pa.MaxPlanRetries draws.
func GeneratePlan(pa Params, totalLengthMM float64, seed int64) (StretchPlan, int, error) {
	numSegments := NumSegments(totalLengthMM, pa.SegmentSizeMM)
	if numSegments == 0 {
		return StretchPlan{}, 0, fmt.Errorf("no segments for length %f mm", totalLengthMM)
	}

	rng := rand.New(rand.NewSource(seed))
	plan := StretchPlan{
		SegmentSize: pa.SegmentSizeMM,
		Factors:     make([]float64, numSegments),
	}

	rejected := 0
	for attempt := 0; attempt < pa.MaxPlanRetries; attempt++ {
		for i := range plan.Factors {
			plan.Factors[i] = 1 + (2*rng.Float64()-1)*pa.MaxLayerStretch
		}
		if math.Abs(plan.NetStretch(totalLengthMM)) <= pa.MaxOverallStretch {
			return plan, rejected, nil
		}
		rejected++
	}
	return StretchPlan{}, rejected, fmt.Errorf("%w after %d attempts (seed %d)",
		ErrPlanRetriesExhausted, pa.MaxPlanRetries, seed)
}

// ApplyToAxis deforms a depth axis under the plan. A point originally in
// segment k stays in the scaled version of segment k: its offset within the
// segment is scaled linearly by the segment factor, and the segment start is
// shifted by the cumulative length change of all prior segments. Factors are
// positive, so the deformation is monotone in depth.
//
// Value columns are carried by index and are not touched; only the axis
// moves.
func (sp StretchPlan) ApplyToAxis(depth []float64) []float64 {
	// Scaled start position of each segment.
	starts := make([]float64, len(sp.Factors)+1)
	for k, f := range sp.Factors {
		starts[k+1] = starts[k] + f*sp.SegmentSize
	}

	out := make([]float64, len(depth))
	for i, d := range depth {
		k := int(d / sp.SegmentSize)
		if k >= len(sp.Factors) {
			k = len(sp.Factors) - 1
		}
		out[i] = starts[k] + (d-float64(k)*sp.SegmentSize)*sp.Factors[k]
	}
	return out
}

// ApplyToProfile reapplies the plan to every co-located quantity of a
// profile, producing the final aligned dataset. The value columns are copied
// so the aligned profile does not alias the search input.
func (sp StretchPlan) ApplyToProfile(p *Profile) *Profile {
	out := &Profile{
		SiteID: p.SiteID,
		Depth:  sp.ApplyToAxis(p.Depth),
	}
	if p.Density != nil {
		out.Density = append([]float64(nil), p.Density...)
	}
	if p.Force != nil {
		out.Force = append([]float64(nil), p.Force...)
	}
	if p.StructLen != nil {
		out.StructLen = append([]float64(nil), p.StructLen...)
	}
	return out
}

// deriveSeed produces the statistically independent sub-seed for one
// candidate index from the run seed (splitmix64 step). Results depend only on
// (seed, index), never on worker scheduling.
func deriveSeed(seed int64, index int) int64 {
	z := uint64(seed) + uint64(index+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return int64(z ^ (z >> 31))
}
