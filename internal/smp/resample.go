package smp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
)

// Resample maps a profile with non-uniform depth spacing onto a uniform axis
// from 0 to targetDepthMM at stepMM spacing. The target depth comes from an
// independent thickness measurement, so the result may be longer or shorter
// than the raw probe penetration. Every co-located column is interpolated
// linearly against the original depths onto the same new axis.
//
// Positions beyond the source profile's recorded range take the boundary
// value (flat extrapolation); resampling never fails on range.
func Resample(p *Profile, targetDepthMM, stepMM float64) (*Profile, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if targetDepthMM <= 0 {
		return nil, fmt.Errorf("profile %s: target depth must be positive, got %f", p.SiteID, targetDepthMM)
	}
	if stepMM <= 0 {
		return nil, fmt.Errorf("profile %s: resample step must be positive, got %f", p.SiteID, stepMM)
	}

	n := int(math.Floor(targetDepthMM/stepMM)) + 1
	axis := make([]float64, n)
	for i := range axis {
		axis[i] = float64(i) * stepMM
	}

	out := &Profile{SiteID: p.SiteID, Depth: axis}
	for _, col := range p.columns() {
		resampled, err := resampleColumn(p.Depth, col.values, axis)
		if err != nil {
			return nil, fmt.Errorf("profile %s: column %s: %w", p.SiteID, col.name, err)
		}
		switch col.name {
		case "density":
			out.Density = resampled
		case "force":
			out.Force = resampled
		case "struct_len":
			out.StructLen = resampled
		}
	}
	return out, nil
}

// resampleColumn interpolates ys (sampled at xs) onto the new axis. Queries
// are clamped to [xs[0], xs[len-1]] before prediction, which realises the
// flat-extrapolation edge policy.
func resampleColumn(xs, ys, axis []float64) ([]float64, error) {
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("fit interpolant: %w", err)
	}

	lo, hi := xs[0], xs[len(xs)-1]
	out := make([]float64, len(axis))
	for i, x := range axis {
		if x < lo {
			x = lo
		} else if x > hi {
			x = hi
		}
		out[i] = pl.Predict(x)
	}
	return out, nil
}
