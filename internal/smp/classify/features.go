// Package classify builds the per-depth-sample feature vectors for layer-type
// classification and post-processes raw predictions with a rolling-mode
// filter that enforces a physically plausible minimum layer thickness. Model
// training and cross-validation live outside this module; the persisted model
// artifact is applied as-is.
package classify

import (
	"fmt"
	"math"

	"github.com/cryodata/density.report/internal/smp"
)

// Feature vector layout, in canonical order.
const (
	FeatRelativeHeight = iota // height above ground / total thickness
	FeatStructLen             // structural length, mm
	FeatLogForce              // ln of the rolling median force
	NumFeatures
)

// FeatureNames returns the canonical feature names in vector order.
func FeatureNames() []string {
	return []string{"relative_height", "struct_len", "log_median_force"}
}

// FeatureVector is one per-depth-sample classifier input.
type FeatureVector [NumFeatures]float64

// minForce floors the median force before the log transform; the SMP noise
// floor is well above this.
const minForce = 1e-6

// BuildFeatures constructs one feature vector per sample of an aligned
// profile. Relative height counts from the ground up: the deepest sample has
// height 0, the surface 1. The median force is log-transformed before use.
func BuildFeatures(p *smp.Profile) ([]FeatureVector, error) {
	if p.Force == nil || p.StructLen == nil {
		return nil, fmt.Errorf("profile %s: force and structural-length columns required for classification", p.SiteID)
	}
	total := p.TotalDepth()
	if total <= 0 {
		return nil, fmt.Errorf("profile %s: zero-depth profile", p.SiteID)
	}

	out := make([]FeatureVector, p.Len())
	for i := range out {
		f := p.Force[i]
		if f < minForce {
			f = minForce
		}
		out[i] = FeatureVector{
			FeatRelativeHeight: (total - p.Depth[i]) / total,
			FeatStructLen:      p.StructLen[i],
			FeatLogForce:       math.Log(f),
		}
	}
	return out, nil
}
