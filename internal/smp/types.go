// Package smp implements the SnowMicroPen profile-alignment and calibration
// core: resampling force-derived profiles onto a common depth axis, searching
// bounded piecewise stretch plans that best align a profile with manual
// density-cutter measurements, and scoring the retrieval skill of the result.
package smp

import (
	"errors"
	"fmt"
	"math"
)

// LayerType is a physical snow microstructure classification.
type LayerType string

const (
	// LayerRounded indicates rounded grains.
	LayerRounded LayerType = "rounded"
	// LayerFaceted indicates faceted crystals.
	LayerFaceted LayerType = "faceted"
	// LayerDepthHoar indicates depth hoar.
	LayerDepthHoar LayerType = "depth_hoar"
)

// Profile holds one vertical SMP measurement: a strictly increasing depth
// axis in millimetres plus co-located derived columns. All columns share the
// depth axis so they stay index-aligned through resampling and stretching.
// A nil column means the quantity was not provided.
type Profile struct {
	SiteID string

	Depth []float64 // mm from the snow surface, strictly increasing

	Density   []float64 // kg/m3, estimated by the external micro-mechanical model
	Force     []float64 // rolling median penetration force, N
	StructLen []float64 // structural length, mm
}

// Len returns the number of samples on the depth axis.
func (p *Profile) Len() int { return len(p.Depth) }

// TotalDepth returns the depth span covered by the profile in millimetres.
func (p *Profile) TotalDepth() float64 {
	if len(p.Depth) == 0 {
		return 0
	}
	return p.Depth[len(p.Depth)-1]
}

// columns returns the non-nil value columns paired with their names, in a
// fixed order so that operations over "every co-located quantity" are
// deterministic.
func (p *Profile) columns() []namedColumn {
	cols := make([]namedColumn, 0, 3)
	if p.Density != nil {
		cols = append(cols, namedColumn{"density", p.Density})
	}
	if p.Force != nil {
		cols = append(cols, namedColumn{"force", p.Force})
	}
	if p.StructLen != nil {
		cols = append(cols, namedColumn{"struct_len", p.StructLen})
	}
	return cols
}

type namedColumn struct {
	name   string
	values []float64
}

// validate checks the Profile invariants: unique, monotonically increasing
// depths and columns matching the axis length.
func (p *Profile) validate() error {
	if len(p.Depth) < 2 {
		return fmt.Errorf("profile %s: need at least 2 samples, got %d", p.SiteID, len(p.Depth))
	}
	for i := 1; i < len(p.Depth); i++ {
		if p.Depth[i] <= p.Depth[i-1] {
			return fmt.Errorf("profile %s: depth axis not strictly increasing at index %d", p.SiteID, i)
		}
	}
	for _, col := range p.columns() {
		if len(col.values) != len(p.Depth) {
			return fmt.Errorf("profile %s: column %s has %d values for %d depths",
				p.SiteID, col.name, len(col.values), len(p.Depth))
		}
	}
	return nil
}

// DensityModel converts a median penetration force and structural length into
// an estimated density. The micro-mechanical model itself lives outside this
// module; callers inject whichever parameterisation they trust.
type DensityModel func(forceMedian, structuralLength float64) float64

// DeriveDensity fills the profile's density column from its force and
// structural-length columns using the given model. Existing density values
// are replaced.
func DeriveDensity(p *Profile, model DensityModel) error {
	if model == nil {
		return errors.New("nil density model")
	}
	if p.Force == nil || p.StructLen == nil {
		return fmt.Errorf("profile %s: force and structural-length columns required to derive density", p.SiteID)
	}
	out := make([]float64, len(p.Depth))
	for i := range out {
		out[i] = model(p.Force[i], p.StructLen[i])
	}
	p.Density = out
	return nil
}

// SamplingWindow is the depth interval of one manual density-cutter
// measurement, carrying the reference density and layer-type label.
type SamplingWindow struct {
	Center     float64 // mm
	HalfHeight float64 // mm
	RefDensity float64 // kg/m3
	Layer      LayerType
}

// Bounds returns the inclusive depth interval covered by the window.
func (w SamplingWindow) Bounds() (lo, hi float64) {
	return w.Center - w.HalfHeight, w.Center + w.HalfHeight
}

// ExtractedSample is the enclosed-point statistic of a scaled profile within
// one sampling window. Mean is NaN when no points fall inside the window.
type ExtractedSample struct {
	Count int
	Mean  float64
}

// UnderSampled reports whether the sample has fewer enclosed points than the
// given minimum and must be excluded from scoring and calibration.
func (s ExtractedSample) UnderSampled(minCount int) bool {
	return s.Count < minCount
}

// SkillScore is the retrieval-skill metric set used both to rank alignment
// candidates and to report final calibration quality.
type SkillScore struct {
	R      float64 // Pearson correlation
	RMSE   float64
	UbRMSE float64 // bias-corrected RMSE
	MAE    float64
}

// Params is the immutable run configuration threaded through every component
// call. Construct it from internal/config or directly in tests.
type Params struct {
	CutterHalfHeightMM float64
	RollingWindowMM    float64 // acquisition-side median window; recorded with the run for provenance
	ResampleStepMM     float64
	SegmentSizeMM      float64
	MaxLayerStretch    float64
	MaxOverallStretch  float64
	NumTests           int
	Seed               int64
	Workers            int // 0 means one per CPU
	MaxPlanRetries     int
	MinValidWindows    int
}

// MinEnclosedPoints returns the minimum enclosed-point count for a window to
// be scoreable: one point per resample step across the full cutter height.
func (pa Params) MinEnclosedPoints() int {
	return int(math.Floor(2 * pa.CutterHalfHeightMM / pa.ResampleStepMM))
}

// Sentinel errors for the per-profile failure taxonomy. InvalidPlan is
// recovered locally by regeneration and never surfaces here.
var (
	// ErrPlanRetriesExhausted means no stretch plan within the whole-profile
	// bound was found inside the regeneration budget.
	ErrPlanRetriesExhausted = errors.New("stretch plan retries exhausted")

	// ErrNoValidCandidate means no generated plan passed window-validity
	// screening after the full candidate budget.
	ErrNoValidCandidate = errors.New("no valid alignment candidate")

	// ErrMissingGroundTruth means a profile has no matching snow-pit record.
	ErrMissingGroundTruth = errors.New("no matching snow-pit record")

	// ErrTooFewWindows means a profile has fewer cutter windows than the
	// configured minimum before any search is attempted.
	ErrTooFewWindows = errors.New("too few sampling windows")
)

// FailureReason labels a per-profile failure for the batch report.
type FailureReason string

const (
	FailureMissingGroundTruth FailureReason = "missing_ground_truth"
	FailureNoValidCandidate   FailureReason = "no_valid_candidate"
	FailurePlanRetries        FailureReason = "plan_retries_exhausted"
	FailureBadProfile         FailureReason = "bad_profile"
	FailureCancelled          FailureReason = "cancelled"
)

// ProfileFailure records one isolated per-profile failure. Failures are
// reported by identifier so a human can inspect the site, never silently
// dropped.
type ProfileFailure struct {
	SiteID string
	Reason FailureReason
	Err    error
}

func (f ProfileFailure) String() string {
	return fmt.Sprintf("site %s: %s: %v", f.SiteID, f.Reason, f.Err)
}

// PitRecord is one snow-pit summary row from the data-loading collaborator.
type PitRecord struct {
	SiteID      string
	Campaign    string
	IceType     string
	Lat, Lon    float64
	ThicknessMM float64
}

// CutterSample is one manual density-cutter measurement, keyed by site.
type CutterSample struct {
	SiteID     string
	TopDepthMM float64
	Density    float64
	Layer      LayerType
}

// Window converts a cutter sample into its sampling window given the cutter
// half-height: the cutter occupies [top, top + 2h].
func (c CutterSample) Window(halfHeightMM float64) SamplingWindow {
	return SamplingWindow{
		Center:     c.TopDepthMM + halfHeightMM,
		HalfHeight: halfHeightMM,
		RefDensity: c.Density,
		Layer:      c.Layer,
	}
}
