package smp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/cryodata/density.report/internal/monitoring"
)

// CalibrationRow is one filtered (SMP estimate, reference) pair destined for
// the calibration regression.
type CalibrationRow struct {
	SiteID        string
	WindowCenter  float64 // mm, on the unscaled axis
	SMPDensity    float64 // kg/m3
	CutterDensity float64 // kg/m3
	Layer         LayerType
	Error         float64 // SMP - cutter
}

// ProfileResult is the retained outcome for one successfully aligned profile.
type ProfileResult struct {
	SiteID          string
	Plan            StretchPlan
	Score           SkillScore
	Aligned         *Profile
	Rows            []CalibrationRow
	ValidWindows    int
	ExcludedWindows int
	RejectedPlans   int
}

// BatchResult gathers the scatter/gather outcome over a set of profiles.
type BatchResult struct {
	Profiles []ProfileResult
	Failures []ProfileFailure
	Rows     []CalibrationRow // concatenation of all per-profile rows
	Fit      CalibrationFit
}

// Calibrate aligns every profile against its snow pit and assembles the
// pooled calibration table. Each profile is an independent task: resample to
// the pit's measured thickness, build the cutter windows, run the alignment
// search, and extract the filtered rows. Per-profile failures are recorded
// with their reason and never abort the rest of the batch.
func Calibrate(ctx context.Context, profiles []*Profile, pits map[string]PitRecord, cutters map[string][]CutterSample, pa Params) BatchResult {
	var out BatchResult

	for i, raw := range profiles {
		if err := ctx.Err(); err != nil {
			// Every unstarted site gets a failure record; nothing is
			// silently dropped when the batch is interrupted.
			for _, rest := range profiles[i:] {
				out.Failures = append(out.Failures, ProfileFailure{SiteID: rest.SiteID, Reason: FailureCancelled, Err: err})
			}
			break
		}

		res, err := calibrateProfile(ctx, raw, pits, cutters, pa)
		if err != nil {
			failure := ProfileFailure{SiteID: raw.SiteID, Reason: classifyFailure(err), Err: err}
			monitoring.Logf("[calibrate] %s", failure)
			out.Failures = append(out.Failures, failure)
			continue
		}

		out.Profiles = append(out.Profiles, res)
		out.Rows = append(out.Rows, res.Rows...)
	}

	retrieved := make([]float64, len(out.Rows))
	reference := make([]float64, len(out.Rows))
	for i, row := range out.Rows {
		retrieved[i] = row.SMPDensity
		reference[i] = row.CutterDensity
	}
	out.Fit = FitCalibration(retrieved, reference)

	monitoring.Logf("[calibrate] batch complete: %d profiles aligned, %d failed, %d calibration rows (pooled r=%.4f RMSE=%.2f)",
		len(out.Profiles), len(out.Failures), len(out.Rows), out.Fit.Score.R, out.Fit.Score.RMSE)
	return out
}

// calibrateProfile handles one site end to end.
func calibrateProfile(ctx context.Context, raw *Profile, pits map[string]PitRecord, cutters map[string][]CutterSample, pa Params) (ProfileResult, error) {
	pit, ok := pits[raw.SiteID]
	if !ok {
		return ProfileResult{}, fmt.Errorf("profile %s: %w", raw.SiteID, ErrMissingGroundTruth)
	}

	prof, err := Resample(raw, pit.ThicknessMM, pa.ResampleStepMM)
	if err != nil {
		return ProfileResult{}, fmt.Errorf("resample: %w", err)
	}

	samples := cutters[raw.SiteID]
	if len(samples) == 0 {
		return ProfileResult{}, fmt.Errorf("profile %s: %w", raw.SiteID, ErrMissingGroundTruth)
	}
	windows := make([]SamplingWindow, len(samples))
	for i, c := range samples {
		windows[i] = c.Window(pa.CutterHalfHeightMM)
	}

	sr, err := Search(ctx, prof, windows, pa)
	if err != nil {
		return ProfileResult{}, err
	}

	// Same screen as scoring: a row with a NaN retrieval or NaN reference
	// would poison the pooled regression.
	minCount := pa.MinEnclosedPoints()
	rows := make([]CalibrationRow, 0, len(windows))
	for j, s := range sr.Best.Samples {
		if s.UnderSampled(minCount) || math.IsNaN(s.Mean) || math.IsNaN(windows[j].RefDensity) {
			continue
		}
		rows = append(rows, CalibrationRow{
			SiteID:        raw.SiteID,
			WindowCenter:  windows[j].Center,
			SMPDensity:    s.Mean,
			CutterDensity: windows[j].RefDensity,
			Layer:         windows[j].Layer,
			Error:         s.Mean - windows[j].RefDensity,
		})
	}

	return ProfileResult{
		SiteID:          raw.SiteID,
		Plan:            sr.Best.Plan,
		Score:           sr.Best.Score,
		Aligned:         sr.Aligned,
		Rows:            rows,
		ValidWindows:    sr.Best.ValidWindows,
		ExcludedWindows: sr.Excluded,
		RejectedPlans:   sr.RejectedPlans,
	}, nil
}

// classifyFailure maps an error chain onto the batch failure taxonomy.
func classifyFailure(err error) FailureReason {
	switch {
	case errors.Is(err, ErrMissingGroundTruth):
		return FailureMissingGroundTruth
	case errors.Is(err, ErrPlanRetriesExhausted):
		return FailurePlanRetries
	case errors.Is(err, ErrNoValidCandidate), errors.Is(err, ErrTooFewWindows):
		return FailureNoValidCandidate
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureCancelled
	default:
		return FailureBadProfile
	}
}
