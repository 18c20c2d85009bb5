package smp

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Skill computes the retrieval-skill metrics for paired (retrieved,
// reference) arrays with invalid entries already removed. These four numbers
// are the sole ranking and reporting signal of the alignment search.
func Skill(retrieved, reference []float64) SkillScore {
	n := len(retrieved)
	if n == 0 || n != len(reference) {
		return SkillScore{R: math.NaN(), RMSE: math.NaN(), UbRMSE: math.NaN(), MAE: math.NaN()}
	}

	errs := make([]float64, n)
	for i := range errs {
		errs[i] = retrieved[i] - reference[i]
	}

	var sumSq, sumAbs float64
	for _, e := range errs {
		sumSq += e * e
		sumAbs += math.Abs(e)
	}
	bias := stat.Mean(errs, nil)

	var sumSqUb float64
	for _, e := range errs {
		d := e - bias
		sumSqUb += d * d
	}

	return SkillScore{
		R:      stat.Correlation(retrieved, reference, nil),
		RMSE:   math.Sqrt(sumSq / float64(n)),
		UbRMSE: math.Sqrt(sumSqUb / float64(n)),
		MAE:    sumAbs / float64(n),
	}
}

// Better reports whether score a ranks ahead of score b: descending
// correlation first, ties broken by ascending bias-corrected RMSE, then by
// ascending MAE. NaN correlation always loses.
func (a SkillScore) Better(b SkillScore) bool {
	switch {
	case math.IsNaN(a.R):
		return false
	case math.IsNaN(b.R):
		return true
	case a.R != b.R:
		return a.R > b.R
	case a.UbRMSE != b.UbRMSE:
		return a.UbRMSE < b.UbRMSE
	default:
		return a.MAE < b.MAE
	}
}

// CalibrationFit is the pooled linear fit of SMP-retrieved density against
// the cutter reference over the filtered calibration table.
type CalibrationFit struct {
	Slope     float64
	Intercept float64
	N         int
	Score     SkillScore
}

// FitCalibration regresses reference density on the retrieved estimate and
// reports the pooled skill. Inputs follow the same already-filtered contract
// as Skill.
func FitCalibration(retrieved, reference []float64) CalibrationFit {
	fit := CalibrationFit{N: len(retrieved), Score: Skill(retrieved, reference)}
	if len(retrieved) >= 2 {
		fit.Intercept, fit.Slope = stat.LinearRegression(retrieved, reference, nil, false)
	} else {
		fit.Intercept, fit.Slope = math.NaN(), math.NaN()
	}
	return fit
}
