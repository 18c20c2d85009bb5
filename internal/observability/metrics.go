// Package observability holds the Prometheus instruments for the calibration
// batch. The CLI exposes them on an optional /metrics listener; long sweeps
// over many sites are easier to babysit with counters than with log grep.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for a calibration run.
type Metrics struct {
	ProfilesAligned      prometheus.Counter
	ProfilesFailed       *prometheus.CounterVec // label: reason
	CandidatesEvaluated  prometheus.Counter
	PlansRejected        prometheus.Counter
	WindowsUnderSampled  prometheus.Counter
	SearchDurationSecs   prometheus.Histogram
	CalibrationRowsSaved prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		ProfilesAligned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smp_cal",
			Name:      "profiles_aligned_total",
			Help:      "Profiles with a winning stretch plan selected.",
		}),
		ProfilesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smp_cal",
			Name:      "profiles_failed_total",
			Help:      "Per-profile failures by taxonomy reason.",
		}, []string{"reason"}),
		CandidatesEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smp_cal",
			Name:      "candidates_evaluated_total",
			Help:      "Stretch-plan candidates scored across all profiles.",
		}),
		PlansRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smp_cal",
			Name:      "plans_rejected_total",
			Help:      "Stretch plans regenerated for exceeding the whole-profile bound.",
		}),
		WindowsUnderSampled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smp_cal",
			Name:      "windows_under_sampled_total",
			Help:      "Cutter windows excluded from scoring for too few enclosed points.",
		}),
		SearchDurationSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "smp_cal",
			Name:      "search_duration_seconds",
			Help:      "Duration of the full calibration batch.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		CalibrationRowsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smp_cal",
			Name:      "calibration_rows_saved_total",
			Help:      "Filtered calibration rows persisted to the run store.",
		}),
	}
}

// NewMetrics creates and registers all calibration metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ProfilesAligned,
		m.ProfilesFailed,
		m.CandidatesEvaluated,
		m.PlansRejected,
		m.WindowsUnderSampled,
		m.SearchDurationSecs,
		m.CalibrationRowsSaved,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
