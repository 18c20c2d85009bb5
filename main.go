package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cryodata/density.report/internal/config"
	"github.com/cryodata/density.report/internal/ingest"
	"github.com/cryodata/density.report/internal/monitoring"
	"github.com/cryodata/density.report/internal/observability"
	"github.com/cryodata/density.report/internal/smp"
	"github.com/cryodata/density.report/internal/smp/classify"
	"github.com/cryodata/density.report/internal/smp/storage/sqlite"
)

var (
	configPath  = flag.String("config", "", "Calibration config JSON (defaults applied for omitted fields)")
	dbPath      = flag.String("db", "calibration_runs.db", "Run database path")
	pitsPath    = flag.String("pits", "", "Snow-pit summary CSV")
	cuttersPath = flag.String("cutters", "", "Density-cutter measurement CSV")
	profileDir  = flag.String("profiles", "", "Directory of per-site profile CSV exports")
	loadRunID   = flag.String("load", "", "Print a persisted run instead of searching")
	listRuns    = flag.Bool("list-runs", false, "List persisted runs and exit")
	metricsAddr = flag.String("metrics", "", "Expose Prometheus metrics on this address (e.g. :9090)")
	modelVer    = flag.String("model", "", "Classify aligned profiles with this persisted model version")
	verbose     = flag.Bool("v", false, "Log per-profile search detail")
)

// defaultDensityModel is the log-linear force/structural-length
// parameterisation used when no site-specific model is injected.
func defaultDensityModel(forceMedian, structuralLength float64) float64 {
	const (
		a1 = 420.47
		a2 = 102.47
		a3 = -121.15
		a4 = -169.96
	)
	f := forceMedian
	if f < 1e-6 {
		f = 1e-6
	}
	lnF := math.Log(f)
	return a1 + a2*lnF + a3*lnF*structuralLength + a4*structuralLength
}

func main() {
	flag.Parse()
	monitoring.Verbose = *verbose

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open run database: %v", err)
	}
	defer store.Close()

	if *listRuns {
		if err := printRuns(store); err != nil {
			log.Fatalf("failed to list runs: %v", err)
		}
		return
	}
	if *loadRunID != "" {
		if err := printRun(store, *loadRunID); err != nil {
			log.Fatalf("failed to load run: %v", err)
		}
		return
	}

	if *pitsPath == "" || *cuttersPath == "" || *profileDir == "" {
		log.Fatal("-pits, -cutters, and -profiles are required for a calibration run")
	}

	cfg := config.EmptyCalibrationConfig()
	if *configPath != "" {
		cfg, err = config.LoadCalibrationConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	pa := smp.Params{
		CutterHalfHeightMM: cfg.GetCutterHalfHeightMM(),
		RollingWindowMM:    cfg.GetRollingWindowMM(),
		ResampleStepMM:     cfg.GetResampleStepMM(),
		SegmentSizeMM:      cfg.GetSegmentSizeMM(),
		MaxLayerStretch:    cfg.GetMaxLayerStretch(),
		MaxOverallStretch:  cfg.GetMaxOverallStretch(),
		NumTests:           cfg.GetNumTests(),
		Seed:               cfg.GetRandomSeed(),
		Workers:            cfg.GetWorkers(),
		MaxPlanRetries:     cfg.GetMaxPlanRetries(),
		MinValidWindows:    cfg.GetMinValidWindows(),
	}

	metrics := observability.NewMetrics()
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("[metrics] listening on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Printf("[metrics] listener stopped: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pits, err := ingest.LoadPitRecords(*pitsPath)
	if err != nil {
		log.Fatalf("failed to load pit table: %v", err)
	}
	cutters, err := ingest.LoadCutterSamples(*cuttersPath)
	if err != nil {
		log.Fatalf("failed to load cutter table: %v", err)
	}
	profiles, err := ingest.LoadProfileDir(*profileDir)
	if err != nil {
		log.Fatalf("failed to load profiles: %v", err)
	}
	log.Printf("[main] loaded %d profiles, %d pits, %d cutter sites",
		len(profiles), len(pits), len(cutters))

	// Profiles shipped without a density column get one from the default
	// force/structural-length model.
	for _, p := range profiles {
		if p.Density != nil {
			continue
		}
		if err := smp.DeriveDensity(p, defaultDensityModel); err != nil {
			log.Printf("[main] %v; profile will fail screening", err)
		}
	}

	start := time.Now()
	batch := smp.Calibrate(ctx, profiles, pits, cutters, pa)
	metrics.SearchDurationSecs.Observe(time.Since(start).Seconds())

	runID, err := store.CreateRun(pa)
	if err != nil {
		log.Fatalf("failed to create run: %v", err)
	}
	for _, pr := range batch.Profiles {
		if err := store.SaveProfileResult(runID, pr); err != nil {
			log.Fatalf("failed to persist site %s: %v", pr.SiteID, err)
		}
		metrics.ProfilesAligned.Inc()
		metrics.PlansRejected.Add(float64(pr.RejectedPlans))
		metrics.WindowsUnderSampled.Add(float64(pr.ExcludedWindows))
		metrics.CandidatesEvaluated.Add(float64(pa.NumTests))
		metrics.CalibrationRowsSaved.Add(float64(len(pr.Rows)))
	}
	for _, f := range batch.Failures {
		if err := store.SaveFailure(runID, f); err != nil {
			log.Fatalf("failed to persist failure for site %s: %v", f.SiteID, err)
		}
		metrics.ProfilesFailed.WithLabelValues(string(f.Reason)).Inc()
	}

	if *modelVer != "" {
		if err := classifyBatch(store, cfg, pa, batch); err != nil {
			log.Fatalf("classification failed: %v", err)
		}
	}

	printReport(runID, pa, batch)

	if ctx.Err() != nil {
		os.Exit(1)
	}
}

// classifyBatch applies a persisted layer-type model to every aligned profile
// and logs the resulting stratigraphy.
func classifyBatch(store *sqlite.RunStore, cfg *config.CalibrationConfig, pa smp.Params, batch smp.BatchResult) error {
	payload, err := store.LoadClassifierModel(*modelVer)
	if err != nil {
		return err
	}
	model, err := classify.DecodeModel(payload)
	if err != nil {
		return err
	}
	width := classify.MinSmoothingWidth(cfg.GetMinLayerThicknessMM(), pa.ResampleStepMM)

	for _, pr := range batch.Profiles {
		features, err := classify.BuildFeatures(pr.Aligned)
		if err != nil {
			log.Printf("[classify] site %s skipped: %v", pr.SiteID, err)
			continue
		}
		smoothed := classify.SmoothLabels(model.PredictSeries(features), width)
		layers := classify.AggregateLayers(smoothed, pr.Aligned.Density)
		log.Printf("[classify] site %s: %d layers", pr.SiteID, len(layers))
		for _, l := range layers {
			log.Printf("[classify]   %s [%.0f, %.0f) mm, mean density %.1f kg/m3",
				l.Label,
				pr.Aligned.Depth[l.Start], layerEnd(pr.Aligned.Depth, l.End),
				l.MeanDensity)
		}
	}
	return nil
}

func layerEnd(depth []float64, end int) float64 {
	if end >= len(depth) {
		return depth[len(depth)-1]
	}
	return depth[end]
}

func printReport(runID string, pa smp.Params, batch smp.BatchResult) {
	fmt.Printf("run %s: %d profiles aligned, %d failed, %d calibration rows\n",
		runID, len(batch.Profiles), len(batch.Failures), len(batch.Rows))
	for _, pr := range batch.Profiles {
		fmt.Printf("  %-20s r=%.4f RMSE=%.2f ubRMSE=%.2f MAE=%.2f (%d windows, %d excluded)\n",
			pr.SiteID, pr.Score.R, pr.Score.RMSE, pr.Score.UbRMSE, pr.Score.MAE,
			pr.ValidWindows, pr.ExcludedWindows)
	}
	for _, f := range batch.Failures {
		fmt.Printf("  %-20s FAILED %s: %v\n", f.SiteID, f.Reason, f.Err)
	}
	fmt.Printf("pooled fit (n=%d): reference = %.4f * retrieved + %.2f, r=%.4f RMSE=%.2f\n",
		batch.Fit.N, batch.Fit.Slope, batch.Fit.Intercept, batch.Fit.Score.R, batch.Fit.Score.RMSE)
}

func printRuns(store *sqlite.RunStore) error {
	runs, err := store.ListRuns()
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  seed=%d tests=%d\n",
			r.RunID, r.CreatedAt.Format(time.RFC3339), r.Seed, r.NumTests)
	}
	return nil
}

func printRun(store *sqlite.RunStore, runID string) error {
	run, plans, rows, err := store.LoadRun(runID)
	if err != nil {
		return err
	}
	fmt.Printf("run %s (created %s, seed=%d, tests=%d)\n",
		run.RunID, run.CreatedAt.Format(time.RFC3339), run.Seed, run.NumTests)
	for _, p := range plans {
		fmt.Printf("  %-20s r=%.4f RMSE=%.2f ubRMSE=%.2f MAE=%.2f (%d windows, %d excluded, %d segments)\n",
			p.SiteID, p.Score.R, p.Score.RMSE, p.Score.UbRMSE, p.Score.MAE,
			p.ValidWindows, p.ExcludedWindows, len(p.Plan.Factors))
	}
	fmt.Printf("  %d calibration rows\n", len(rows))
	return nil
}
