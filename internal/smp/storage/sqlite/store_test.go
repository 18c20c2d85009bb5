package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/cryodata/density.report/internal/smp"
)

func testStore(t *testing.T) *RunStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRunParams() smp.Params {
	return smp.Params{
		CutterHalfHeightMM: 15,
		RollingWindowMM:    5,
		ResampleStepMM:     1,
		SegmentSizeMM:      50,
		MaxLayerStretch:    0.25,
		MaxOverallStretch:  0.05,
		NumTests:           100,
		Seed:               42,
		MaxPlanRetries:     1000,
		MinValidWindows:    3,
	}
}

func TestRunRoundTrip(t *testing.T) {
	store := testStore(t)
	pa := testRunParams()

	runID, err := store.CreateRun(pa)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	res := smp.ProfileResult{
		SiteID: "site_a",
		Plan:   smp.StretchPlan{SegmentSize: 50, Factors: []float64{1.02, 0.97, 1.01, 0.99}},
		Score:  smp.SkillScore{R: 0.97, RMSE: 12.5, UbRMSE: 9.1, MAE: 8.2},
		Rows: []smp.CalibrationRow{
			{SiteID: "site_a", WindowCenter: 35, SMPDensity: 212, CutterDensity: 205, Layer: smp.LayerRounded, Error: 7},
			{SiteID: "site_a", WindowCenter: 95, SMPDensity: 298, CutterDensity: 310, Layer: smp.LayerFaceted, Error: -12},
		},
		ValidWindows:    2,
		ExcludedWindows: 1,
	}
	require.NoError(t, store.SaveProfileResult(runID, res))

	run, plans, rows, err := store.LoadRun(runID)
	require.NoError(t, err)

	require.Equal(t, runID, run.RunID)
	require.Equal(t, pa.Seed, run.Seed)
	require.Equal(t, pa.NumTests, run.NumTests)
	if diff := cmp.Diff(pa, run.Params); diff != "" {
		t.Errorf("params changed through persistence:\n%s", diff)
	}

	require.Len(t, plans, 1)
	if diff := cmp.Diff(res.Plan, plans[0].Plan); diff != "" {
		t.Errorf("plan changed through persistence:\n%s", diff)
	}
	require.Equal(t, res.Score, plans[0].Score)
	require.Equal(t, res.ValidWindows, plans[0].ValidWindows)
	require.Equal(t, res.ExcludedWindows, plans[0].ExcludedWindows)

	if diff := cmp.Diff(res.Rows, rows); diff != "" {
		t.Errorf("calibration rows changed through persistence:\n%s", diff)
	}
}

func TestLoadRunUnknownID(t *testing.T) {
	store := testStore(t)
	_, _, _, err := store.LoadRun("no-such-run")
	require.Error(t, err)
}

func TestSaveFailure(t *testing.T) {
	store := testStore(t)
	runID, err := store.CreateRun(testRunParams())
	require.NoError(t, err)

	require.NoError(t, store.SaveFailure(runID, smp.ProfileFailure{
		SiteID: "site_x",
		Reason: smp.FailureMissingGroundTruth,
		Err:    smp.ErrMissingGroundTruth,
	}))
	// Failures without a wrapped error store an empty detail.
	require.NoError(t, store.SaveFailure(runID, smp.ProfileFailure{
		SiteID: "site_y",
		Reason: smp.FailureBadProfile,
	}))
}

func TestListRunsNewestFirst(t *testing.T) {
	store := testStore(t)

	first, err := store.CreateRun(testRunParams())
	require.NoError(t, err)
	second, err := store.CreateRun(testRunParams())
	require.NoError(t, err)

	runs, err := store.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)

	ids := []string{runs[0].RunID, runs[1].RunID}
	require.ElementsMatch(t, []string{first, second}, ids)
}

func TestClassifierModelRoundTrip(t *testing.T) {
	store := testStore(t)

	payload := []byte(`{"version":"v3","classes":["rounded"],"weights":[[1,0,0]],"bias":[0]}`)
	_, err := store.SaveClassifierModel("v3", payload)
	require.NoError(t, err)

	back, err := store.LoadClassifierModel("v3")
	require.NoError(t, err)
	require.Equal(t, payload, back)

	_, err = store.LoadClassifierModel("no-such-version")
	require.Error(t, err)
}
