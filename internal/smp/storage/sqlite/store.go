// Package sqlite persists calibration runs: the winning stretch plan per
// profile, the filtered calibration rows, per-profile failures, and trained
// classifier artifacts. A run can be reloaded instead of repeating the
// search.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cryodata/density.report/internal/smp"
)

const schema = `
	CREATE TABLE IF NOT EXISTS calibration_runs (
		run_id TEXT PRIMARY KEY,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		seed BIGINT,
		num_tests INT,
		params_json TEXT
	);
	CREATE TABLE IF NOT EXISTS profile_plans (
		run_id TEXT NOT NULL,
		site_id TEXT NOT NULL,
		segment_size_mm DOUBLE,
		factors_json TEXT,
		r DOUBLE,
		rmse DOUBLE,
		ub_rmse DOUBLE,
		mae DOUBLE,
		valid_windows INT,
		excluded_windows INT,
		PRIMARY KEY (run_id, site_id),
		FOREIGN KEY (run_id) REFERENCES calibration_runs(run_id)
	);
	CREATE TABLE IF NOT EXISTS calibration_samples (
		sample_id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		site_id TEXT NOT NULL,
		window_center_mm DOUBLE,
		smp_density DOUBLE,
		cutter_density DOUBLE,
		layer_type TEXT,
		error DOUBLE,
		FOREIGN KEY (run_id) REFERENCES calibration_runs(run_id)
	);
	CREATE TABLE IF NOT EXISTS profile_failures (
		run_id TEXT NOT NULL,
		site_id TEXT NOT NULL,
		reason TEXT,
		detail TEXT,
		FOREIGN KEY (run_id) REFERENCES calibration_runs(run_id)
	);
	CREATE TABLE IF NOT EXISTS classifier_models (
		model_id TEXT PRIMARY KEY,
		version TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		payload BLOB
	);
`

// RunStore handles database operations for persisted calibration runs.
type RunStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the run database at path.
func Open(path string) (*RunStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &RunStore{db: db}, nil
}

// Close closes the underlying database.
func (s *RunStore) Close() error { return s.db.Close() }

// Run is one persisted calibration run header.
type Run struct {
	RunID     string
	CreatedAt time.Time
	Seed      int64
	NumTests  int
	Params    smp.Params
}

// CreateRun inserts a new run header and returns its identifier.
func (s *RunStore) CreateRun(pa smp.Params) (string, error) {
	paramsJSON, err := json.Marshal(pa)
	if err != nil {
		return "", fmt.Errorf("failed to marshal params: %w", err)
	}
	runID := uuid.New().String()
	_, err = s.db.Exec(
		`INSERT INTO calibration_runs (run_id, seed, num_tests, params_json) VALUES (?, ?, ?, ?)`,
		runID, pa.Seed, pa.NumTests, string(paramsJSON),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return runID, nil
}

// SaveProfileResult persists the winning plan and calibration rows for one
// profile under the given run.
func (s *RunStore) SaveProfileResult(runID string, res smp.ProfileResult) error {
	factorsJSON, err := json.Marshal(res.Plan.Factors)
	if err != nil {
		return fmt.Errorf("failed to marshal plan factors: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO profile_plans (
			run_id, site_id, segment_size_mm, factors_json,
			r, rmse, ub_rmse, mae, valid_windows, excluded_windows
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, res.SiteID, res.Plan.SegmentSize, string(factorsJSON),
		res.Score.R, res.Score.RMSE, res.Score.UbRMSE, res.Score.MAE,
		res.ValidWindows, res.ExcludedWindows,
	)
	if err != nil {
		return fmt.Errorf("failed to insert plan for site %s: %w", res.SiteID, err)
	}

	for _, row := range res.Rows {
		_, err = tx.Exec(`
			INSERT INTO calibration_samples (
				run_id, site_id, window_center_mm, smp_density, cutter_density, layer_type, error
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, row.SiteID, row.WindowCenter, row.SMPDensity, row.CutterDensity, string(row.Layer), row.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to insert calibration row for site %s: %w", res.SiteID, err)
		}
	}

	return tx.Commit()
}

// SaveFailure records one per-profile failure under the given run.
func (s *RunStore) SaveFailure(runID string, f smp.ProfileFailure) error {
	detail := ""
	if f.Err != nil {
		detail = f.Err.Error()
	}
	_, err := s.db.Exec(
		`INSERT INTO profile_failures (run_id, site_id, reason, detail) VALUES (?, ?, ?, ?)`,
		runID, f.SiteID, string(f.Reason), detail,
	)
	if err != nil {
		return fmt.Errorf("failed to insert failure for site %s: %w", f.SiteID, err)
	}
	return nil
}

// StoredPlan is a persisted winning plan with its skill score.
type StoredPlan struct {
	SiteID          string
	Plan            smp.StretchPlan
	Score           smp.SkillScore
	ValidWindows    int
	ExcludedWindows int
}

// LoadRun returns the run header, the winning plans, and the calibration
// rows persisted under runID.
func (s *RunStore) LoadRun(runID string) (Run, []StoredPlan, []smp.CalibrationRow, error) {
	var run Run
	var paramsJSON string
	err := s.db.QueryRow(
		`SELECT run_id, created_at, seed, num_tests, params_json FROM calibration_runs WHERE run_id = ?`,
		runID,
	).Scan(&run.RunID, &run.CreatedAt, &run.Seed, &run.NumTests, &paramsJSON)
	if err != nil {
		return Run{}, nil, nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(paramsJSON), &run.Params); err != nil {
		return Run{}, nil, nil, fmt.Errorf("failed to parse params for run %s: %w", runID, err)
	}

	plans, err := s.loadPlans(runID)
	if err != nil {
		return Run{}, nil, nil, err
	}
	rows, err := s.loadRows(runID)
	if err != nil {
		return Run{}, nil, nil, err
	}
	return run, plans, rows, nil
}

func (s *RunStore) loadPlans(runID string) ([]StoredPlan, error) {
	rows, err := s.db.Query(`
		SELECT site_id, segment_size_mm, factors_json, r, rmse, ub_rmse, mae, valid_windows, excluded_windows
		FROM profile_plans WHERE run_id = ? ORDER BY site_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var out []StoredPlan
	for rows.Next() {
		var p StoredPlan
		var factorsJSON string
		if err := rows.Scan(&p.SiteID, &p.Plan.SegmentSize, &factorsJSON,
			&p.Score.R, &p.Score.RMSE, &p.Score.UbRMSE, &p.Score.MAE,
			&p.ValidWindows, &p.ExcludedWindows); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		if err := json.Unmarshal([]byte(factorsJSON), &p.Plan.Factors); err != nil {
			return nil, fmt.Errorf("failed to parse factors for site %s: %w", p.SiteID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *RunStore) loadRows(runID string) ([]smp.CalibrationRow, error) {
	rows, err := s.db.Query(`
		SELECT site_id, window_center_mm, smp_density, cutter_density, layer_type, error
		FROM calibration_samples WHERE run_id = ? ORDER BY site_id, window_center_mm`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query calibration rows: %w", err)
	}
	defer rows.Close()

	var out []smp.CalibrationRow
	for rows.Next() {
		var r smp.CalibrationRow
		var layer string
		if err := rows.Scan(&r.SiteID, &r.WindowCenter, &r.SMPDensity, &r.CutterDensity, &layer, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan calibration row: %w", err)
		}
		r.Layer = smp.LayerType(layer)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListRuns returns run headers, newest first.
func (s *RunStore) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT run_id, created_at, seed, num_tests, params_json FROM calibration_runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var run Run
		var paramsJSON string
		if err := rows.Scan(&run.RunID, &run.CreatedAt, &run.Seed, &run.NumTests, &paramsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(paramsJSON), &run.Params); err != nil {
			return nil, fmt.Errorf("failed to parse params for run %s: %w", run.RunID, err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// SaveClassifierModel persists an opaque classifier artifact and returns its
// identifier.
func (s *RunStore) SaveClassifierModel(version string, payload []byte) (string, error) {
	modelID := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO classifier_models (model_id, version, payload) VALUES (?, ?, ?)`,
		modelID, version, payload,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert classifier model: %w", err)
	}
	return modelID, nil
}

// LoadClassifierModel returns the newest persisted artifact with the given
// version string.
func (s *RunStore) LoadClassifierModel(version string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRow(
		`SELECT payload FROM classifier_models WHERE version = ? ORDER BY created_at DESC LIMIT 1`,
		version,
	).Scan(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to load classifier model %q: %w", version, err)
	}
	return payload, nil
}
