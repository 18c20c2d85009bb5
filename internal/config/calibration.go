// Package config loads the run parameters for the SMP density calibration
// pipeline. All parameters are named, typed values threaded explicitly through
// the alignment core; nothing reads ambient global state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical calibration defaults file.
// This is the single source of truth for all default run parameters.
const DefaultConfigPath = "config/calibration.defaults.json"

// CalibrationConfig represents the root configuration for a calibration run.
// Fields are pointers so that a partial JSON file only overrides what it
// names; the Get* accessors supply defaults for everything else.
type CalibrationConfig struct {
	// Sampling geometry (millimetres)
	CutterHalfHeightMM *float64 `json:"cutter_half_height_mm,omitempty"`
	RollingWindowMM    *float64 `json:"rolling_window_mm,omitempty"`
	ResampleStepMM     *float64 `json:"resample_step_mm,omitempty"`
	SegmentSizeMM      *float64 `json:"segment_size_mm,omitempty"`

	// Stretch bounds (fractions)
	MaxLayerStretch   *float64 `json:"max_layer_stretch,omitempty"`
	MaxOverallStretch *float64 `json:"max_overall_stretch,omitempty"`

	// Search budget
	NumTests       *int   `json:"num_tests,omitempty"`
	RandomSeed     *int64 `json:"random_seed,omitempty"`
	Workers        *int   `json:"workers,omitempty"`
	MaxPlanRetries *int   `json:"max_plan_retries,omitempty"`

	// Screening
	MinValidWindows *int `json:"min_valid_windows,omitempty"`

	// Classifier post-processing
	MinLayerThicknessMM *float64 `json:"min_layer_thickness_mm,omitempty"`
}

// EmptyCalibrationConfig returns a CalibrationConfig with all fields set to
// nil. Use LoadCalibrationConfig to load actual values from a file.
func EmptyCalibrationConfig() *CalibrationConfig {
	return &CalibrationConfig{}
}

// LoadCalibrationConfig loads a CalibrationConfig from a JSON file. Fields
// omitted from the JSON retain their defaults, so partial configs are safe.
func LoadCalibrationConfig(path string) (*CalibrationConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyCalibrationConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories. Panics if
// the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *CalibrationConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/smp/...
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadCalibrationConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are usable.
func (c *CalibrationConfig) Validate() error {
	if c.CutterHalfHeightMM != nil && *c.CutterHalfHeightMM <= 0 {
		return fmt.Errorf("cutter_half_height_mm must be positive, got %f", *c.CutterHalfHeightMM)
	}
	if c.RollingWindowMM != nil && *c.RollingWindowMM <= 0 {
		return fmt.Errorf("rolling_window_mm must be positive, got %f", *c.RollingWindowMM)
	}
	if c.ResampleStepMM != nil && *c.ResampleStepMM <= 0 {
		return fmt.Errorf("resample_step_mm must be positive, got %f", *c.ResampleStepMM)
	}
	if c.SegmentSizeMM != nil && *c.SegmentSizeMM <= 0 {
		return fmt.Errorf("segment_size_mm must be positive, got %f", *c.SegmentSizeMM)
	}
	if c.MaxLayerStretch != nil {
		if *c.MaxLayerStretch <= 0 || *c.MaxLayerStretch >= 1 {
			return fmt.Errorf("max_layer_stretch must be in (0, 1), got %f", *c.MaxLayerStretch)
		}
	}
	if c.MaxOverallStretch != nil {
		if *c.MaxOverallStretch <= 0 || *c.MaxOverallStretch >= 1 {
			return fmt.Errorf("max_overall_stretch must be in (0, 1), got %f", *c.MaxOverallStretch)
		}
	}
	if c.NumTests != nil && *c.NumTests <= 0 {
		return fmt.Errorf("num_tests must be positive, got %d", *c.NumTests)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.MaxPlanRetries != nil && *c.MaxPlanRetries <= 0 {
		return fmt.Errorf("max_plan_retries must be positive, got %d", *c.MaxPlanRetries)
	}
	if c.MinValidWindows != nil && *c.MinValidWindows < 2 {
		return fmt.Errorf("min_valid_windows must be at least 2, got %d", *c.MinValidWindows)
	}
	if c.MinLayerThicknessMM != nil && *c.MinLayerThicknessMM <= 0 {
		return fmt.Errorf("min_layer_thickness_mm must be positive, got %f", *c.MinLayerThicknessMM)
	}
	return nil
}

// GetCutterHalfHeightMM returns the cutter half-height or the default.
func (c *CalibrationConfig) GetCutterHalfHeightMM() float64 {
	if c.CutterHalfHeightMM == nil {
		return 15.0 // 3 cm box cutter
	}
	return *c.CutterHalfHeightMM
}

// GetRollingWindowMM returns the derived-quantity rolling window or the default.
func (c *CalibrationConfig) GetRollingWindowMM() float64 {
	if c.RollingWindowMM == nil {
		return 5.0
	}
	return *c.RollingWindowMM
}

// GetResampleStepMM returns the resample step or the default.
func (c *CalibrationConfig) GetResampleStepMM() float64 {
	if c.ResampleStepMM == nil {
		return 1.0
	}
	return *c.ResampleStepMM
}

// GetSegmentSizeMM returns the stretch segment size or the default.
func (c *CalibrationConfig) GetSegmentSizeMM() float64 {
	if c.SegmentSizeMM == nil {
		return 50.0
	}
	return *c.SegmentSizeMM
}

// GetMaxLayerStretch returns the per-segment stretch bound or the default.
func (c *CalibrationConfig) GetMaxLayerStretch() float64 {
	if c.MaxLayerStretch == nil {
		return 0.25
	}
	return *c.MaxLayerStretch
}

// GetMaxOverallStretch returns the whole-profile stretch bound or the default.
func (c *CalibrationConfig) GetMaxOverallStretch() float64 {
	if c.MaxOverallStretch == nil {
		return 0.05
	}
	return *c.MaxOverallStretch
}

// GetNumTests returns the candidate budget per profile or the default.
func (c *CalibrationConfig) GetNumTests() int {
	if c.NumTests == nil {
		return 10000
	}
	return *c.NumTests
}

// GetRandomSeed returns the run seed or the default.
func (c *CalibrationConfig) GetRandomSeed() int64 {
	if c.RandomSeed == nil {
		return 42
	}
	return *c.RandomSeed
}

// GetWorkers returns the worker count; 0 means one per CPU.
func (c *CalibrationConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetMaxPlanRetries returns the plan regeneration budget or the default.
func (c *CalibrationConfig) GetMaxPlanRetries() int {
	if c.MaxPlanRetries == nil {
		return 1000
	}
	return *c.MaxPlanRetries
}

// GetMinValidWindows returns the minimum scoreable windows per profile.
func (c *CalibrationConfig) GetMinValidWindows() int {
	if c.MinValidWindows == nil {
		return 3
	}
	return *c.MinValidWindows
}

// GetMinLayerThicknessMM returns the classifier smoothing thickness floor.
func (c *CalibrationConfig) GetMinLayerThicknessMM() float64 {
	if c.MinLayerThicknessMM == nil {
		return 10.0 // 1 cm
	}
	return *c.MinLayerThicknessMM
}
