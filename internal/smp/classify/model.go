package classify

import (
	"encoding/json"
	"fmt"

	"github.com/cryodata/density.report/internal/smp"
)

// Model is a trained one-vs-rest linear scorer over the classify feature
// vector. It is the applied form of the externally trained support-vector
// model: one weight row and bias per class, predicted class is the argmax
// score. The artifact is opaque JSON so training pipelines can regenerate it
// without touching this module.
type Model struct {
	Version string          `json:"version"`
	Classes []smp.LayerType `json:"classes"`
	Weights [][]float64     `json:"weights"` // one row of NumFeatures per class
	Bias    []float64       `json:"bias"`
}

// Validate checks the artifact's internal consistency.
func (m *Model) Validate() error {
	if len(m.Classes) == 0 {
		return fmt.Errorf("model %q: no classes", m.Version)
	}
	if len(m.Weights) != len(m.Classes) || len(m.Bias) != len(m.Classes) {
		return fmt.Errorf("model %q: %d classes but %d weight rows and %d biases",
			m.Version, len(m.Classes), len(m.Weights), len(m.Bias))
	}
	for i, row := range m.Weights {
		if len(row) != NumFeatures {
			return fmt.Errorf("model %q: class %s has %d weights, want %d",
				m.Version, m.Classes[i], len(row), NumFeatures)
		}
	}
	return nil
}

// Predict returns the label with the highest linear score for one sample.
func (m *Model) Predict(f FeatureVector) smp.LayerType {
	best := 0
	bestScore := m.score(0, f)
	for c := 1; c < len(m.Classes); c++ {
		if s := m.score(c, f); s > bestScore {
			best, bestScore = c, s
		}
	}
	return m.Classes[best]
}

// PredictSeries returns the raw per-sample labels for a whole profile. The
// caller is expected to smooth them with SmoothLabels before deriving layer
// boundaries.
func (m *Model) PredictSeries(features []FeatureVector) []smp.LayerType {
	out := make([]smp.LayerType, len(features))
	for i, f := range features {
		out[i] = m.Predict(f)
	}
	return out
}

func (m *Model) score(class int, f FeatureVector) float64 {
	s := m.Bias[class]
	for i, w := range m.Weights[class] {
		s += w * f[i]
	}
	return s
}

// EncodeModel serialises a model to its persisted artifact form.
func EncodeModel(m *Model) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// DecodeModel parses a persisted artifact and validates it.
func DecodeModel(payload []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
