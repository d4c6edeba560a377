package linear

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"vwap-lag-predictor/internal/domain"

	"gopkg.in/yaml.v3"
)

// Artifact is the persisted form of a trained linear decision boundary.
type Artifact struct {
	FeatureNames []string  `json:"feature_names,omitempty" yaml:"feature_names,omitempty"`
	Weights      []float64 `json:"weights" yaml:"weights"`
	Bias         float64   `json:"bias" yaml:"bias"`
}

// Model is an immutable weight vector plus bias. It is never mutated after load.
type Model struct {
	weights []float64
	bias    float64
	names   []string
}

func New(weights []float64, bias float64) (*Model, error) {
	return fromArtifact(Artifact{Weights: weights, Bias: bias})
}

// Load reads an artifact from disk. Files ending in .yaml or .yml are decoded
// as YAML, everything else as JSON.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return UnmarshalYAML(data)
	default:
		return UnmarshalBinary(data)
	}
}

func UnmarshalBinary(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse model artifact: %w", err)
	}
	return fromArtifact(a)
}

func UnmarshalYAML(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a Artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse model artifact: %w", err)
	}
	return fromArtifact(a)
}

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	return json.Marshal(Artifact{FeatureNames: m.FeatureNames(), Weights: m.Weights(), Bias: m.bias})
}

func fromArtifact(a Artifact) (*Model, error) {
	if len(a.Weights) < domain.FeaturesPerLag {
		return nil, fmt.Errorf("invalid artifact: %d weights, need at least %d", len(a.Weights), domain.FeaturesPerLag)
	}
	for i, w := range a.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("invalid artifact: weight %d is not finite", i)
		}
	}
	if math.IsNaN(a.Bias) || math.IsInf(a.Bias, 0) {
		return nil, errors.New("invalid artifact: bias is not finite")
	}
	if len(a.FeatureNames) != 0 && len(a.FeatureNames) != len(a.Weights) {
		return nil, fmt.Errorf("invalid artifact: %d feature names for %d weights", len(a.FeatureNames), len(a.Weights))
	}

	weights := make([]float64, len(a.Weights))
	copy(weights, a.Weights)
	names := a.FeatureNames
	if len(names) == 0 {
		names = DefaultFeatureNames(len(weights) / domain.FeaturesPerLag)
		for i := len(names); i < len(weights); i++ {
			names = append(names, fmt.Sprintf("f%d", i))
		}
	}
	return &Model{weights: weights, bias: a.Bias, names: append([]string(nil), names...)}, nil
}

// Width is the number of weights.
func (m *Model) Width() int {
	return len(m.weights)
}

func (m *Model) Bias() float64 {
	return m.bias
}

func (m *Model) Weights() []float64 {
	out := make([]float64, len(m.weights))
	copy(out, m.weights)
	return out
}

func (m *Model) FeatureNames() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Score returns dot(fv, weights) + bias. The vector must match the model width exactly.
func (m *Model) Score(fv domain.FeatureVector) (float64, error) {
	if fv.Len() != len(m.weights) {
		return 0, &domain.DimensionMismatchError{Got: fv.Len(), Want: len(m.weights)}
	}
	return dot(m.weights, fv.Values()) + m.bias, nil
}

// Predict scores the vector and maps the score to a label.
func (m *Model) Predict(fv domain.FeatureVector) (domain.Label, float64, error) {
	score, err := m.Score(fv)
	if err != nil {
		return "", 0, err
	}
	return domain.LabelFromScore(score), score, nil
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// DefaultFeatureNames names columns open0, high0, low0, close0, vwap0, open1, ...
func DefaultFeatureNames(lagCount int) []string {
	out := make([]string, 0, lagCount*domain.FeaturesPerLag)
	for i := 0; i < lagCount; i++ {
		for _, col := range []string{"open", "high", "low", "close", "vwap"} {
			out = append(out, fmt.Sprintf("%s%d", col, i))
		}
	}
	return out
}
