package reward

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/rotisserie/eris"
)

// NumFeatures is the length of the feature vector every model accepts.
const NumFeatures = 3

var (
	// ErrFeatureShape is returned when a feature vector has the wrong length.
	ErrFeatureShape = eris.New("reward: feature vector shape mismatch")

	// ErrNonFiniteOutput is returned when a model predicts NaN or Inf.
	ErrNonFiniteOutput = eris.New("reward: model produced a non-finite value")

	// ErrModelNotFound is returned by LoadModel when the file does not exist.
	ErrModelNotFound = eris.New("reward: model file not found")
)

// Model is a trained regressor over [is_taxpayer, is_recyclable, dirtiness_index].
// Implementations must not mutate shared state in Predict.
type Model interface {
	Predict(features []float64) (float64, error)
}

// ModelFunc adapts a plain function to Model.
type ModelFunc func(features []float64) (float64, error)

// Predict calls f.
func (f ModelFunc) Predict(features []float64) (float64, error) {
	return f(features)
}

// LinearModel predicts Intercept + Σ Coef[i]·x[i].
type LinearModel struct {
	Intercept float64   `json:"intercept"`
	Coef      []float64 `json:"coef"`
}

// Predict implements Model.
func (m *LinearModel) Predict(features []float64) (float64, error) {
	if len(features) != len(m.Coef) {
		return 0, eris.Wrapf(ErrFeatureShape, "linear: want %d features, got %d", len(m.Coef), len(features))
	}
	v := m.Intercept
	for i, c := range m.Coef {
		v += c * features[i]
	}
	return v, nil
}

// Node is one node of a regression tree. Leaves carry Value; split nodes
// send x[Feature] <= Threshold to Left and everything else to Right.
type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
}

// Tree is a regression tree rooted at Nodes[0].
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks the tree for x.
func (t *Tree) Predict(x []float64) (float64, error) {
	if len(t.Nodes) == 0 {
		return 0, eris.New("reward: empty tree")
	}

	idx := 0
	// A well-formed tree reaches a leaf in fewer steps than it has nodes.
	for steps := 0; steps <= len(t.Nodes); steps++ {
		if idx < 0 || idx >= len(t.Nodes) {
			return 0, eris.Errorf("reward: tree node %d out of range", idx)
		}
		n := t.Nodes[idx]
		if n.Leaf {
			return n.Value, nil
		}
		if n.Feature < 0 || n.Feature >= len(x) {
			return 0, eris.Wrapf(ErrFeatureShape, "tree: split on feature %d of %d", n.Feature, len(x))
		}
		if x[n.Feature] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
	return 0, eris.New("reward: tree contains a cycle")
}

// ForestModel averages the predictions of its trees.
type ForestModel struct {
	Trees []Tree `json:"trees"`
}

// Predict implements Model.
func (m *ForestModel) Predict(features []float64) (float64, error) {
	if len(features) != NumFeatures {
		return 0, eris.Wrapf(ErrFeatureShape, "forest: want %d features, got %d", NumFeatures, len(features))
	}
	if len(m.Trees) == 0 {
		return 0, eris.New("reward: forest has no trees")
	}

	var sum float64
	for i := range m.Trees {
		v, err := m.Trees[i].Predict(features)
		if err != nil {
			return 0, eris.Wrapf(err, "forest: tree %d", i)
		}
		sum += v
	}
	return sum / float64(len(m.Trees)), nil
}

// modelDocument is the on-disk model envelope.
type modelDocument struct {
	Kind      string    `json:"kind"`
	Intercept float64   `json:"intercept"`
	Coef      []float64 `json:"coef"`
	Trees     []Tree    `json:"trees"`
}

// Model kinds understood by ParseModel.
const (
	KindLinear = "linear"
	KindForest = "forest"
)

// ParseModel decodes a JSON model document.
func ParseModel(data []byte) (Model, error) {
	var doc modelDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "reward: decode model")
	}

	switch doc.Kind {
	case KindLinear:
		if len(doc.Coef) != NumFeatures {
			return nil, eris.Wrapf(ErrFeatureShape, "reward: linear model has %d coefficients", len(doc.Coef))
		}
		return &LinearModel{Intercept: doc.Intercept, Coef: doc.Coef}, nil
	case KindForest:
		if len(doc.Trees) == 0 {
			return nil, eris.New("reward: forest model has no trees")
		}
		for i, t := range doc.Trees {
			if len(t.Nodes) == 0 {
				return nil, eris.Errorf("reward: forest tree %d has no nodes", i)
			}
		}
		return &ForestModel{Trees: doc.Trees}, nil
	default:
		return nil, eris.Errorf("reward: unknown model kind %q", doc.Kind)
	}
}

// LoadModel reads and parses a model file. Callers treat any error as "no
// model" and run on the rule alone.
func LoadModel(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, eris.Wrapf(ErrModelNotFound, "reward: %s", path)
		}
		return nil, eris.Wrapf(err, "reward: read model %s", path)
	}
	m, err := ParseModel(data)
	if err != nil {
		return nil, eris.Wrapf(err, "reward: parse model %s", path)
	}
	return m, nil
}
