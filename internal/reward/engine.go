// Package reward converts a waste classification, a citizen category and a
// dirtiness index into a monetary reward. A deterministic rule is the
// baseline; an optional learned regressor refines it when present.
package reward

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cleancredit/internal/metrics"
)

// CitizenCategory identifies who is claiming the reward.
type CitizenCategory string

const (
	Taxpayer     CitizenCategory = "taxpayer"
	RationHolder CitizenCategory = "ration_holder"
)

// Classification is the waste class reported by the detector.
type Classification string

const (
	Recyclable Classification = "recyclable"
	Trash      Classification = "trash"
)

// Reward labels, derived only from the citizen category.
const (
	LabelTaxCredits    = "Tax Credits"
	LabelRationCredits = "Ration Credits"
)

// Value sources.
const (
	SourceModel = "model"
	SourceRule  = "rule"
)

// ParseCitizenCategory maps free text to a category. Anything starting with
// "tax" (case-insensitive) is a taxpayer; everything else is a ration holder.
func ParseCitizenCategory(s string) CitizenCategory {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "tax") {
		return Taxpayer
	}
	return RationHolder
}

// ParseClassification maps free text to a class. Anything starting with
// "recycl" (case-insensitive) is recyclable; everything else is trash.
func ParseClassification(s string) Classification {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "recycl") {
		return Recyclable
	}
	return Trash
}

// Query is a single reward request.
type Query struct {
	Citizen        CitizenCategory `json:"citizen_category"`
	Class          Classification  `json:"classification"`
	DirtinessIndex float64         `json:"dirtiness_index"`
}

// Validate checks that the dirtiness index is in [0,1].
func (q Query) Validate() error {
	if math.IsNaN(q.DirtinessIndex) || q.DirtinessIndex < 0 || q.DirtinessIndex > 1 {
		return eris.Errorf("reward: dirtiness index %v out of range [0,1]", q.DirtinessIndex)
	}
	return nil
}

// Features encodes q as [is_taxpayer, is_recyclable, dirtiness_index].
func (q Query) Features() []float64 {
	var isTaxpayer, isRecyclable float64
	if q.Citizen == Taxpayer {
		isTaxpayer = 1
	}
	if q.Class == Recyclable {
		isRecyclable = 1
	}
	return []float64{isTaxpayer, isRecyclable, q.DirtinessIndex}
}

// Label returns the reward label for the query's citizen category.
func (q Query) Label() string {
	if q.Citizen == Taxpayer {
		return LabelTaxCredits
	}
	return LabelRationCredits
}

// Result is a computed reward. Bonus is always Value minus Base.
type Result struct {
	Value  float64 `json:"value"`
	Label  string  `json:"label"`
	Source string  `json:"source"`
	Base   float64 `json:"base_reward"`
	Bonus  float64 `json:"cleanliness_bonus"`
}

// String renders the result for display, e.g. "15.00 Tax Credits".
func (r Result) String() string {
	return fmt.Sprintf("%.2f %s", r.Value, r.Label)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRuleConfig overrides the rule bases.
func WithRuleConfig(c RuleConfig) EngineOption {
	return func(e *Engine) {
		e.rule = c
	}
}

// Engine scores reward queries. It never mutates the model and is safe for
// concurrent use.
type Engine struct {
	model Model
	rule  RuleConfig
}

// NewEngine creates an Engine. model may be nil, in which case every query
// is scored by the rule.
func NewEngine(model Model, opts ...EngineOption) *Engine {
	e := &Engine{model: model, rule: DefaultRuleConfig()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HasModel reports whether a regressor is attached.
func (e *Engine) HasModel() bool {
	return e.model != nil
}

// Score computes the reward for q. Model failures are absorbed and the rule
// is used instead.
func (e *Engine) Score(q Query) Result {
	base := e.base(q.Class)

	if e.model != nil {
		v, err := e.predict(q.Features())
		if err == nil {
			metrics.RewardScores.WithLabelValues(SourceModel).Inc()
			v = math.Max(0, v)
			return Result{Value: v, Label: q.Label(), Source: SourceModel, Base: base, Bonus: v - base}
		}
		metrics.ModelFailures.WithLabelValues(failureReason(err)).Inc()
		zap.L().Debug("reward: model inference failed, using rule", zap.Error(err))
	}

	metrics.RewardScores.WithLabelValues(SourceRule).Inc()
	v := base * (1 + q.DirtinessIndex)
	return Result{Value: v, Label: q.Label(), Source: SourceRule, Base: base, Bonus: v - base}
}

// ScoreStrings scores free-text inputs as received from the API layer.
func (e *Engine) ScoreStrings(citizen, class string, dirtinessIndex float64) Result {
	return e.Score(Query{
		Citizen:        ParseCitizenCategory(citizen),
		Class:          ParseClassification(class),
		DirtinessIndex: dirtinessIndex,
	})
}

func (e *Engine) base(c Classification) float64 {
	if c == Recyclable {
		return e.rule.RecyclableBase
	}
	return e.rule.TrashBase
}

// errModelPanic marks a recovered panic inside the regressor.
var errModelPanic = eris.New("reward: model panicked")

// predict runs the model inside a recovery scope. Panics, errors and
// non-finite outputs are all reported as errors.
func (e *Engine) predict(features []float64) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = 0
			err = eris.Wrapf(errModelPanic, "%v", r)
		}
	}()

	v, err = e.model.Predict(features)
	if err != nil {
		return 0, eris.Wrap(err, "reward: model predict")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Wrapf(ErrNonFiniteOutput, "got %v", v)
	}
	return v, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, errModelPanic):
		return "panic"
	case errors.Is(err, ErrFeatureShape):
		return "shape"
	case errors.Is(err, ErrNonFiniteOutput):
		return "non_finite"
	default:
		return "error"
	}
}
