package forecast

import (
	"fmt"
	"math"

	domsvc "VolCast/internal/domain/service"
)

// LogisticModel is a pretrained linear classifier scoring the probability
// of a volatility expansion: sigmoid(coef·x + intercept).
type LogisticModel struct {
	name      string
	coef      []float64
	intercept float64
}

// NewLogisticModel builds a predictor from fitted coefficients.
func NewLogisticModel(name string, coef []float64, intercept float64) *LogisticModel {
	return &LogisticModel{name: name, coef: coef, intercept: intercept}
}

func (m *LogisticModel) Name() string { return m.name }

func (m *LogisticModel) PredictProba(x []float64) (float64, error) {
	if len(x) != len(m.coef) {
		return 0, fmt.Errorf("model %s: vector length %d does not match %d coefficients", m.name, len(x), len(m.coef))
	}
	z := m.intercept
	for i, v := range x {
		z += m.coef[i] * v
	}
	return sigmoid(z), nil
}

// CalibratedEnsemble averages member probabilities with training-time
// weights, then applies a sigmoid(a*p+b) calibration so raw scores match
// observed frequencies. It is just another Predictor: callers never treat
// it specially.
type CalibratedEnsemble struct {
	members []domsvc.Predictor
	weights []float64
	a, b    float64
}

// NewCalibratedEnsemble builds the calibrated ensemble over its members.
// weights may be nil for a plain mean.
func NewCalibratedEnsemble(members []domsvc.Predictor, weights []float64, a, b float64) (*CalibratedEnsemble, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("calibrated ensemble: no members")
	}
	if weights != nil && len(weights) != len(members) {
		return nil, fmt.Errorf("calibrated ensemble: %d weights for %d members", len(weights), len(members))
	}
	return &CalibratedEnsemble{members: members, weights: weights, a: a, b: b}, nil
}

func (e *CalibratedEnsemble) Name() string { return "calibrated_ensemble" }

func (e *CalibratedEnsemble) PredictProba(x []float64) (float64, error) {
	var sum, wsum float64
	for i, m := range e.members {
		p, err := m.PredictProba(x)
		if err != nil {
			return 0, fmt.Errorf("member %s: %w", m.Name(), err)
		}
		w := 1.0
		if e.weights != nil {
			w = e.weights[i]
		}
		sum += w * p
		wsum += w
	}
	if wsum == 0 {
		return 0, fmt.Errorf("calibrated ensemble: zero total weight")
	}
	return sigmoid(e.a*(sum/wsum) + e.b), nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
