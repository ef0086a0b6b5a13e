package forecast

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domsvc "VolCast/internal/domain/service"
)

func TestScalerTransform(t *testing.T) {
	s := &StandardScaler{Mean: []float64{1, 2}, Scale: []float64{2, 0}}

	out, err := s.Transform([]float64{3, 5})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, out[0], 1e-12)
	// zero scale passes through centered
	assert.InDelta(t, 3.0, out[1], 1e-12)
}

func TestScalerTransformLengthMismatch(t *testing.T) {
	s := &StandardScaler{Mean: []float64{0}, Scale: []float64{1}}
	_, err := s.Transform([]float64{1, 2})
	assert.Error(t, err)
}

func TestLogisticModel(t *testing.T) {
	m := NewLogisticModel("lr", []float64{0, 0}, 0)
	p, err := m.PredictProba([]float64{10, -3})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-12)

	m = NewLogisticModel("lr", []float64{1}, 0)
	p, err = m.PredictProba([]float64{2})
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(-2)), p, 1e-12)

	_, err = m.PredictProba([]float64{1, 2})
	assert.Error(t, err)
}

type fixedModel struct {
	name string
	p    float64
}

func (m fixedModel) Name() string { return m.name }

func (m fixedModel) PredictProba([]float64) (float64, error) { return m.p, nil }

func TestCalibratedEnsemble(t *testing.T) {
	members := []domsvc.Predictor{fixedModel{"a", 0.2}, fixedModel{"b", 0.8}}

	// identity calibration around the weighted mean
	ens, err := NewCalibratedEnsemble(members, []float64{1, 3}, 1, 0)
	require.NoError(t, err)

	p, err := ens.PredictProba(nil)
	require.NoError(t, err)
	want := 1 / (1 + math.Exp(-(0.2*1+0.8*3)/4))
	assert.InDelta(t, want, p, 1e-12)
	assert.Equal(t, "calibrated_ensemble", ens.Name())
}

func TestCalibratedEnsembleRejectsBadShape(t *testing.T) {
	_, err := NewCalibratedEnsemble(nil, nil, 1, 0)
	assert.Error(t, err)

	_, err = NewCalibratedEnsemble([]domsvc.Predictor{fixedModel{"a", 0.5}}, []float64{1, 2}, 1, 0)
	assert.Error(t, err)
}

func TestSchemaAlign(t *testing.T) {
	s := NewSchema([]string{"rvol_12", "bar_range", "momentum_12"})

	vec, cov := s.Align(map[string]float64{"rvol_12": 0.02, "momentum_12": -0.1, "unknown": 9})
	assert.Equal(t, []float64{0.02, 0, -0.1}, vec)
	assert.InDelta(t, 2.0/3.0, cov, 1e-12)
}

func TestBundleLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.json")
	artifact := `{
		"model_version": "v3",
		"feature_columns": ["rvol_12", "bar_range"],
		"scaler": {"mean": [0.01, 0.002], "scale": [0.005, 0.001]},
		"models": {
			"logreg": {"type": "logistic", "coef": [0.4, -0.2], "intercept": 0.1},
			"ridge": {"type": "logistic", "coef": [0.1, 0.3], "intercept": -0.05}
		},
		"calibrated": {"members": ["logreg", "ridge"], "weights": [0.6, 0.4], "platt_a": 1.2, "platt_b": -0.1},
		"config": {"bar_freq": "15m", "default_horizon_days": 1, "default_confidence": 0.95},
		"metrics": {"auc": 0.61}
	}`
	require.NoError(t, os.WriteFile(path, []byte(artifact), 0o644))

	b, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "v3", b.ModelVersion)
	assert.Equal(t, 2, b.Schema.Len())
	require.Len(t, b.Predictors, 3)
	// ensemble leads, then members sorted by name
	assert.Equal(t, "calibrated_ensemble", b.Predictors[0].Name())
	assert.Equal(t, "logreg", b.Predictors[1].Name())
	assert.Equal(t, "ridge", b.Predictors[2].Name())
	assert.Equal(t, "15m", b.Config.BarFreq)
	assert.InDelta(t, 0.61, b.Metrics["auc"], 1e-12)
}

func TestBundleLoadRejectsMismatches(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"missing columns": `{"model_version":"v1","feature_columns":[],"scaler":{"mean":[],"scale":[]}}`,
		"scaler mismatch": `{"model_version":"v1","feature_columns":["a","b"],"scaler":{"mean":[0],"scale":[1]}}`,
		"coef mismatch":   `{"model_version":"v1","feature_columns":["a"],"scaler":{"mean":[0],"scale":[1]},"models":{"m":{"type":"logistic","coef":[1,2],"intercept":0}}}`,
		"bad type":        `{"model_version":"v1","feature_columns":["a"],"scaler":{"mean":[0],"scale":[1]},"models":{"m":{"type":"forest","coef":[1],"intercept":0}}}`,
		"unknown member":  `{"model_version":"v1","feature_columns":["a"],"scaler":{"mean":[0],"scale":[1]},"models":{"m":{"type":"logistic","coef":[1],"intercept":0}},"calibrated":{"members":["ghost"],"platt_a":1,"platt_b":0}}`,
	}
	for name, artifact := range cases {
		path := filepath.Join(dir, name+".json")
		require.NoError(t, os.WriteFile(path, []byte(artifact), 0o644))
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}
