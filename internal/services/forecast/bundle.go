package forecast

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	domsvc "VolCast/internal/domain/service"
)

// BundleConfig carries the training-time pipeline settings the artifact
// was produced with.
type BundleConfig struct {
	BarFreq            string  `json:"bar_freq"`
	DefaultHorizonDays int     `json:"default_horizon_days"`
	DefaultConfidence  float64 `json:"default_confidence"`
}

// Bundle is the loaded forecast artifact: scaler, per-model predictors,
// the calibrated ensemble, the ordered feature schema and training
// metrics. Immutable once loaded; safe for concurrent use.
type Bundle struct {
	ModelVersion string
	Scaler       *StandardScaler
	Predictors   []domsvc.Predictor
	Schema       *Schema
	Config       BundleConfig
	Metrics      map[string]float64
}

type modelFile struct {
	Type      string    `json:"type"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

type calibratedFile struct {
	Members []string  `json:"members"`
	Weights []float64 `json:"weights"`
	PlattA  float64   `json:"platt_a"`
	PlattB  float64   `json:"platt_b"`
}

type bundleFile struct {
	ModelVersion   string               `json:"model_version"`
	FeatureColumns []string             `json:"feature_columns"`
	Scaler         *StandardScaler      `json:"scaler"`
	Models         map[string]modelFile `json:"models"`
	Calibrated     *calibratedFile      `json:"calibrated"`
	Config         BundleConfig         `json:"config"`
	Metrics        map[string]float64   `json:"metrics"`
}

// Load deserializes the artifact at path. The result is intended to live
// for the whole process and never be mutated.
func Load(path string) (*Bundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	var bf bundleFile
	if err := json.Unmarshal(raw, &bf); err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	return build(&bf)
}

func build(bf *bundleFile) (*Bundle, error) {
	if len(bf.FeatureColumns) == 0 {
		return nil, fmt.Errorf("bundle: no feature columns")
	}
	if bf.Scaler == nil {
		return nil, fmt.Errorf("bundle: no scaler")
	}
	if len(bf.Scaler.Mean) != len(bf.FeatureColumns) {
		return nil, fmt.Errorf("bundle: scaler fitted on %d columns, schema has %d",
			len(bf.Scaler.Mean), len(bf.FeatureColumns))
	}

	byName := make(map[string]domsvc.Predictor, len(bf.Models))
	names := make([]string, 0, len(bf.Models))
	for name := range bf.Models {
		names = append(names, name)
	}
	sort.Strings(names)

	predictors := make([]domsvc.Predictor, 0, len(names)+1)
	for _, name := range names {
		mf := bf.Models[name]
		if mf.Type != "logistic" {
			return nil, fmt.Errorf("bundle: model %s has unsupported type %q", name, mf.Type)
		}
		if len(mf.Coef) != len(bf.FeatureColumns) {
			return nil, fmt.Errorf("bundle: model %s has %d coefficients, schema has %d",
				name, len(mf.Coef), len(bf.FeatureColumns))
		}
		m := NewLogisticModel(name, mf.Coef, mf.Intercept)
		byName[name] = m
		predictors = append(predictors, m)
	}

	if bf.Calibrated != nil {
		members := make([]domsvc.Predictor, 0, len(bf.Calibrated.Members))
		for _, name := range bf.Calibrated.Members {
			m, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("bundle: calibrated member %q not among models", name)
			}
			members = append(members, m)
		}
		ens, err := NewCalibratedEnsemble(members, bf.Calibrated.Weights, bf.Calibrated.PlattA, bf.Calibrated.PlattB)
		if err != nil {
			return nil, fmt.Errorf("bundle: %w", err)
		}
		// The ensemble leads so its contribution is reported first.
		predictors = append([]domsvc.Predictor{ens}, predictors...)
	}

	return &Bundle{
		ModelVersion: bf.ModelVersion,
		Scaler:       bf.Scaler,
		Predictors:   predictors,
		Schema:       NewSchema(bf.FeatureColumns),
		Config:       bf.Config,
		Metrics:      bf.Metrics,
	}, nil
}

// NewBundle assembles a bundle in memory. Used by tests and tooling that
// build artifacts programmatically.
func NewBundle(version string, scaler *StandardScaler, predictors []domsvc.Predictor, columns []string, cfg BundleConfig, metrics map[string]float64) *Bundle {
	return &Bundle{
		ModelVersion: version,
		Scaler:       scaler,
		Predictors:   predictors,
		Schema:       NewSchema(columns),
		Config:       cfg,
		Metrics:      metrics,
	}
}
