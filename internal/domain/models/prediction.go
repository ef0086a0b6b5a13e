package models

import "time"

// VolatilityPrediction is the calibrated output of the forecasting
// pipeline. Values are ephemeral: created per request, returned to the
// caller, optionally mirrored to the prediction audit log.
type VolatilityPrediction struct {
	Symbol              string             `json:"symbol"`
	PredictedVolatility float64            `json:"predicted_volatility"`
	ConfidenceInterval  [2]float64         `json:"confidence_interval"`
	ModelConfidence     float64            `json:"model_confidence"`
	ContributingModels  map[string]float64 `json:"contributing_models"`
	FeatureCoverage     float64            `json:"feature_coverage"`
	HorizonDays         int                `json:"horizon_days"`
	Timestamp           time.Time          `json:"prediction_timestamp"`
	ModelVersion        string             `json:"model_version"`
}

// SeriesPoint is one realized-volatility observation in a forecast series.
type SeriesPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	RealizedVol float64   `json:"realized_vol"`
}

// SeriesStats summarize the trailing realized-volatility window.
type SeriesStats struct {
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Current float64 `json:"current"`
}

// ForecastSeries bundles the trailing realized-volatility series with the
// current point prediction.
type ForecastSeries struct {
	Symbol              string                `json:"symbol"`
	HorizonDays         int                   `json:"horizon_days"`
	ConfidenceThreshold float64               `json:"confidence_threshold"`
	LowConfidence       bool                  `json:"low_confidence"`
	Series              []SeriesPoint         `json:"series"`
	Stats               SeriesStats           `json:"stats"`
	Prediction          *VolatilityPrediction `json:"prediction"`
}

// BacktestReport is the result of scoring the frozen ensemble on the
// held-out tail of the feature history. Purely evaluative, never retrains.
type BacktestReport struct {
	Symbol              string             `json:"symbol"`
	From                time.Time          `json:"from"`
	To                  time.Time          `json:"to"`
	TrainRows           int                `json:"train_rows"`
	TestRows            int                `json:"test_rows"`
	ScoredRows          int                `json:"scored_rows"`
	DirectionalAccuracy float64            `json:"directional_accuracy"`
	ConfidenceThreshold float64            `json:"confidence_threshold"`
	TrainingMetrics     map[string]float64 `json:"training_metrics"`
	ModelVersion        string             `json:"model_version"`
}
