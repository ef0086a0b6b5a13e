package service

// Predictor scores one scaled feature vector and returns the probability
// of a volatility expansion over the model horizon. Every pretrained
// artifact member implements this, the calibrated ensemble included, so
// callers never dispatch on model names.
//
// Implementations must be side-effect-free at inference time; concurrent
// PredictProba calls on a loaded bundle are safe.
type Predictor interface {
	Name() string
	PredictProba(x []float64) (float64, error)
}
