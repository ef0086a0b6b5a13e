package models

// Requests for forecast HTTP endpoints. Defined in domain for consistency and reuse.

type PredictRequest struct {
	Symbol      string  `query:"symbol" json:"symbol" validate:"required"`
	HorizonDays int     `query:"horizon_days" json:"horizon_days" default:"1" validate:"gte=1,lte=30"`
	Confidence  float64 `query:"confidence" json:"confidence" default:"0.95" validate:"oneof=0.95 0.99"`
	NoCache     bool    `query:"no_cache" json:"no_cache"`
}

// BarPayload is one externally supplied OHLCV row (upload path). Row-count
// and column validation happen upstream; only shape is bound here.
type BarPayload struct {
	Timestamp int64   `json:"timestamp" validate:"required"`
	Open      float64 `json:"open" validate:"required,gt=0"`
	High      float64 `json:"high" validate:"required,gt=0"`
	Low       float64 `json:"low" validate:"required,gt=0"`
	Close     float64 `json:"close" validate:"required,gt=0"`
	Volume    float64 `json:"volume"`
}

type UploadPredictRequest struct {
	Symbol      string       `json:"symbol" validate:"required"`
	HorizonDays int          `json:"horizon_days" default:"1" validate:"gte=1,lte=30"`
	Confidence  float64      `json:"confidence" default:"0.95" validate:"oneof=0.95 0.99"`
	Bars        []BarPayload `json:"bars" validate:"required,min=2,dive"`
}

type ForecastRequest struct {
	Symbol              string  `query:"symbol" json:"symbol" validate:"required"`
	HorizonDays         int     `query:"horizon_days" json:"horizon_days" default:"1" validate:"gte=1,lte=30"`
	ConfidenceThreshold float64 `query:"confidence_threshold" json:"confidence_threshold" default:"0.5" validate:"gte=0,lte=1"`
}

type BacktestRequest struct {
	Symbol              string  `query:"symbol" json:"symbol" validate:"required"`
	From                string  `query:"from" json:"from"`
	To                  string  `query:"to" json:"to"`
	ConfidenceThreshold float64 `query:"confidence_threshold" json:"confidence_threshold" default:"0.5" validate:"gte=0,lte=1"`
}
