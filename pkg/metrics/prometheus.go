package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent  *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	stageLatency  *prometheus.HistogramVec
	predictedVol  *prometheus.GaugeVec
	modelConf     *prometheus.GaugeVec
	predictsTotal *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		messagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volcast_messages_sent_total",
				Help: "Total number of messages sent to backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volcast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"stage"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "volcast_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		stageLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "volcast_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		predictedVol: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "volcast_predicted_volatility",
				Help: "Last predicted volatility for a symbol",
			},
			[]string{"symbol"},
		),
		modelConf: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "volcast_model_confidence",
				Help: "Last model confidence for a symbol",
			},
			[]string{"symbol"},
		),
		predictsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volcast_predictions_total",
				Help: "Total number of served predictions",
			},
			[]string{"symbol"},
		),
	}
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(stage string) {
	r.errorsTotal.WithLabelValues(stage).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordStageLatency records pipeline stage latency in seconds.
func (r *Recorder) RecordStageLatency(stage string, seconds float64) {
	r.stageLatency.WithLabelValues(stage).Observe(seconds)
}

// RecordPrediction records a served prediction.
func (r *Recorder) RecordPrediction(symbol string, vol, confidence float64) {
	r.predictedVol.WithLabelValues(symbol).Set(vol)
	r.modelConf.WithLabelValues(symbol).Set(confidence)
	r.predictsTotal.WithLabelValues(symbol).Inc()
}
