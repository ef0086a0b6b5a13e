package usecase

import (
	"context"
	"encoding/json"
	"time"

	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
	pkgkafka "VolCast/pkg/kafka"
)

// KafkaTicksHandler consumes tick messages off the bus and persists
// them to storage.
type KafkaTicksHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, p, s, side}; t is unix nanoseconds
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		T      int64   `json:"t"`
		P      float64 `json:"p"`
		S      float64 `json:"s"`
		Side   string  `json:"side"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	ts := time.Unix(0, m.T).UTC()
	// E2E latency from event time to now (approx)
	h.metrics.RecordStageLatency("ingest_e2e", time.Since(ts).Seconds())

	start := time.Now()
	err := h.storage.Store(ctx, &models.Tick{
		Symbol:    m.Symbol,
		Timestamp: ts,
		Price:     m.P,
		Size:      m.S,
		Side:      models.ParseSide(m.Side),
	})
	h.metrics.RecordStageLatency("ch_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent("clickhouse", m.Symbol)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
