package repository

import (
	"context"

	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
	pkgkafka "VolCast/pkg/kafka"
)

// KafkaTickPublisher forwards live ticks to the tick topic, keyed by
// symbol so per-symbol ordering survives partitioning.
type KafkaTickPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaTickPublisher creates the publisher.
func NewKafkaTickPublisher(producer *pkgkafka.Producer, topic string) domrepo.Publisher {
	return &KafkaTickPublisher{producer: producer, topic: topic}
}

func tickPayload(t *models.Tick) map[string]interface{} {
	return map[string]interface{}{
		"symbol": t.Symbol,
		"t":      t.Timestamp.UnixNano(),
		"p":      t.Price,
		"s":      t.Size,
		"side":   t.Side.String(),
	}
}

func (p *KafkaTickPublisher) Publish(ctx context.Context, t *models.Tick) error {
	return p.producer.Publish(ctx, p.topic, []byte(t.Symbol), tickPayload(t))
}

func (p *KafkaTickPublisher) PublishBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(ticks))
	for i, t := range ticks {
		msgs[i] = pkgkafka.Message{Key: []byte(t.Symbol), Value: tickPayload(t)}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaTickPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
