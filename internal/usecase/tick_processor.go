package usecase

import (
	"context"
	"fmt"
	"time"

	"VolCast/internal/domain/models"
	drepo "VolCast/internal/domain/repository"
)

// TickProcessor routes live ticks to the configured ingest backend.
type TickProcessor struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
}

// NewTickProcessor creates a new TickProcessor instance.
func NewTickProcessor(pub drepo.Publisher, store drepo.Storage, metrics drepo.Metrics, backend string) *TickProcessor {
	return &TickProcessor{pub: pub, store: store, metrics: metrics, backend: backend}
}

// Process routes a single tick to the configured backend.
func (p *TickProcessor) Process(ctx context.Context, t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick is nil")
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.Publish(ctx, t)
	case "clickhouse":
		err = p.store.Store(ctx, t)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("ingest")
		return fmt.Errorf("process tick: %w", err)
	}

	p.metrics.RecordMessageSent(p.backend, t.Symbol)
	p.metrics.RecordStageLatency("ingest", time.Since(start).Seconds())

	return nil
}

// ProcessBatch routes multiple ticks in one call.
func (p *TickProcessor) ProcessBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.PublishBatch(ctx, ticks)
	case "clickhouse":
		err = p.store.StoreBatch(ctx, ticks)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("ingest_batch")
		return fmt.Errorf("process tick batch: %w", err)
	}

	for _, t := range ticks {
		p.metrics.RecordMessageSent(p.backend, t.Symbol)
	}
	p.metrics.RecordStageLatency("ingest", time.Since(start).Seconds())

	return nil
}

// Close closes underlying resources if available.
func (p *TickProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
