package repository

import (
	"context"
	"time"

	"VolCast/internal/domain/models"
)

// TickSource loads historical ticks for a symbol, sorted ascending and
// deduplicated across source files.
type TickSource interface {
	LoadSymbol(ctx context.Context, symbol string, from, to *time.Time, useCache bool) ([]models.Tick, error)
	AvailableSymbols(ctx context.Context) ([]string, error)
	ClearCache(symbol string) error
}

// MarketStream is a live tick feed (websocket adapter).
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher forwards live ticks to the message bus.
type Publisher interface {
	Publish(ctx context.Context, t *models.Tick) error
	PublishBatch(ctx context.Context, ticks []*models.Tick) error
	Close() error
}

// Storage persists live ticks and serves them back by time range.
type Storage interface {
	Store(ctx context.Context, t *models.Tick) error
	StoreBatch(ctx context.Context, ticks []*models.Tick) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.Tick, error)
	Health(ctx context.Context) error
	Close() error
}

// PredictionSink records served predictions for audit.
type PredictionSink interface {
	Record(ctx context.Context, p *models.VolatilityPrediction) error
}

// Metrics records pipeline observability signals. Stage names the
// pipeline step (load, aggregate, engineer, score, ingest).
type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(stage string)
	RecordLastPrice(symbol string, price float64)
	RecordStageLatency(stage string, seconds float64)
	RecordPrediction(symbol string, vol, confidence float64)
}
