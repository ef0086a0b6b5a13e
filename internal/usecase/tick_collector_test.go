package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolCast/internal/domain/models"
)

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: make(map[string]int)}
}

func (m *countingMetrics) RecordMessageSent(string, string)          {}
func (m *countingMetrics) RecordLastPrice(string, float64)           {}
func (m *countingMetrics) RecordStageLatency(string, float64)        {}
func (m *countingMetrics) RecordPrediction(string, float64, float64) {}

func (m *countingMetrics) RecordError(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[stage]++
}

func (m *countingMetrics) errorCount(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[stage]
}

type memTickStore struct {
	mu     sync.Mutex
	ticks  []*models.Tick
	stored chan struct{}
}

func newMemTickStore() *memTickStore {
	return &memTickStore{stored: make(chan struct{}, 16)}
}

func (s *memTickStore) Store(_ context.Context, t *models.Tick) error {
	s.mu.Lock()
	s.ticks = append(s.ticks, t)
	s.mu.Unlock()
	s.stored <- struct{}{}
	return nil
}

func (s *memTickStore) StoreBatch(ctx context.Context, ticks []*models.Tick) error {
	for _, t := range ticks {
		if err := s.Store(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *memTickStore) Query(context.Context, string, time.Time, time.Time, int) ([]models.Tick, error) {
	return nil, nil
}

func (s *memTickStore) Health(context.Context) error { return nil }
func (s *memTickStore) Close() error                 { return nil }

// flakyStream fails its first read session the way the websocket
// client does: an error on the error channel, then both channels
// closed. Sessions after a reconnect deliver ticks normally.
type flakyStream struct {
	mu             sync.Mutex
	reads          int
	reconnects     int
	failReconnects int
	tick           *models.Tick
}

func (s *flakyStream) Connect(context.Context) error   { return nil }
func (s *flakyStream) Subscribe(context.Context) error { return nil }
func (s *flakyStream) Close() error                    { return nil }
func (s *flakyStream) IsConnected() bool               { return true }

func (s *flakyStream) Read(context.Context) (<-chan *models.Tick, <-chan error) {
	s.mu.Lock()
	s.reads++
	n := s.reads
	s.mu.Unlock()

	ticks := make(chan *models.Tick, 4)
	errs := make(chan error, 1)
	if n == 1 {
		errs <- errors.New("stream read: connection reset")
		close(ticks)
		close(errs)
	} else {
		ticks <- s.tick
	}
	return ticks, errs
}

func (s *flakyStream) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReconnects > 0 {
		s.failReconnects--
		return errors.New("dial refused")
	}
	s.reconnects++
	return nil
}

func (s *flakyStream) counts() (reads, reconnects int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.reconnects
}

func TestCollectorResumesAfterStreamError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tick := &models.Tick{
		Symbol:    "BTCUSDT",
		Timestamp: time.Now().UTC(),
		Price:     42000,
		Size:      0.5,
		Side:      models.SideBuy,
	}
	stream := &flakyStream{tick: tick, failReconnects: 1}
	store := newMemTickStore()
	metrics := newCountingMetrics()
	proc := NewTickProcessor(nil, store, metrics, "clickhouse")
	collector := NewTickCollector(stream, proc, metrics, nil)

	require.NoError(t, collector.Start(ctx))

	select {
	case <-store.stored:
	case <-time.After(2 * time.Second):
		t.Fatal("tick never reached storage after stream error")
	}

	reads, reconnects := stream.counts()
	assert.GreaterOrEqual(t, reads, 2, "fresh channels come from a new Read")
	assert.GreaterOrEqual(t, reconnects, 1)
	assert.GreaterOrEqual(t, metrics.errorCount("stream"), 1)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.NotEmpty(t, store.ticks)
	assert.Equal(t, "BTCUSDT", store.ticks[0].Symbol)
}
