package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topics  []string
	batches [][]AggregatedLogEntry
	flushed chan struct{}
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{flushed: make(chan struct{}, 8)}
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	p.topics = append(p.topics, topic)
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	p.mu.Unlock()
	p.flushed <- struct{}{}
	return nil
}

func (p *capturePublisher) waitFlush(t *testing.T) {
	t.Helper()
	select {
	case <-p.flushed:
	case <-time.After(2 * time.Second):
		t.Fatal("no flush observed")
	}
}

func TestCollectorAggregatesDuplicates(t *testing.T) {
	pub := newCapturePublisher()
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "logs.app",
		Publisher:      pub,
	})

	for i := 0; i < 5; i++ {
		c.AddLog("error", "insert failed", map[string]interface{}{"table": "ticks_raw"}, "store.go:42")
	}
	c.Close()

	pub.waitFlush(t)
	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	require.Len(t, pub.batches[0], 1)
	entry := pub.batches[0][0]
	assert.Equal(t, "error", entry.Level)
	assert.Equal(t, "insert failed", entry.Message)
	assert.Equal(t, 5, entry.Count)
	assert.False(t, entry.LastSeen.Before(entry.FirstSeen))
	assert.Equal(t, "logs.app", pub.topics[0])
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := newCapturePublisher()
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Topic:          "logs.app",
		Publisher:      pub,
	})
	defer c.Close()

	c.AddLog("error", "first", nil, "a.go:1")
	c.AddLog("error", "second", nil, "b.go:2")

	pub.waitFlush(t)
	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Len(t, pub.batches[0], 2)
}

func TestLoggerErrorFeedsCollector(t *testing.T) {
	l, err := New(&Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)

	pub := newCapturePublisher()
	l.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 1,
		Topic:          "logs.app",
		Publisher:      pub,
	})

	l.Error("stream read failed", String("symbol", "BTCUSDT"))
	pub.waitFlush(t)
	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.NotEmpty(t, pub.batches)
	entry := pub.batches[0][0]
	assert.Equal(t, "error", entry.Level)
	assert.Equal(t, "stream read failed", entry.Message)
	assert.Equal(t, "BTCUSDT", entry.Fields["symbol"])
	assert.NotEmpty(t, entry.Caller)
}
