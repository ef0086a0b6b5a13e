package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Publisher ships aggregated log batches to an external sink,
// typically a Kafka topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// CollectionConfig controls log aggregation and shipping.
type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // unique entries that force an early flush
	Topic          string
	Publisher      Publisher
}

// AggregatedLogEntry is one deduplicated log line with its occurrence count.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector deduplicates error logs by content hash and ships them
// in batches. Identical lines emitted in a tight loop reach the sink
// as one entry with a count instead of flooding the topic.
type LogCollector struct {
	config *CollectionConfig
	logMap map[string]*AggregatedLogEntry
	mutex  sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	ctx, cancel := context.WithCancel(context.Background())

	c := &LogCollector{
		config: config,
		logMap: make(map[string]*AggregatedLogEntry),
		ctx:    ctx,
		cancel: cancel,
	}

	c.wg.Add(1)
	go c.periodicFlush()

	return c
}

// AddLog records one log occurrence. Entries with the same level,
// message, fields, and caller collapse into a single aggregate.
func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := c.entryKey(level, message, fields, caller)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if entry, exists := c.logMap[key]; exists {
		entry.Count++
		entry.LastSeen = now
	} else {
		c.logMap[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(c.logMap) >= c.config.CountThreshold {
		c.flushLocked()
	}
}

func (c *LogCollector) entryKey(level, message string, fields map[string]interface{}, caller string) string {
	data := struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
		Caller  string                 `json:"caller"`
	}{
		Level:   level,
		Message: message,
		Fields:  fields,
		Caller:  caller,
	}

	jsonData, _ := json.Marshal(data)
	hash := sha256.Sum256(jsonData)
	return fmt.Sprintf("%x", hash)
}

func (c *LogCollector) periodicFlush() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			c.flushLocked()
			c.mutex.Unlock()
		case <-c.ctx.Done():
			// Final flush before shutdown
			c.mutex.Lock()
			c.flushLocked()
			c.mutex.Unlock()
			return
		}
	}
}

// flushLocked drains pending aggregates and publishes them off the
// caller's goroutine. Must be called with mutex held.
func (c *LogCollector) flushLocked() {
	if len(c.logMap) == 0 {
		return
	}

	logs := make([]AggregatedLogEntry, 0, len(c.logMap))
	for _, entry := range c.logMap {
		logs = append(logs, *entry)
	}
	c.logMap = make(map[string]*AggregatedLogEntry)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.config.Publisher.PublishMessage(ctx, c.config.Topic, logs); err != nil {
			fmt.Printf("log collector publish failed: %v\n", err)
		}
	}()
}

// Close stops the flush loop, performing one last flush, and waits
// for in-flight publishes.
func (c *LogCollector) Close() {
	c.cancel()
	c.wg.Wait()
}
