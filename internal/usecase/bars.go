package usecase

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
	applogger "VolCast/pkg/logger"
)

// BarAggregator buckets ticks into fixed-interval OHLCV bars with
// microstructure fields and keeps a per-(symbol, frequency) file cache.
type BarAggregator struct {
	cacheDir string
	l        *applogger.Logger
	metrics  domrepo.Metrics

	// cache rewrites are mutually exclusive; reads rely on the
	// write-temp-then-rename discipline
	mu sync.Mutex
}

// NewBarAggregator creates an aggregator caching under cacheDir.
func NewBarAggregator(cacheDir string, l *applogger.Logger, m domrepo.Metrics) *BarAggregator {
	return &BarAggregator{cacheDir: cacheDir, l: l, metrics: m}
}

// CreateBars returns the symbol's bars at frequency tf. With useCache it
// serves the cached sequence when present and persists fresh results.
func (a *BarAggregator) CreateBars(symbol string, ticks []models.Tick, tf domrepo.Timeframe, useCache bool) ([]models.Bar, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordStageLatency("aggregate", time.Since(start).Seconds())
		}
	}()

	if useCache {
		if bars, ok := a.readCache(symbol, tf); ok {
			return bars, nil
		}
	}

	bars := ComputeBars(ticks, tf.Duration())
	if len(bars) == 0 {
		return nil, fmt.Errorf("aggregate %s@%s: no non-empty buckets", symbol, tf)
	}

	if useCache {
		if err := a.writeCache(symbol, tf, bars); err != nil && a.l != nil {
			a.l.Warn("bar cache write failed",
				applogger.String("stage", "aggregate"),
				applogger.String("symbol", symbol),
				applogger.String("tf", string(tf)),
				applogger.Error(err),
			)
		}
	}
	if a.l != nil {
		a.l.Info("bars aggregated",
			applogger.String("stage", "aggregate"),
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("bars", len(bars)),
		)
	}
	return bars, nil
}

// ClearCache removes cached bars for the symbol across all frequencies,
// or every bar cache when symbol is empty.
func (a *BarAggregator) ClearCache(symbol string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	pattern := "bars_*.gob"
	if symbol != "" {
		pattern = "bars_" + symbol + "_*.gob"
	}
	matches, err := filepath.Glob(filepath.Join(a.cacheDir, pattern))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// ComputeBars partitions ticks into calendar-anchored buckets of width
// freq and aggregates each non-empty one. Zero-volume buckets are
// dropped, so every output bar has volume > 0 and the sequence is
// strictly increasing by timestamp.
func ComputeBars(ticks []models.Tick, freq time.Duration) []models.Bar {
	type bucket struct {
		ticks []models.Tick
	}
	buckets := make(map[int64]*bucket)
	for _, t := range ticks {
		key := t.Timestamp.Truncate(freq).UnixNano()
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.ticks = append(b.ticks, t)
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	bars := make([]models.Bar, 0, len(keys))
	for _, k := range keys {
		b := buildBar(time.Unix(0, k).UTC(), buckets[k].ticks)
		if b.Volume <= 0 {
			continue
		}
		bars = append(bars, b)
	}

	finalizeBars(bars)
	return bars
}

func buildBar(ts time.Time, ticks []models.Tick) models.Bar {
	bar := models.Bar{
		Timestamp: ts,
		Open:      ticks[0].Price,
		Close:     ticks[len(ticks)-1].Price,
		High:      ticks[0].Price,
		Low:       ticks[0].Price,
		TickCount: len(ticks),
	}

	prices := make([]float64, len(ticks))
	sizes := make([]float64, len(ticks))
	for i, t := range ticks {
		prices[i] = t.Price
		sizes[i] = t.Size
		if t.Price > bar.High {
			bar.High = t.Price
		}
		if t.Price < bar.Low {
			bar.Low = t.Price
		}
		bar.Volume += t.Size
		bar.SignedVolume += t.Size * t.Side.Sign()
		if t.Size > bar.MaxSize {
			bar.MaxSize = t.Size
		}
	}
	bar.AvgSize = bar.Volume / float64(len(ticks))
	if len(ticks) > 1 {
		bar.PriceStd = stat.StdDev(prices, nil)
		bar.StdSize = stat.StdDev(sizes, nil)
	}
	return bar
}

// finalizeBars fills the derived fields that need the full sequence.
func finalizeBars(bars []models.Bar) {
	for i := range bars {
		b := &bars[i]
		if i == 0 {
			b.LogReturn = math.NaN()
		} else {
			b.LogReturn = math.Log(b.Close / bars[i-1].Close)
		}
		b.Range = (b.High - b.Low) / b.Close
		b.Body = math.Abs(b.Close-b.Open) / b.Close
		b.UpperWick = (b.High - math.Max(b.Open, b.Close)) / b.Close
		b.LowerWick = (math.Min(b.Open, b.Close) - b.Low) / b.Close
		b.OFINormalized = b.SignedVolume / b.Volume
	}
}

func (a *BarAggregator) cachePath(symbol string, tf domrepo.Timeframe) string {
	return filepath.Join(a.cacheDir, fmt.Sprintf("bars_%s_%s.gob", symbol, tf))
}

func (a *BarAggregator) readCache(symbol string, tf domrepo.Timeframe) ([]models.Bar, bool) {
	f, err := os.Open(a.cachePath(symbol, tf))
	if err != nil {
		return nil, false
	}
	defer f.Close()

	var bars []models.Bar
	if err := gob.NewDecoder(f).Decode(&bars); err != nil {
		return nil, false
	}
	return bars, len(bars) > 0
}

func (a *BarAggregator) writeCache(symbol string, tf domrepo.Timeframe, bars []models.Bar) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(a.cacheDir, 0o755); err != nil {
		return fmt.Errorf("cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(a.cacheDir, "bars_*.tmp")
	if err != nil {
		return fmt.Errorf("cache temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(bars); err != nil {
		tmp.Close()
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache close: %w", err)
	}
	return os.Rename(tmp.Name(), a.cachePath(symbol, tf))
}
