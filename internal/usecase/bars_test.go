package usecase

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
)

func tick(ts time.Time, price, size float64, side models.Side) models.Tick {
	return models.Tick{Symbol: "BTCUSDT", Timestamp: ts, Price: price, Size: size, Side: side}
}

func TestComputeBarsBucketsAndOHLC(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ticks := []models.Tick{
		tick(base.Add(1*time.Minute), 100, 2, models.SideBuy),
		tick(base.Add(5*time.Minute), 105, 1, models.SideAsk),
		tick(base.Add(9*time.Minute), 95, 3, models.SideBuy),
		tick(base.Add(14*time.Minute), 101, 1, models.SideNeutral),
		// next bucket
		tick(base.Add(16*time.Minute), 102, 4, models.SideBuy),
		tick(base.Add(20*time.Minute), 99, 2, models.SideAsk),
	}

	bars := ComputeBars(ticks, 15*time.Minute)
	require.Len(t, bars, 2)

	b := bars[0]
	assert.Equal(t, base, b.Timestamp)
	assert.Equal(t, 100.0, b.Open)
	assert.Equal(t, 105.0, b.High)
	assert.Equal(t, 95.0, b.Low)
	assert.Equal(t, 101.0, b.Close)
	assert.Equal(t, 7.0, b.Volume)
	assert.Equal(t, 4, b.TickCount)
	assert.Equal(t, 3.0, b.MaxSize)
	assert.InDelta(t, 7.0/4, b.AvgSize, 1e-12)
	// buy 2 + sell 1 + buy 3 + neutral 1
	assert.InDelta(t, 2-1+3, b.SignedVolume, 1e-12)
	assert.InDelta(t, 4.0/7, b.OFINormalized, 1e-12)

	// first bar has no predecessor
	assert.True(t, math.IsNaN(b.LogReturn))
	assert.InDelta(t, math.Log(99.0/101.0), bars[1].LogReturn, 1e-12)
}

func TestComputeBarsDropsEmptyBucketsAndSorts(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	// out of order, with an hour-wide gap
	ticks := []models.Tick{
		tick(base.Add(90*time.Minute), 50, 1, models.SideBuy),
		tick(base.Add(2*time.Minute), 49, 1, models.SideBuy),
	}

	bars := ComputeBars(ticks, 15*time.Minute)
	require.Len(t, bars, 2)
	for i := 1; i < len(bars); i++ {
		assert.True(t, bars[i].Timestamp.After(bars[i-1].Timestamp), "timestamps must be strictly increasing")
	}
	for _, b := range bars {
		assert.Greater(t, b.Volume, 0.0)
	}
}

func TestComputeBarsSingleTickStats(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	bars := ComputeBars([]models.Tick{tick(base, 42, 1, models.SideBuy)}, 15*time.Minute)

	require.Len(t, bars, 1)
	// dispersion stats need at least two ticks
	assert.Equal(t, 0.0, bars[0].PriceStd)
	assert.Equal(t, 0.0, bars[0].StdSize)
	assert.Equal(t, (42.0-42.0)/42.0, bars[0].Range)
}

func TestBarAggregatorCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	agg := NewBarAggregator(dir, nil, nil)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	ticks := []models.Tick{
		tick(base, 10, 1, models.SideBuy),
		tick(base.Add(time.Minute), 11, 2, models.SideAsk),
		tick(base.Add(16*time.Minute), 12, 1, models.SideBuy),
	}

	first, err := agg.CreateBars("BTCUSDT", ticks, domrepo.TF15m, true)
	require.NoError(t, err)

	// cached result is served even when ticks are absent
	cached, err := agg.CreateBars("BTCUSDT", nil, domrepo.TF15m, true)
	require.NoError(t, err)
	assert.Equal(t, len(first), len(cached))
	assert.Equal(t, first[0].Close, cached[0].Close)

	require.NoError(t, agg.ClearCache("BTCUSDT"))
	_, err = agg.CreateBars("BTCUSDT", nil, domrepo.TF15m, true)
	assert.Error(t, err)
}

func TestBarAggregatorNoCacheBypass(t *testing.T) {
	dir := t.TempDir()
	agg := NewBarAggregator(dir, nil, nil)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	ticks := []models.Tick{
		tick(base, 10, 1, models.SideBuy),
		tick(base.Add(time.Minute), 11, 2, models.SideAsk),
	}

	_, err := agg.CreateBars("ETHUSDT", ticks, domrepo.TF15m, false)
	require.NoError(t, err)

	// nothing was cached
	_, err = agg.CreateBars("ETHUSDT", nil, domrepo.TF15m, true)
	assert.Error(t, err)
}
