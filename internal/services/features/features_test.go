package features

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolCast/internal/domain/models"
)

func constantBars(n int, price float64) []models.Bar {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = models.Bar{
			Timestamp: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    10,
			TickCount: 5,
			AvgSize:   2,
		}
	}
	return bars
}

func randomWalkBars(n int, seed int64) []models.Bar {
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	bars := make([]models.Bar, n)
	for i := range bars {
		open := price
		price *= math.Exp(rng.NormFloat64() * 0.002)
		cls := price
		hi := math.Max(open, cls) * (1 + rng.Float64()*0.001)
		lo := math.Min(open, cls) * (1 - rng.Float64()*0.001)
		vol := 50 + rng.Float64()*100
		bars[i] = models.Bar{
			Timestamp:    start.Add(time.Duration(i) * 15 * time.Minute),
			Open:         open,
			High:         hi,
			Low:          lo,
			Close:        cls,
			Volume:       vol,
			TickCount:    10 + rng.Intn(20),
			PriceStd:     rng.Float64() * 0.01,
			AvgSize:      vol / 10,
			MaxSize:      vol / 2,
			StdSize:      rng.Float64(),
			SignedVolume: (rng.Float64()*2 - 1) * vol,
		}
	}
	return bars
}

func TestEstimatorsZeroOnConstantPrices(t *testing.T) {
	bars := constantBars(60, 50)

	for _, w := range []int{12, 24, 48} {
		for name, vals := range map[string][]float64{
			"parkinson":       Parkinson(bars, w),
			"garman_klass":    GarmanKlass(bars, w),
			"rogers_satchell": RogersSatchell(bars, w),
			"yang_zhang":      YangZhang(bars, w),
		} {
			require.Len(t, vals, len(bars), name)
			last := vals[len(vals)-1]
			require.False(t, math.IsNaN(last), "%s_%d should be warm", name, w)
			assert.InDelta(t, 0, last, 1e-12, "%s_%d on constant prices", name, w)
		}
	}
}

func TestEstimatorsWarmupAndPositivity(t *testing.T) {
	bars := randomWalkBars(80, 7)
	vals := Parkinson(bars, 24)

	for i := 0; i < 23; i++ {
		assert.True(t, math.IsNaN(vals[i]), "row %d should be warming up", i)
	}
	for i := 23; i < len(vals); i++ {
		assert.False(t, math.IsNaN(vals[i]))
		assert.True(t, vals[i] > 0)
	}
}

func TestRollingStdMatchesSampleStd(t *testing.T) {
	xs := []float64{1, 2, 4, 8, 16}
	got := RollingStd(xs, 3)

	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	// sample std of {1,2,4}
	mean := (1.0 + 2 + 4) / 3
	varr := (math.Pow(1-mean, 2) + math.Pow(2-mean, 2) + math.Pow(4-mean, 2)) / 2
	assert.InDelta(t, math.Sqrt(varr), got[2], 1e-12)
}

func TestRollingPropagatesNaN(t *testing.T) {
	xs := []float64{1, math.NaN(), 3, 4, 5}
	got := RollingMean(xs, 2)

	assert.True(t, math.IsNaN(got[1]))
	assert.True(t, math.IsNaN(got[2]))
	assert.InDelta(t, 3.5, got[3], 1e-12)
}

func TestShift(t *testing.T) {
	xs := []float64{1, 2, 3}
	got := Shift(xs, 2)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 1, got[2], 1e-12)
}

func TestRollingFracBelowMinPeriods(t *testing.T) {
	n := 40
	xs := make([]float64, n)
	ref := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
		ref[i] = float64(i) + 1 // strictly above
	}
	got := RollingFracBelow(xs, ref, 96, 24)

	for i := 0; i < 23; i++ {
		assert.True(t, math.IsNaN(got[i]), "row %d below min periods", i)
	}
	// every history value sits below ref
	assert.InDelta(t, 1.0, got[23], 1e-12)
	assert.InDelta(t, 1.0, got[n-1], 1e-12)
}

func TestGenerateAllColumnsAndWarmup(t *testing.T) {
	bars := randomWalkBars(150, 42)
	frame := GenerateAll(bars)

	require.Equal(t, len(bars), frame.Len())
	for _, col := range []string{
		"rvol_6", "rvol_96",
		"parkinson_12", "garman_klass_24", "rogers_satchell_48", "yang_zhang_12",
		"vol_of_vol_24", "vol_ratio_24_96", "vol_regime_96",
		"ret_lag_1", "cum_ret_24", "momentum_48", "ret_skew_24", "ret_kurt_48",
		"bar_range", "body", "upper_wick", "lower_wick",
		"volume_ratio_12", "volume_zscore_24",
		"tick_count_ratio_12", "ofi_ma_12", "ofi_std_24",
		"hour_sin", "dow_cos", "session_us",
		"rvol_12_x_volume_ratio_12", "momentum_12_x_rvol_24",
	} {
		require.NotNil(t, frame.Column(col), "missing column %s", col)
	}

	clean := frame.DropNaN()
	// 96-bar warm-up leaves the tail usable
	assert.GreaterOrEqual(t, clean.Len(), 50)
	assert.Less(t, clean.Len(), frame.Len())

	// no NaN survives the drop
	for _, col := range clean.Columns() {
		for i, v := range clean.Column(col) {
			require.False(t, math.IsNaN(v), "%s row %d", col, i)
		}
	}
}

func TestGenerateAllIsPure(t *testing.T) {
	bars := randomWalkBars(120, 9)
	before := bars[37]
	f1 := GenerateAll(bars)
	f2 := GenerateAll(bars)

	assert.Equal(t, before, bars[37])
	assert.Equal(t, f1.Columns(), f2.Columns())
	assert.Equal(t, f1.Column("rvol_12"), f2.Column("rvol_12"))
}

func TestModelColumnsExcludesRaw(t *testing.T) {
	bars := randomWalkBars(120, 11)
	frame := GenerateAll(bars)
	cols := ModelColumns(frame)

	for _, raw := range []string{
		"open", "high", "low", "close", "volume", "tick_count",
		"price_std", "avg_trade_size", "max_trade_size", "std_trade_size",
		"signed_volume", "log_return", "bar_range", "body",
		"upper_wick", "lower_wick", "ofi_normalized",
	} {
		assert.True(t, IsExcluded(raw), "%s must be excluded", raw)
		assert.NotContains(t, cols, raw)
	}
	// training-only targets are excluded even though no frame carries them
	assert.True(t, IsExcluded("target"))
	assert.True(t, IsExcluded("target_vol"))
	assert.True(t, IsExcluded("forward_return"))

	assert.Contains(t, cols, "rvol_12")
	assert.Contains(t, cols, "session_asia")
}

func TestTimeFeaturesEncodeSessions(t *testing.T) {
	// one bar at 02:00 UTC (Asia), one at 10:00 UTC (Europe), one at 18:00 UTC (US)
	start := time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC)
	bars := constantBars(3, 100)
	bars[0].Timestamp = start
	bars[1].Timestamp = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	bars[2].Timestamp = time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC)

	f := GenerateAll(bars)
	assert.Equal(t, 1.0, f.Column("session_asia")[0])
	assert.Equal(t, 0.0, f.Column("session_asia")[2])
	assert.Equal(t, 1.0, f.Column("session_europe")[1])
	assert.Equal(t, 1.0, f.Column("session_us")[2])

	hourSin := f.Column("hour_sin")[0]
	assert.InDelta(t, math.Sin(2*math.Pi*2.0/24.0), hourSin, 1e-12)
}
