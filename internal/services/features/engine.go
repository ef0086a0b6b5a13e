package features

import (
	"fmt"
	"math"
	"time"

	"VolCast/internal/domain/models"
)

// Windows are counted in bars. On the default 15m frequency a 96-bar
// window spans one trading day.
var (
	rvolWindows      = []int{6, 12, 24, 48, 96}
	estimatorWindows = []int{12, 24, 48}
	retLags          = []int{1, 2, 3, 6, 12}
)

// regime lookback and the minimum history it needs before emitting
const (
	regimeWindow     = 96
	regimeMinPeriods = 24
)

// GenerateAll turns a bar sequence into the full causal feature table.
// It is a pure function: no caching, no mutation of the input, and the
// column set is identical regardless of input length. Leading rows stay
// NaN until each feature's warm-up window is satisfied; callers drop
// incomplete rows before scoring.
func GenerateAll(bars []models.Bar) *Frame {
	n := len(bars)
	index := make([]time.Time, n)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	cls := make([]float64, n)
	volume := make([]float64, n)
	tickCount := make([]float64, n)
	priceStd := make([]float64, n)
	avgSize := make([]float64, n)
	maxSize := make([]float64, n)
	stdSize := make([]float64, n)
	signedVol := make([]float64, n)

	for i, b := range bars {
		index[i] = b.Timestamp
		open[i] = b.Open
		high[i] = b.High
		low[i] = b.Low
		cls[i] = b.Close
		volume[i] = b.Volume
		tickCount[i] = float64(b.TickCount)
		priceStd[i] = b.PriceStd
		avgSize[i] = b.AvgSize
		maxSize[i] = b.MaxSize
		stdSize[i] = b.StdSize
		signedVol[i] = b.SignedVolume
	}

	// Derived bar fields are recomputed from OHLCV here so externally
	// supplied frames need no pre-processing.
	logret := nan(n)
	barRange := make([]float64, n)
	body := make([]float64, n)
	upperWick := make([]float64, n)
	lowerWick := make([]float64, n)
	ofi := make([]float64, n)
	for i := 0; i < n; i++ {
		if i > 0 && cls[i-1] > 0 && cls[i] > 0 {
			logret[i] = math.Log(cls[i] / cls[i-1])
		}
		c := cls[i]
		barRange[i] = (high[i] - low[i]) / c
		body[i] = math.Abs(cls[i]-open[i]) / c
		upperWick[i] = (high[i] - math.Max(open[i], cls[i])) / c
		lowerWick[i] = (math.Min(open[i], cls[i]) - low[i]) / c
		if volume[i] > 0 {
			ofi[i] = signedVol[i] / volume[i]
		}
	}

	f := NewFrame(index)

	// Raw and intermediate columns. These are carried for inspection and
	// downstream targets but never reach the model (see schema.go).
	f.Set("open", open)
	f.Set("high", high)
	f.Set("low", low)
	f.Set("close", cls)
	f.Set("volume", volume)
	f.Set("tick_count", tickCount)
	f.Set("price_std", priceStd)
	f.Set("avg_trade_size", avgSize)
	f.Set("max_trade_size", maxSize)
	f.Set("std_trade_size", stdSize)
	f.Set("signed_volume", signedVol)
	f.Set("log_return", logret)
	f.Set("bar_range", barRange)
	f.Set("body", body)
	f.Set("upper_wick", upperWick)
	f.Set("lower_wick", lowerWick)
	f.Set("ofi_normalized", ofi)

	// Volatility family.
	rvol := make(map[int][]float64, len(rvolWindows))
	for _, w := range rvolWindows {
		col := RollingStd(logret, w)
		rvol[w] = col
		f.Set(fmt.Sprintf("rvol_%d", w), col)
	}
	for _, w := range estimatorWindows {
		f.Set(fmt.Sprintf("parkinson_%d", w), Parkinson(bars, w))
		f.Set(fmt.Sprintf("garman_klass_%d", w), GarmanKlass(bars, w))
		f.Set(fmt.Sprintf("rogers_satchell_%d", w), RogersSatchell(bars, w))
		f.Set(fmt.Sprintf("yang_zhang_%d", w), YangZhang(bars, w))
	}
	f.Set("vol_of_vol_24", RollingStd(rvol[12], 24))
	f.Set("vol_ratio_6_24", safeDiv(rvol[6], rvol[24]))
	f.Set("vol_ratio_12_48", safeDiv(rvol[12], rvol[48]))
	f.Set("vol_ratio_24_96", safeDiv(rvol[24], rvol[96]))
	f.Set("vol_regime_96", RollingFracBelow(rvol[24], rvol[24], regimeWindow, regimeMinPeriods))

	// Return family.
	for _, lag := range retLags {
		f.Set(fmt.Sprintf("ret_lag_%d", lag), Shift(logret, lag))
	}
	for _, w := range []int{6, 12, 24} {
		f.Set(fmt.Sprintf("cum_ret_%d", w), RollingSum(logret, w))
	}
	for _, w := range []int{12, 24, 48} {
		f.Set(fmt.Sprintf("momentum_%d", w), momentum(cls, w))
	}
	for _, w := range []int{24, 48} {
		f.Set(fmt.Sprintf("ret_skew_%d", w), RollingSkew(logret, w))
		f.Set(fmt.Sprintf("ret_kurt_%d", w), RollingKurt(logret, w))
	}
	for _, w := range []int{6, 12, 24} {
		f.Set(fmt.Sprintf("abs_ret_ma_%d", w), RollingMean(abs(logret), w))
	}

	// Range family.
	rangeMA := make(map[int][]float64)
	for _, w := range []int{6, 12, 24} {
		rangeMA[w] = RollingMean(barRange, w)
		f.Set(fmt.Sprintf("range_ma_%d", w), rangeMA[w])
	}
	f.Set("range_ratio_12", safeDiv(barRange, rangeMA[12]))
	f.Set("range_ratio_24", safeDiv(barRange, rangeMA[24]))
	f.Set("body_ma_12", RollingMean(body, 12))
	f.Set("upper_wick_ma_12", RollingMean(upperWick, 12))
	f.Set("lower_wick_ma_12", RollingMean(lowerWick, 12))

	// Volume family.
	volMA := make(map[int][]float64)
	for _, w := range []int{6, 12, 24} {
		volMA[w] = RollingMean(volume, w)
		f.Set(fmt.Sprintf("volume_ma_%d", w), volMA[w])
	}
	for _, w := range []int{6, 12, 24} {
		f.Set(fmt.Sprintf("volume_ratio_%d", w), safeDiv(volume, volMA[w]))
	}
	volStd24 := RollingStd(volume, 24)
	f.Set("volume_std_24", volStd24)
	f.Set("volume_zscore_24", zscore(volume, volMA[24], volStd24))

	// Microstructure family.
	tcMA12 := RollingMean(tickCount, 12)
	f.Set("tick_count_ma_12", tcMA12)
	f.Set("tick_count_ma_24", RollingMean(tickCount, 24))
	f.Set("tick_count_ratio_12", safeDiv(tickCount, tcMA12))
	szMA12 := RollingMean(avgSize, 12)
	f.Set("trade_size_ma_12", szMA12)
	f.Set("trade_size_ratio_12", safeDiv(avgSize, szMA12))
	f.Set("max_trade_size_ratio_12", safeDiv(maxSize, szMA12))
	psMA12 := RollingMean(priceStd, 12)
	f.Set("price_std_ma_12", psMA12)
	f.Set("price_std_ratio_12", safeDiv(priceStd, psMA12))
	for _, w := range []int{6, 12, 24} {
		f.Set(fmt.Sprintf("ofi_ma_%d", w), RollingMean(ofi, w))
	}
	f.Set("ofi_std_24", RollingStd(ofi, 24))
	f.Set("ofi_abs_ma_12", RollingMean(abs(ofi), 12))

	// Time family: cyclical encodings plus coarse session flags (UTC).
	hourSin := make([]float64, n)
	hourCos := make([]float64, n)
	dowSin := make([]float64, n)
	dowCos := make([]float64, n)
	sessAsia := make([]float64, n)
	sessEurope := make([]float64, n)
	sessUS := make([]float64, n)
	for i, ts := range index {
		utc := ts.UTC()
		h := float64(utc.Hour())
		d := float64(utc.Weekday())
		hourSin[i] = math.Sin(2 * math.Pi * h / 24)
		hourCos[i] = math.Cos(2 * math.Pi * h / 24)
		dowSin[i] = math.Sin(2 * math.Pi * d / 7)
		dowCos[i] = math.Cos(2 * math.Pi * d / 7)
		if utc.Hour() >= 0 && utc.Hour() < 9 {
			sessAsia[i] = 1
		}
		if utc.Hour() >= 7 && utc.Hour() < 16 {
			sessEurope[i] = 1
		}
		if utc.Hour() >= 13 && utc.Hour() < 22 {
			sessUS[i] = 1
		}
	}
	f.Set("hour_sin", hourSin)
	f.Set("hour_cos", hourCos)
	f.Set("dow_sin", dowSin)
	f.Set("dow_cos", dowCos)
	f.Set("session_asia", sessAsia)
	f.Set("session_europe", sessEurope)
	f.Set("session_us", sessUS)

	// Interaction family: bounded set of pairwise products.
	f.Set("rvol_12_x_volume_ratio_12", mul(rvol[12], f.Column("volume_ratio_12")))
	f.Set("abs_ofi_x_rvol_12", mul(abs(ofi), rvol[12]))
	f.Set("range_x_volume_ratio_12", mul(barRange, f.Column("volume_ratio_12")))
	f.Set("momentum_12_x_rvol_24", mul(f.Column("momentum_12"), rvol[24]))
	f.Set("vol_regime_x_volume_zscore", mul(f.Column("vol_regime_96"), f.Column("volume_zscore_24")))

	return f
}

// momentum computes close/close[t-w] - 1 with a w-row warm-up.
func momentum(cls []float64, w int) []float64 {
	out := nan(len(cls))
	for i := w; i < len(cls); i++ {
		if cls[i-w] != 0 {
			out[i] = cls[i]/cls[i-w] - 1
		}
	}
	return out
}

func zscore(xs, mean, std []float64) []float64 {
	out := nan(len(xs))
	for i := range xs {
		if math.IsNaN(mean[i]) || math.IsNaN(std[i]) {
			continue
		}
		if std[i] == 0 {
			out[i] = 0
			continue
		}
		out[i] = (xs[i] - mean[i]) / std[i]
	}
	return out
}
