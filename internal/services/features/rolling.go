package features

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Rolling helpers. All windows are trailing and include the current row,
// so no computation ever looks ahead. A window containing any NaN yields
// NaN, which keeps warm-up propagation exact: a feature is undefined until
// every input it depends on is defined.

func nan(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func hasNaN(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}

// Shift returns xs delayed by lag rows; the first lag rows are NaN.
func Shift(xs []float64, lag int) []float64 {
	out := nan(len(xs))
	for i := lag; i < len(xs); i++ {
		out[i] = xs[i-lag]
	}
	return out
}

func rollingApply(xs []float64, w int, fn func(window []float64) float64) []float64 {
	out := nan(len(xs))
	if w <= 0 || len(xs) < w {
		return out
	}
	for i := w - 1; i < len(xs); i++ {
		win := xs[i-w+1 : i+1]
		if hasNaN(win) {
			continue
		}
		out[i] = fn(win)
	}
	return out
}

// RollingMean is the trailing mean over w rows.
func RollingMean(xs []float64, w int) []float64 {
	return rollingApply(xs, w, func(win []float64) float64 {
		return stat.Mean(win, nil)
	})
}

// RollingSum is the trailing sum over w rows.
func RollingSum(xs []float64, w int) []float64 {
	return rollingApply(xs, w, func(win []float64) float64 {
		s := 0.0
		for _, x := range win {
			s += x
		}
		return s
	})
}

// RollingStd is the trailing sample standard deviation over w rows.
func RollingStd(xs []float64, w int) []float64 {
	return rollingApply(xs, w, func(win []float64) float64 {
		return stat.StdDev(win, nil)
	})
}

// RollingVar is the trailing sample variance over w rows.
func RollingVar(xs []float64, w int) []float64 {
	return rollingApply(xs, w, func(win []float64) float64 {
		return stat.Variance(win, nil)
	})
}

// RollingSkew is the trailing sample skewness over w rows.
func RollingSkew(xs []float64, w int) []float64 {
	return rollingApply(xs, w, func(win []float64) float64 {
		return stat.Skew(win, nil)
	})
}

// RollingKurt is the trailing excess kurtosis over w rows.
func RollingKurt(xs []float64, w int) []float64 {
	return rollingApply(xs, w, func(win []float64) float64 {
		return stat.ExKurtosis(win, nil)
	})
}

// RollingFracBelow gives, per row, the fraction of the trailing window of
// xs that sits strictly below the current value of ref. The window grows
// up to w rows and needs at least minPeriods defined values, which keeps
// the regime indicator usable well before the full lookback has
// accumulated.
func RollingFracBelow(xs, ref []float64, w, minPeriods int) []float64 {
	out := nan(len(xs))
	for i := 0; i < len(xs); i++ {
		if math.IsNaN(ref[i]) {
			continue
		}
		lo := i - w + 1
		if lo < 0 {
			lo = 0
		}
		n, below := 0, 0
		for j := lo; j <= i; j++ {
			if math.IsNaN(xs[j]) {
				continue
			}
			n++
			if xs[j] < ref[i] {
				below++
			}
		}
		if n >= minPeriods {
			out[i] = float64(below) / float64(n)
		}
	}
	return out
}

// safeDiv divides element-wise, yielding 0 where the denominator is 0 and
// propagating NaN from either side.
func safeDiv(num, den []float64) []float64 {
	out := nan(len(num))
	for i := range num {
		switch {
		case math.IsNaN(num[i]) || math.IsNaN(den[i]):
		case den[i] == 0:
			out[i] = 0
		default:
			out[i] = num[i] / den[i]
		}
	}
	return out
}

func mul(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
	}
	return out
}

func abs(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = math.Abs(x)
	}
	return out
}
