package features

import (
	"math"

	"VolCast/internal/domain/models"
)

// Classical range-based volatility estimators. Each returns a per-bar
// rolling series over window w, NaN during warm-up. With constant OHLC
// every estimator evaluates to exactly 0 once warm-up is satisfied.

const ln2 = math.Ln2

// Parkinson computes sqrt(mean_w((ln(high/low))^2) / (4*ln2)).
func Parkinson(bars []models.Bar, w int) []float64 {
	hl2 := make([]float64, len(bars))
	for i, b := range bars {
		hl := math.Log(b.High / b.Low)
		hl2[i] = hl * hl
	}
	mean := RollingMean(hl2, w)
	out := nan(len(bars))
	for i, m := range mean {
		if !math.IsNaN(m) {
			out[i] = math.Sqrt(m / (4 * ln2))
		}
	}
	return out
}

// GarmanKlass computes
// sqrt(mean_w(0.5*(ln(high/low))^2 - (2*ln2-1)*(ln(close/open))^2)).
// The windowed mean can dip below zero on pathological bars; it is floored
// at 0 so the estimator stays defined.
func GarmanKlass(bars []models.Bar, w int) []float64 {
	term := make([]float64, len(bars))
	for i, b := range bars {
		hl := math.Log(b.High / b.Low)
		co := math.Log(b.Close / b.Open)
		term[i] = 0.5*hl*hl - (2*ln2-1)*co*co
	}
	mean := RollingMean(term, w)
	out := nan(len(bars))
	for i, m := range mean {
		if !math.IsNaN(m) {
			if m < 0 {
				m = 0
			}
			out[i] = math.Sqrt(m)
		}
	}
	return out
}

// rogersSatchellTerms returns the per-bar RS variance contributions:
// ln(h/o)*ln(h/c) + ln(l/o)*ln(l/c).
func rogersSatchellTerms(bars []models.Bar) []float64 {
	term := make([]float64, len(bars))
	for i, b := range bars {
		ho := math.Log(b.High / b.Open)
		hc := math.Log(b.High / b.Close)
		lo := math.Log(b.Low / b.Open)
		lc := math.Log(b.Low / b.Close)
		term[i] = ho*hc + lo*lc
	}
	return term
}

// RogersSatchell computes sqrt(mean_w(rs terms)), floored at 0.
func RogersSatchell(bars []models.Bar, w int) []float64 {
	mean := RollingMean(rogersSatchellTerms(bars), w)
	out := nan(len(bars))
	for i, m := range mean {
		if !math.IsNaN(m) {
			if m < 0 {
				m = 0
			}
			out[i] = math.Sqrt(m)
		}
	}
	return out
}

// YangZhang combines overnight variance, close-to-close variance and the
// Rogers-Satchell term:
//
//	yz = sqrt(var_w(ln(o_t/c_{t-1})) + k*var_w(ln(c_t/c_{t-1})) + (1-k)*mean_w(rs))
//	k  = 0.34 / (1.34 + (w+1)/(w-1))
func YangZhang(bars []models.Bar, w int) []float64 {
	n := len(bars)
	overnight := nan(n)
	closeRet := nan(n)
	for i := 1; i < n; i++ {
		overnight[i] = math.Log(bars[i].Open / bars[i-1].Close)
		closeRet[i] = math.Log(bars[i].Close / bars[i-1].Close)
	}

	onVar := RollingVar(overnight, w)
	cVar := RollingVar(closeRet, w)
	rsMean := RollingMean(rogersSatchellTerms(bars), w)

	k := 0.34 / (1.34 + float64(w+1)/float64(w-1))

	out := nan(n)
	for i := 0; i < n; i++ {
		if math.IsNaN(onVar[i]) || math.IsNaN(cVar[i]) || math.IsNaN(rsMean[i]) {
			continue
		}
		v := onVar[i] + k*cVar[i] + (1-k)*rsMean[i]
		if v < 0 {
			v = 0
		}
		out[i] = math.Sqrt(v)
	}
	return out
}
