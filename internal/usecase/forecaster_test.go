package usecase

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
	domsvc "VolCast/internal/domain/service"
	"VolCast/internal/services/features"
	"VolCast/internal/services/forecast"
	"VolCast/pkg/cache"
)

// stubSource serves a fixed tick slice and counts loads.
type stubSource struct {
	ticks []models.Tick
	loads int
}

func (s *stubSource) LoadSymbol(_ context.Context, symbol string, _, _ *time.Time, _ bool) ([]models.Tick, error) {
	s.loads++
	if len(s.ticks) == 0 {
		return nil, models.ErrDataNotFound
	}
	return s.ticks, nil
}

func (s *stubSource) AvailableSymbols(context.Context) ([]string, error) {
	return []string{"BTCUSDT"}, nil
}

func (s *stubSource) ClearCache(string) error { return nil }

type stubPredictor struct {
	name string
	p    float64
	err  error
}

func (s stubPredictor) Name() string { return s.name }

func (s stubPredictor) PredictProba([]float64) (float64, error) { return s.p, s.err }

func testColumns() []string { return []string{"rvol_12", "momentum_12", "bar_range"} }

func testBundle(preds ...stubPredictor) *forecast.Bundle {
	cols := testColumns()
	scaler := &forecast.StandardScaler{
		Mean:  make([]float64, len(cols)),
		Scale: []float64{1, 1, 1},
	}
	predictors := make([]domsvc.Predictor, len(preds))
	for i, p := range preds {
		predictors[i] = p
	}
	cfg := forecast.BundleConfig{BarFreq: "15m", DefaultHorizonDays: 1, DefaultConfidence: 0.95}
	return forecast.NewBundle("test-v1", scaler, predictors, cols, cfg, map[string]float64{"auc": 0.6})
}

func walkBars(n int, seed int64) []models.Bar {
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	price := 200.0
	bars := make([]models.Bar, n)
	for i := range bars {
		open := price
		price *= math.Exp(rng.NormFloat64() * 0.003)
		cls := price
		vol := 20 + rng.Float64()*50
		bars[i] = models.Bar{
			Timestamp:    start.Add(time.Duration(i) * 15 * time.Minute),
			Open:         open,
			High:         math.Max(open, cls) * 1.0005,
			Low:          math.Min(open, cls) * 0.9995,
			Close:        cls,
			Volume:       vol,
			TickCount:    8,
			AvgSize:      vol / 8,
			MaxSize:      vol / 2,
			SignedVolume: vol * 0.1,
		}
	}
	return bars
}

func walkTicks(nBars int, seed int64) []models.Tick {
	bars := walkBars(nBars, seed)
	ticks := make([]models.Tick, 0, 2*len(bars))
	for _, b := range bars {
		ticks = append(ticks,
			models.Tick{Symbol: "BTCUSDT", Timestamp: b.Timestamp.Add(time.Minute), Price: b.Open, Size: b.Volume / 2, Side: models.SideBuy},
			models.Tick{Symbol: "BTCUSDT", Timestamp: b.Timestamp.Add(10 * time.Minute), Price: b.Close, Size: b.Volume / 2, Side: models.SideAsk},
		)
	}
	return ticks
}

func newForecaster(t *testing.T, src domrepo.TickSource, bundle *forecast.Bundle, c cache.Service) *VolatilityForecaster {
	t.Helper()
	agg := NewBarAggregator(t.TempDir(), nil, nil)
	return NewVolatilityForecaster(src, agg, bundle, c, nil, ForecasterConfig{Timeframe: domrepo.TF15m}, nil, nil)
}

func TestPredictBarsKnownProbability(t *testing.T) {
	bars := walkBars(150, 21)
	bundle := testBundle(stubPredictor{name: "stub", p: 0.7})
	f := newForecaster(t, &stubSource{}, bundle, nil)

	pred, err := f.PredictBars(context.Background(), "BTCUSDT", bars, 1, 0.95)
	require.NoError(t, err)

	clean := features.GenerateAll(bars).DropNaN()
	rvol := clean.Column("rvol_12")
	base := rvol[len(rvol)-1]

	prob := 0.7
	want := base * (1 + (prob - 0.5))
	assert.InDelta(t, want, pred.PredictedVolatility, 1e-12)
	// single usable model: zero dispersion, full confidence
	assert.Equal(t, 1.0, pred.ModelConfidence)
	require.Len(t, pred.ContributingModels, 1)
	assert.InDelta(t, want, pred.ContributingModels["stub"], 1e-12)
	assert.Equal(t, "test-v1", pred.ModelVersion)
	assert.Equal(t, 1, pred.HorizonDays)

	// interval built from the 10% fallback dispersion
	disp := 0.1 * want
	assert.InDelta(t, want-1.96*disp, pred.ConfidenceInterval[0], 1e-12)
	assert.InDelta(t, want+1.96*disp, pred.ConfidenceInterval[1], 1e-12)
	assert.LessOrEqual(t, pred.ConfidenceInterval[0], pred.PredictedVolatility)
	assert.GreaterOrEqual(t, pred.ConfidenceInterval[1], pred.PredictedVolatility)
}

func TestPredictBarsWiderIntervalAt99(t *testing.T) {
	bars := walkBars(150, 21)
	bundle := testBundle(stubPredictor{name: "stub", p: 0.7})
	f := newForecaster(t, &stubSource{}, bundle, nil)

	p95, err := f.PredictBars(context.Background(), "BTCUSDT", bars, 1, 0.95)
	require.NoError(t, err)
	p99, err := f.PredictBars(context.Background(), "BTCUSDT", bars, 1, 0.99)
	require.NoError(t, err)

	w95 := p95.ConfidenceInterval[1] - p95.ConfidenceInterval[0]
	w99 := p99.ConfidenceInterval[1] - p99.ConfidenceInterval[0]
	assert.Greater(t, w99, w95)
}

func TestPredictBarsDisagreementLowersConfidence(t *testing.T) {
	bars := walkBars(150, 33)
	bundle := testBundle(
		stubPredictor{name: "bull", p: 0.95},
		stubPredictor{name: "bear", p: 0.05},
	)
	f := newForecaster(t, &stubSource{}, bundle, nil)

	pred, err := f.PredictBars(context.Background(), "BTCUSDT", bars, 1, 0.95)
	require.NoError(t, err)

	assert.Less(t, pred.ModelConfidence, 1.0)
	assert.GreaterOrEqual(t, pred.ModelConfidence, 0.1)
	require.Len(t, pred.ContributingModels, 2)
}

func TestPredictBarsAbsorbsFailingModel(t *testing.T) {
	bars := walkBars(150, 5)
	bundle := testBundle(
		stubPredictor{name: "ok", p: 0.6},
		stubPredictor{name: "broken", err: errors.New("shape mismatch")},
	)
	f := newForecaster(t, &stubSource{}, bundle, nil)

	pred, err := f.PredictBars(context.Background(), "BTCUSDT", bars, 1, 0.95)
	require.NoError(t, err)

	require.Len(t, pred.ContributingModels, 1)
	assert.Contains(t, pred.ContributingModels, "ok")
}

func TestPredictBarsHistoricalFallback(t *testing.T) {
	bars := walkBars(150, 5)
	bundle := testBundle(stubPredictor{name: "broken", err: errors.New("down")})
	f := newForecaster(t, &stubSource{}, bundle, nil)

	pred, err := f.PredictBars(context.Background(), "BTCUSDT", bars, 1, 0.95)
	require.NoError(t, err)

	require.Len(t, pred.ContributingModels, 1)
	assert.Contains(t, pred.ContributingModels, "Historical")

	clean := features.GenerateAll(bars).DropNaN()
	rvol := clean.Column("rvol_12")
	assert.InDelta(t, rvol[len(rvol)-1], pred.PredictedVolatility, 1e-12)
}

func TestPredictBarsInsufficientRows(t *testing.T) {
	bars := walkBars(60, 5) // fewer rows than the 96-bar warm-up
	bundle := testBundle(stubPredictor{name: "stub", p: 0.5})
	f := newForecaster(t, &stubSource{}, bundle, nil)

	_, err := f.PredictBars(context.Background(), "BTCUSDT", bars, 1, 0.95)
	var insufficient *models.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 50, insufficient.Min)
}

func TestTickPathRowMinimumBoundary(t *testing.T) {
	bundle := testBundle(stubPredictor{name: "stub", p: 0.5})
	f := newForecaster(t, &stubSource{}, bundle, nil)

	// the 96-bar warm-up leaves n-96 clean rows
	_, err := f.predictFrom(context.Background(), "BTCUSDT", walkBars(195, 7), minRowsTicks, 1, 0.95)
	var insufficient *models.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 99, insufficient.Rows)
	assert.Equal(t, 100, insufficient.Min)

	_, err = f.predictFrom(context.Background(), "BTCUSDT", walkBars(196, 7), minRowsTicks, 1, 0.95)
	assert.NoError(t, err)
}

func TestPredictParamValidation(t *testing.T) {
	bundle := testBundle(stubPredictor{name: "stub", p: 0.5})
	f := newForecaster(t, &stubSource{}, bundle, nil)

	var param *models.ParamError

	_, err := f.Predict(context.Background(), PredictParams{Symbol: "BTCUSDT", Horizon: 0, Confidence: 0.95})
	require.ErrorAs(t, err, &param)
	assert.Equal(t, "horizon", param.Name)

	_, err = f.Predict(context.Background(), PredictParams{Symbol: "BTCUSDT", Horizon: 31, Confidence: 0.95})
	assert.ErrorAs(t, err, &param)

	_, err = f.Predict(context.Background(), PredictParams{Symbol: "BTCUSDT", Horizon: 1, Confidence: 0.9})
	require.ErrorAs(t, err, &param)
	assert.Equal(t, "confidence", param.Name)

	_, err = f.Predict(context.Background(), PredictParams{Symbol: "", Horizon: 1, Confidence: 0.95})
	assert.ErrorAs(t, err, &param)
}

func TestPredictTickPathAndCache(t *testing.T) {
	src := &stubSource{ticks: walkTicks(260, 99)}
	bundle := testBundle(stubPredictor{name: "stub", p: 0.55})
	f := newForecaster(t, src, bundle, cache.NewMemoryCache())

	first, err := f.Predict(context.Background(), PredictParams{Symbol: "BTCUSDT", Horizon: 2, Confidence: 0.95, UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, 1, src.loads)

	second, err := f.Predict(context.Background(), PredictParams{Symbol: "BTCUSDT", Horizon: 2, Confidence: 0.95, UseCache: true})
	require.NoError(t, err)
	// served from cache, no second archive load
	assert.Equal(t, 1, src.loads)
	assert.Equal(t, first.PredictedVolatility, second.PredictedVolatility)

	require.NoError(t, f.InvalidateSymbol(context.Background(), "BTCUSDT"))
	_, err = f.Predict(context.Background(), PredictParams{Symbol: "BTCUSDT", Horizon: 2, Confidence: 0.95, UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, 2, src.loads)
}

func TestPredictMissingSymbol(t *testing.T) {
	bundle := testBundle(stubPredictor{name: "stub", p: 0.5})
	f := newForecaster(t, &stubSource{}, bundle, nil)

	_, err := f.Predict(context.Background(), PredictParams{Symbol: "NOPE", Horizon: 1, Confidence: 0.95})
	assert.ErrorIs(t, err, models.ErrDataNotFound)
}

func TestForecastSeries(t *testing.T) {
	src := &stubSource{ticks: walkTicks(260, 77)}
	bundle := testBundle(stubPredictor{name: "stub", p: 0.7})
	f := newForecaster(t, src, bundle, nil)

	series, err := f.ForecastSeries(context.Background(), "BTCUSDT", 1, 0.99)
	require.NoError(t, err)

	// horizon_days x bars_per_hour trailing points on a 15m frame
	require.Len(t, series.Series, 4)
	assert.Equal(t, series.Stats.Current, series.Series[len(series.Series)-1].RealizedVol)
	assert.GreaterOrEqual(t, series.Stats.Max, series.Stats.Mean)
	assert.LessOrEqual(t, series.Stats.Min, series.Stats.Mean)
	require.NotNil(t, series.Prediction)
	// single stub model agrees with itself, confidence stays at 1.0
	assert.False(t, series.LowConfidence)
}

func TestBacktestSplitsChronologically(t *testing.T) {
	src := &stubSource{ticks: walkTicks(320, 13)}
	bundle := testBundle(stubPredictor{name: "stub", p: 0.7})
	f := newForecaster(t, src, bundle, nil)

	report, err := f.Backtest(context.Background(), "BTCUSDT", nil, nil, 0.5)
	require.NoError(t, err)

	total := report.TrainRows + report.TestRows
	assert.InDelta(t, 0.7, float64(report.TrainRows)/float64(total), 0.01)
	assert.Greater(t, report.ScoredRows, 0)
	assert.LessOrEqual(t, report.ScoredRows, report.TestRows)
	assert.GreaterOrEqual(t, report.DirectionalAccuracy, 0.0)
	assert.LessOrEqual(t, report.DirectionalAccuracy, 1.0)
	assert.True(t, report.To.After(report.From))
	assert.InDelta(t, 0.6, report.TrainingMetrics["auc"], 1e-12)
}
