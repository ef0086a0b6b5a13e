package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
	"VolCast/internal/services/features"
	"VolCast/internal/services/forecast"
	"VolCast/pkg/cache"
	applogger "VolCast/pkg/logger"
	"VolCast/pkg/util"
)

const (
	// minRowsTicks is the minimum clean feature rows required when the
	// history comes from the tick archive.
	minRowsTicks = 100
	// minRowsExternal is the relaxed minimum for caller-supplied bars.
	minRowsExternal = 50

	volFloor        = 1e-8
	coverageWarnAt  = 0.80
	maxHorizonDays  = 30
	backtestForward = 12

	// computeLockTTL bounds how long a crashed worker can hold a
	// prediction compute lock.
	computeLockTTL = 30 * time.Second
	lockPollTries  = 3
	lockPollDelay  = 50 * time.Millisecond
)

// ForecasterConfig tunes the prediction pipeline around a loaded bundle.
type ForecasterConfig struct {
	Timeframe domrepo.Timeframe
	CacheTTL  time.Duration
}

// VolatilityForecaster runs the full pipeline: tick history to bars to
// features to scaled ensemble scoring to a calibrated prediction.
type VolatilityForecaster struct {
	ticks  domrepo.TickSource
	bars   *BarAggregator
	bundle *forecast.Bundle
	cache  cache.Service
	sink   domrepo.PredictionSink

	cfg     ForecasterConfig
	l       *applogger.Logger
	metrics domrepo.Metrics
}

// NewVolatilityForecaster wires the pipeline. cacheSvc and sink may be
// nil, in which case result caching and audit logging are disabled.
func NewVolatilityForecaster(
	ticks domrepo.TickSource,
	bars *BarAggregator,
	bundle *forecast.Bundle,
	cacheSvc cache.Service,
	sink domrepo.PredictionSink,
	cfg ForecasterConfig,
	l *applogger.Logger,
	m domrepo.Metrics,
) *VolatilityForecaster {
	if cfg.Timeframe == "" {
		cfg.Timeframe = domrepo.NormalizeTimeframe(bundle.Config.BarFreq)
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &VolatilityForecaster{
		ticks:   ticks,
		bars:    bars,
		bundle:  bundle,
		cache:   cacheSvc,
		sink:    sink,
		cfg:     cfg,
		l:       l,
		metrics: m,
	}
}

// ModelVersion reports the loaded bundle's version string.
func (f *VolatilityForecaster) ModelVersion() string { return f.bundle.ModelVersion }

// InvalidateSymbol drops every cached artifact derived from the symbol's
// history: archived ticks, aggregated bars and served predictions.
func (f *VolatilityForecaster) InvalidateSymbol(ctx context.Context, symbol string) error {
	if symbol == "" {
		return &models.ParamError{Name: "symbol", Reason: "must not be empty"}
	}
	if err := f.ticks.ClearCache(symbol); err != nil {
		return fmt.Errorf("clear tick cache: %w", err)
	}
	if err := f.bars.ClearCache(symbol); err != nil {
		return fmt.Errorf("clear bar cache: %w", err)
	}
	if f.cache != nil {
		pattern := cache.BuildPattern(cache.GenerateKeyWithParams("pred", symbol))
		if err := f.cache.DeleteByPattern(ctx, pattern); err != nil {
			return fmt.Errorf("clear prediction cache: %w", err)
		}
	}
	if f.l != nil {
		f.l.Info("symbol caches invalidated", applogger.String("symbol", symbol))
	}
	return nil
}

// PredictParams are the validated inputs of a point prediction.
type PredictParams struct {
	Symbol     string
	Horizon    int
	Confidence float64
	UseCache   bool
}

func (p *PredictParams) validate() error {
	if p.Symbol == "" {
		return &models.ParamError{Name: "symbol", Reason: "must not be empty"}
	}
	if p.Horizon < 1 || p.Horizon > maxHorizonDays {
		return &models.ParamError{Name: "horizon", Reason: fmt.Sprintf("must be in [1, %d]", maxHorizonDays)}
	}
	if p.Confidence != 0.95 && p.Confidence != 0.99 {
		return &models.ParamError{Name: "confidence", Reason: "must be 0.95 or 0.99"}
	}
	return nil
}

// Predict produces a volatility prediction from the symbol's archived
// tick history.
func (f *VolatilityForecaster) Predict(ctx context.Context, p PredictParams) (*models.VolatilityPrediction, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	cacheKey := cache.GenerateKeyWithParams("pred", p.Symbol, f.cfg.Timeframe, p.Horizon, p.Confidence)
	if p.UseCache && f.cache != nil {
		var cached models.VolatilityPrediction
		if err := f.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
		// Single flight per key: the lock loser polls for the winner's
		// result before computing its own.
		lockKey := cacheKey + ":lock"
		if ok, err := f.cache.TryLock(ctx, lockKey, computeLockTTL); err == nil && !ok {
			for i := 0; i < lockPollTries; i++ {
				time.Sleep(lockPollDelay)
				if err := f.cache.Get(ctx, cacheKey, &cached); err == nil {
					return &cached, nil
				}
			}
		} else if ok {
			defer f.cache.Unlock(ctx, lockKey)
		}
	}

	start := time.Now()
	ticks, err := f.ticks.LoadSymbol(ctx, p.Symbol, nil, nil, p.UseCache)
	if err != nil {
		return nil, err
	}
	if f.metrics != nil {
		f.metrics.RecordStageLatency("load", time.Since(start).Seconds())
	}

	bars, err := f.bars.CreateBars(p.Symbol, ticks, f.cfg.Timeframe, p.UseCache)
	if err != nil {
		return nil, err
	}

	pred, err := f.predictFrom(ctx, p.Symbol, bars, minRowsTicks, p.Horizon, p.Confidence)
	if err != nil {
		return nil, err
	}

	if p.UseCache && f.cache != nil {
		if err := f.cache.Set(ctx, cacheKey, pred, f.cfg.CacheTTL); err != nil && f.l != nil {
			f.l.Warn("prediction cache write failed", applogger.Error(err))
		}
	}
	f.record(ctx, pred)
	return pred, nil
}

// PredictBars produces a prediction from caller-supplied bars, bypassing
// the tick archive. The row minimum is relaxed because external callers
// typically hold daily candles.
func (f *VolatilityForecaster) PredictBars(ctx context.Context, symbol string, bars []models.Bar, horizon int, confidence float64) (*models.VolatilityPrediction, error) {
	p := PredictParams{Symbol: symbol, Horizon: horizon, Confidence: confidence}
	if err := p.validate(); err != nil {
		return nil, err
	}
	pred, err := f.predictFrom(ctx, symbol, bars, minRowsExternal, horizon, confidence)
	if err != nil {
		return nil, err
	}
	f.record(ctx, pred)
	return pred, nil
}

// predictFrom is the shared scoring path. It never mutates bars.
func (f *VolatilityForecaster) predictFrom(_ context.Context, symbol string, bars []models.Bar, minRows, horizon int, confidence float64) (*models.VolatilityPrediction, error) {
	start := time.Now()
	frame := features.GenerateAll(bars)
	clean := frame.DropNaN()
	if f.metrics != nil {
		f.metrics.RecordStageLatency("engineer", time.Since(start).Seconds())
	}

	if clean.Len() < minRows {
		return nil, &models.InsufficientDataError{Symbol: symbol, Rows: clean.Len(), Min: minRows}
	}

	row := clean.Row(clean.Len() - 1)
	vec, coverage := f.bundle.Schema.Align(row)
	if coverage < coverageWarnAt && f.l != nil {
		f.l.Warn("feature schema coverage below threshold",
			applogger.String("symbol", symbol),
			applogger.Any("coverage", coverage),
			applogger.String("model_version", f.bundle.ModelVersion),
		)
	}

	baseVol := lastValue(clean.Column("rvol_12"))
	if math.IsNaN(baseVol) {
		return nil, fmt.Errorf("%w: base volatility unavailable for %s", models.ErrEnsembleFailure, symbol)
	}

	contrib := make(map[string]float64, len(f.bundle.Predictors))
	var vols []float64
	scoreStart := time.Now()
	scaled, scaleErr := f.bundle.Scaler.Transform(vec)
	if scaleErr == nil {
		for _, m := range f.bundle.Predictors {
			prob, err := m.PredictProba(scaled)
			if err != nil {
				if f.l != nil {
					f.l.Warn("model scoring failed",
						applogger.String("model", m.Name()),
						applogger.String("symbol", symbol),
						applogger.Error(err),
					)
				}
				if f.metrics != nil {
					f.metrics.RecordError("score")
				}
				continue
			}
			v := probToVol(prob, baseVol)
			contrib[m.Name()] = v
			vols = append(vols, v)
		}
	} else if f.l != nil {
		f.l.Warn("feature scaling failed",
			applogger.String("symbol", symbol),
			applogger.Error(scaleErr),
		)
	}

	if len(vols) == 0 {
		// historical fallback: serve the realized value when every
		// model is unusable
		fallback := math.Max(baseVol, volFloor)
		contrib = map[string]float64{"Historical": fallback}
		vols = []float64{fallback}
		if f.l != nil {
			f.l.Warn("ensemble unavailable, serving historical volatility",
				applogger.String("symbol", symbol),
			)
		}
	}
	if f.metrics != nil {
		f.metrics.RecordStageLatency("score", time.Since(scoreStart).Seconds())
	}

	pred := stat.Mean(vols, nil)
	rawDisp := 0.0
	if len(vols) > 1 {
		rawDisp = stat.PopStdDev(vols, nil)
	}
	ciDisp := rawDisp
	if len(vols) <= 1 {
		ciDisp = 0.1 * pred
	}

	z := 1.96
	if confidence == 0.99 {
		z = 2.576
	}
	lower := math.Max(pred-z*ciDisp, volFloor)
	upper := pred + z*ciDisp

	modelConf := clamp(1-rawDisp/pred, 0.1, 1.0)

	out := &models.VolatilityPrediction{
		Symbol:              symbol,
		PredictedVolatility: pred,
		ConfidenceInterval:  [2]float64{lower, upper},
		ModelConfidence:     modelConf,
		ContributingModels:  contrib,
		FeatureCoverage:     coverage,
		HorizonDays:         horizon,
		Timestamp:           time.Now().UTC(),
		ModelVersion:        f.bundle.ModelVersion,
	}
	if f.metrics != nil {
		f.metrics.RecordPrediction(symbol, pred, modelConf)
	}
	return out, nil
}

// ForecastSeries returns the trailing realized-volatility window scaled
// to the horizon, alongside the current prediction.
func (f *VolatilityForecaster) ForecastSeries(ctx context.Context, symbol string, horizon int, confThreshold float64) (*models.ForecastSeries, error) {
	p := PredictParams{Symbol: symbol, Horizon: horizon, Confidence: 0.95, UseCache: true}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if confThreshold < 0 || confThreshold > 1 {
		return nil, &models.ParamError{Name: "confidence_threshold", Reason: "must be in [0, 1]"}
	}

	ticks, err := f.ticks.LoadSymbol(ctx, symbol, nil, nil, true)
	if err != nil {
		return nil, err
	}
	bars, err := f.bars.CreateBars(symbol, ticks, f.cfg.Timeframe, true)
	if err != nil {
		return nil, err
	}
	pred, err := f.predictFrom(ctx, symbol, bars, minRowsTicks, horizon, 0.95)
	if err != nil {
		return nil, err
	}

	frame := features.GenerateAll(bars)
	clean := frame.DropNaN()
	rvol := clean.Column("rvol_12")
	idx := clean.Index()

	window := horizon * f.cfg.Timeframe.BarsPerHour()
	if window > len(rvol) {
		window = len(rvol)
	}
	points := make([]models.SeriesPoint, 0, window)
	vals := make([]float64, 0, window)
	for i := len(rvol) - window; i < len(rvol); i++ {
		points = append(points, models.SeriesPoint{Timestamp: idx[i], RealizedVol: rvol[i]})
		vals = append(vals, rvol[i])
	}

	stats := models.SeriesStats{Current: vals[len(vals)-1]}
	stats.Mean = stat.Mean(vals, nil)
	if len(vals) > 1 {
		stats.Std = stat.StdDev(vals, nil)
	}
	stats.Min, stats.Max = vals[0], vals[0]
	for _, v := range vals {
		stats.Min = math.Min(stats.Min, v)
		stats.Max = math.Max(stats.Max, v)
	}

	return &models.ForecastSeries{
		Symbol:              symbol,
		HorizonDays:         horizon,
		ConfidenceThreshold: confThreshold,
		LowConfidence:       pred.ModelConfidence < confThreshold,
		Series:              points,
		Stats:               stats,
		Prediction:          pred,
	}, nil
}

// Backtest scores the frozen ensemble over the held-out tail of the
// feature history and reports directional accuracy of realized
// volatility over a forward window. No retraining happens here.
func (f *VolatilityForecaster) Backtest(ctx context.Context, symbol string, from, to *time.Time, confThreshold float64) (*models.BacktestReport, error) {
	if symbol == "" {
		return nil, &models.ParamError{Name: "symbol", Reason: "must not be empty"}
	}
	if confThreshold < 0 || confThreshold > 1 {
		return nil, &models.ParamError{Name: "confidence_threshold", Reason: "must be in [0, 1]"}
	}
	if from != nil || to != nil {
		fv, tv := time.Time{}, time.Now().UTC()
		if from != nil {
			fv = *from
		}
		if to != nil {
			tv = *to
		}
		fv, tv = util.AlignFromTo(fv, tv, string(f.cfg.Timeframe))
		from, to = &fv, &tv
	}

	ticks, err := f.ticks.LoadSymbol(ctx, symbol, from, to, true)
	if err != nil {
		return nil, err
	}
	bars, err := f.bars.CreateBars(symbol, ticks, f.cfg.Timeframe, from == nil && to == nil)
	if err != nil {
		return nil, err
	}

	frame := features.GenerateAll(bars)
	clean := frame.DropNaN()
	if clean.Len() < minRowsTicks {
		return nil, &models.InsufficientDataError{Symbol: symbol, Rows: clean.Len(), Min: minRowsTicks}
	}

	split := int(0.7 * float64(clean.Len()))
	rvol := clean.Column("rvol_12")
	idx := clean.Index()

	scored, correct := 0, 0
	for i := split; i < clean.Len()-backtestForward; i++ {
		vec, _ := f.bundle.Schema.Align(clean.Row(i))
		scaled, err := f.bundle.Scaler.Transform(vec)
		if err != nil {
			continue
		}
		var probs []float64
		for _, m := range f.bundle.Predictors {
			p, err := m.PredictProba(scaled)
			if err != nil {
				continue
			}
			probs = append(probs, p)
		}
		if len(probs) == 0 {
			continue
		}
		scored++
		predUp := stat.Mean(probs, nil) > 0.5
		actualUp := rvol[i+backtestForward] > rvol[i]
		if predUp == actualUp {
			correct++
		}
	}

	accuracy := 0.0
	if scored > 0 {
		accuracy = float64(correct) / float64(scored)
	}
	report := &models.BacktestReport{
		Symbol:              symbol,
		From:                idx[0],
		To:                  idx[len(idx)-1],
		TrainRows:           split,
		TestRows:            clean.Len() - split,
		ScoredRows:          scored,
		DirectionalAccuracy: accuracy,
		ConfidenceThreshold: confThreshold,
		TrainingMetrics:     f.bundle.Metrics,
		ModelVersion:        f.bundle.ModelVersion,
	}
	if f.l != nil {
		f.l.Info("backtest complete",
			applogger.String("symbol", symbol),
			applogger.Int("scored", scored),
			applogger.Any("accuracy", accuracy),
		)
	}
	return report, nil
}

func (f *VolatilityForecaster) record(ctx context.Context, pred *models.VolatilityPrediction) {
	if f.sink == nil {
		return
	}
	if err := f.sink.Record(ctx, pred); err != nil && f.l != nil {
		f.l.Warn("prediction audit write failed",
			applogger.String("symbol", pred.Symbol),
			applogger.Error(err),
		)
	}
}

// probToVol maps an ensemble probability of a volatility increase onto a
// volatility level anchored at the current realized value.
func probToVol(prob, baseVol float64) float64 {
	v := baseVol * (1 + (prob - 0.5))
	return math.Max(v, volFloor)
}

func lastValue(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return xs[len(xs)-1]
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
