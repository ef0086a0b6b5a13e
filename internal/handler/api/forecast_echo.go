package api

import (
	"errors"
	"time"

	models "VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
	"VolCast/internal/usecase"
	xhttp "VolCast/pkg/http"
	xlogger "VolCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ForecastEchoHandler implements Echo-based HTTP handlers following Clean Architecture.
type ForecastEchoHandler struct {
	logger     *xlogger.Logger
	forecaster *usecase.VolatilityForecaster
	ticks      domrepo.TickSource
}

func NewForecastEchoHandler(logger *xlogger.Logger, forecaster *usecase.VolatilityForecaster, ticks domrepo.TickSource) *ForecastEchoHandler {
	return &ForecastEchoHandler{logger: logger, forecaster: forecaster, ticks: ticks}
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/predict", h.Predict)
	g.POST("/predict", h.PredictUpload)
	g.GET("/forecast", h.Forecast)
	g.GET("/backtest", h.Backtest)
	g.GET("/symbols", h.Symbols)
	g.DELETE("/cache/:symbol", h.EvictSymbol)
	e.GET("/health", h.Health)
}

// EvictSymbol drops the cached ticks, bars and predictions of one symbol
// so the next request rebuilds from the archives.
func (h *ForecastEchoHandler) EvictSymbol(c echo.Context) error {
	symbol := c.Param("symbol")
	if err := h.forecaster.InvalidateSymbol(c.Request().Context(), symbol); err != nil {
		h.logger.Error("cache eviction error", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"symbol": symbol, "status": "evicted"})
}

func (h *ForecastEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{
		"status":        "ok",
		"model_version": h.forecaster.ModelVersion(),
	})
}

func (h *ForecastEchoHandler) Symbols(c echo.Context) error {
	symbols, err := h.ticks.AvailableSymbols(c.Request().Context())
	if err != nil {
		h.logger.Error("symbols listing error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	if limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 0); limit > 0 && limit < len(symbols) {
		symbols = symbols[:limit]
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, symbols)
}

func (h *ForecastEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.forecaster.Predict(c.Request().Context(), usecase.PredictParams{
		Symbol:     req.Symbol,
		Horizon:    req.HorizonDays,
		Confidence: req.Confidence,
		UseCache:   !req.NoCache,
	})
	if err != nil {
		h.logger.Error("predict usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) PredictUpload(c echo.Context) error {
	req := &models.UploadPredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	bars := make([]models.Bar, len(req.Bars))
	for i, b := range req.Bars {
		bars[i] = models.Bar{
			Timestamp: time.Unix(b.Timestamp, 0).UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}

	res, err := h.forecaster.PredictBars(c.Request().Context(), req.Symbol, bars, req.HorizonDays, req.Confidence)
	if err != nil {
		h.logger.Error("upload predict usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) Forecast(c echo.Context) error {
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.forecaster.ForecastSeries(c.Request().Context(), req.Symbol, req.HorizonDays, req.ConfidenceThreshold)
	if err != nil {
		h.logger.Error("forecast usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) Backtest(c echo.Context) error {
	req := &models.BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var from, to *time.Time
	if req.From != "" {
		t, ok := xhttp.ParseTime(req.From)
		if !ok {
			return xhttp.BadRequestResponse(c, xhttp.BadRequestErrorf("invalid from: %q", req.From))
		}
		from = &t
	}
	if req.To != "" {
		t, ok := xhttp.ParseTime(req.To)
		if !ok {
			return xhttp.BadRequestResponse(c, xhttp.BadRequestErrorf("invalid to: %q", req.To))
		}
		to = &t
	}

	res, err := h.forecaster.Backtest(c.Request().Context(), req.Symbol, from, to, req.ConfidenceThreshold)
	if err != nil {
		h.logger.Error("backtest usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

// mapDomainError translates pipeline errors into transport errors so
// callers see stable status codes.
func mapDomainError(err error) error {
	var insufficient *models.InsufficientDataError
	var param *models.ParamError

	switch {
	case errors.Is(err, models.ErrDataNotFound):
		return xhttp.NotFoundError(err.Error())
	case errors.As(err, &insufficient):
		return xhttp.BadRequestError(insufficient.Error()).
			WithParam("rows", insufficient.Rows).
			WithParam("min", insufficient.Min)
	case errors.As(err, &param):
		return xhttp.BadRequestError(param.Error()).WithParam("param", param.Name)
	case errors.Is(err, models.ErrEnsembleFailure):
		return xhttp.InternalError(err.Error())
	default:
		return err
	}
}
