package models

import (
	"errors"
	"fmt"
)

// Caller-visible failures are reserved for missing/insufficient data and
// invalid parameters. Everything else is absorbed inside the pipeline with
// stage-tagged logging.
var (
	// ErrDataNotFound means no archive or store row matched the symbol.
	ErrDataNotFound = errors.New("no source data for symbol")

	// ErrEnsembleFailure means every predictor failed and no base
	// volatility was available to fall back to.
	ErrEnsembleFailure = errors.New("no usable models and no historical baseline")
)

// InsufficientDataError reports that too few feature rows survived the
// rolling-window warm-up.
type InsufficientDataError struct {
	Symbol string
	Rows   int
	Min    int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: %d usable rows, need %d", e.Symbol, e.Rows, e.Min)
}

// ParamError reports an invalid request parameter (horizon, confidence).
type ParamError struct {
	Name   string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Name, e.Reason)
}
