package features

// excluded is the fixed set of raw OHLCV and intermediate columns that
// never reach the model. Everything else in a generated frame is
// model-facing, so training and inference agree on the schema by
// construction.
var excluded = map[string]struct{}{
	"open":           {},
	"high":           {},
	"low":            {},
	"close":          {},
	"volume":         {},
	"tick_count":     {},
	"price_std":      {},
	"avg_trade_size": {},
	"max_trade_size": {},
	"std_trade_size": {},
	"signed_volume":  {},
	"log_return":     {},
	"bar_range":      {},
	"body":           {},
	"upper_wick":     {},
	"lower_wick":     {},
	"ofi_normalized": {},
	"target":         {},
	"target_vol":     {},
	"forward_return": {},
}

// ModelColumns returns the model-facing columns of a frame, preserving
// frame order. The excluded set is fixed regardless of frame size.
func ModelColumns(f *Frame) []string {
	cols := f.Columns()
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if _, skip := excluded[c]; skip {
			continue
		}
		out = append(out, c)
	}
	return out
}

// IsExcluded reports whether a column is in the fixed excluded set.
func IsExcluded(name string) bool {
	_, ok := excluded[name]
	return ok
}
