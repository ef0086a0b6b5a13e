package repository

import "time"

// Timeframe represents the fixed bar bucket width.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
)

// IsValidTimeframe returns true if tf is a supported bar frequency.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1m, TF5m, TF15m, TF1h:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default bar frequency.
func DefaultTimeframe() Timeframe { return TF15m }

// NormalizeTimeframe converts a raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Duration returns the bucket width of the timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF1h:
		return time.Hour
	default:
		return 15 * time.Minute
	}
}

// BarsPerHour returns how many bars of this timeframe fit in one hour.
func (tf Timeframe) BarsPerHour() int {
	n := int(time.Hour / tf.Duration())
	if n < 1 {
		n = 1
	}
	return n
}
