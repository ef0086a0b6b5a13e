package models

import "time"

// Bar is a fixed-interval OHLCV aggregate of ticks with microstructure
// fields. Timestamp is the bucket start. A Bar never has zero volume;
// empty and zero-volume buckets are dropped during aggregation.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	TickCount int
	PriceStd  float64
	AvgSize   float64
	MaxSize   float64
	StdSize   float64

	// signed_volume = sum(size * sign(side)), Buy=+1 Ask=-1 Neutral=0
	SignedVolume float64

	// Derived fields, filled once the full bar sequence is known.
	LogReturn     float64 // ln(close_t / close_{t-1}), NaN on the first bar
	Range         float64 // (high-low)/close
	Body          float64 // |close-open|/close
	UpperWick     float64 // (high-max(open,close))/close
	LowerWick     float64 // (min(open,close)-low)/close
	OFINormalized float64 // signed_volume/volume
}
