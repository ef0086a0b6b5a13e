package models

import "time"

// Side classifies the aggressor side of a trade.
type Side int8

const (
	SideNeutral Side = 0
	SideBuy     Side = 1
	SideAsk     Side = -1
)

// ParseSide maps the archive side column ("B", "A", "N") to a Side.
func ParseSide(s string) Side {
	switch s {
	case "B", "Buy", "buy":
		return SideBuy
	case "A", "Ask", "Sell", "sell":
		return SideAsk
	default:
		return SideNeutral
	}
}

// Sign returns the signed-volume multiplier for the side.
func (s Side) Sign() float64 {
	switch s {
	case SideBuy:
		return 1
	case SideAsk:
		return -1
	default:
		return 0
	}
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "B"
	case SideAsk:
		return "A"
	default:
		return "N"
	}
}

// Tick is a single trade event from an archive or the live stream.
type Tick struct {
	Symbol    string
	Timestamp time.Time
	Price     float64
	Size      float64
	Side      Side
}
