package core

import (
	"math"
	"time"
)

// OHLCV represents a daily candlestick/bar
type OHLCV struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"` // always "1d" for backtests
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   int64     `json:"volume"`
	Time     time.Time `json:"time"`
}

// IsValid reports whether the close is a usable, positive, finite price.
func (b OHLCV) IsValid() bool {
	return !math.IsNaN(b.Close) && !math.IsInf(b.Close, 0) && b.Close > 0
}

// Signal is the per-bar directional stance produced by a strategy.
type Signal int8

const (
	SignalSell Signal = -1
	SignalFlat Signal = 0
	SignalBuy  Signal = 1
)

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "buy"
	case SignalSell:
		return "sell"
	default:
		return "flat"
	}
}

// Action represents the side of a simulated trade
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)
