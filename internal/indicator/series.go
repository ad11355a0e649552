package indicator

import "github.com/newthinker/trademate/internal/core"

// Channel names used by the built-in strategies.
const (
	ChannelShortMA  = "ma_short"
	ChannelLongMA   = "ma_long"
	ChannelMomentum = "momentum"
	ChannelRSI      = "rsi"
)

// Value is one entry of an indicator channel. OK is false inside the
// warm-up window, where the indicator has no value yet.
type Value struct {
	Val float64
	OK  bool
}

// Series is an indicator channel aligned index-for-index with a bar slice.
type Series []Value

// NewSeries returns a series of n undefined values.
func NewSeries(n int) Series {
	return make(Series, n)
}

// At returns the value at i and whether it is defined.
func (s Series) At(i int) (float64, bool) {
	if i < 0 || i >= len(s) {
		return 0, false
	}
	return s[i].Val, s[i].OK
}

// Defined counts the entries past the warm-up window.
func (s Series) Defined() int {
	n := 0
	for _, v := range s {
		if v.OK {
			n++
		}
	}
	return n
}

// Set holds named indicator channels computed for one price series.
type Set map[string]Series

// Closes extracts the closing prices of bars.
func Closes(bars []core.OHLCV) []float64 {
	prices := make([]float64, len(bars))
	for i, bar := range bars {
		prices[i] = bar.Close
	}
	return prices
}
