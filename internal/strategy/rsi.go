package strategy

import (
	"fmt"

	"github.com/newthinker/trademate/internal/core"
	"github.com/newthinker/trademate/internal/indicator"
)

const (
	defaultOversold   = 30.0
	defaultOverbought = 70.0
)

// RSIThreshold buys while RSI is below Oversold and sells while it is
// above Overbought.
type RSIThreshold struct {
	Oversold   float64
	Overbought float64
	Period     int
}

// DefaultRSIThreshold returns the classic 30/70 band over 14 bars.
func DefaultRSIThreshold() RSIThreshold {
	return RSIThreshold{
		Oversold:   defaultOversold,
		Overbought: defaultOverbought,
		Period:     indicator.DefaultRSIPeriod,
	}
}

func (r RSIThreshold) Name() Kind {
	return KindRSI
}

func (r RSIThreshold) Description() string {
	return fmt.Sprintf("RSI%d (%g/%g)", r.Period, r.Oversold, r.Overbought)
}

func (r RSIThreshold) RequiredData() DataRequirements {
	return DataRequirements{
		PriceHistory: r.Period + 1,
		Indicators:   []string{indicator.ChannelRSI},
	}
}

func (r RSIThreshold) Params() map[string]any {
	return map[string]any{
		paramOversold:   r.Oversold,
		paramOverbought: r.Overbought,
		paramPeriod:     r.Period,
	}
}

func (RSIThreshold) isStrategy() {}

func (r RSIThreshold) evaluate(bars []core.OHLCV) (indicator.Set, []core.Signal) {
	rsi := indicator.RSI(indicator.Closes(bars), r.Period)

	signals := make([]core.Signal, len(bars))
	for i := range bars {
		v, ok := rsi.At(i)
		if !ok {
			continue
		}
		switch {
		case v < r.Oversold:
			signals[i] = core.SignalBuy
		case v > r.Overbought:
			signals[i] = core.SignalSell
		}
	}

	return indicator.Set{indicator.ChannelRSI: rsi}, signals
}
