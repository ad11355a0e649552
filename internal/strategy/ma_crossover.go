package strategy

import (
	"fmt"

	"github.com/newthinker/trademate/internal/core"
	"github.com/newthinker/trademate/internal/indicator"
)

const (
	defaultShortPeriod = 10
	defaultLongPeriod  = 30
)

// MACrossover goes long while the short moving average is above the long
// one and signals an exit while it is below.
type MACrossover struct {
	ShortPeriod int
	LongPeriod  int
}

// DefaultMACrossover returns the 10/30 crossover.
func DefaultMACrossover() MACrossover {
	return MACrossover{ShortPeriod: defaultShortPeriod, LongPeriod: defaultLongPeriod}
}

func (m MACrossover) Name() Kind {
	return KindMACrossover
}

func (m MACrossover) Description() string {
	return fmt.Sprintf("MA Crossover (%d/%d)", m.ShortPeriod, m.LongPeriod)
}

func (m MACrossover) RequiredData() DataRequirements {
	return DataRequirements{
		PriceHistory: max(m.ShortPeriod, m.LongPeriod),
		Indicators:   []string{indicator.ChannelShortMA, indicator.ChannelLongMA},
	}
}

func (m MACrossover) Params() map[string]any {
	return map[string]any{
		paramShortPeriod: m.ShortPeriod,
		paramLongPeriod:  m.LongPeriod,
	}
}

func (MACrossover) isStrategy() {}

func (m MACrossover) evaluate(bars []core.OHLCV) (indicator.Set, []core.Signal) {
	prices := indicator.Closes(bars)
	shortMA := indicator.MovingAverage(prices, m.ShortPeriod)
	longMA := indicator.MovingAverage(prices, m.LongPeriod)

	signals := make([]core.Signal, len(bars))
	for i := range bars {
		short, okShort := shortMA.At(i)
		long, okLong := longMA.At(i)
		if !okShort || !okLong {
			continue
		}
		switch {
		case short > long:
			signals[i] = core.SignalBuy
		case short < long:
			signals[i] = core.SignalSell
		}
	}

	return indicator.Set{
		indicator.ChannelShortMA: shortMA,
		indicator.ChannelLongMA:  longMA,
	}, signals
}
