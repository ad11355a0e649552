package strategy

import (
	"fmt"

	"github.com/newthinker/trademate/internal/core"
	"github.com/newthinker/trademate/internal/indicator"
)

const (
	defaultMomentumPeriod    = 10
	defaultMomentumThreshold = 0.02
)

// Momentum buys when price has risen more than Threshold over Period bars
// and sells when it has fallen more than Threshold.
type Momentum struct {
	Period    int
	Threshold float64 // fractional change, 0.02 = 2%
}

// DefaultMomentum returns a 10-bar, 2% momentum strategy.
func DefaultMomentum() Momentum {
	return Momentum{Period: defaultMomentumPeriod, Threshold: defaultMomentumThreshold}
}

func (m Momentum) Name() Kind {
	return KindMomentum
}

func (m Momentum) Description() string {
	return fmt.Sprintf("Momentum (%d bars, ±%.2f%%)", m.Period, m.Threshold*100)
}

func (m Momentum) RequiredData() DataRequirements {
	return DataRequirements{
		PriceHistory: m.Period + 1,
		Indicators:   []string{indicator.ChannelMomentum},
	}
}

func (m Momentum) Params() map[string]any {
	return map[string]any{
		paramPeriod:    m.Period,
		paramThreshold: m.Threshold,
	}
}

func (Momentum) isStrategy() {}

func (m Momentum) evaluate(bars []core.OHLCV) (indicator.Set, []core.Signal) {
	mom := indicator.Momentum(indicator.Closes(bars), m.Period)

	signals := make([]core.Signal, len(bars))
	for i := range bars {
		v, ok := mom.At(i)
		if !ok {
			continue
		}
		switch {
		case v > m.Threshold:
			signals[i] = core.SignalBuy
		case v < -m.Threshold:
			signals[i] = core.SignalSell
		}
	}

	return indicator.Set{indicator.ChannelMomentum: mom}, signals
}
