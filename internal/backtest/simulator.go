package backtest

import "github.com/newthinker/trademate/internal/core"

// State is the simulator's holding state.
type State int

const (
	StateFlat State = iota // holding cash
	StateLong              // holding shares
)

func (s State) String() string {
	if s == StateLong {
		return "long"
	}
	return "flat"
}

// position is the simulator's full state between bars.
type position struct {
	state  State
	cash   float64
	shares float64
	entry  float64 // fill price of the open Buy
}

// value is the marked-to-market portfolio value at price.
func (p position) value(price float64) float64 {
	if p.state == StateLong {
		return p.shares * price
	}
	return p.cash
}

// step applies one bar's position change. It returns the next state and the
// trade it produced, if any.
func step(p position, bar core.OHLCV, change int) (position, *Trade) {
	switch {
	case p.state == StateFlat && change > 0 && p.cash > 0:
		shares := p.cash / bar.Close
		next := position{state: StateLong, shares: shares, entry: bar.Close}
		return next, &Trade{Type: core.ActionBuy, Date: bar.Time, Price: bar.Close, Shares: shares}
	case p.state == StateLong && change < 0 && p.shares > 0:
		return sell(p, bar)
	}
	return p, nil
}

// sell liquidates the whole position at bar's close.
func sell(p position, bar core.OHLCV) (position, *Trade) {
	pnl := (bar.Close - p.entry) / p.entry * 100
	next := position{state: StateFlat, cash: p.shares * bar.Close}
	return next, &Trade{Type: core.ActionSell, Date: bar.Time, Price: bar.Close, Shares: p.shares, PnL: &pnl}
}

// Simulate runs the all-in/all-out state machine over bars. changes must be
// aligned with bars. The equity curve has one entry per bar; a position
// still open after the last bar is closed at that bar's close.
func Simulate(bars []core.OHLCV, changes []int, initialCapital float64) ([]Trade, []float64) {
	var trades []Trade
	equity := make([]float64, len(bars))
	p := position{state: StateFlat, cash: initialCapital}

	for i, bar := range bars {
		change := 0
		if i < len(changes) {
			change = changes[i]
		}

		var trade *Trade
		p, trade = step(p, bar, change)
		if trade != nil {
			trades = append(trades, *trade)
		}
		equity[i] = p.value(bar.Close)
	}

	if p.state == StateLong && p.shares > 0 && len(bars) > 0 {
		_, trade := sell(p, bars[len(bars)-1])
		trades = append(trades, *trade)
	}

	return trades, equity
}
