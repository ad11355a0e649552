package strategy

import (
	"github.com/newthinker/trademate/internal/core"
	"github.com/newthinker/trademate/internal/indicator"
)

// Evaluation is the signal generator's output for one price series.
type Evaluation struct {
	Indicators indicator.Set
	Signals    []core.Signal
	// Changes is the first difference of Signals; the bar before the first
	// one counts as Flat. Positive means the stance moved toward Buy.
	Changes []int
}

// Evaluate computes indicators, per-bar signals and position changes for
// the given strategy over bars. It is pure and safe for concurrent use.
func Evaluate(s Strategy, bars []core.OHLCV) (*Evaluation, error) {
	var (
		set     indicator.Set
		signals []core.Signal
	)

	switch st := s.(type) {
	case MACrossover:
		set, signals = st.evaluate(bars)
	case Momentum:
		set, signals = st.evaluate(bars)
	case RSIThreshold:
		set, signals = st.evaluate(bars)
	default:
		return nil, core.Errorf(core.ErrInvalidStrategy, "strategy %T", s)
	}

	return &Evaluation{
		Indicators: set,
		Signals:    signals,
		Changes:    PositionChanges(signals),
	}, nil
}

// PositionChanges returns the first difference of signals.
func PositionChanges(signals []core.Signal) []int {
	changes := make([]int, len(signals))
	prev := core.SignalFlat
	for i, sig := range signals {
		changes[i] = int(sig) - int(prev)
		prev = sig
	}
	return changes
}
