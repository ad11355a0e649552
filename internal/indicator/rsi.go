package indicator

// DefaultRSIPeriod is the conventional RSI lookback.
const DefaultRSIPeriod = 14

// RSI calculates the Relative Strength Index from simple (not Wilder
// smoothed) averages of the trailing period day-over-day deltas.
//
// The first defined entry is at index period, the first bar with period
// real deltas behind it. A window with no losses saturates at 100; a window
// with neither gains nor losses is neutral at 50.
func RSI(prices []float64, period int) Series {
	s := NewSeries(len(prices))
	if period <= 0 {
		return s
	}

	for i := period; i < len(prices); i++ {
		var gain, loss float64
		// Summed per window: a rolling sum drifts off zero on flat stretches.
		for j := i - period + 1; j <= i; j++ {
			delta := prices[j] - prices[j-1]
			if delta > 0 {
				gain += delta
			} else {
				loss -= delta
			}
		}
		avgGain := gain / float64(period)
		avgLoss := loss / float64(period)

		s[i] = Value{Val: rsiValue(avgGain, avgLoss), OK: true}
	}
	return s
}

func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50
	case avgLoss == 0:
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
