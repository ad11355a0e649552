package indicator

// SMA calculates Simple Moving Average
// Returns slice of length: len(prices) - period + 1
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)

	// Calculate first SMA
	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	result = append(result, sum/float64(period))

	// Rolling calculation
	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		result = append(result, sum/float64(period))
	}

	return result
}

// MovingAverage returns the trailing mean of window closes aligned to the
// input: the first window-1 entries are undefined.
func MovingAverage(prices []float64, window int) Series {
	s := NewSeries(len(prices))
	sma := SMA(prices, window)
	for i, v := range sma {
		s[i+window-1] = Value{Val: v, OK: true}
	}
	return s
}
