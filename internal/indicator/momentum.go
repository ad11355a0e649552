package indicator

// Momentum returns the fractional change of each close versus the close
// period bars earlier. The first period entries are undefined, as is any
// entry whose base close is zero.
func Momentum(prices []float64, period int) Series {
	s := NewSeries(len(prices))
	if period <= 0 {
		return s
	}
	for i := period; i < len(prices); i++ {
		base := prices[i-period]
		if base == 0 {
			continue
		}
		s[i] = Value{Val: (prices[i] - base) / base, OK: true}
	}
	return s
}
