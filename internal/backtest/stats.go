package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear annualizes the Sharpe ratio.
const TradingDaysPerYear = 252

// Analyze computes performance statistics from an equity curve and the full
// trade list.
func Analyze(equity []float64, trades []Trade, initialCapital float64) Stats {
	final := initialCapital
	if len(equity) > 0 {
		final = equity[len(equity)-1]
	}

	var wins, losses int
	for _, t := range trades {
		switch {
		case t.IsWin():
			wins++
		case t.IsLoss():
			losses++
		}
	}

	var winRate float64
	if decided := wins + losses; decided > 0 {
		winRate = float64(wins) / float64(decided)
	}

	var totalReturn float64
	if initialCapital != 0 {
		totalReturn = (final - initialCapital) / initialCapital * 100
	}

	return Stats{
		FinalValue:     final,
		TotalReturnPct: totalReturn,
		TradeCount:     wins + losses,
		WinCount:       wins,
		LossCount:      losses,
		WinRate:        winRate,
		MaxDrawdownPct: calculateMaxDrawdown(equity),
		SharpeRatio:    calculateSharpeRatio(dailyReturns(equity)),
	}
}

// calculateMaxDrawdown returns the largest decline from a running peak of
// the equity curve, as a positive percentage.
func calculateMaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}

	var maxDD float64
	peak := equity[0]
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (v - peak) / peak * 100; dd < maxDD {
			maxDD = dd
		}
	}
	return math.Abs(maxDD)
}

// dailyReturns returns the fractional bar-over-bar changes of equity.
func dailyReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		returns = append(returns, equity[i]/equity[i-1]-1)
	}
	return returns
}

// calculateSharpeRatio computes risk-adjusted return
// Assumes risk-free rate of 0
func calculateSharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	mean, stdDev := stat.MeanStdDev(returns, nil)
	if stdDev == 0 || math.IsNaN(stdDev) {
		return 0
	}

	return mean / stdDev * math.Sqrt(TradingDaysPerYear)
}
