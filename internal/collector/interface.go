package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newthinker/trademate/internal/core"
)

// Period is a lookback window for daily history.
type Period string

const (
	Period1M  Period = "1mo"
	Period3M  Period = "3mo"
	Period6M  Period = "6mo"
	Period1Y  Period = "1y"
	Period2Y  Period = "2y"
	Period5Y  Period = "5y"
	Period10Y Period = "10y"
	PeriodYTD Period = "ytd"
	PeriodMax Period = "max"

	DefaultPeriod = Period1Y
)

// Periods lists every supported lookback window.
func Periods() []Period {
	return []Period{Period1M, Period3M, Period6M, Period1Y, Period2Y, Period5Y, Period10Y, PeriodYTD, PeriodMax}
}

// ParsePeriod validates s; an empty string selects DefaultPeriod.
func ParsePeriod(s string) (Period, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultPeriod, nil
	}
	for _, p := range Periods() {
		if Period(s) == p {
			return p, nil
		}
	}
	return "", core.Errorf(core.ErrInvalidParameter, "period %q (expected one of %v)", s, Periods())
}

// Start returns the first calendar day covered by p when counting back
// from now. Max returns the zero time.
func (p Period) Start(now time.Time) time.Time {
	switch p {
	case Period1M:
		return now.AddDate(0, -1, 0)
	case Period3M:
		return now.AddDate(0, -3, 0)
	case Period6M:
		return now.AddDate(0, -6, 0)
	case Period1Y:
		return now.AddDate(-1, 0, 0)
	case Period2Y:
		return now.AddDate(-2, 0, 0)
	case Period5Y:
		return now.AddDate(-5, 0, 0)
	case Period10Y:
		return now.AddDate(-10, 0, 0)
	case PeriodYTD:
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
	}
	return time.Time{}
}

// Config holds provider configuration
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
	MaxRetries int
	Dir        string
}

// HistoryProvider supplies chronologically ordered daily bars.
type HistoryProvider interface {
	Name() string
	FetchHistory(ctx context.Context, symbol string, period Period) ([]core.OHLCV, error)
}

// Unavailable wraps a provider failure for symbol as ErrDataUnavailable.
func Unavailable(provider, symbol string, cause error) error {
	return core.WrapError(core.ErrDataUnavailable, fmt.Errorf("%s: %s: %w", provider, symbol, cause))
}
