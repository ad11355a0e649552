package backtest

import (
	"time"

	"github.com/newthinker/trademate/internal/collector"
	"github.com/newthinker/trademate/internal/core"
)

// Request describes one backtest run.
type Request struct {
	Symbol   string
	Strategy string
	Period   collector.Period
	// Params holds strategy overrides plus the optional initial_capital.
	Params map[string]any
}

// Trade is a simulated fill. PnL is set on Sell trades only, as a
// percentage of the entry price.
type Trade struct {
	Type   core.Action `json:"type"`
	Date   time.Time   `json:"date"`
	Price  float64     `json:"price"`
	Shares float64     `json:"shares"`
	PnL    *float64    `json:"pnl,omitempty"`
}

// IsWin returns true if the trade closed a profitable position
func (t Trade) IsWin() bool {
	return t.PnL != nil && *t.PnL > 0
}

// IsLoss returns true if the trade closed a losing position
func (t Trade) IsLoss() bool {
	return t.PnL != nil && *t.PnL < 0
}

// Stats holds performance statistics
type Stats struct {
	FinalValue     float64 `json:"final_value"`
	TotalReturnPct float64 `json:"total_return_pct"`
	TradeCount     int     `json:"trade_count"` // Winning plus losing round trips
	WinCount       int     `json:"win_count"`
	LossCount      int     `json:"loss_count"`
	WinRate        float64 `json:"win_rate"` // Fraction of decided round trips, 0..1
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"` // Annualized, risk-free rate 0
}

// Result is the complete backtest output, serialized as a flat record.
type Result struct {
	Strategy       string         `json:"strategy"`
	Symbol         string         `json:"symbol"`
	Period         string         `json:"period,omitempty"`
	Parameters     map[string]any `json:"parameters"`
	InitialCapital float64        `json:"initial_capital"`
	Stats
	Trades    []Trade   `json:"trades"` // Most recent trades only
	Bars      int       `json:"bars"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}
