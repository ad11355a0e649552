// Package report renders backtest results for terminals and spreadsheets.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/newthinker/trademate/internal/backtest"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

// money formats v with two decimals.
func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// pct formats a percentage value with two decimals and a % sign.
func pct(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + "%"
}

// WriteTable prints a summary table followed by the reported trades.
func WriteTable(w io.Writer, res *backtest.Result) error {
	if res == nil {
		return fmt.Errorf("report: nil result")
	}

	fmt.Fprintf(w, "%s on %s", res.Strategy, res.Symbol)
	if res.Period != "" {
		fmt.Fprintf(w, " (%s)", res.Period)
	}
	if !res.StartDate.IsZero() {
		fmt.Fprintf(w, " %s to %s", res.StartDate.Format(time.DateOnly), res.EndDate.Format(time.DateOnly))
	}
	fmt.Fprintln(w)

	summary := tablewriter.NewWriter(w)
	summary.Header("Metric", "Value")
	rows := [][]string{
		{"Initial capital", money(res.InitialCapital)},
		{"Final value", money(res.FinalValue)},
		{"Total return", pct(res.TotalReturnPct)},
		{"Trades", fmt.Sprintf("%d", res.TradeCount)},
		{"Wins / losses", fmt.Sprintf("%d / %d", res.WinCount, res.LossCount)},
		{"Win rate", pct(res.WinRate * 100)},
		{"Max drawdown", pct(res.MaxDrawdownPct)},
		{"Sharpe ratio", decimal.NewFromFloat(res.SharpeRatio).StringFixed(2)},
		{"Bars", fmt.Sprintf("%d", res.Bars)},
	}
	for _, r := range rows {
		if err := summary.Append(r); err != nil {
			return err
		}
	}
	if err := summary.Render(); err != nil {
		return err
	}

	if len(res.Trades) == 0 {
		fmt.Fprintln(w, "No trades.")
		return nil
	}

	trades := tablewriter.NewWriter(w)
	trades.Header("Date", "Type", "Price", "Shares", "PnL")
	for _, t := range res.Trades {
		if err := trades.Append(tradeRow(t)); err != nil {
			return err
		}
	}
	return trades.Render()
}

func tradeRow(t backtest.Trade) []string {
	pnl := ""
	if t.PnL != nil {
		pnl = pct(*t.PnL)
	}
	return []string{
		t.Date.Format(time.DateOnly),
		string(t.Type),
		money(t.Price),
		decimal.NewFromFloat(t.Shares).StringFixed(4),
		pnl,
	}
}

// WriteTradesCSV writes trades as CSV with a header row.
func WriteTradesCSV(w io.Writer, trades []backtest.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "type", "price", "shares", "pnl_pct"}); err != nil {
		return err
	}
	for _, t := range trades {
		row := tradeRow(t)
		if t.PnL != nil {
			row[4] = decimal.NewFromFloat(*t.PnL).StringFixed(2)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
