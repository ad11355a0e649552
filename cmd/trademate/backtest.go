package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/newthinker/trademate/internal/app"
	"github.com/newthinker/trademate/internal/backtest"
	"github.com/newthinker/trademate/internal/collector"
	"github.com/newthinker/trademate/internal/logger"
	"github.com/newthinker/trademate/internal/report"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	backtestSymbol  string
	backtestPeriod  string
	backtestSource  string
	backtestParams  []string
	backtestCapital float64
	backtestCSV     string
	backtestExport  string
	backtestArchive bool
	backtestJSON    bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest [strategy]",
	Short: "Run backtest on a strategy",
	Long: `Run a strategy against historical data and show performance statistics.

Strategies: moving_average, momentum, rsi. Parameters override the
defaults, e.g. --param short_period=10 --param long_period=30.`,
	Example: `  trademate backtest moving_average --symbol AAPL --period 2y
  trademate backtest rsi --symbol 600519.SH --param oversold=25 --csv trades.csv
  trademate backtest momentum --symbol BTC --provider binance --period 5y`,
	Args: cobra.ExactArgs(1),
	RunE: runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&backtestSymbol, "symbol", "", "Symbol to backtest (required)")
	backtestCmd.Flags().StringVar(&backtestPeriod, "period", "", "Lookback period: "+periodList()+" (default from config)")
	backtestCmd.Flags().StringVar(&backtestSource, "provider", "", "History provider: yahoo, eastmoney, binance or csv (default from config)")
	backtestCmd.Flags().StringArrayVarP(&backtestParams, "param", "p", nil, "Strategy parameter as key=value (repeatable)")
	backtestCmd.Flags().Float64Var(&backtestCapital, "capital", 0, "Initial capital (default from config)")
	backtestCmd.Flags().StringVar(&backtestCSV, "csv", "", "Write the reported trades to this CSV file")
	backtestCmd.Flags().StringVar(&backtestExport, "export", "", "Write the full result as JSON to this file")
	backtestCmd.Flags().BoolVar(&backtestArchive, "archive", false, "Save the result to the configured archive")
	backtestCmd.Flags().BoolVar(&backtestJSON, "json", false, "Print the result as JSON instead of tables")

	backtestCmd.MarkFlagRequired("symbol")

	rootCmd.AddCommand(backtestCmd)
}

func periodList() string {
	names := make([]string, 0, len(collector.Periods()))
	for _, p := range collector.Periods() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

// parseParams turns key=value pairs into a parameter map. Values stay
// strings; the strategy parser coerces them.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q (expected key=value)", pair)
		}
		params[key] = strings.TrimSpace(value)
	}
	return params, nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	params, err := parseParams(backtestParams)
	if err != nil {
		return err
	}
	if backtestCapital != 0 {
		params[backtest.ParamInitialCapital] = backtestCapital
	}

	var period collector.Period
	if backtestPeriod != "" {
		if period, err = collector.ParsePeriod(backtestPeriod); err != nil {
			return err
		}
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if backtestSource != "" {
		cfg.Collector.Provider = backtestSource
	}
	if backtestArchive && !cfg.Archive.Enabled {
		log.Info("archive not enabled in config, using local directory", zap.String("path", cfg.Archive.Path))
		cfg.Archive.Enabled = true
		cfg.Archive.Type = "localfs"
	}
	if !backtestArchive {
		cfg.Archive.Enabled = false
	}

	a, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("building app: %w", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Backtest.Timeout)
	defer cancel()

	res, err := a.Backtester().Run(ctx, backtest.Request{
		Symbol:   backtestSymbol,
		Strategy: args[0],
		Period:   period,
		Params:   params,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if backtestJSON {
		if err := writeJSON(out, res); err != nil {
			return err
		}
	} else if err := report.WriteTable(out, res); err != nil {
		return err
	}

	if backtestCSV != "" {
		if err := writeFile(backtestCSV, func(w io.Writer) error {
			return report.WriteTradesCSV(w, res.Trades)
		}); err != nil {
			return fmt.Errorf("writing trades: %w", err)
		}
	}
	if backtestExport != "" {
		if err := writeFile(backtestExport, func(w io.Writer) error {
			return writeJSON(w, res)
		}); err != nil {
			return fmt.Errorf("exporting result: %w", err)
		}
	}
	if a.Archive() != nil {
		path, err := a.Archive().Save(ctx, uuid.NewString(), res)
		if err != nil {
			return fmt.Errorf("archiving result: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "archived to %s\n", path)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
