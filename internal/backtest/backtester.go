package backtest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"time"

	"github.com/newthinker/trademate/internal/collector"
	"github.com/newthinker/trademate/internal/core"
	"github.com/newthinker/trademate/internal/logger"
	"github.com/newthinker/trademate/internal/metrics"
	"github.com/newthinker/trademate/internal/strategy"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

const (
	// MinBars is the shortest price history a backtest accepts.
	MinBars = 60
	// MaxReportedTrades bounds the trade list carried in a Result.
	MaxReportedTrades = 10
	// DefaultInitialCapital is used when the request does not set one.
	DefaultInitialCapital = 10000.0
	// ParamInitialCapital is the override key for the starting cash.
	ParamInitialCapital = "initial_capital"
)

// Backtester runs strategy backtests against historical data
type Backtester struct {
	provider collector.HistoryProvider
	logger   *zap.Logger
	metrics  *metrics.Registry
	capital  float64
	period   collector.Period
}

// Option configures a Backtester.
type Option func(*Backtester)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Backtester) { b.logger = l }
}

// WithMetrics records run and fetch metrics into reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(b *Backtester) { b.metrics = reg }
}

// WithInitialCapital changes the starting cash used when a request does not
// override it.
func WithInitialCapital(capital float64) Option {
	return func(b *Backtester) {
		if capital > 0 {
			b.capital = capital
		}
	}
}

// WithDefaultPeriod sets the lookback used when a request leaves it empty.
func WithDefaultPeriod(p collector.Period) Option {
	return func(b *Backtester) {
		if p != "" {
			b.period = p
		}
	}
}

// New creates a new Backtester with the given history provider
func New(provider collector.HistoryProvider, opts ...Option) *Backtester {
	b := &Backtester{
		provider: provider,
		capital:  DefaultInitialCapital,
		period:   collector.DefaultPeriod,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logger.OrNop(b.logger)
	return b
}

// Run validates the request, fetches history and executes the backtest.
// Cancelling ctx aborts the fetch; the computation itself runs to completion.
func (b *Backtester) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	res, err := b.run(ctx, req)

	status := metrics.StatusOK
	trades := 0
	if err != nil {
		status = errorCode(err)
		b.logger.Warn("backtest failed",
			zap.String("symbol", req.Symbol),
			zap.String("strategy", req.Strategy),
			zap.Error(err))
	} else {
		trades = res.TradeCount
		b.logger.Info("backtest complete",
			zap.String("symbol", res.Symbol),
			zap.String("strategy", res.Strategy),
			zap.Int("bars", res.Bars),
			zap.Int("trades", res.TradeCount),
			zap.Float64("return_pct", res.TotalReturnPct),
			zap.Duration("took", time.Since(start)))
	}
	if b.metrics != nil {
		b.metrics.RecordBacktest(strategyLabel(req.Strategy), status, time.Since(start).Seconds(), trades)
	}
	return res, err
}

func (b *Backtester) run(ctx context.Context, req Request) (*Result, error) {
	strat, err := strategy.Parse(req.Strategy, req.Params)
	if err != nil {
		return nil, err
	}
	capital, err := InitialCapital(req.Params, b.capital)
	if err != nil {
		return nil, err
	}
	if req.Symbol == "" {
		return nil, core.Errorf(core.ErrInvalidParameter, "symbol is required")
	}
	if req.Period == "" {
		req.Period = b.period
	}

	bars, err := b.fetch(ctx, req.Symbol, req.Period)
	if err != nil {
		return nil, err
	}

	res, err := Execute(req.Symbol, bars, strat, capital)
	if err != nil {
		return nil, err
	}
	res.Period = string(req.Period)
	return res, nil
}

func (b *Backtester) fetch(ctx context.Context, symbol string, period collector.Period) ([]core.OHLCV, error) {
	if b.provider == nil {
		return nil, core.Errorf(core.ErrDataUnavailable, "%s: no history provider configured", symbol)
	}

	start := time.Now()
	bars, err := b.provider.FetchHistory(ctx, symbol, period)
	if b.metrics != nil {
		status := metrics.StatusOK
		if err != nil {
			status = "error"
		}
		b.metrics.RecordFetch(b.provider.Name(), status, time.Since(start).Seconds())
	}
	if err != nil {
		if !errors.Is(err, core.ErrDataUnavailable) {
			err = collector.Unavailable(b.provider.Name(), symbol, err)
		}
		return nil, err
	}
	return bars, nil
}

// Execute runs the full pipeline over bars already in memory: indicators,
// signals, simulation and analysis. It has no side effects.
func Execute(symbol string, bars []core.OHLCV, strat strategy.Strategy, initialCapital float64) (*Result, error) {
	if strat == nil {
		return nil, core.Errorf(core.ErrInvalidStrategy, "no strategy given")
	}
	if len(bars) < MinBars {
		return nil, core.Errorf(core.ErrInsufficientData,
			"%s has %d bars, at least %d required", symbol, len(bars), MinBars)
	}
	if !(initialCapital > 0) || math.IsInf(initialCapital, 0) {
		return nil, core.Errorf(core.ErrInvalidParameter, "%s must be positive, got %v", ParamInitialCapital, initialCapital)
	}
	for _, bar := range bars {
		if !bar.IsValid() {
			return nil, core.Errorf(core.ErrComputation,
				"%s bar %s has unusable close %v", symbol, bar.Time.Format(time.DateOnly), bar.Close)
		}
	}

	eval, err := strategy.Evaluate(strat, bars)
	if err != nil {
		return nil, err
	}

	trades, equity := Simulate(bars, eval.Changes, initialCapital)
	stats := Analyze(equity, trades, initialCapital)
	if err := checkFinite(stats); err != nil {
		return nil, core.WrapError(core.ErrComputation, fmt.Errorf("%s %s: %w", symbol, strat.Name(), err))
	}

	params := maps.Clone(strat.Params())
	params[ParamInitialCapital] = initialCapital

	return &Result{
		Strategy:       string(strat.Name()),
		Symbol:         symbol,
		Parameters:     params,
		InitialCapital: initialCapital,
		Stats:          stats,
		Trades:         lastTrades(trades, MaxReportedTrades),
		Bars:           len(bars),
		StartDate:      bars[0].Time,
		EndDate:        bars[len(bars)-1].Time,
	}, nil
}

// InitialCapital reads the initial_capital override, falling back to def.
func InitialCapital(params map[string]any, def float64) (float64, error) {
	raw, ok := params[ParamInitialCapital]
	if !ok || raw == nil {
		return def, nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, core.Errorf(core.ErrInvalidParameter, "%s is not a number: %v", ParamInitialCapital, raw)
	}
	if v <= 0 {
		return 0, core.Errorf(core.ErrInvalidParameter, "%s must be positive, got %v", ParamInitialCapital, v)
	}
	return v, nil
}

func lastTrades(trades []Trade, n int) []Trade {
	if len(trades) > n {
		trades = trades[len(trades)-n:]
	}
	out := make([]Trade, len(trades))
	copy(out, trades)
	return out
}

func checkFinite(s Stats) error {
	fields := []struct {
		name  string
		value float64
	}{
		{"final_value", s.FinalValue},
		{"total_return_pct", s.TotalReturnPct},
		{"win_rate", s.WinRate},
		{"max_drawdown_pct", s.MaxDrawdownPct},
		{"sharpe_ratio", s.SharpeRatio},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%s is %v", f.name, f.value)
		}
	}
	return nil
}

// strategyLabel keeps unknown identifiers out of metric labels.
func strategyLabel(name string) string {
	for _, k := range strategy.Kinds() {
		if string(k) == name {
			return name
		}
	}
	return "unknown"
}

// errorCode returns the core error code of err for metric labels.
func errorCode(err error) string {
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return "error"
}
