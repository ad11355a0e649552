// Package eastmoney fetches forward-adjusted daily klines for Shanghai and
// Shenzhen A-shares.
package eastmoney

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/trademate/internal/collector"
	"github.com/newthinker/trademate/internal/core"
	log "github.com/newthinker/trademate/internal/logger"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://push2his.eastmoney.com/api/qt/stock/kline/get"

// Market ids used in secid.
const (
	marketShanghai = "1"
	marketShenzhen = "0"
)

var validSymbol = regexp.MustCompile(`^\d{6}(\.(SH|SZ))?$`)

// Eastmoney implements collector.HistoryProvider for A-shares.
type Eastmoney struct {
	http    *collector.JSONClient
	baseURL string
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an Eastmoney provider. Zero config fields take defaults.
func New(cfg collector.Config, logger *zap.Logger) *Eastmoney {
	logger = log.OrNop(logger).Named("eastmoney")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Eastmoney{
		http:    collector.NewJSONClient(cfg, logger),
		baseURL: cfg.BaseURL,
		logger:  logger,
		now:     time.Now,
	}
}

func (e *Eastmoney) Name() string {
	return "eastmoney"
}

// parseSymbol converts 600519.SH to (600519, 1). A bare code is placed on
// Shanghai when it starts with 6 and on Shenzhen otherwise.
func parseSymbol(symbol string) (code, market string, err error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !validSymbol.MatchString(symbol) {
		return "", "", fmt.Errorf("invalid A-share symbol %q", symbol)
	}

	code, suffix, _ := strings.Cut(symbol, ".")
	switch {
	case suffix == "SH":
		market = marketShanghai
	case suffix == "SZ":
		market = marketShenzhen
	case strings.HasPrefix(code, "6"):
		market = marketShanghai
	default:
		market = marketShenzhen
	}
	return code, market, nil
}

// FetchHistory fetches daily bars covering period.
func (e *Eastmoney) FetchHistory(ctx context.Context, symbol string, period collector.Period) ([]core.OHLCV, error) {
	code, market, err := parseSymbol(symbol)
	if err != nil {
		return nil, collector.Unavailable(e.Name(), symbol, err)
	}
	if period == "" {
		period = collector.DefaultPeriod
	}

	now := e.now()
	beg := "0"
	if start := period.Start(now); !start.IsZero() {
		beg = start.Format("20060102")
	}

	q := url.Values{}
	q.Set("secid", market+"."+code)
	q.Set("klt", "101") // daily
	q.Set("fqt", "1")   // forward adjusted
	q.Set("beg", beg)
	q.Set("end", now.Format("20060102"))
	q.Set("fields1", "f1,f2,f3,f4,f5,f6")
	q.Set("fields2", "f51,f52,f53,f54,f55,f56")

	var result historyResponse
	if err := e.http.Get(ctx, e.baseURL+"?"+q.Encode(), &result); err != nil {
		return nil, collector.Unavailable(e.Name(), symbol, err)
	}
	if result.Data == nil || len(result.Data.Klines) == 0 {
		return nil, collector.Unavailable(e.Name(), symbol, fmt.Errorf("no history returned"))
	}

	bars := make([]core.OHLCV, 0, len(result.Data.Klines))
	for _, line := range result.Data.Klines {
		bar, err := parseKline(symbol, line)
		if err != nil {
			e.logger.Debug("skipping kline", zap.String("line", line), zap.Error(err))
			continue
		}
		bars = append(bars, bar)
	}

	e.logger.Debug("fetched history",
		zap.String("symbol", symbol),
		zap.String("period", string(period)),
		zap.Int("bars", len(bars)))
	return bars, nil
}

// parseKline reads "date,open,close,high,low,volume".
func parseKline(symbol, line string) (core.OHLCV, error) {
	f := strings.Split(line, ",")
	if len(f) < 6 {
		return core.OHLCV{}, fmt.Errorf("expected 6 fields, got %d", len(f))
	}

	t, err := time.Parse(time.DateOnly, f[0])
	if err != nil {
		return core.OHLCV{}, err
	}
	var prices [4]float64
	for i := range prices {
		if prices[i], err = strconv.ParseFloat(f[i+1], 64); err != nil {
			return core.OHLCV{}, err
		}
	}
	volume, err := strconv.ParseInt(f[5], 10, 64)
	if err != nil {
		return core.OHLCV{}, err
	}

	return core.OHLCV{
		Symbol:   symbol,
		Interval: "1d",
		Open:     prices[0],
		Close:    prices[1],
		High:     prices[2],
		Low:      prices[3],
		Volume:   volume,
		Time:     t,
	}, nil
}

type historyResponse struct {
	Data *historyData `json:"data"`
}

type historyData struct {
	Code   string   `json:"code"`
	Name   string   `json:"name"`
	Klines []string `json:"klines"`
}
