// Package binance fetches daily spot klines from the Binance public API.
package binance

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
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.binance.com"
	defaultQuote   = "USDT"
	pageLimit      = 1000
)

// Quote currencies in detection order.
var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "BTC", "ETH", "BNB"}

var validSymbol = regexp.MustCompile(`^[A-Z0-9]{2,20}$`)

// NormalizeSymbol turns "btc", "BTC-USDT", "BTC/USDT" or "btcusdt" into
// BTCUSDT. A symbol without a known quote currency gets USDT appended.
func NormalizeSymbol(input string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(input))
	s = strings.NewReplacer("-", "", "/", "", "_", "").Replace(s)
	if !validSymbol.MatchString(s) {
		return "", fmt.Errorf("invalid crypto symbol %q", input)
	}
	for _, q := range quoteCurrencies {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return s, nil
		}
	}
	return s + defaultQuote, nil
}

// Binance implements collector.HistoryProvider for spot pairs.
type Binance struct {
	http    *collector.JSONClient
	baseURL string
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a Binance provider. Zero config fields take defaults.
func New(cfg collector.Config, logger *zap.Logger) *Binance {
	logger = log.OrNop(logger).Named("binance")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Binance{
		http:    collector.NewJSONClient(cfg, logger),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}
}

func (b *Binance) Name() string {
	return "binance"
}

// FetchHistory pages through daily klines covering period.
func (b *Binance) FetchHistory(ctx context.Context, symbol string, period collector.Period) ([]core.OHLCV, error) {
	pair, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, collector.Unavailable(b.Name(), symbol, err)
	}
	if period == "" {
		period = collector.DefaultPeriod
	}

	now := b.now().UTC()
	start := period.Start(now).UnixMilli()
	if start < 0 {
		start = 0
	}
	end := now.UnixMilli()

	var bars []core.OHLCV
	for start <= end {
		page, err := b.fetchPage(ctx, pair, start, end)
		if err != nil {
			return nil, collector.Unavailable(b.Name(), symbol, err)
		}
		for _, row := range page {
			bar, err := parseKline(symbol, row)
			if err != nil {
				return nil, collector.Unavailable(b.Name(), symbol, err)
			}
			bars = append(bars, bar)
		}
		if len(page) < pageLimit {
			break
		}
		start = bars[len(bars)-1].Time.Add(24 * time.Hour).UnixMilli()
	}

	if len(bars) == 0 {
		return nil, collector.Unavailable(b.Name(), symbol, fmt.Errorf("no klines returned"))
	}
	b.logger.Debug("fetched history",
		zap.String("symbol", pair),
		zap.String("period", string(period)),
		zap.Int("bars", len(bars)))
	return bars, nil
}

func (b *Binance) fetchPage(ctx context.Context, pair string, start, end int64) ([][]any, error) {
	q := url.Values{}
	q.Set("symbol", pair)
	q.Set("interval", "1d")
	q.Set("startTime", strconv.FormatInt(start, 10))
	q.Set("endTime", strconv.FormatInt(end, 10))
	q.Set("limit", strconv.Itoa(pageLimit))

	var page [][]any
	if err := b.http.Get(ctx, b.baseURL+"/api/v3/klines?"+q.Encode(), &page); err != nil {
		return nil, err
	}
	return page, nil
}

// parseKline reads [openTime, open, high, low, close, volume, ...] where
// prices and volume arrive as strings.
func parseKline(symbol string, row []any) (core.OHLCV, error) {
	if len(row) < 6 {
		return core.OHLCV{}, fmt.Errorf("kline has %d fields", len(row))
	}
	openTime, err := cast.ToInt64E(row[0])
	if err != nil {
		return core.OHLCV{}, fmt.Errorf("open time: %w", err)
	}
	var v [5]float64
	for i := range v {
		if v[i], err = cast.ToFloat64E(row[i+1]); err != nil {
			return core.OHLCV{}, fmt.Errorf("field %d: %w", i+1, err)
		}
	}
	return core.OHLCV{
		Symbol:   symbol,
		Interval: "1d",
		Open:     v[0],
		High:     v[1],
		Low:      v[2],
		Close:    v[3],
		Volume:   int64(v[4]),
		Time:     time.UnixMilli(openTime).UTC(),
	}, nil
}
