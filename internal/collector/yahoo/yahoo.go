package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/newthinker/trademate/internal/collector"
	"github.com/newthinker/trademate/internal/core"
	log "github.com/newthinker/trademate/internal/logger"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// validSymbol matches stock symbols like AAPL, MSFT, 600519.SH, 0700.HK, BRK-B, ^GSPC
var validSymbol = regexp.MustCompile(`^\^?[A-Za-z0-9]{1,10}([.-][A-Za-z]{1,4})?$`)

// validateSymbol checks if a symbol has valid format
func validateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 20 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	if !validSymbol.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return nil
}

// Yahoo fetches daily history from the Yahoo Finance chart API
type Yahoo struct {
	http    *collector.JSONClient
	baseURL string
	logger  *zap.Logger
}

// New creates a Yahoo provider. Zero config fields take defaults.
func New(cfg collector.Config, logger *zap.Logger) *Yahoo {
	logger = log.OrNop(logger)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	logger = logger.Named("yahoo")

	return &Yahoo{
		http:    collector.NewJSONClient(cfg, logger),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

func (y *Yahoo) Name() string {
	return "yahoo"
}

// toYahooSymbol converts internal symbol format to Yahoo format
func (y *Yahoo) toYahooSymbol(symbol string) string {
	symbol = strings.ToUpper(symbol)
	// Shanghai stocks: 600519.SH -> 600519.SS
	if strings.HasSuffix(symbol, ".SH") {
		return strings.TrimSuffix(symbol, ".SH") + ".SS"
	}
	return symbol
}

// FetchHistory fetches daily OHLCV bars covering period.
func (y *Yahoo) FetchHistory(ctx context.Context, symbol string, period collector.Period) ([]core.OHLCV, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, collector.Unavailable(y.Name(), symbol, err)
	}
	if period == "" {
		period = collector.DefaultPeriod
	}

	q := url.Values{}
	q.Set("range", string(period))
	q.Set("interval", "1d")
	endpoint := fmt.Sprintf("%s/%s?%s", y.baseURL, url.PathEscape(y.toYahooSymbol(symbol)), q.Encode())

	var result chartResponse
	if err := y.http.Get(ctx, endpoint, &result); err != nil {
		return nil, collector.Unavailable(y.Name(), symbol, err)
	}

	if result.Chart.Error != nil {
		return nil, collector.Unavailable(y.Name(), symbol,
			fmt.Errorf("yahoo error: %s", result.Chart.Error.Description))
	}
	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, collector.Unavailable(y.Name(), symbol, fmt.Errorf("no data for symbol"))
	}

	bars := toBars(symbol, result.Chart.Result[0])
	y.logger.Debug("fetched history",
		zap.String("symbol", symbol),
		zap.String("period", string(period)),
		zap.Int("bars", len(bars)))
	return bars, nil
}

// toBars converts a chart result, skipping rows with missing fields.
func toBars(symbol string, r chartResult) []core.OHLCV {
	quotes := r.Indicators.Quote[0]
	at := func(s []*float64, i int) (float64, bool) {
		if i >= len(s) || s[i] == nil {
			return 0, false
		}
		return *s[i], true
	}

	data := make([]core.OHLCV, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		open, ok1 := at(quotes.Open, i)
		high, ok2 := at(quotes.High, i)
		low, ok3 := at(quotes.Low, i)
		closePrice, ok4 := at(quotes.Close, i)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue // Skip missing data
		}
		var volume int64
		if i < len(quotes.Volume) && quotes.Volume[i] != nil {
			volume = *quotes.Volume[i]
		}
		data = append(data, core.OHLCV{
			Symbol:   symbol,
			Interval: "1d",
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   volume,
			Time:     time.Unix(ts, 0).UTC(),
		})
	}
	return data
}

// Yahoo API response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta       chartMeta  `json:"meta"`
	Timestamp  []int64    `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

type chartMeta struct {
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`
}

type indicators struct {
	Quote []quoteIndicator `json:"quote"`
}

type quoteIndicator struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}
