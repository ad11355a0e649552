package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/newthinker/trademate/internal/collector"
	"github.com/newthinker/trademate/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBinance(url string, now time.Time) *Binance {
	b := New(collector.Config{BaseURL: url, RatePerSec: 1000, MaxRetries: 1}, nil)
	b.http.RetryWait = time.Millisecond
	b.now = func() time.Time { return now }
	return b
}

// klines renders n daily rows starting at from.
func klines(from time.Time, n int) string {
	rows := make([]string, n)
	for i := range rows {
		ts := from.AddDate(0, 0, i).UnixMilli()
		price := 100 + float64(i)
		rows[i] = fmt.Sprintf(`[%d,"%.2f","%.2f","%.2f","%.2f","12.5",%d,"0",1,"0","0","0"]`,
			ts, price, price+1, price-1, price+0.5, ts+86399999)
	}
	return "[" + strings.Join(rows, ",") + "]"
}

func TestBinance_ImplementsHistoryProvider(t *testing.T) {
	var _ collector.HistoryProvider = (*Binance)(nil)
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"BTC", "BTCUSDT"},
		{"btc", "BTCUSDT"},
		{"BTC-USDT", "BTCUSDT"},
		{"eth/btc", "ETHBTC"},
		{"sol_usdc", "SOLUSDC"},
		{"BTCUSDT", "BTCUSDT"},
		{"USDT", "USDTUSDT"},
	}
	for _, tt := range tests {
		got, err := NormalizeSymbol(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}

	for _, bad := range []string{"", "B", "BTC USDT", "BTC;DROP"} {
		_, err := NormalizeSymbol(bad)
		assert.Error(t, err, bad)
	}
}

func TestBinance_FetchHistory(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	var gotSymbol, gotInterval, gotStart string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		gotSymbol = r.URL.Query().Get("symbol")
		gotInterval = r.URL.Query().Get("interval")
		gotStart = r.URL.Query().Get("startTime")
		w.Write([]byte(klines(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 3)))
	}))
	defer srv.Close()

	bars, err := newTestBinance(srv.URL, now).FetchHistory(context.Background(), "btc", collector.Period1M)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", gotSymbol)
	assert.Equal(t, "1d", gotInterval)
	assert.Equal(t, strconv.FormatInt(now.AddDate(0, -1, 0).UnixMilli(), 10), gotStart)

	require.Len(t, bars, 3)
	assert.Equal(t, 100.0, bars[0].Open)
	assert.Equal(t, 101.0, bars[0].High)
	assert.Equal(t, 99.0, bars[0].Low)
	assert.Equal(t, 100.5, bars[0].Close)
	assert.Equal(t, int64(12), bars[0].Volume)
	assert.Equal(t, "btc", bars[0].Symbol)
	assert.True(t, bars[0].Time.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
}

func TestBinance_Paginates(t *testing.T) {
	first := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		if calls.Add(1) == 1 {
			w.Write([]byte(klines(first, pageLimit)))
			return
		}
		// The second page starts the day after the last bar of the first.
		want := first.AddDate(0, 0, pageLimit).UnixMilli()
		assert.Equal(t, want, start)
		w.Write([]byte(klines(time.UnixMilli(start).UTC(), 5)))
	}))
	defer srv.Close()

	bars, err := newTestBinance(srv.URL, time.Now()).FetchHistory(context.Background(), "ETHUSDT", collector.PeriodMax)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, bars, pageLimit+5)
	for i := 1; i < len(bars); i++ {
		require.True(t, bars[i].Time.After(bars[i-1].Time), "bar %d out of order", i)
	}
}

func TestBinance_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"empty", http.StatusOK, "[]"},
		{"bad symbol", http.StatusBadRequest, `{"code":-1121,"msg":"Invalid symbol."}`},
		{"short row", http.StatusOK, `[[1,"1"]]`},
		{"bad price", http.StatusOK, `[[1,"x","1","1","1","1"]]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestBinance(srv.URL, time.Now()).FetchHistory(context.Background(), "BTC", collector.Period1Y)
			assert.True(t, errors.Is(err, core.ErrDataUnavailable), "got %v", err)
		})
	}
}
