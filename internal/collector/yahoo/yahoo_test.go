package yahoo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/newthinker/trademate/internal/collector"
	"github.com/newthinker/trademate/internal/core"
)

const chartBody = `{
  "chart": {
    "result": [{
      "meta": {"symbol": "AAPL", "currency": "USD"},
      "timestamp": [1704153600, 1704240000, 1704326400],
      "indicators": {"quote": [{
        "open":   [100.0, null, 102.0],
        "high":   [101.0, null, 103.5],
        "low":    [99.0,  null, 101.0],
        "close":  [100.5, null, 103.0],
        "volume": [1000,  null, 1200]
      }]}
    }],
    "error": null
  }
}`

func newTestYahoo(url string) *Yahoo {
	y := New(collector.Config{BaseURL: url, RatePerSec: 1000, MaxRetries: 2}, nil)
	y.http.RetryWait = time.Millisecond
	return y
}

func TestYahoo_ImplementsHistoryProvider(t *testing.T) {
	var _ collector.HistoryProvider = (*Yahoo)(nil)
}

func TestYahoo_Name(t *testing.T) {
	y := New(collector.Config{}, nil)
	if y.Name() != "yahoo" {
		t.Errorf("expected 'yahoo', got '%s'", y.Name())
	}
}

func TestYahoo_ToYahooSymbol(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"AAPL", "AAPL"},
		{"aapl", "AAPL"},
		{"0700.HK", "0700.HK"},
		{"600519.SH", "600519.SS"}, // Shanghai -> SS for Yahoo
		{"000001.SZ", "000001.SZ"},
	}

	y := New(collector.Config{}, nil)
	for _, tc := range tests {
		got := y.toYahooSymbol(tc.input)
		if got != tc.expected {
			t.Errorf("toYahooSymbol(%s) = %s, want %s", tc.input, got, tc.expected)
		}
	}
}

func TestValidateSymbol(t *testing.T) {
	valid := []string{"AAPL", "600519.SH", "0700.HK", "BRK-B", "^GSPC"}
	for _, s := range valid {
		if err := validateSymbol(s); err != nil {
			t.Errorf("validateSymbol(%q) unexpected error: %v", s, err)
		}
	}

	invalid := []string{"", "AAPL;DROP", "../etc", strings.Repeat("A", 21)}
	for _, s := range invalid {
		if err := validateSymbol(s); err == nil {
			t.Errorf("validateSymbol(%q) expected error", s)
		}
	}
}

func TestYahoo_FetchHistory(t *testing.T) {
	var gotPath, gotRange, gotInterval string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRange = r.URL.Query().Get("range")
		gotInterval = r.URL.Query().Get("interval")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	bars, err := newTestYahoo(srv.URL).FetchHistory(context.Background(), "AAPL", collector.Period6M)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/AAPL" || gotRange != "6mo" || gotInterval != "1d" {
		t.Errorf("request = %s range=%s interval=%s", gotPath, gotRange, gotInterval)
	}

	// The null row is skipped.
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].Close != 100.5 || bars[1].Close != 103.0 {
		t.Errorf("unexpected closes: %v, %v", bars[0].Close, bars[1].Close)
	}
	if bars[1].Volume != 1200 || bars[1].Symbol != "AAPL" || bars[1].Interval != "1d" {
		t.Errorf("unexpected bar: %+v", bars[1])
	}
	if !bars[0].Time.Before(bars[1].Time) {
		t.Error("expected chronological order")
	}
}

func TestYahoo_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	bars, err := newTestYahoo(srv.URL).FetchHistory(context.Background(), "AAPL", collector.Period1Y)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 2 {
		t.Errorf("expected 2 bars, got %d", len(bars))
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestYahoo_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestYahoo(srv.URL).FetchHistory(context.Background(), "AAPL", collector.Period1Y)
	if !errors.Is(err, core.ErrDataUnavailable) {
		t.Fatalf("expected DATA_UNAVAILABLE, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestYahoo_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	}))
	defer srv.Close()

	_, err := newTestYahoo(srv.URL).FetchHistory(context.Background(), "NOPE", collector.Period1Y)
	if !errors.Is(err, core.ErrDataUnavailable) {
		t.Fatalf("expected DATA_UNAVAILABLE, got %v", err)
	}
	if !strings.Contains(err.Error(), "NOPE") {
		t.Errorf("expected error to name the symbol: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestYahoo_ChartError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[],"error":{"code":"Bad Request","description":"Invalid range"}}}`))
	}))
	defer srv.Close()

	_, err := newTestYahoo(srv.URL).FetchHistory(context.Background(), "AAPL", collector.Period1Y)
	if !errors.Is(err, core.ErrDataUnavailable) {
		t.Fatalf("expected DATA_UNAVAILABLE, got %v", err)
	}
}

func TestYahoo_InvalidSymbol(t *testing.T) {
	_, err := New(collector.Config{}, nil).FetchHistory(context.Background(), "bad/symbol", collector.Period1Y)
	if !errors.Is(err, core.ErrDataUnavailable) {
		t.Fatalf("expected DATA_UNAVAILABLE, got %v", err)
	}
}

func TestYahoo_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestYahoo(srv.URL).FetchHistory(ctx, "AAPL", collector.Period1Y)
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
}
