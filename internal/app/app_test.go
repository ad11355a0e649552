package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/trademate/internal/backtest"
	"github.com/newthinker/trademate/internal/config"
	"github.com/newthinker/trademate/internal/core"
	"go.uber.org/zap"
)

// writeBars writes n rising daily bars for symbol into dir.
func writeBars(t *testing.T, dir, symbol string, n int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("date,open,high,low,close,volume\n")
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price := 100 + float64(i)
		fmt.Fprintf(&b, "%s,%g,%g,%g,%g,1000\n",
			start.AddDate(0, 0, i).Format(time.DateOnly), price, price, price, price)
	}
	if err := os.WriteFile(filepath.Join(dir, symbol+".csv"), []byte(b.String()), 0644); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	writeBars(t, dir, "AAPL", 120)

	cfg := config.Defaults()
	cfg.Backtest.Period = "max"
	cfg.Collector.Provider = "csv"
	cfg.Collector.CSVDir = dir
	return cfg
}

func TestNew_CSVProvider(t *testing.T) {
	a, err := New(testConfig(t), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Provider().Name() != "csv" {
		t.Errorf("expected csv provider, got %s", a.Provider().Name())
	}
	if a.Archive() != nil {
		t.Error("archive should be disabled by default")
	}

	res, err := a.Backtester().Run(context.Background(), backtest.Request{Symbol: "aapl", Strategy: "moving_average"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Bars != 120 || res.Period != "max" {
		t.Errorf("unexpected result: bars=%d period=%s", res.Bars, res.Period)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Collector.Provider = "bloomberg"

	_, err := New(cfg, zap.NewNop())
	if !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("expected CONFIG_INVALID, got %v", err)
	}
}

func TestNew_UnknownSymbol(t *testing.T) {
	a, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	_, err = a.Backtester().Run(context.Background(), backtest.Request{Symbol: "MSFT", Strategy: "rsi"})
	if !errors.Is(err, core.ErrDataUnavailable) {
		t.Errorf("expected DATA_UNAVAILABLE, got %v", err)
	}
}

func TestNew_WithCacheAndArchive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Collector.CacheDSN = filepath.Join(t.TempDir(), "bars.db")
	cfg.Archive.Enabled = true
	cfg.Archive.Path = filepath.Join(t.TempDir(), "results")

	a, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := a.Backtester().Run(ctx, backtest.Request{Symbol: "AAPL", Strategy: "momentum"}); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}

	res, err := a.Backtester().Run(ctx, backtest.Request{Symbol: "AAPL", Strategy: "rsi"})
	if err != nil {
		t.Fatal(err)
	}
	path, err := a.Archive().Save(ctx, "run-1", res)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	paths, err := a.Archive().List(ctx, "AAPL")
	if err != nil || len(paths) != 1 || paths[0] != path {
		t.Errorf("List = %v, %v; want [%s]", paths, err, path)
	}

	if err := a.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestApp_Server(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.APIKey = "k"

	a, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	srv, err := a.Server()
	if err != nil {
		t.Fatalf("Server: %v", err)
	}

	req := httptest.NewRequest("POST", "/api/test-strategy",
		strings.NewReader(`{"symbol":"AAPL","strategy":"moving_average"}`))
	req.Header.Set("X-API-Key", "k")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "trademate_backtests_total") {
		t.Errorf("expected metrics endpoint, got %d", w.Code)
	}
}

func TestNew_RegistersProviders(t *testing.T) {
	a, err := New(testConfig(t), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	for _, name := range []string{"binance", "csv", "eastmoney", "yahoo"} {
		if _, ok := a.providers.Get(name); !ok {
			t.Errorf("provider %q not registered", name)
		}
	}
}

func TestHTTPConfig_BaseURLOnlyForSelected(t *testing.T) {
	cfg := config.CollectorConfig{Provider: "binance", BaseURL: "http://mirror", MaxRetries: 2}

	if got := httpConfig(cfg, "binance"); got.BaseURL != "http://mirror" || got.MaxRetries != 2 {
		t.Errorf("selected provider config = %+v", got)
	}
	if got := httpConfig(cfg, "yahoo"); got.BaseURL != "" || got.MaxRetries != 2 {
		t.Errorf("other provider config = %+v", got)
	}
}

func TestApp_WebhookOnAsyncJob(t *testing.T) {
	events := make(chan map[string]any, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e map[string]any
		json.NewDecoder(r.Body).Decode(&e)
		events <- e
	}))
	defer hook.Close()

	cfg := testConfig(t)
	cfg.Notify.Webhooks = []config.WebhookConfig{{URL: hook.URL}}

	a, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	srv, err := a.Server()
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/backtests",
		strings.NewReader(`{"symbol":"AAPL","strategy":"moving_average"}`)))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	select {
	case e := <-events:
		if e["type"] != "backtest.completed" || e["symbol"] != "AAPL" {
			t.Errorf("unexpected event: %v", e)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not called")
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
