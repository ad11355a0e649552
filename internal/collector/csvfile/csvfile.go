// Package csvfile serves daily bars from local CSV files, one file per
// symbol named <SYMBOL>.csv with a date,open,high,low,close,volume header.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/newthinker/trademate/internal/collector"
	"github.com/newthinker/trademate/internal/core"
	"github.com/spf13/cast"
)

var validSymbol = regexp.MustCompile(`^\^?[A-Za-z0-9]{1,10}([.-][A-Za-z]{1,4})?$`)

var requiredColumns = []string{"date", "open", "high", "low", "close", "volume"}

// Provider reads bars from a directory of CSV files
type Provider struct {
	dir string
	now func() time.Time
}

// New creates a CSV provider rooted at dir
func New(dir string) *Provider {
	return &Provider{dir: dir, now: time.Now}
}

func (p *Provider) Name() string {
	return "csv"
}

// FetchHistory loads <dir>/<SYMBOL>.csv and keeps the bars inside period.
func (p *Provider) FetchHistory(ctx context.Context, symbol string, period collector.Period) ([]core.OHLCV, error) {
	if !validSymbol.MatchString(symbol) {
		return nil, collector.Unavailable(p.Name(), symbol, fmt.Errorf("invalid symbol format"))
	}
	if err := ctx.Err(); err != nil {
		return nil, collector.Unavailable(p.Name(), symbol, err)
	}

	f, err := os.Open(filepath.Join(p.dir, strings.ToUpper(symbol)+".csv"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = core.ErrSymbolNotFound
		}
		return nil, collector.Unavailable(p.Name(), symbol, err)
	}
	defer f.Close()

	bars, err := parse(f, symbol)
	if err != nil {
		return nil, collector.Unavailable(p.Name(), symbol, err)
	}

	if period == "" {
		period = collector.DefaultPeriod
	}
	start := period.Start(p.now())
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Time.Before(start) })
	return bars[i:], nil
}

// parse reads a CSV stream into chronologically sorted bars.
func parse(r io.Reader, symbol string) ([]core.OHLCV, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	var bars []core.OHLCV
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		bar, err := toBar(rec, cols, symbol)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

func toBar(rec []string, cols map[string]int, symbol string) (core.OHLCV, error) {
	field := func(name string) string {
		if i := cols[name]; i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	date, err := time.Parse(time.DateOnly, field("date"))
	if err != nil {
		return core.OHLCV{}, fmt.Errorf("date: %w", err)
	}

	var prices [4]float64
	for i, name := range []string{"open", "high", "low", "close"} {
		v, err := cast.ToFloat64E(field(name))
		if err != nil {
			return core.OHLCV{}, fmt.Errorf("%s: %w", name, err)
		}
		prices[i] = v
	}

	volume, err := cast.ToInt64E(field("volume"))
	if err != nil {
		// Some exports write volume as a float.
		v, ferr := cast.ToFloat64E(field("volume"))
		if ferr != nil {
			return core.OHLCV{}, fmt.Errorf("volume: %w", err)
		}
		volume = int64(v)
	}

	return core.OHLCV{
		Symbol:   symbol,
		Interval: "1d",
		Open:     prices[0],
		High:     prices[1],
		Low:      prices[2],
		Close:    prices[3],
		Volume:   volume,
		Time:     date,
	}, nil
}
