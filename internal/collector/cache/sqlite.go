// Package cache provides a read-through SQLite cache in front of a history
// provider. A provider/symbol/period triple is fetched upstream at most once
// per UTC day; later requests that day are served from the database.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/newthinker/trademate/internal/collector"
	"github.com/newthinker/trademate/internal/core"
	log "github.com/newthinker/trademate/internal/logger"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS fetches (
    provider   TEXT NOT NULL,
    symbol     TEXT NOT NULL,
    period     TEXT NOT NULL,
    day        TEXT NOT NULL,
    fetched_at DATETIME NOT NULL,
    PRIMARY KEY (provider, symbol, period)
);

CREATE TABLE IF NOT EXISTS bars (
    provider TEXT    NOT NULL,
    symbol   TEXT    NOT NULL,
    period   TEXT    NOT NULL,
    seq      INTEGER NOT NULL,
    ts       INTEGER NOT NULL,
    open     REAL    NOT NULL,
    high     REAL    NOT NULL,
    low      REAL    NOT NULL,
    close    REAL    NOT NULL,
    volume   INTEGER NOT NULL,
    PRIMARY KEY (provider, symbol, period, seq)
);
`

// Recorder receives cache hit/miss events.
type Recorder interface {
	RecordCacheLookup(hit bool)
}

// Cache wraps a provider with a SQLite bar store. Rows are keyed by the
// upstream's name so several providers can share one database.
type Cache struct {
	db       *sql.DB
	upstream collector.HistoryProvider
	provider string
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// New opens (or creates) the database at dsn in front of upstream.
func New(dsn string, upstream collector.HistoryProvider, recorder Recorder, logger *zap.Logger) (*Cache, error) {
	logger = log.OrNop(logger)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cache.New: open %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache.New: apply schema: %w", err)
	}

	return &Cache{
		db:       db,
		upstream: upstream,
		provider: upstream.Name(),
		recorder: recorder,
		logger:   logger.Named("cache"),
		now:      time.Now,
	}, nil
}

// Close releases the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) Name() string {
	return c.upstream.Name()
}

// FetchHistory serves today's copy from the database or refreshes it from
// upstream. Storage failures fall back to upstream and are only logged.
func (c *Cache) FetchHistory(ctx context.Context, symbol string, period collector.Period) ([]core.OHLCV, error) {
	key := strings.ToUpper(symbol)
	day := c.now().UTC().Format(time.DateOnly)

	bars, ok, err := c.load(ctx, key, period, day)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("symbol", symbol), zap.Error(err))
	}
	c.record(ok)
	if ok {
		return bars, nil
	}

	bars, err = c.upstream.FetchHistory(ctx, symbol, period)
	if err != nil {
		return nil, err
	}

	if err := c.store(ctx, key, period, day, bars); err != nil {
		c.logger.Warn("cache write failed", zap.String("symbol", symbol), zap.Error(err))
	}
	return bars, nil
}

func (c *Cache) record(hit bool) {
	if c.recorder != nil {
		c.recorder.RecordCacheLookup(hit)
	}
}

func (c *Cache) load(ctx context.Context, symbol string, period collector.Period, day string) ([]core.OHLCV, bool, error) {
	var cachedDay string
	err := c.db.QueryRowContext(ctx,
		`SELECT day FROM fetches WHERE provider = ? AND symbol = ? AND period = ?`,
		c.provider, symbol, string(period)).Scan(&cachedDay)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query fetches: %w", err)
	}
	if cachedDay != day {
		return nil, false, nil
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume FROM bars
		WHERE provider = ? AND symbol = ? AND period = ? ORDER BY seq`,
		c.provider, symbol, string(period))
	if err != nil {
		return nil, false, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []core.OHLCV
	for rows.Next() {
		var ts int64
		bar := core.OHLCV{Symbol: symbol, Interval: "1d"}
		if err := rows.Scan(&ts, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, false, fmt.Errorf("scan bar: %w", err)
		}
		bar.Time = time.Unix(ts, 0).UTC()
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate bars: %w", err)
	}
	return bars, true, nil
}

func (c *Cache) store(ctx context.Context, symbol string, period collector.Period, day string, bars []core.OHLCV) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM bars WHERE provider = ? AND symbol = ? AND period = ?`,
		c.provider, symbol, string(period)); err != nil {
		return fmt.Errorf("clear bars: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (provider, symbol, period, seq, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, b := range bars {
		if _, err := stmt.ExecContext(ctx, c.provider, symbol, string(period), i, b.Time.Unix(),
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("insert bar %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO fetches (provider, symbol, period, day, fetched_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(provider, symbol, period) DO UPDATE SET day = excluded.day, fetched_at = excluded.fetched_at`,
		c.provider, symbol, string(period), day, c.now().UTC()); err != nil {
		return fmt.Errorf("upsert fetch: %w", err)
	}

	return tx.Commit()
}
