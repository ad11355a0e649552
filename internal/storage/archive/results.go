package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/newthinker/trademate/internal/backtest"
)

// resultsRoot is the top-level prefix for archived backtest results.
const resultsRoot = "results"

// Results stores backtest results as JSON documents laid out as
// results/<SYMBOL>/<strategy>/<date>/<id>.json.
type Results struct {
	store Storage
	now   func() time.Time
}

// NewResults wraps store.
func NewResults(store Storage) *Results {
	return &Results{store: store, now: time.Now}
}

// Record is an archived result with its identifier.
type Record struct {
	ID         string           `json:"id"`
	ArchivedAt time.Time        `json:"archived_at"`
	Result     *backtest.Result `json:"result"`
}

// Save writes res under id and returns its path.
func (r *Results) Save(ctx context.Context, id string, res *backtest.Result) (string, error) {
	if res == nil {
		return "", fmt.Errorf("archive: nil result")
	}
	now := r.now().UTC()
	p := fmt.Sprintf("%s/%s/%s/%s/%s.json",
		resultsRoot, strings.ToUpper(res.Symbol), res.Strategy, now.Format(time.DateOnly), id)

	data, err := json.MarshalIndent(Record{ID: id, ArchivedAt: now, Result: res}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("archive: encoding result: %w", err)
	}
	if err := r.store.Write(ctx, p, data); err != nil {
		return "", fmt.Errorf("archive: %w", err)
	}
	return p, nil
}

// Load reads the record at path.
func (r *Results) Load(ctx context.Context, path string) (*Record, error) {
	data, err := r.store.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("archive: decoding %s: %w", path, err)
	}
	return &rec, nil
}

// List returns archived result paths, optionally limited to one symbol.
func (r *Results) List(ctx context.Context, symbol string) ([]string, error) {
	prefix := resultsRoot
	if symbol != "" {
		prefix += "/" + strings.ToUpper(symbol)
	}
	return r.store.List(ctx, prefix)
}
