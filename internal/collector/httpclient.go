package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	log "github.com/newthinker/trademate/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	defaultRatePerSec  = 2
	defaultRetryWait   = 500 * time.Millisecond
)

// ErrPermanent marks a response that retrying will not fix.
var ErrPermanent = errors.New("permanent failure")

// JSONClient issues paced GET requests against a JSON API. Transport
// errors, 429 and 5xx responses are retried with exponential backoff; other
// failures are wrapped with ErrPermanent and returned at once.
type JSONClient struct {
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	logger     *zap.Logger

	// RetryWait is the first backoff delay; it doubles on every attempt.
	RetryWait time.Duration
}

// NewJSONClient builds a client from cfg. Zero timeout and rate take
// defaults; a negative retry count disables retries.
func NewJSONClient(cfg Config, logger *zap.Logger) *JSONClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	return &JSONClient{
		client:     &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		maxRetries: max(cfg.MaxRetries, 0),
		logger:     log.OrNop(logger),
		RetryWait:  defaultRetryWait,
	}
}

// Get fetches endpoint and decodes the body into out.
func (c *JSONClient) Get(ctx context.Context, endpoint string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt-1); err != nil {
				return err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		lastErr = c.get(ctx, endpoint, out)
		if lastErr == nil || errors.Is(lastErr, ErrPermanent) || ctx.Err() != nil {
			return lastErr
		}
		c.logger.Warn("request failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}
	return fmt.Errorf("exhausted %d retries: %w", c.maxRetries, lastErr)
}

func (c *JSONClient) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; trademate)")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrPermanent, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrPermanent, err)
	}
	return nil
}

func (c *JSONClient) sleep(ctx context.Context, attempt int) error {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.RetryWait
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
