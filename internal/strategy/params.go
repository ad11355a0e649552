package strategy

import (
	"fmt"
	"math"
	"strings"

	"github.com/newthinker/trademate/internal/core"
	"github.com/spf13/cast"
)

// Recognised parameter keys.
const (
	paramShortPeriod = "short_period"
	paramLongPeriod  = "long_period"
	paramPeriod      = "period"
	paramThreshold   = "threshold"
	paramOversold    = "oversold"
	paramOverbought  = "overbought"
)

// Parse resolves a strategy identifier and applies caller overrides on top
// of that strategy's defaults. Keys the strategy does not use are ignored.
func Parse(name string, params map[string]any) (Strategy, error) {
	p := paramReader{params: params}

	switch Kind(strings.TrimSpace(name)) {
	case KindMACrossover:
		s := DefaultMACrossover()
		s.ShortPeriod = p.period(paramShortPeriod, s.ShortPeriod)
		s.LongPeriod = p.period(paramLongPeriod, s.LongPeriod)
		return s, p.err
	case KindMomentum:
		s := DefaultMomentum()
		s.Period = p.period(paramPeriod, s.Period)
		s.Threshold = p.float(paramThreshold, s.Threshold)
		if p.err == nil && s.Threshold < 0 {
			p.fail(paramThreshold, "must not be negative, got %v", s.Threshold)
		}
		return s, p.err
	case KindRSI:
		s := DefaultRSIThreshold()
		s.Oversold = p.float(paramOversold, s.Oversold)
		s.Overbought = p.float(paramOverbought, s.Overbought)
		s.Period = p.period(paramPeriod, s.Period)
		if p.err == nil {
			switch {
			case s.Oversold < 0 || s.Oversold > 100:
				p.fail(paramOversold, "must be within 0..100, got %v", s.Oversold)
			case s.Overbought < 0 || s.Overbought > 100:
				p.fail(paramOverbought, "must be within 0..100, got %v", s.Overbought)
			case s.Oversold >= s.Overbought:
				p.fail(paramOversold, "must be below overbought (%v), got %v", s.Overbought, s.Oversold)
			}
		}
		return s, p.err
	default:
		return nil, core.Errorf(core.ErrInvalidStrategy, "strategy %q (expected one of %v)", name, Kinds())
	}
}

// paramReader pulls typed values out of a loosely typed override map and
// keeps the first failure.
type paramReader struct {
	params map[string]any
	err    error
}

func (p *paramReader) fail(key, format string, args ...any) {
	if p.err != nil {
		return
	}
	p.err = core.Errorf(core.ErrInvalidParameter, "%s %s", key, fmt.Sprintf(format, args...))
}

func (p *paramReader) float(key string, def float64) float64 {
	raw, ok := p.params[key]
	if !ok || raw == nil {
		return def
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		p.fail(key, "is not a number: %v", raw)
		return def
	}
	return v
}

// period reads a whole number of bars, at least 1.
func (p *paramReader) period(key string, def int) int {
	raw, ok := p.params[key]
	if !ok || raw == nil {
		return def
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil || v != math.Trunc(v) {
		p.fail(key, "is not a whole number: %v", raw)
		return def
	}
	if v < 1 || v > math.MaxInt32 {
		p.fail(key, "must be at least 1, got %v", raw)
		return def
	}
	return int(v)
}
