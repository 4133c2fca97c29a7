// Package correlation sizes down candidates that move with symbols already
// held. Two rolling windows are checked and the more conservative (higher)
// correlation wins; the worst held symbol drives the decision.
package correlation

import (
	"context"
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"

	"skipper/internal/logger"
)

// PriceSource returns daily close history for a symbol, oldest first.
// Provided by the market-data collaborator; this package never fetches.
type PriceSource interface {
	History(ctx context.Context, symbol string, days int) ([]float64, error)
}

// Decision is the filter outcome for one candidate.
type Decision struct {
	Rejected    bool
	Reason      string
	Multiplier  decimal.Decimal // ∈ [minAttenuation, 1], 1 when unattenuated
	WorstCorr   float64
	WorstSymbol string
}

// Filter holds thresholds and window lengths.
type Filter struct {
	src            PriceSource
	hardCeiling    float64
	softLow        float64
	softHigh       float64
	minAttenuation float64
	longWindow     int
	shortWindow    int
}

// Config mirrors the risk.corr_* settings.
type Config struct {
	HardCeiling    float64
	SoftLow        float64
	SoftHigh       float64
	MinAttenuation float64
	LongWindow     int
	ShortWindow    int
}

func NewFilter(src PriceSource, cfg Config) *Filter {
	return &Filter{
		src:            src,
		hardCeiling:    cfg.HardCeiling,
		softLow:        cfg.SoftLow,
		softHigh:       cfg.SoftHigh,
		minAttenuation: cfg.MinAttenuation,
		longWindow:     cfg.LongWindow,
		shortWindow:    cfg.ShortWindow,
	}
}

// Evaluate scores a candidate against every held symbol.
func (f *Filter) Evaluate(ctx context.Context, candidate string, held []string) (Decision, error) {
	full := Decision{Multiplier: decimal.NewFromInt(1)}
	if len(held) == 0 {
		return full, nil
	}
	candHist, err := f.src.History(ctx, candidate, f.longWindow+1)
	if err != nil {
		return Decision{}, fmt.Errorf("correlation: history for %s: %w", candidate, err)
	}
	worst := Decision{Multiplier: decimal.NewFromInt(1), WorstCorr: -1}
	for _, symbol := range held {
		if symbol == candidate {
			continue
		}
		heldHist, err := f.src.History(ctx, symbol, f.longWindow+1)
		if err != nil {
			return Decision{}, fmt.Errorf("correlation: history for %s: %w", symbol, err)
		}
		corr, ok := f.pairCorrelation(candHist, heldHist)
		if !ok {
			// Not enough shared history to compute; skip rather than guess.
			logger.Warnf("correlation: insufficient history for %s vs %s, skipping pair", candidate, symbol)
			continue
		}
		if corr > worst.WorstCorr {
			worst.WorstCorr = corr
			worst.WorstSymbol = symbol
		}
	}
	if worst.WorstSymbol == "" {
		return full, nil
	}
	return f.decide(worst), nil
}

// pairCorrelation computes the conservative (max) of the long- and
// short-window rolling correlations at the latest bar.
func (f *Filter) pairCorrelation(a, b []float64) (float64, bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < f.shortWindow+1 {
		return 0, false
	}
	a = a[len(a)-n:]
	b = b[len(b)-n:]

	short := latestCorrelation(a, b, f.shortWindow)
	if n >= f.longWindow+1 {
		long := latestCorrelation(a, b, f.longWindow)
		if long > short {
			return long, true
		}
	}
	return short, true
}

func latestCorrelation(a, b []float64, window int) float64 {
	series := talib.Correl(a, b, window)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

func (f *Filter) decide(d Decision) Decision {
	switch {
	case d.WorstCorr >= f.hardCeiling:
		d.Rejected = true
		d.Reason = fmt.Sprintf("correlation %.2f with %s >= hard ceiling %.2f", d.WorstCorr, d.WorstSymbol, f.hardCeiling)
		d.Multiplier = decimal.Zero
	case d.WorstCorr > f.softHigh:
		// Between the soft band and the hard ceiling: floor attenuation.
		d.Multiplier = decimal.NewFromFloat(f.minAttenuation)
	case d.WorstCorr >= f.softLow:
		// Linear from full size at softLow down to minAttenuation at softHigh.
		span := f.softHigh - f.softLow
		frac := (d.WorstCorr - f.softLow) / span
		mult := 1 - frac*(1-f.minAttenuation)
		d.Multiplier = decimal.NewFromFloat(mult)
	default:
		d.Multiplier = decimal.NewFromInt(1)
	}
	return d
}
