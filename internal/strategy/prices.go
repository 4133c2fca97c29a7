package strategy

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"skipper/internal/money"
)

// FilePrices serves daily closes from a yaml fixture file:
//
//	AAPL: [171.20, 172.05, ...]   # oldest first, dollars
//
// It backs both the strategies' MarketData and the correlation filter's
// price source in paper mode, where no live quote feed exists.
type FilePrices struct {
	closes map[string][]float64
}

func LoadFilePrices(path string) (*FilePrices, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading price history %s: %w", path, err)
	}
	parsed := make(map[string][]float64)
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parsing price history %s: %w", path, err)
	}
	closes := make(map[string][]float64, len(parsed))
	for sym, series := range parsed {
		closes[strings.ToUpper(strings.TrimSpace(sym))] = series
	}
	return &FilePrices{closes: closes}, nil
}

// NewStaticPrices builds an in-memory source, mainly for tests.
func NewStaticPrices(closes map[string][]float64) *FilePrices {
	up := make(map[string][]float64, len(closes))
	for sym, series := range closes {
		up[strings.ToUpper(sym)] = series
	}
	return &FilePrices{closes: up}
}

func (p *FilePrices) LastPriceCents(_ context.Context, symbol string) (money.Cents, error) {
	series, ok := p.closes[strings.ToUpper(symbol)]
	if !ok || len(series) == 0 {
		return 0, fmt.Errorf("no price history for %s", symbol)
	}
	return money.FromFloat(series[len(series)-1]), nil
}

// History returns up to the last `days` closes, oldest first. Fewer than
// requested is not an error; callers decide whether a short series suffices.
func (p *FilePrices) History(_ context.Context, symbol string, days int) ([]float64, error) {
	series, ok := p.closes[strings.ToUpper(symbol)]
	if !ok {
		return nil, fmt.Errorf("no price history for %s", symbol)
	}
	if days > 0 && len(series) > days {
		series = series[len(series)-days:]
	}
	out := make([]float64, len(series))
	copy(out, series)
	return out, nil
}
