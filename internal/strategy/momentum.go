package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"skipper/internal/logger"
)

// Momentum 是一个静态标的池上的动量策略: 近 lookback 日涨幅为正的买入,
// 为负的卖出, 置信度随涨跌幅递增。主要用于 paper 模式下驱动整条流水线。
type Momentum struct {
	name     string
	universe []string
	lookback int
}

func NewMomentum(name string, universe []string, lookbackDays int) *Momentum {
	if lookbackDays <= 0 {
		lookbackDays = 20
	}
	return &Momentum{name: name, universe: universe, lookback: lookbackDays}
}

func (m *Momentum) Name() string { return m.name }

func (m *Momentum) GenerateSignals(ctx context.Context, md MarketData) ([]Proposal, error) {
	var out []Proposal
	for _, symbol := range m.universe {
		closes, err := md.History(ctx, symbol, m.lookback+1)
		if err != nil {
			return nil, fmt.Errorf("momentum %s: history for %s: %w", m.name, symbol, err)
		}
		if len(closes) < m.lookback+1 {
			logger.Warnf("动量策略 %s: %s 历史不足 (%d < %d), 跳过", m.name, symbol, len(closes), m.lookback+1)
			continue
		}

		roc := talib.Roc(closes, m.lookback)
		change := roc[len(roc)-1] / 100 // talib reports percent
		if change == 0 || math.IsNaN(change) {
			continue
		}

		side := "BUY"
		if change < 0 {
			side = "SELL"
		}
		price, err := md.LastPriceCents(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("momentum %s: price for %s: %w", m.name, symbol, err)
		}
		out = append(out, Proposal{
			Symbol:          symbol,
			Side:            side,
			Confidence:      confidenceFromChange(change),
			Rationale:       fmt.Sprintf("%d-day momentum %+.2f%%", m.lookback, change*100),
			LimitPriceCents: price,
		})
	}
	return out, nil
}

// confidenceFromChange maps |change| into (0,1): 10% over the lookback
// saturates at ~0.95.
func confidenceFromChange(change float64) float64 {
	c := math.Abs(change) / 0.10
	if c > 0.95 {
		c = 0.95
	}
	if c < 0.05 {
		c = 0.05
	}
	return c
}
