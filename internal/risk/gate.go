// Package risk implements the portfolio gate every candidate order passes
// through after the correlation stage: daily-loss circuit breaker first, then
// the regime-scaled heat ceiling. Gate rejections are decisions, not errors.
package risk

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"skipper/internal/costmodel"
	"skipper/internal/logger"
	"skipper/internal/money"
	"skipper/internal/regime"
)

// Candidate is a proposed order at its pre-gate size.
type Candidate struct {
	StrategyID string
	SignalID   string
	Symbol     string
	Side       costmodel.Side
	Quantity   int64
	PriceCents money.Cents
}

// Notional returns the candidate's gross exposure.
func (c Candidate) Notional() money.Cents {
	return c.PriceCents.Mul(c.Quantity)
}

// Decision is the gate outcome. Multiplier carries the correlation
// attenuation through to sizing; it composes multiplicatively with the
// safety machine's global multiplier downstream.
type Decision struct {
	Accepted   bool
	Reason     string
	Multiplier decimal.Decimal
}

func reject(reason string) Decision {
	return Decision{Reason: reason, Multiplier: decimal.Zero}
}

// Config mirrors the risk.* settings.
type Config struct {
	DailyLossLimitPct float64
	Ceilings          regime.HeatCeilings
}

// Gate holds per-run exposure accounting. It is rebuilt (or reset via
// BeginRun) every run; the sequential gate stage means no lock contention,
// the mutex only guards against misuse.
type Gate struct {
	mu  sync.Mutex
	cfg Config

	portfolioValue money.Cents
	heatCeiling    money.Cents
	exposure       money.Cents
	dailyPnL       money.Cents
	breakerTripped bool
}

func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// BeginRun resets the gate with the run's opening portfolio state. The daily
// loss breaker may already trip here if the account opened deep in the red.
func (g *Gate) BeginRun(r regime.Regime, portfolioValue, openNotional, dailyPnL money.Cents) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.portfolioValue = portfolioValue
	g.exposure = openNotional
	g.dailyPnL = dailyPnL
	g.breakerTripped = false
	ceilingFrac := g.cfg.Ceilings.For(r)
	g.heatCeiling = portfolioValue.MulRatio(decimal.NewFromFloat(ceilingFrac))
	g.checkBreakerLocked()
	if g.breakerTripped {
		logger.Warnf("risk: daily loss breaker tripped at run start, pnl=%s value=%s", dailyPnL, portfolioValue)
	}
}

// AddDailyPnL folds newly realized (or marked) P&L into the breaker input.
// Called after each fill so later candidates in the same run see it.
func (g *Gate) AddDailyPnL(delta money.Cents) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyPnL += delta
	g.checkBreakerLocked()
}

func (g *Gate) checkBreakerLocked() {
	if g.breakerTripped || g.portfolioValue <= 0 {
		return
	}
	limit := g.portfolioValue.MulRatio(decimal.NewFromFloat(g.cfg.DailyLossLimitPct))
	if g.dailyPnL <= -limit {
		g.breakerTripped = true
	}
}

// BreakerTripped reports whether the daily loss breaker is latched.
func (g *Gate) BreakerTripped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.breakerTripped
}

// Evaluate gates a candidate. attenuation is the correlation stage's
// multiplier (1 for unattenuated candidates). On accept the gate's exposure
// is bumped immediately so the next candidate sees the updated heat.
func (g *Gate) Evaluate(c Candidate, attenuation decimal.Decimal) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Latched for the remainder of the run once tripped.
	if g.breakerTripped {
		return reject("daily_loss_breaker")
	}

	if c.Quantity <= 0 || c.PriceCents <= 0 {
		return reject(fmt.Sprintf("invalid candidate qty=%d price=%s", c.Quantity, c.PriceCents))
	}

	// SELLs reduce exposure; only BUYs consume heat.
	if c.Side == costmodel.Sell {
		return Decision{Accepted: true, Multiplier: decimal.NewFromInt(1)}
	}

	sized := c.Notional().MulRatio(attenuation)
	if g.exposure+sized > g.heatCeiling {
		return reject(fmt.Sprintf("portfolio_heat: exposure %s + candidate %s exceeds ceiling %s",
			g.exposure, sized, g.heatCeiling))
	}

	g.exposure += sized
	return Decision{Accepted: true, Multiplier: attenuation}
}

// ReleaseExposure returns heat to the pool when an accepted order does not
// fill (venue reject, cancel, expiry).
func (g *Gate) ReleaseExposure(notional money.Cents) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exposure -= notional
	if g.exposure < 0 {
		g.exposure = 0
	}
}

// Exposure reports the gate's current heat accounting.
func (g *Gate) Exposure() money.Cents {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.exposure
}

// PortfolioValue reports the opening portfolio value this run was seeded with.
func (g *Gate) PortfolioValue() money.Cents {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.portfolioValue
}
