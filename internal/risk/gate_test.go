package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"skipper/internal/costmodel"
	"skipper/internal/money"
	"skipper/internal/regime"
)

func testGate() *Gate {
	return NewGate(Config{
		DailyLossLimitPct: 0.02,
		Ceilings:          regime.HeatCeilings{Calm: 0.90, Normal: 0.75, Elevated: 0.50, Crisis: 0.25},
	})
}

func buy(symbol string, qty int64, price money.Cents) Candidate {
	return Candidate{StrategyID: "s1", SignalID: "sig-" + symbol, Symbol: symbol,
		Side: costmodel.Buy, Quantity: qty, PriceCents: price}
}

func one() decimal.Decimal { return decimal.NewFromInt(1) }

func TestBreakerTripsAtRunStart(t *testing.T) {
	g := testGate()
	// -2% of $100k: right at the limit trips.
	g.BeginRun(regime.Normal, money.Cents(10_000_000), 0, money.Cents(-200_000))
	assert.True(t, g.BreakerTripped())

	d := g.Evaluate(buy("AAPL", 1, money.Cents(10000)), one())
	assert.False(t, d.Accepted)
	assert.Equal(t, "daily_loss_breaker", d.Reason)
}

func TestBreakerLatchesMidRun(t *testing.T) {
	g := testGate()
	g.BeginRun(regime.Normal, money.Cents(10_000_000), 0, money.Cents(-150_000))
	assert.False(t, g.BreakerTripped())

	d := g.Evaluate(buy("AAPL", 10, money.Cents(10000)), one())
	assert.True(t, d.Accepted)

	// A losing fill pushes daily pnl past -2%; everything after is rejected.
	g.AddDailyPnL(money.Cents(-60_000))
	assert.True(t, g.BreakerTripped())

	d = g.Evaluate(buy("MSFT", 1, money.Cents(10000)), one())
	assert.False(t, d.Accepted)
	assert.Equal(t, "daily_loss_breaker", d.Reason)

	// Latched: a recovery within the same run does not reset it.
	g.AddDailyPnL(money.Cents(500_000))
	assert.True(t, g.BreakerTripped())
}

func TestSellBypassesBreakerHeat(t *testing.T) {
	g := testGate()
	g.BeginRun(regime.Crisis, money.Cents(10_000_000), money.Cents(9_000_000), 0)

	// Exposure already far above the crisis ceiling: a SELL still passes.
	d := g.Evaluate(Candidate{StrategyID: "s1", SignalID: "x", Symbol: "AAPL",
		Side: costmodel.Sell, Quantity: 5, PriceCents: money.Cents(10000)}, one())
	assert.True(t, d.Accepted)

	// The matching BUY does not.
	d = g.Evaluate(buy("AAPL", 5, money.Cents(10000)), one())
	assert.False(t, d.Accepted)
	assert.Contains(t, d.Reason, "portfolio_heat")
}

func TestHeatCeilingScalesByRegime(t *testing.T) {
	// $100k portfolio, elevated regime -> $50k ceiling.
	g := testGate()
	g.BeginRun(regime.Elevated, money.Cents(10_000_000), 0, 0)

	d := g.Evaluate(buy("AAPL", 40, money.Cents(100_000)), one()) // $40k
	assert.True(t, d.Accepted)
	assert.Equal(t, money.Cents(4_000_000), g.Exposure())

	d = g.Evaluate(buy("MSFT", 20, money.Cents(100_000)), one()) // would make $60k
	assert.False(t, d.Accepted)
	assert.Contains(t, d.Reason, "portfolio_heat")
	assert.Equal(t, money.Cents(4_000_000), g.Exposure())

	d = g.Evaluate(buy("NVDA", 10, money.Cents(100_000)), one()) // exactly $50k
	assert.True(t, d.Accepted)
	assert.Equal(t, money.Cents(5_000_000), g.Exposure())
}

func TestAttenuationShrinksConsumedHeat(t *testing.T) {
	g := testGate()
	g.BeginRun(regime.Normal, money.Cents(10_000_000), 0, 0)

	half := decimal.NewFromFloat(0.5)
	d := g.Evaluate(buy("AAPL", 40, money.Cents(100_000)), half) // $40k notional, $20k heat
	assert.True(t, d.Accepted)
	assert.True(t, d.Multiplier.Equal(half))
	assert.Equal(t, money.Cents(2_000_000), g.Exposure())
}

func TestReleaseExposure(t *testing.T) {
	g := testGate()
	g.BeginRun(regime.Normal, money.Cents(10_000_000), 0, 0)

	d := g.Evaluate(buy("AAPL", 40, money.Cents(100_000)), one())
	assert.True(t, d.Accepted)

	g.ReleaseExposure(money.Cents(4_000_000))
	assert.Equal(t, money.Cents(0), g.Exposure())

	// Over-release clamps at zero instead of going negative.
	g.ReleaseExposure(money.Cents(1_000_000))
	assert.Equal(t, money.Cents(0), g.Exposure())
}

func TestInvalidCandidateRejected(t *testing.T) {
	g := testGate()
	g.BeginRun(regime.Normal, money.Cents(10_000_000), 0, 0)

	d := g.Evaluate(buy("AAPL", 0, money.Cents(10000)), one())
	assert.False(t, d.Accepted)

	d = g.Evaluate(buy("AAPL", 10, money.Cents(0)), one())
	assert.False(t, d.Accepted)
}
