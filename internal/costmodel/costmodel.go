// Package costmodel prices an order the way the venue will: slippage moves
// the executed price against the trader, commission comes out of cash.
// Pure computation, no I/O.
package costmodel

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"skipper/internal/money"
)

// Side of an order. Parsed from signal proposals, so it is a string enum.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide normalizes an external side string.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return "", fmt.Errorf("invalid side %q", s)
	}
}

// Model holds the venue cost assumptions.
type Model struct {
	slippageBps   decimal.Decimal
	commissionBps decimal.Decimal
	commissionMin money.Cents
}

// New builds a cost model from basis-point settings.
func New(slippageBps, commissionBps int, commissionMinCents int64) *Model {
	return &Model{
		slippageBps:   decimal.NewFromInt(int64(slippageBps)).Div(decimal.NewFromInt(10000)),
		commissionBps: decimal.NewFromInt(int64(commissionBps)).Div(decimal.NewFromInt(10000)),
		commissionMin: money.Cents(commissionMinCents),
	}
}

// Execution is the priced outcome of an order.
type Execution struct {
	ExecutedPriceCents money.Cents
	SlippageCents      money.Cents // total, always >= 0
	CommissionCents    money.Cents
}

// Quote prices an order: BUY pays the slippage up, SELL receives less.
// Slippage rounds against the trader; commission is max(min, notional*bps).
func (m *Model) Quote(side Side, priceCents money.Cents, qty int64) Execution {
	price := priceCents.Decimal()
	slip := price.Mul(m.slippageBps)

	var executed decimal.Decimal
	if side == Buy {
		executed = price.Add(slip)
	} else {
		executed = price.Sub(slip)
	}
	// Round the executed price away from the trader.
	var executedCents money.Cents
	if side == Buy {
		executedCents = money.Cents(executed.Mul(decimal.NewFromInt(100)).Ceil().IntPart())
	} else {
		executedCents = money.Cents(executed.Mul(decimal.NewFromInt(100)).Floor().IntPart())
	}
	if executedCents < 0 {
		executedCents = 0
	}

	slipPerShare := (executedCents - priceCents).Abs()
	totalSlippage := slipPerShare.Mul(qty)

	notional := executedCents.Mul(qty)
	commission := money.FromDecimal(notional.Decimal().Mul(m.commissionBps))
	if commission < m.commissionMin {
		commission = m.commissionMin
	}

	return Execution{
		ExecutedPriceCents: executedCents,
		SlippageCents:      totalSlippage,
		CommissionCents:    commission,
	}
}

// TotalCost is the cash needed to settle a BUY (notional plus commission).
func (e Execution) TotalCost(qty int64) money.Cents {
	return e.ExecutedPriceCents.Mul(qty) + e.CommissionCents
}

// NetProceeds is the cash received from a SELL after commission.
func (e Execution) NetProceeds(qty int64) money.Cents {
	return e.ExecutedPriceCents.Mul(qty) - e.CommissionCents
}
