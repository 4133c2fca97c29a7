// Package strategy defines the signal-producing side of the engine. Strategies
// only propose; everything downstream (regime, correlation, risk, safety) may
// still reject or shrink what they ask for.
package strategy

import (
	"context"

	"skipper/internal/money"
)

// MarketData is the read-only price view handed to strategies. History returns
// daily closes oldest-first; the last element is the most recent session.
type MarketData interface {
	LastPriceCents(ctx context.Context, symbol string) (money.Cents, error)
	History(ctx context.Context, symbol string, days int) ([]float64, error)
}

// Proposal is one suggested order before it becomes a ledger signal.
// SignalID is optional: external producers that supply a stable id get
// end-to-end idempotency across reruns (the order-intent hash includes it).
type Proposal struct {
	SignalID        string
	Symbol          string
	Side            string // BUY | SELL
	Confidence      float64
	Rationale       string
	LimitPriceCents money.Cents
}

// Strategy produces proposals for one run date.
type Strategy interface {
	Name() string
	GenerateSignals(ctx context.Context, md MarketData) ([]Proposal, error)
}
