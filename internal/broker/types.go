// Package broker defines the brokerage-venue abstraction the engine executes
// against. The engine only ever needs three things from a venue: an account
// snapshot, idempotent order submission, and status polling.
package broker

import (
	"context"
	"time"

	"skipper/internal/money"
)

// OrderStatus is the venue-side order lifecycle.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusSubmitted OrderStatus = "submitted"
	StatusFilled    OrderStatus = "filled"
	StatusRejected  OrderStatus = "rejected"
	StatusCanceled  OrderStatus = "canceled"
	StatusExpired   OrderStatus = "expired"
)

// Terminal reports whether polling can stop.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusRejected, StatusCanceled, StatusExpired:
		return true
	default:
		return false
	}
}

// VenuePosition is one position as the venue reports it.
type VenuePosition struct {
	Symbol           string
	Quantity         int64
	AvgPriceCents    money.Cents
	MarketValueCents money.Cents
}

// AccountSnapshot is the venue's authoritative account state.
type AccountSnapshot struct {
	CashCents           money.Cents
	PortfolioValueCents money.Cents
	Positions           []VenuePosition
	FetchedAt           time.Time
}

// OrderRequest submits one order. IdempotencyKey is the intent id; a venue
// seeing the same key twice must not create a second order.
type OrderRequest struct {
	IdempotencyKey  string
	Symbol          string
	Side            string // BUY | SELL
	Quantity        int64
	LimitPriceCents money.Cents
}

// OrderAck is the immediate submission response.
type OrderAck struct {
	BrokerOrderID string
	Status        OrderStatus
}

// OrderState is a polled order status.
type OrderState struct {
	Status         OrderStatus
	FilledQuantity int64
	FillPriceCents money.Cents
	Reason         string // venue-reported reason for terminal non-fill states
}

// Venue is the brokerage interface the engine consumes.
type Venue interface {
	Name() string
	// FetchSnapshot re-fetches account state from the venue. Callers that
	// need fresh state (the reconciler) call this directly, never a cache.
	FetchSnapshot(ctx context.Context) (*AccountSnapshot, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderAck, error)
	OrderStatus(ctx context.Context, brokerOrderID string) (*OrderState, error)
}
