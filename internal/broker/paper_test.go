package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skipper/internal/money"
)

func TestPaperBuySellRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(money.Cents(1_000_000))

	ack, err := p.SubmitOrder(ctx, OrderRequest{
		IdempotencyKey: "k1", Symbol: "aapl", Side: "BUY",
		Quantity: 10, LimitPriceCents: money.Cents(15000),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, ack.Status)

	state, err := p.OrderStatus(ctx, ack.BrokerOrderID)
	require.NoError(t, err)
	assert.EqualValues(t, 10, state.FilledQuantity)
	assert.Equal(t, money.Cents(15000), state.FillPriceCents)

	snap, err := p.FetchSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(850_000), snap.CashCents)
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, "AAPL", snap.Positions[0].Symbol)
	assert.EqualValues(t, 10, snap.Positions[0].Quantity)
	assert.Equal(t, money.Cents(1_000_000), snap.PortfolioValueCents)

	_, err = p.SubmitOrder(ctx, OrderRequest{
		IdempotencyKey: "k2", Symbol: "AAPL", Side: "SELL",
		Quantity: 10, LimitPriceCents: money.Cents(16000),
	})
	require.NoError(t, err)

	snap, err = p.FetchSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(1_010_000), snap.CashCents)
	assert.Empty(t, snap.Positions)
}

func TestPaperIdempotencyKeyReturnsOriginal(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(money.Cents(1_000_000))

	req := OrderRequest{IdempotencyKey: "k1", Symbol: "AAPL", Side: "BUY",
		Quantity: 10, LimitPriceCents: money.Cents(15000)}

	first, err := p.SubmitOrder(ctx, req)
	require.NoError(t, err)
	second, err := p.SubmitOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.BrokerOrderID, second.BrokerOrderID)

	// Only one fill happened.
	snap, err := p.FetchSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(850_000), snap.CashCents)
	assert.EqualValues(t, 10, snap.Positions[0].Quantity)
}

func TestPaperRejectsWhatItCannotFill(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(money.Cents(1000))

	ack, err := p.SubmitOrder(ctx, OrderRequest{
		IdempotencyKey: "k1", Symbol: "AAPL", Side: "BUY",
		Quantity: 10, LimitPriceCents: money.Cents(15000),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, ack.Status)

	state, err := p.OrderStatus(ctx, ack.BrokerOrderID)
	require.NoError(t, err)
	assert.Contains(t, state.Reason, "insufficient cash")

	ack, err = p.SubmitOrder(ctx, OrderRequest{
		IdempotencyKey: "k2", Symbol: "AAPL", Side: "SELL",
		Quantity: 1, LimitPriceCents: money.Cents(15000),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, ack.Status)
}

func TestPaperRejectAllHook(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(money.Cents(1_000_000))
	p.RejectAll("maintenance window")

	ack, err := p.SubmitOrder(ctx, OrderRequest{
		IdempotencyKey: "k1", Symbol: "AAPL", Side: "BUY",
		Quantity: 1, LimitPriceCents: money.Cents(15000),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, ack.Status)

	state, err := p.OrderStatus(ctx, ack.BrokerOrderID)
	require.NoError(t, err)
	assert.Equal(t, "maintenance window", state.Reason)
}
