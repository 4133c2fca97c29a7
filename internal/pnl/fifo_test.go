package pnl

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skipper/internal/costmodel"
	"skipper/internal/ledger"
	"skipper/internal/ledger/sqlite"
	"skipper/internal/money"
)

func newTestUow(t *testing.T) ledger.UnitOfWork {
	t.Helper()
	store, err := sqlite.NewSqliteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { uow.Rollback() })
	return uow
}

func buyFill(qty int64, price money.Cents, at int64) Fill {
	return Fill{StrategyID: "s1", Symbol: "AAPL", Side: costmodel.Buy,
		Quantity: qty, PriceCents: price, ExecutedAt: at}
}

func TestSellSpansLotsFIFO(t *testing.T) {
	ctx := context.Background()
	uow := newTestUow(t)

	// 10 @ $150 then 5 @ $155.
	_, err := ApplyFill(ctx, uow, buyFill(10, money.Cents(15000), 100))
	require.NoError(t, err)
	_, err = ApplyFill(ctx, uow, buyFill(5, money.Cents(15500), 200))
	require.NoError(t, err)

	// Sell 12 @ $160 with $3 of costs: 10*(160-150) + 2*(160-155) - 3.
	realized, err := ApplyFill(ctx, uow, Fill{
		StrategyID: "s1", Symbol: "AAPL", Side: costmodel.Sell,
		Quantity: 12, PriceCents: money.Cents(16000), CostsCents: money.Cents(300),
		ExecutedAt: 300,
	})
	require.NoError(t, err)
	assert.Equal(t, money.Cents(10*1000+2*500-300), realized)

	// Oldest lot is gone, second lot keeps its residual 3 shares.
	open, err := uow.Lots().OpenLots(ctx, "s1", "AAPL")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.EqualValues(t, 3, open[0].Quantity)
	assert.EqualValues(t, 15500, open[0].CostBasisCents)

	pos, err := uow.Positions().Get(ctx, "s1", "AAPL")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.EqualValues(t, 3, pos.Quantity)
	assert.EqualValues(t, 15500, pos.AvgPriceCents)
}

func TestBuyRealizesNothing(t *testing.T) {
	ctx := context.Background()
	uow := newTestUow(t)

	realized, err := ApplyFill(ctx, uow, buyFill(10, money.Cents(15000), 100))
	require.NoError(t, err)
	assert.Equal(t, money.Cents(0), realized)

	pos, err := uow.Positions().Get(ctx, "s1", "AAPL")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.EqualValues(t, 10, pos.Quantity)
	assert.EqualValues(t, 15000, pos.AvgPriceCents)
	assert.EqualValues(t, 10*15000, pos.MarketValueCents)
}

func TestOversellIsFatal(t *testing.T) {
	ctx := context.Background()
	uow := newTestUow(t)

	_, err := ApplyFill(ctx, uow, buyFill(5, money.Cents(15000), 100))
	require.NoError(t, err)

	_, err = ApplyFill(ctx, uow, Fill{
		StrategyID: "s1", Symbol: "AAPL", Side: costmodel.Sell,
		Quantity: 6, PriceCents: money.Cents(16000), ExecutedAt: 200,
	})
	require.ErrorIs(t, err, ErrOversell)

	// Lots untouched after the refused sell.
	open, err := uow.Lots().OpenLots(ctx, "s1", "AAPL")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.EqualValues(t, 5, open[0].Quantity)
}

func TestFullExitDeletesPosition(t *testing.T) {
	ctx := context.Background()
	uow := newTestUow(t)

	_, err := ApplyFill(ctx, uow, buyFill(5, money.Cents(15000), 100))
	require.NoError(t, err)
	_, err = ApplyFill(ctx, uow, Fill{
		StrategyID: "s1", Symbol: "AAPL", Side: costmodel.Sell,
		Quantity: 5, PriceCents: money.Cents(14000), ExecutedAt: 200,
	})
	require.NoError(t, err)

	pos, err := uow.Positions().Get(ctx, "s1", "AAPL")
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestLossRealizesNegative(t *testing.T) {
	ctx := context.Background()
	uow := newTestUow(t)

	_, err := ApplyFill(ctx, uow, buyFill(10, money.Cents(15000), 100))
	require.NoError(t, err)

	realized, err := ApplyFill(ctx, uow, Fill{
		StrategyID: "s1", Symbol: "AAPL", Side: costmodel.Sell,
		Quantity: 10, PriceCents: money.Cents(14500), CostsCents: money.Cents(100),
		ExecutedAt: 200,
	})
	require.NoError(t, err)
	assert.Equal(t, money.Cents(-5100), realized)
}

func TestKeysAreIsolated(t *testing.T) {
	ctx := context.Background()
	uow := newTestUow(t)

	_, err := ApplyFill(ctx, uow, buyFill(10, money.Cents(15000), 100))
	require.NoError(t, err)
	_, err = ApplyFill(ctx, uow, Fill{
		StrategyID: "s2", Symbol: "AAPL", Side: costmodel.Buy,
		Quantity: 7, PriceCents: money.Cents(15000), ExecutedAt: 100,
	})
	require.NoError(t, err)

	// s2's inventory cannot satisfy s1's sell.
	_, err = ApplyFill(ctx, uow, Fill{
		StrategyID: "s1", Symbol: "AAPL", Side: costmodel.Sell,
		Quantity: 12, PriceCents: money.Cents(16000), ExecutedAt: 200,
	})
	require.ErrorIs(t, err, ErrOversell)
}

func TestVerifyInventory(t *testing.T) {
	ctx := context.Background()
	uow := newTestUow(t)

	_, err := ApplyFill(ctx, uow, buyFill(10, money.Cents(15000), 100))
	require.NoError(t, err)
	require.NoError(t, VerifyInventory(ctx, uow))

	// Corrupt the derived row behind the lot engine's back.
	pos, err := uow.Positions().Get(ctx, "s1", "AAPL")
	require.NoError(t, err)
	pos.Quantity = 99
	require.NoError(t, uow.Positions().Upsert(ctx, pos))

	err = VerifyInventory(ctx, uow)
	assert.ErrorContains(t, err, "inventory mismatch")
}
