package reconcile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skipper/internal/broker"
	"skipper/internal/ledger"
	"skipper/internal/ledger/model"
	"skipper/internal/ledger/sqlite"
	"skipper/internal/money"
)

func newTestStore(t *testing.T) ledger.Store {
	t.Helper()
	store, err := sqlite.NewSqliteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedLedger(t *testing.T, store ledger.Store, cash money.Cents, positions ...model.PositionModel) {
	t.Helper()
	ctx := context.Background()
	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	require.NoError(t, uow.Strategies().Upsert(ctx, &model.StrategyModel{
		ID: "s1", Name: "seed", CashCents: int64(cash), Enabled: true,
	}))
	for i := range positions {
		positions[i].StrategyID = "s1"
		require.NoError(t, uow.Positions().Upsert(ctx, &positions[i]))
	}
	require.NoError(t, uow.Commit())
}

func kinds(ds []Discrepancy) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Kind
	}
	return out
}

func TestReconcilePasses(t *testing.T) {
	store := newTestStore(t)
	venue := broker.NewPaper(money.Cents(1_000_000))
	venue.SetPosition("AAPL", 10, money.Cents(15000))

	seedLedger(t, store, money.Cents(1_000_000), model.PositionModel{
		Symbol: "AAPL", Quantity: 10, AvgPriceCents: 15000, MarketValueCents: 150_000,
	})

	res, err := New(venue, store, 0.05, 0.01).Reconcile(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Passed())
	assert.Empty(t, res.Discrepancies)
	assert.Equal(t, model.SnapshotPass, res.Status)
}

func TestReconcileQuantityMismatch(t *testing.T) {
	store := newTestStore(t)
	venue := broker.NewPaper(money.Cents(1_000_000))
	// Ledger says 2 shares at $162.08; broker says 4 at $349.50. The quantity
	// disagreement alone fails the run, the price gap is not double-counted.
	venue.SetPosition("AVGO", 4, money.Cents(34950))

	seedLedger(t, store, money.Cents(1_000_000), model.PositionModel{
		Symbol: "AVGO", Quantity: 2, AvgPriceCents: 16208, MarketValueCents: 32416,
	})

	res, err := New(venue, store, 0.05, 0.01).Reconcile(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Passed())
	assert.Equal(t, []string{"quantity"}, kinds(res.Discrepancies))
	d := res.Discrepancies[0]
	assert.Equal(t, "AVGO", d.Symbol)
	assert.EqualValues(t, 2, d.LocalQty)
	assert.EqualValues(t, 4, d.BrokerQty)
}

func TestReconcilePriceTolerance(t *testing.T) {
	store := newTestStore(t)
	venue := broker.NewPaper(money.Cents(1_000_000))
	venue.SetPosition("AAPL", 10, money.Cents(17100))

	// Same quantity, avg cost 5.2% away from the broker's: outside the 5% band.
	seedLedger(t, store, money.Cents(1_000_000), model.PositionModel{
		Symbol: "AAPL", Quantity: 10, AvgPriceCents: 16208, MarketValueCents: 162_080,
	})

	res, err := New(venue, store, 0.05, 0.01).Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"price"}, kinds(res.Discrepancies))
	assert.InDelta(t, 0.052, res.Discrepancies[0].PctDiff, 0.001)

	// A sub-tolerance drift passes.
	venue.SetPosition("AAPL", 10, money.Cents(16300))
	res, err = New(venue, store, 0.05, 0.01).Reconcile(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Passed())
}

func TestReconcilePhantoms(t *testing.T) {
	store := newTestStore(t)
	venue := broker.NewPaper(money.Cents(1_000_000))
	venue.SetPosition("MSFT", 5, money.Cents(40000))

	// AAPL exists only locally, MSFT only at the venue.
	seedLedger(t, store, money.Cents(1_000_000), model.PositionModel{
		Symbol: "AAPL", Quantity: 10, AvgPriceCents: 15000, MarketValueCents: 150_000,
	})

	res, err := New(venue, store, 0.05, 0.01).Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"phantom_local", "phantom_broker"}, kinds(res.Discrepancies))
	assert.Equal(t, "AAPL", res.Discrepancies[0].Symbol)
	assert.Equal(t, "MSFT", res.Discrepancies[1].Symbol)
}

func TestReconcileCashMismatch(t *testing.T) {
	store := newTestStore(t)
	venue := broker.NewPaper(money.Cents(900_000))

	seedLedger(t, store, money.Cents(1_000_000))

	res, err := New(venue, store, 0.05, 0.01).Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cash"}, kinds(res.Discrepancies))
	assert.Equal(t, money.Cents(1_000_000), res.Discrepancies[0].LocalCents)
	assert.Equal(t, money.Cents(900_000), res.Discrepancies[0].BrokerCents)
}

func TestReconcileAggregatesStrategies(t *testing.T) {
	store := newTestStore(t)
	venue := broker.NewPaper(money.Cents(1_000_000))
	venue.SetPosition("AAPL", 15, money.Cents(15000))

	ctx := context.Background()
	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Strategies().Upsert(ctx, &model.StrategyModel{ID: "s1", CashCents: 600_000, Enabled: true}))
	require.NoError(t, uow.Strategies().Upsert(ctx, &model.StrategyModel{ID: "s2", CashCents: 400_000, Enabled: true}))
	require.NoError(t, uow.Positions().Upsert(ctx, &model.PositionModel{
		StrategyID: "s1", Symbol: "AAPL", Quantity: 10, AvgPriceCents: 15000, MarketValueCents: 150_000,
	}))
	require.NoError(t, uow.Positions().Upsert(ctx, &model.PositionModel{
		StrategyID: "s2", Symbol: "AAPL", Quantity: 5, AvgPriceCents: 15000, MarketValueCents: 75_000,
	}))
	require.NoError(t, uow.Commit())

	res, err := New(venue, store, 0.05, 0.01).Reconcile(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Passed())
}
