package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skipper/internal/ledger"
	"skipper/internal/ledger/model"
)

const testDate = "2026-09-01"

func newStore(t *testing.T) *SqliteStore {
	t.Helper()
	store, err := NewSqliteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func begin(t *testing.T, store *SqliteStore) ledger.UnitOfWork {
	t.Helper()
	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	return uow
}

func TestStrategyUpsertPreservesCash(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	uow := begin(t, store)

	require.NoError(t, uow.Strategies().Upsert(ctx, &model.StrategyModel{
		ID: "momo", Name: "动量", AllocatedCapitalCents: 5_000_000, CashCents: 5_000_000, Enabled: true,
	}))
	require.NoError(t, uow.Strategies().AdjustCash(ctx, "momo", -150_000))
	require.NoError(t, uow.Commit())

	// Re-syncing the manifest must not reset the spent-down cash balance.
	uow = begin(t, store)
	require.NoError(t, uow.Strategies().Upsert(ctx, &model.StrategyModel{
		ID: "momo", Name: "动量v2", AllocatedCapitalCents: 6_000_000, CashCents: 6_000_000, Enabled: true,
	}))
	require.NoError(t, uow.Commit())

	uow = begin(t, store)
	defer uow.Rollback()
	strat, err := uow.Strategies().FindByID(ctx, "momo")
	require.NoError(t, err)
	require.NotNil(t, strat)
	assert.Equal(t, "动量v2", strat.Name)
	assert.EqualValues(t, 6_000_000, strat.AllocatedCapitalCents)
	assert.EqualValues(t, 4_850_000, strat.CashCents)
}

func TestFindByIDMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	uow := begin(t, newStore(t))
	defer uow.Rollback()

	strat, err := uow.Strategies().FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, strat)

	intent, err := uow.Intents().FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, intent)

	sig, err := uow.Signals().FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, sig)

	pos, err := uow.Positions().Get(ctx, "s1", "AAPL")
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestAdjustCashUnknownStrategy(t *testing.T) {
	uow := begin(t, newStore(t))
	defer uow.Rollback()
	assert.Error(t, uow.Strategies().AdjustCash(context.Background(), "nope", 100))
}

func TestSignalListsFilterByDateAndTerminal(t *testing.T) {
	ctx := context.Background()
	uow := begin(t, newStore(t))
	defer uow.Rollback()

	save := func(id, asOf string, terminal model.TerminalState) {
		require.NoError(t, uow.Signals().Save(ctx, &model.SignalModel{
			ID: id, StrategyID: "s1", Symbol: "AAPL", Side: "BUY", AsOf: asOf,
			TerminalState: terminal,
		}))
	}
	save("a", testDate, model.TerminalNone)
	save("b", testDate, model.TerminalExecuted)
	save("c", "2026-08-31", model.TerminalNone)

	byDate, err := uow.Signals().ListByDate(ctx, testDate)
	require.NoError(t, err)
	assert.Len(t, byDate, 2)

	open, err := uow.Signals().ListNonTerminal(ctx, testDate)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "a", open[0].ID)
}

func TestTradeSumRealizedPnL(t *testing.T) {
	ctx := context.Background()
	uow := begin(t, newStore(t))
	defer uow.Rollback()

	insert := func(intentID string, at int64, pnl int64) {
		require.NoError(t, uow.Trades().Insert(ctx, &model.TradeModel{
			IntentID: intentID, StrategyID: "s1", Symbol: "AAPL", Side: "SELL",
			Quantity: 1, RealizedPnLCents: pnl, ExecutedAtUnix: at,
		}))
	}
	// 2026-09-01 00:00:00 UTC = 1788220800.
	insert("i1", 1788220800, 5000)
	insert("i2", 1788220800+3600, -2000)
	insert("i3", 1788220800-3600, 9999) // previous day

	sum, err := uow.Trades().SumRealizedPnL(ctx, testDate)
	require.NoError(t, err)
	assert.EqualValues(t, 3000, sum)

	trades, err := uow.Trades().ListByDate(ctx, testDate)
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestSnapshotLatest(t *testing.T) {
	ctx := context.Background()
	uow := begin(t, newStore(t))
	defer uow.Rollback()

	none, err := uow.Snapshots().Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, uow.Snapshots().Append(ctx, &model.BrokerSnapshotModel{
		RunDate: "2026-08-31", CashCents: 100, Status: model.SnapshotPass,
	}))
	require.NoError(t, uow.Snapshots().Append(ctx, &model.BrokerSnapshotModel{
		RunDate: testDate, CashCents: 200, Status: model.SnapshotFail,
	}))

	latest, err := uow.Snapshots().Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, testDate, latest.RunDate)
	assert.Equal(t, model.SnapshotFail, latest.Status)

	// LatestBefore skips the same-day row and returns the prior baseline.
	baseline, err := uow.Snapshots().LatestBefore(ctx, testDate)
	require.NoError(t, err)
	require.NotNil(t, baseline)
	assert.Equal(t, "2026-08-31", baseline.RunDate)

	none, err = uow.Snapshots().LatestBefore(ctx, "2026-08-31")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	uow := begin(t, store)
	require.NoError(t, uow.Strategies().Upsert(ctx, &model.StrategyModel{ID: "s1", Enabled: true}))
	require.NoError(t, uow.Rollback())

	uow = begin(t, store)
	defer uow.Rollback()
	strat, err := uow.Strategies().FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, strat)
}
