package safety

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func testMachine(t *testing.T) *Machine {
	return NewMachine(Config{
		HaltDrawdownPct:  0.08,
		PanicDrawdownPct: 0.10,
		HaltCooldownRuns: 2,
		RampupRuns:       2,
		RampupMultiplier: 0.5,
	}, newTestStore(t))
}

func TestNormalFullMultiplier(t *testing.T) {
	m := testMachine(t)
	ctx := context.Background()

	st, err := m.Evaluate(ctx, money.Cents(10_000_000))
	require.NoError(t, err)
	assert.Equal(t, model.DrawdownNormal, st.State)
	assert.Equal(t, "1", st.Multiplier.String())
	assert.False(t, st.Halted())
	assert.Equal(t, money.Cents(10_000_000), st.PeakValue)
}

func TestHaltCooldownRampupRecovery(t *testing.T) {
	m := testMachine(t)
	ctx := context.Background()

	// Establish the peak, then draw down 8%.
	_, err := m.Evaluate(ctx, money.Cents(10_000_000))
	require.NoError(t, err)
	st, err := m.Evaluate(ctx, money.Cents(9_200_000))
	require.NoError(t, err)
	assert.Equal(t, model.DrawdownHalt, st.State)
	assert.True(t, st.EnteredHalt)
	assert.True(t, st.Halted())
	assert.True(t, st.Multiplier.IsZero())

	// Two cooldown runs before RAMPUP is reached.
	st, err = m.Evaluate(ctx, money.Cents(9_200_000))
	require.NoError(t, err)
	assert.Equal(t, model.DrawdownHalt, st.State)
	assert.False(t, st.EnteredHalt)

	st, err = m.Evaluate(ctx, money.Cents(9_200_000))
	require.NoError(t, err)
	assert.Equal(t, model.DrawdownRampup, st.State)
	assert.False(t, st.Halted())
	assert.Equal(t, "0.5", st.Multiplier.String())

	// Rampup runs elapse back to NORMAL.
	st, err = m.Evaluate(ctx, money.Cents(9_300_000))
	require.NoError(t, err)
	assert.Equal(t, model.DrawdownRampup, st.State)

	st, err = m.Evaluate(ctx, money.Cents(9_400_000))
	require.NoError(t, err)
	assert.Equal(t, model.DrawdownNormal, st.State)
	assert.Equal(t, "1", st.Multiplier.String())
}

func TestPanicIsSticky(t *testing.T) {
	m := testMachine(t)
	ctx := context.Background()

	_, err := m.Evaluate(ctx, money.Cents(10_000_000))
	require.NoError(t, err)
	st, err := m.Evaluate(ctx, money.Cents(8_900_000)) // 11% drawdown
	require.NoError(t, err)
	assert.Equal(t, model.DrawdownPanic, st.State)
	assert.True(t, st.EnteredPanic)

	// Full recovery of value does not exit PANIC.
	st, err = m.Evaluate(ctx, money.Cents(10_500_000))
	require.NoError(t, err)
	assert.Equal(t, model.DrawdownPanic, st.State)
	assert.True(t, st.Halted())
}

func TestClearPanicDropsIntoRampup(t *testing.T) {
	m := testMachine(t)
	ctx := context.Background()

	_, err := m.Evaluate(ctx, money.Cents(10_000_000))
	require.NoError(t, err)
	_, err = m.Evaluate(ctx, money.Cents(8_900_000))
	require.NoError(t, err)

	require.NoError(t, m.ClearPanic(ctx))

	row, err := m.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DrawdownRampup, row.DrawdownState)
	// Peak resets so the drawn-down account doesn't re-trigger immediately.
	assert.EqualValues(t, 0, row.PeakPortfolioValueCents)

	st, err := m.Evaluate(ctx, money.Cents(8_900_000))
	require.NoError(t, err)
	assert.Equal(t, model.DrawdownRampup, st.State)
	assert.Equal(t, "0.5", st.Multiplier.String())
}

func TestClearPanicRejectsOtherStates(t *testing.T) {
	m := testMachine(t)
	assert.Error(t, m.ClearPanic(context.Background()))
}

func TestKillSwitchZeroesMultiplier(t *testing.T) {
	m := testMachine(t)
	ctx := context.Background()

	require.NoError(t, m.SetKillSwitch(ctx, true, "manual stop"))

	st, err := m.Evaluate(ctx, money.Cents(10_000_000))
	require.NoError(t, err)
	assert.True(t, st.KillSwitchActive)
	assert.Equal(t, "manual stop", st.KillSwitchReason)
	assert.True(t, st.Halted())
	assert.True(t, st.Multiplier.IsZero())
	// Drawdown machine itself stays NORMAL underneath.
	assert.Equal(t, model.DrawdownNormal, st.State)

	require.NoError(t, m.SetKillSwitch(ctx, false, ""))
	st, err = m.Evaluate(ctx, money.Cents(10_000_000))
	require.NoError(t, err)
	assert.False(t, st.Halted())
}

func TestKillSwitchFileEngages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "killswitch.json")
	m := NewMachine(Config{
		HaltDrawdownPct:  0.08,
		PanicDrawdownPct: 0.10,
		HaltCooldownRuns: 2,
		RampupRuns:       2,
		RampupMultiplier: 0.5,
		KillSwitchFile:   path,
	}, newTestStore(t))
	ctx := context.Background()

	st, err := m.Evaluate(ctx, money.Cents(10_000_000))
	require.NoError(t, err)
	assert.False(t, st.KillSwitchActive)

	require.NoError(t, os.WriteFile(path, []byte(`{"reason":"ops"}`), 0o644))

	st, err = m.Evaluate(ctx, money.Cents(10_000_000))
	require.NoError(t, err)
	assert.True(t, st.KillSwitchActive)
	assert.True(t, st.Halted())
}
