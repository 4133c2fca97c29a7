package auditlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAlertsRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendAlert(ctx, AlertRecord{
		Severity: "WARNING", Kind: "strategy_error", Message: "boom",
		Context: map[string]any{"strategy": "momo"}, CreatedAt: 100,
	}))
	require.NoError(t, s.AppendAlert(ctx, AlertRecord{
		Severity: "CRITICAL", Kind: "safety_panic", Message: "drawdown", CreatedAt: 200,
	}))

	alerts, err := s.ListAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	// Newest first.
	assert.Equal(t, "safety_panic", alerts[0].Kind)
	assert.Equal(t, "strategy_error", alerts[1].Kind)
	assert.Equal(t, "momo", alerts[1].Context["strategy"])
	assert.Nil(t, alerts[0].Context)
}

func TestListAlertsLimit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendAlert(ctx, AlertRecord{Severity: "INFO", Kind: "k", Message: "m"}))
	}
	alerts, err := s.ListAlerts(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, alerts, 3)
}

func TestRunReportRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, ok, err := s.LatestRunReport(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AppendRunReport(ctx, RunReportRecord{
		RunDate: "2026-08-31", TraceID: "t0", TradesExecuted: 0,
	}))
	require.NoError(t, s.AppendRunReport(ctx, RunReportRecord{
		RunDate: "2026-09-01", TraceID: "t1", Halted: true, HaltReason: "kill_switch",
		FunnelCounts:   map[string]int{"raw": 3},
		TerminalCounts: map[string]int{"FILTERED": 3},
		Reconciliation: "PASS", SafetyState: "NORMAL", PortfolioValue: 10_000_000,
	}))

	rec, ok, err := s.LatestRunReport(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2026-09-01", rec.RunDate)
	assert.True(t, rec.Halted)
	assert.Equal(t, "kill_switch", rec.HaltReason)
	assert.Equal(t, 3, rec.FunnelCounts["raw"])
	assert.Equal(t, 3, rec.TerminalCounts["FILTERED"])
}

func TestClosedStoreErrors(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Close())

	assert.Error(t, s.AppendAlert(context.Background(), AlertRecord{Severity: "INFO", Kind: "k", Message: "m"}))
	_, err := s.ListAlerts(context.Background(), 1)
	assert.Error(t, err)
}
