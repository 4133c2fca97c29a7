// Package report assembles the end-of-run summary. Rendering to richer
// surfaces (email, dashboards) is downstream consumers' business; here the
// report is a struct, a log block and an audit row.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"skipper/internal/funnel"
	"skipper/internal/ledger/auditlog"
	"skipper/internal/ledger/model"
	"skipper/internal/logger"
	"skipper/internal/money"
)

// ExecutedTrade is one fill included in the report.
type ExecutedTrade struct {
	Symbol             string
	Side               string
	Quantity           int64
	ExecutedPriceCents money.Cents
	RealizedPnLCents   money.Cents
}

// RunReport is the complete outcome of one engine run.
type RunReport struct {
	RunDate             string
	TraceID             string
	Halted              bool
	HaltReason          string
	SafetyState         model.DrawdownState
	Reconciliation      model.SnapshotStatus
	Funnel              funnel.Counts
	Trades              []ExecutedTrade
	RealizedPnLCents    money.Cents
	PortfolioValueCents money.Cents
	StartedAt           time.Time
	FinishedAt          time.Time
}

// Render returns the human-readable text block for the log.
func (r *RunReport) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "运行日报  %s  (trace %s)\n", r.RunDate, r.TraceID)
	fmt.Fprintf(&b, "安全状态: %s    对账: %s\n", r.SafetyState, r.Reconciliation)
	if r.Halted {
		fmt.Fprintf(&b, "本次运行已停止: %s\n", r.HaltReason)
	}

	b.WriteString("信号漏斗:\n")
	for _, stage := range []model.SignalStage{model.StageRaw, model.StageRegime, model.StageCorrelation, model.StageRisk, model.StageExecuted} {
		fmt.Fprintf(&b, "  %-12s %d\n", stage, r.Funnel.Stage[stage.String()])
	}
	b.WriteString("终态:\n")
	for _, st := range []model.TerminalState{model.TerminalExecuted, model.TerminalRejected, model.TerminalFiltered, model.TerminalPendingDecay} {
		if n := r.Funnel.Terminal[st.String()]; n > 0 {
			fmt.Fprintf(&b, "  %-14s %d\n", st, n)
		}
	}
	if len(r.Funnel.Reasons) > 0 {
		b.WriteString("拒绝/过滤原因:\n")
		reasons := make([]string, 0, len(r.Funnel.Reasons))
		for reason := range r.Funnel.Reasons {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Fprintf(&b, "  %-24s %d\n", reason, r.Funnel.Reasons[reason])
		}
	}

	if len(r.Trades) > 0 {
		b.WriteString("成交:\n")
		for _, tr := range r.Trades {
			fmt.Fprintf(&b, "  %-4s %-18s @%-10s pnl %s\n",
				tr.Side, money.FormatQty(tr.Symbol, tr.Quantity), tr.ExecutedPriceCents, tr.RealizedPnLCents)
		}
	}
	fmt.Fprintf(&b, "当日已实现盈亏: %s\n", r.RealizedPnLCents)
	fmt.Fprintf(&b, "组合市值: %s\n", r.PortfolioValueCents)
	fmt.Fprintf(&b, "耗时: %s", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	return b.String()
}

// Log writes the rendered report as one block.
func (r *RunReport) Log() {
	logger.InfoBlock(r.Render())
}

// Persist appends the report to the audit store.
func (r *RunReport) Persist(ctx context.Context, audit *auditlog.Store) error {
	if audit == nil {
		return nil
	}
	return audit.AppendRunReport(ctx, auditlog.RunReportRecord{
		RunDate:        r.RunDate,
		TraceID:        r.TraceID,
		Halted:         r.Halted,
		HaltReason:     r.HaltReason,
		FunnelCounts:   r.Funnel.Stage,
		TerminalCounts: r.Funnel.Terminal,
		TradesExecuted: len(r.Trades),
		RealizedPnL:    int64(r.RealizedPnLCents),
		Reconciliation: r.Reconciliation.String(),
		SafetyState:    r.SafetyState.String(),
		PortfolioValue: int64(r.PortfolioValueCents),
		CreatedAt:      r.FinishedAt.Unix(),
	})
}
