// Package engine is the daily-batch orchestrator. One Run takes a run date
// through the full pipeline: venue snapshot, safety evaluation, broker
// reconciliation, signal collection, the gate stages, sized execution, and
// the end-of-run report. Every signal created for the date ends the run in
// exactly one terminal state.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"skipper/internal/broker"
	"skipper/internal/config"
	"skipper/internal/correlation"
	"skipper/internal/costmodel"
	"skipper/internal/execution"
	"skipper/internal/funnel"
	"skipper/internal/ledger"
	"skipper/internal/ledger/auditlog"
	"skipper/internal/ledger/model"
	"skipper/internal/logger"
	"skipper/internal/money"
	"skipper/internal/notify"
	"skipper/internal/pnl"
	"skipper/internal/reconcile"
	"skipper/internal/regime"
	"skipper/internal/report"
	"skipper/internal/risk"
	"skipper/internal/safety"
	"skipper/internal/strategy"
)

// Engine wires the run pipeline. Everything is injected; the engine owns
// nothing but the ordering.
type Engine struct {
	cfg        *config.Config
	store      ledger.Store
	audit      *auditlog.Store
	venue      broker.Venue
	safety     *safety.Machine
	reconciler *reconcile.Reconciler
	gate       *risk.Gate
	corr       *correlation.Filter
	classifier regime.Classifier
	executor   *execution.Executor
	strategies []strategy.Instance
	market     strategy.MarketData
	alerter    *notify.Alerter
	now        func() time.Time
}

func New(
	cfg *config.Config,
	store ledger.Store,
	audit *auditlog.Store,
	venue broker.Venue,
	safetyMachine *safety.Machine,
	reconciler *reconcile.Reconciler,
	gate *risk.Gate,
	corr *correlation.Filter,
	classifier regime.Classifier,
	executor *execution.Executor,
	strategies []strategy.Instance,
	market strategy.MarketData,
	alerter *notify.Alerter,
) *Engine {
	return &Engine{
		cfg:        cfg,
		store:      store,
		audit:      audit,
		venue:      venue,
		safety:     safetyMachine,
		reconciler: reconciler,
		gate:       gate,
		corr:       corr,
		classifier: classifier,
		executor:   executor,
		strategies: strategies,
		market:     market,
		alerter:    alerter,
		now:        time.Now,
	}
}

// candidate is a signal moving through the gate stages with its sizing state.
type candidate struct {
	sig       *model.SignalModel
	side      costmodel.Side
	price     money.Cents
	corrMult  decimal.Decimal
	execQty   int64
	heldCents money.Cents // exposure booked at the risk stage, for release
}

// Run executes one trading day. The returned report is non-nil whenever the
// pipeline got far enough to produce one, even on error.
func (e *Engine) Run(ctx context.Context, date string) (*report.RunReport, error) {
	if date == "" {
		date = e.now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("invalid run date %q: %w", date, err)
	}

	rep := &report.RunReport{
		RunDate:   date,
		TraceID:   uuid.NewString(),
		StartedAt: e.now(),
	}
	logger.BindRun(date, rep.TraceID)
	defer logger.UnbindRun()
	logger.Infof("运行开始 venue=%s", e.venue.Name())

	snap, err := e.venue.FetchSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: fetching opening snapshot: %w", err)
	}
	rep.PortfolioValueCents = snap.PortfolioValueCents

	if err := e.syncStrategies(ctx); err != nil {
		return nil, err
	}

	status, err := e.safety.Evaluate(ctx, snap.PortfolioValueCents)
	if err != nil {
		return nil, fmt.Errorf("engine: safety evaluation: %w", err)
	}
	rep.SafetyState = status.State
	e.alertOnSafety(ctx, status)

	halted := status.Halted()
	haltReason := ""
	if halted {
		haltReason = haltReasonFor(status)
	}

	// A halted run never reconciles, and the report says so instead of
	// claiming a pass that did not happen.
	rep.Reconciliation = model.SnapshotSkipped
	if !halted {
		recon, err := e.reconciler.Reconcile(ctx)
		if err != nil {
			return nil, fmt.Errorf("engine: reconciliation: %w", err)
		}
		rep.Reconciliation = recon.Status
		if err := e.persistSnapshot(ctx, date, recon); err != nil {
			return nil, err
		}
		if !recon.Passed() {
			halted = true
			haltReason = "reconciliation_failed"
			if err := e.safety.SetKillSwitch(ctx, true, haltReason); err != nil {
				return nil, err
			}
			e.alerter.Send(ctx, notify.Alert{
				Severity: notify.SeverityCritical,
				Kind:     "reconciliation_failed",
				Message:  fmt.Sprintf("%d discrepancies between ledger and %s; kill switch engaged", len(recon.Discrepancies), e.venue.Name()),
				Context:  map[string]any{"run_date": date, "discrepancies": len(recon.Discrepancies)},
			})
		}
	}

	// Signals are collected even on a halted run so the day's intake is
	// recorded before everything gets filtered.
	signals, err := e.collectSignals(ctx, date)
	if err != nil {
		return nil, err
	}
	logger.Infof("信号收集完成: %d 条 (策略 %d 个)", len(signals), len(e.strategies))

	if halted {
		rep.Halted = true
		rep.HaltReason = haltReason
		if err := e.terminateAll(ctx, date, haltReason); err != nil {
			return nil, err
		}
		return rep, e.finish(ctx, rep)
	}

	reg, err := e.classifier.Classify(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("engine: regime classification: %w", err)
	}
	dailyPnL, openNotional, held, err := e.openingState(ctx, date, snap.PortfolioValueCents)
	if err != nil {
		return nil, err
	}
	e.gate.BeginRun(reg, snap.PortfolioValueCents, openNotional, dailyPnL)
	logger.Infof("风控初始化: regime=%s 市值=%s 已有敞口=%s 当日盈亏=%s", reg, snap.PortfolioValueCents, openNotional, dailyPnL)

	approved, err := e.runGates(ctx, signals, status.Multiplier, held)
	if err != nil {
		return nil, err
	}

	winners, err := e.selectTopN(ctx, approved)
	if err != nil {
		return nil, err
	}

	if execErr := e.executeAll(ctx, winners); execErr != nil {
		rep.Halted = true
		rep.HaltReason = "execution_failure"
		e.alerter.Send(ctx, notify.Alert{
			Severity: notify.SeverityCritical,
			Kind:     "execution_failure",
			Message:  execErr.Error(),
			Context:  map[string]any{"run_date": date},
		})
		if err := e.terminateAll(ctx, date, "execution_error"); err != nil {
			return rep, err
		}
		if err := e.finish(ctx, rep); err != nil {
			return rep, err
		}
		return rep, execErr
	}

	return rep, e.finish(ctx, rep)
}

// syncStrategies makes sure every manifest strategy exists as a ledger row.
// New rows start with cash equal to their allocation; existing rows keep
// their cash history.
func (e *Engine) syncStrategies(ctx context.Context) error {
	uow, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()
	for _, inst := range e.strategies {
		existing, err := uow.Strategies().FindByID(ctx, inst.Entry.ID)
		if err != nil {
			return err
		}
		row := &model.StrategyModel{
			ID:                    inst.Entry.ID,
			Name:                  inst.Entry.Name,
			AllocatedCapitalCents: int64(inst.Entry.AllocatedCents()),
			Enabled:               true,
		}
		if existing == nil {
			row.CashCents = int64(inst.Entry.AllocatedCents())
		} else {
			row.CashCents = existing.CashCents
			row.CreatedAtUnix = existing.CreatedAtUnix
		}
		if err := uow.Strategies().Upsert(ctx, row); err != nil {
			return err
		}
	}
	return uow.Commit()
}

// collectSignals asks every strategy for proposals and persists them as raw
// signals. Non-terminal signals left over from an interrupted run of the
// same date are folded back in so they, too, reach a terminal state.
func (e *Engine) collectSignals(ctx context.Context, date string) ([]*model.SignalModel, error) {
	type batch struct {
		strategyID string
		proposals  []strategy.Proposal
	}
	results := make([]batch, len(e.strategies))

	collect := func(i int) error {
		inst := e.strategies[i]
		proposals, err := inst.Impl.GenerateSignals(ctx, e.market)
		if err != nil {
			// One strategy failing does not sink the run.
			logger.Errorf("策略 %s 生成信号失败: %v", inst.Entry.ID, err)
			e.alerter.Send(ctx, notify.Alert{
				Severity: notify.SeverityWarning,
				Kind:     "strategy_error",
				Message:  err.Error(),
				Context:  map[string]any{"strategy": inst.Entry.ID, "run_date": date},
			})
			return nil
		}
		results[i] = batch{strategyID: inst.Entry.ID, proposals: proposals}
		return nil
	}

	if e.cfg.Strategies.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i := range e.strategies {
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return collect(i)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range e.strategies {
			if err := collect(i); err != nil {
				return nil, err
			}
		}
	}

	uow, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	pending, err := uow.Signals().ListNonTerminal(ctx, date)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.SignalModel, len(pending))
	var out []*model.SignalModel
	for i := range pending {
		sig := &pending[i]
		byID[sig.ID] = sig
		out = append(out, sig)
	}

	now := e.now().Unix()
	for _, b := range results {
		for _, p := range b.proposals {
			id := p.SignalID
			if id == "" {
				id = uuid.NewString()
			}
			if _, resumed := byID[id]; resumed {
				continue
			}
			if existing, err := uow.Signals().FindByID(ctx, id); err != nil {
				return nil, err
			} else if existing != nil {
				// Already terminal from an earlier run of this date.
				continue
			}
			sig := &model.SignalModel{
				ID:            id,
				StrategyID:    b.strategyID,
				Symbol:        p.Symbol,
				Side:          p.Side,
				Confidence:    p.Confidence,
				Rationale:     p.Rationale,
				AsOf:          date,
				FunnelStage:   model.StageRaw,
				CreatedAtUnix: now,
				UpdatedAtUnix: now,
			}
			if err := uow.Signals().Save(ctx, sig); err != nil {
				return nil, err
			}
			byID[id] = sig
			out = append(out, sig)
		}
	}
	return out, uow.Commit()
}

// openingState derives the gate's run inputs from the ledger and snapshot.
// The breaker input covers both realized and unrealized daily P&L: when a
// snapshot from a prior date exists, the portfolio value delta against that
// baseline already includes today's realized trades plus overnight mark
// changes; otherwise only booked trades can have moved the needle.
func (e *Engine) openingState(ctx context.Context, date string, portfolioValue money.Cents) (dailyPnL, openNotional money.Cents, held []string, err error) {
	uow, err := e.store.Begin(ctx)
	if err != nil {
		return 0, 0, nil, err
	}
	defer uow.Rollback()

	realized, err := uow.Trades().SumRealizedPnL(ctx, date)
	if err != nil {
		return 0, 0, nil, err
	}
	baseline, err := uow.Snapshots().LatestBefore(ctx, date)
	if err != nil {
		return 0, 0, nil, err
	}
	positions, err := uow.Positions().List(ctx)
	if err != nil {
		return 0, 0, nil, err
	}
	if err := uow.Commit(); err != nil {
		return 0, 0, nil, err
	}

	dailyPnL = money.Cents(realized)
	if baseline != nil {
		dailyPnL = portfolioValue - money.Cents(baseline.PortfolioValueCents)
	}

	seen := make(map[string]struct{})
	for _, pos := range positions {
		if pos.Quantity <= 0 {
			continue
		}
		openNotional += money.Cents(pos.MarketValueCents)
		if _, ok := seen[pos.Symbol]; !ok {
			seen[pos.Symbol] = struct{}{}
			held = append(held, pos.Symbol)
		}
	}
	sort.Strings(held)
	return dailyPnL, openNotional, held, nil
}

// runGates pushes each signal through regime, correlation and risk, sizing
// as it goes. Survivors come back as candidates ready for execution.
func (e *Engine) runGates(ctx context.Context, signals []*model.SignalModel, safetyMult decimal.Decimal, held []string) ([]*candidate, error) {
	maxPos := decimal.NewFromFloat(e.cfg.Trading.MaxPositionPct)
	var approved []*candidate

	for _, sig := range signals {
		uow, err := e.store.Begin(ctx)
		if err != nil {
			return nil, err
		}
		cand, err := e.gateOne(ctx, uow, sig, safetyMult, maxPos, held)
		if err != nil {
			uow.Rollback()
			return nil, err
		}
		if err := uow.Commit(); err != nil {
			return nil, err
		}
		if cand != nil {
			approved = append(approved, cand)
		}
	}
	return approved, nil
}

func (e *Engine) advanceTo(ctx context.Context, uow ledger.UnitOfWork, sig *model.SignalModel, stage model.SignalStage) error {
	// Resumed signals may already be past earlier stages.
	for sig.FunnelStage < stage {
		if err := funnel.Advance(ctx, uow, sig, sig.FunnelStage+1); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) gateOne(ctx context.Context, uow ledger.UnitOfWork, sig *model.SignalModel, safetyMult, maxPos decimal.Decimal, held []string) (*candidate, error) {
	side, err := costmodel.ParseSide(sig.Side)
	if err != nil {
		return nil, funnel.Terminate(ctx, uow, sig, model.TerminalFiltered, "invalid_side")
	}
	price, err := e.market.LastPriceCents(ctx, sig.Symbol)
	if err != nil || price <= 0 {
		logger.Warnf("信号 %s: 无法取得 %s 价格: %v", sig.ID, sig.Symbol, err)
		return nil, funnel.Terminate(ctx, uow, sig, model.TerminalFiltered, "no_price")
	}

	if err := e.advanceTo(ctx, uow, sig, model.StageRegime); err != nil {
		return nil, err
	}

	corrMult := decimal.NewFromInt(1)
	if side == costmodel.Buy {
		dec, err := e.corr.Evaluate(ctx, sig.Symbol, held)
		if err != nil {
			logger.Warnf("信号 %s: 相关性评估失败: %v", sig.ID, err)
			return nil, funnel.Terminate(ctx, uow, sig, model.TerminalFiltered, "correlation_error")
		}
		if dec.Rejected {
			return nil, funnel.Terminate(ctx, uow, sig, model.TerminalRejected, dec.Reason)
		}
		corrMult = dec.Multiplier
	}
	if err := e.advanceTo(ctx, uow, sig, model.StageCorrelation); err != nil {
		return nil, err
	}

	var qty int64
	switch side {
	case costmodel.Sell:
		pos, err := uow.Positions().Get(ctx, sig.StrategyID, sig.Symbol)
		if err != nil {
			return nil, err
		}
		if pos == nil || pos.Quantity <= 0 {
			return nil, funnel.Terminate(ctx, uow, sig, model.TerminalFiltered, "no_position")
		}
		qty = pos.Quantity
	default:
		// Safety multiplier shrinks the budget before the gate sees it;
		// correlation attenuation is applied inside the gate and to the
		// final executed quantity.
		budget := e.gatePortfolioBudget(maxPos, safetyMult)
		qty = int64(budget / price)
		if qty <= 0 {
			return nil, funnel.Terminate(ctx, uow, sig, model.TerminalFiltered, "size_too_small")
		}
	}

	decision := e.gate.Evaluate(risk.Candidate{
		StrategyID: sig.StrategyID,
		SignalID:   sig.ID,
		Symbol:     sig.Symbol,
		Side:       side,
		Quantity:   qty,
		PriceCents: price,
	}, corrMult)
	if !decision.Accepted {
		return nil, funnel.Terminate(ctx, uow, sig, model.TerminalRejected, decision.Reason)
	}

	execQty := qty
	heldCents := money.Cents(0)
	if side == costmodel.Buy {
		execQty = int64(decimal.NewFromInt(qty).Mul(corrMult).IntPart())
		heldCents = price.Mul(qty).MulRatio(corrMult)
		if execQty <= 0 {
			e.gate.ReleaseExposure(heldCents)
			return nil, funnel.Terminate(ctx, uow, sig, model.TerminalFiltered, "size_too_small")
		}
	}

	if err := e.advanceTo(ctx, uow, sig, model.StageRisk); err != nil {
		return nil, err
	}
	return &candidate{sig: sig, side: side, price: price, corrMult: corrMult, execQty: execQty, heldCents: heldCents}, nil
}

func (e *Engine) gatePortfolioBudget(maxPos, safetyMult decimal.Decimal) money.Cents {
	value := e.gate.PortfolioValue()
	return value.MulRatio(maxPos.Mul(safetyMult))
}

// selectTopN keeps the highest-confidence candidates per strategy and parks
// the rest as PENDING_DECAY: still valid alpha, no capacity today.
func (e *Engine) selectTopN(ctx context.Context, approved []*candidate) ([]*candidate, error) {
	topN := e.cfg.Trading.TopNPerStrategy
	if topN <= 0 || len(approved) == 0 {
		return approved, nil
	}

	byStrategy := make(map[string][]*candidate)
	for _, c := range approved {
		byStrategy[c.sig.StrategyID] = append(byStrategy[c.sig.StrategyID], c)
	}

	var winners, losers []*candidate
	for _, group := range byStrategy {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].sig.Confidence > group[j].sig.Confidence
		})
		for i, c := range group {
			if i < topN {
				winners = append(winners, c)
			} else {
				losers = append(losers, c)
			}
		}
	}
	// Keep submission order deterministic across runs.
	sort.Slice(winners, func(i, j int) bool { return winners[i].sig.ID < winners[j].sig.ID })

	if len(losers) > 0 {
		uow, err := e.store.Begin(ctx)
		if err != nil {
			return nil, err
		}
		defer uow.Rollback()
		for _, c := range losers {
			e.gate.ReleaseExposure(c.heldCents)
			if err := funnel.Terminate(ctx, uow, c.sig, model.TerminalPendingDecay, "capacity_top_n"); err != nil {
				return nil, err
			}
		}
		if err := uow.Commit(); err != nil {
			return nil, err
		}
	}
	return winners, nil
}

// executeAll submits winners one by one. Any executor error is fatal to the
// run; the caller turns it into a halt.
func (e *Engine) executeAll(ctx context.Context, winners []*candidate) error {
	for _, c := range winners {
		outcome, err := e.executor.Execute(ctx, execution.Request{
			Signal:          c.sig,
			Quantity:        c.execQty,
			LimitPriceCents: c.price,
		})
		if err != nil {
			return err
		}
		switch {
		case outcome.Duplicate:
			// Intent already handled by a previous run; close the signal out.
			if c.sig.TerminalState == model.TerminalNone {
				if err := e.terminateOne(ctx, c.sig, model.TerminalExecuted, "idempotent_replay"); err != nil {
					return err
				}
			}
			e.gate.ReleaseExposure(c.heldCents)
		case outcome.Status == model.IntentFilled:
			e.gate.AddDailyPnL(outcome.RealizedPnLCents)
		default:
			e.gate.ReleaseExposure(c.heldCents)
		}
	}
	return nil
}

func (e *Engine) terminateOne(ctx context.Context, sig *model.SignalModel, state model.TerminalState, reason string) error {
	uow, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()
	if err := funnel.Terminate(ctx, uow, sig, state, reason); err != nil {
		return err
	}
	return uow.Commit()
}

func (e *Engine) terminateAll(ctx context.Context, date, reason string) error {
	uow, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()
	n, err := funnel.TerminateAll(ctx, uow, date, model.TerminalFiltered, reason)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Warnf("已将 %d 条未终结信号标记为 FILTERED(%s)", n, reason)
	}
	return uow.Commit()
}

// finish closes the run: terminal invariant, report assembly, persistence,
// log block and summary push.
func (e *Engine) finish(ctx context.Context, rep *report.RunReport) error {
	uow, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	if err := funnel.AssertAllTerminal(ctx, uow, rep.RunDate); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	counts, err := funnel.Count(ctx, uow, rep.RunDate)
	if err != nil {
		return err
	}
	rep.Funnel = counts

	trades, err := uow.Trades().ListByDate(ctx, rep.RunDate)
	if err != nil {
		return err
	}
	for _, tr := range trades {
		rep.Trades = append(rep.Trades, report.ExecutedTrade{
			Symbol:             tr.Symbol,
			Side:               tr.Side,
			Quantity:           tr.Quantity,
			ExecutedPriceCents: money.Cents(tr.ExecutedPriceCents),
			RealizedPnLCents:   money.Cents(tr.RealizedPnLCents),
		})
		rep.RealizedPnLCents += money.Cents(tr.RealizedPnLCents)
	}

	if err := pnl.VerifyInventory(ctx, uow); err != nil {
		return fmt.Errorf("engine: inventory check: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	if snap, err := e.venue.FetchSnapshot(ctx); err == nil {
		rep.PortfolioValueCents = snap.PortfolioValueCents
	}

	rep.FinishedAt = e.now()
	rep.Log()
	if err := rep.Persist(ctx, e.audit); err != nil {
		return fmt.Errorf("engine: persisting run report: %w", err)
	}

	e.alerter.Send(ctx, notify.Alert{
		Severity: notify.SeverityInfo,
		Kind:     "daily_run_report",
		Message:  fmt.Sprintf("%s 运行完成, 成交 %d 笔, 已实现盈亏 %s", rep.RunDate, len(rep.Trades), rep.RealizedPnLCents),
		Context: map[string]any{
			"run_date":    rep.RunDate,
			"trace_id":    rep.TraceID,
			"halted":      rep.Halted,
			"safety":      rep.SafetyState.String(),
			"reconcile":   rep.Reconciliation.String(),
			"trades":      len(rep.Trades),
			"pnl_cents":   int64(rep.RealizedPnLCents),
			"value_cents": int64(rep.PortfolioValueCents),
		},
	})
	return nil
}

func (e *Engine) persistSnapshot(ctx context.Context, date string, recon *reconcile.Result) error {
	positionsJSON, err := json.Marshal(recon.Snapshot.Positions)
	if err != nil {
		return err
	}
	discJSON, err := json.Marshal(recon.Discrepancies)
	if err != nil {
		return err
	}
	uow, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()
	if err := uow.Snapshots().Append(ctx, &model.BrokerSnapshotModel{
		RunDate:             date,
		CashCents:           int64(recon.Snapshot.CashCents),
		PortfolioValueCents: int64(recon.Snapshot.PortfolioValueCents),
		Positions:           positionsJSON,
		Status:              recon.Status,
		Discrepancies:       discJSON,
		CreatedAtUnix:       e.now().Unix(),
	}); err != nil {
		return err
	}
	return uow.Commit()
}

func (e *Engine) alertOnSafety(ctx context.Context, status safety.Status) {
	switch {
	case status.EnteredPanic:
		e.alerter.Send(ctx, notify.Alert{
			Severity: notify.SeverityCritical,
			Kind:     "safety_panic",
			Message:  fmt.Sprintf("回撤 %.1f%% 触发 PANIC, 需人工 clear-panic 恢复", status.DrawdownPct*100),
			Context:  map[string]any{"drawdown_pct": status.DrawdownPct, "peak_cents": int64(status.PeakValue)},
		})
	case status.EnteredHalt:
		e.alerter.Send(ctx, notify.Alert{
			Severity: notify.SeverityCritical,
			Kind:     "safety_halt",
			Message:  fmt.Sprintf("回撤 %.1f%% 触发 HALT, 冷却后自动进入 RAMPUP", status.DrawdownPct*100),
			Context:  map[string]any{"drawdown_pct": status.DrawdownPct, "peak_cents": int64(status.PeakValue)},
		})
	case status.KillSwitchActive:
		e.alerter.Send(ctx, notify.Alert{
			Severity: notify.SeverityWarning,
			Kind:     "kill_switch_active",
			Message:  "kill switch 生效, 本次运行不下单",
			Context:  map[string]any{"reason": status.KillSwitchReason},
		})
	}
}

func haltReasonFor(status safety.Status) string {
	switch {
	case status.KillSwitchActive:
		return "kill_switch"
	case status.State == model.DrawdownPanic:
		return "drawdown_panic"
	default:
		return "drawdown_halt"
	}
}
