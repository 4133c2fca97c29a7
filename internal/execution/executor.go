// Package execution turns risk-approved signals into broker orders. Every
// submission is keyed by a deterministic intent id, so re-running a day after
// a crash replays the intents instead of duplicating orders.
package execution

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"skipper/internal/broker"
	"skipper/internal/costmodel"
	"skipper/internal/funnel"
	"skipper/internal/ledger"
	"skipper/internal/ledger/model"
	"skipper/internal/logger"
	"skipper/internal/money"
	"skipper/internal/pnl"
)

// IntentID derives the deterministic intent hash. The same signal on the same
// run date always maps to the same id, which is what makes retries safe.
func IntentID(strategyID, symbol, side, asOf, signalID string) string {
	payload := strings.Join([]string{strategyID, symbol, side, asOf, signalID}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Request is one approved order to place.
type Request struct {
	Signal          *model.SignalModel
	Quantity        int64
	LimitPriceCents money.Cents
}

// Outcome reports what happened to one request.
type Outcome struct {
	IntentID         string
	Status           model.IntentStatus
	Duplicate        bool // an intent for this signal already reached SUBMITTED/terminal
	RealizedPnLCents money.Cents
	Reason           string
}

// Executor submits orders and books their fills.
type Executor struct {
	venue        broker.Venue
	store        ledger.Store
	costs        *costmodel.Model
	pollAttempts int
	pollInterval time.Duration
	now          func() time.Time
}

func New(venue broker.Venue, store ledger.Store, costs *costmodel.Model, pollAttempts int, pollInterval time.Duration) *Executor {
	if pollAttempts <= 0 {
		pollAttempts = 10
	}
	return &Executor{
		venue:        venue,
		store:        store,
		costs:        costs,
		pollAttempts: pollAttempts,
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

// Execute runs one request through intent creation, submission, polling and
// booking. An error return is fatal to the run: it means the ledger may be
// ahead of or behind the venue and a human (or the reconciler) must look.
func (e *Executor) Execute(ctx context.Context, req Request) (*Outcome, error) {
	sig := req.Signal
	side, err := costmodel.ParseSide(sig.Side)
	if err != nil {
		return nil, fmt.Errorf("execution: signal %s: %w", sig.ID, err)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("execution: signal %s: quantity must be positive, got %d", sig.ID, req.Quantity)
	}

	intentID := IntentID(sig.StrategyID, sig.Symbol, sig.Side, sig.AsOf, sig.ID)
	quote := e.costs.Quote(side, req.LimitPriceCents, req.Quantity)

	created, reserved, err := e.prepareIntent(ctx, intentID, sig, side, quote, req.Quantity)
	if err != nil {
		return nil, err
	}
	if !created {
		logger.Infof("执行: 意图 %s 已存在, 跳过重复提交 (%s)", intentID[:12], money.FormatQty(sig.Symbol, req.Quantity))
		return &Outcome{IntentID: intentID, Status: model.IntentSubmitted, Duplicate: true}, nil
	}

	// The order goes out at the cost-model price, not the raw signal price:
	// the limit already carries the slippage the venue is expected to take.
	ack, err := e.venue.SubmitOrder(ctx, broker.OrderRequest{
		IdempotencyKey:  intentID,
		Symbol:          sig.Symbol,
		Side:            sig.Side,
		Quantity:        req.Quantity,
		LimitPriceCents: quote.ExecutedPriceCents,
	})
	if err != nil {
		// The order may or may not have reached the venue. The intent row
		// stays SUBMITTED so the next run replays it instead of re-deriving.
		return nil, fmt.Errorf("execution: submitting intent %s: %w", intentID[:12], err)
	}

	state, err := e.awaitTerminal(ctx, ack)
	if err != nil {
		return nil, fmt.Errorf("execution: intent %s: %w", intentID[:12], err)
	}

	switch state.Status {
	case broker.StatusFilled:
		return e.bookFill(ctx, intentID, ack.BrokerOrderID, sig, side, req, state, reserved)
	default:
		return e.bookNonFill(ctx, intentID, ack.BrokerOrderID, sig, state, reserved)
	}
}

// prepareIntent writes the intent row and the cash reservation in one
// transaction, committed before anything touches the venue. created=false
// means the id already existed and the caller must not submit again.
func (e *Executor) prepareIntent(ctx context.Context, intentID string, sig *model.SignalModel, side costmodel.Side, quote costmodel.Execution, qty int64) (created bool, reserved money.Cents, err error) {
	uow, err := e.store.Begin(ctx)
	if err != nil {
		return false, 0, err
	}
	defer uow.Rollback()

	if existing, err := uow.Intents().FindByID(ctx, intentID); err != nil {
		return false, 0, err
	} else if existing != nil {
		return false, 0, nil
	}

	if side == costmodel.Buy {
		strat, err := uow.Strategies().FindByID(ctx, sig.StrategyID)
		if err != nil {
			return false, 0, err
		}
		if strat == nil {
			return false, 0, fmt.Errorf("strategy %s not found", sig.StrategyID)
		}
		reserved = quote.TotalCost(qty)
		if money.Cents(strat.CashCents) < reserved {
			return false, 0, fmt.Errorf("strategy %s: insufficient cash: have %s, need %s",
				sig.StrategyID, money.Cents(strat.CashCents), reserved)
		}
		if err := uow.Strategies().AdjustCash(ctx, sig.StrategyID, -int64(reserved)); err != nil {
			return false, 0, err
		}
	}

	now := e.now().Unix()
	intent := &model.OrderIntentModel{
		IntentID:      intentID,
		SignalID:      sig.ID,
		StrategyID:    sig.StrategyID,
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		AsOf:          sig.AsOf,
		Status:        model.IntentSubmitted,
		ReservedCents: int64(reserved),
		CreatedAtUnix: now,
		UpdatedAtUnix: now,
	}
	if err := uow.Intents().Create(ctx, intent); err != nil {
		return false, 0, err
	}
	if err := uow.Commit(); err != nil {
		return false, 0, err
	}
	return true, reserved, nil
}

// awaitTerminal polls the venue until the order settles or attempts run out.
// Exhaustion is an error: an order in an unknown state must stop the run.
func (e *Executor) awaitTerminal(ctx context.Context, ack *broker.OrderAck) (*broker.OrderState, error) {
	if ack.Status.Terminal() {
		return e.venue.OrderStatus(ctx, ack.BrokerOrderID)
	}
	for attempt := 1; attempt <= e.pollAttempts; attempt++ {
		state, err := e.venue.OrderStatus(ctx, ack.BrokerOrderID)
		if err != nil {
			logger.Warnf("执行: 查询订单 %s 状态失败 (第%d次): %v", ack.BrokerOrderID, attempt, err)
		} else if state.Status.Terminal() {
			return state, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.pollInterval):
		}
	}
	return nil, fmt.Errorf("order %s not terminal after %d polls", ack.BrokerOrderID, e.pollAttempts)
}

// bookFill records the trade, books lots and P&L, and settles the cash
// reservation against the actual fill, all in one transaction.
func (e *Executor) bookFill(ctx context.Context, intentID, brokerOrderID string, sig *model.SignalModel, side costmodel.Side, req Request, state *broker.OrderState, reserved money.Cents) (*Outcome, error) {
	uow, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	fillPrice := state.FillPriceCents
	fillQty := state.FilledQuantity
	if fillQty <= 0 {
		fillQty = req.Quantity
	}
	// Slippage on the trade row is whatever the fill actually cost against
	// the signal's requested price (the submitted limit already carried the
	// modelled slippage, so a limit fill records exactly that amount).
	slipPerShare := (fillPrice - req.LimitPriceCents).Abs()
	actual := e.costs.Quote(side, req.LimitPriceCents, fillQty)
	commission := actual.CommissionCents

	realized, err := pnl.ApplyFill(ctx, uow, pnl.Fill{
		StrategyID: sig.StrategyID,
		Symbol:     sig.Symbol,
		Side:       side,
		Quantity:   fillQty,
		PriceCents: fillPrice,
		CostsCents: commission,
		ExecutedAt: e.now().Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("booking fill for intent %s: %w", intentID[:12], err)
	}

	// Settle cash: the BUY reservation was an estimate; replace it with the
	// actual debit. SELLs reserved nothing and simply credit the proceeds.
	if side == costmodel.Buy {
		actualCost := fillPrice.Mul(fillQty) + commission
		if err := uow.Strategies().AdjustCash(ctx, sig.StrategyID, int64(reserved-actualCost)); err != nil {
			return nil, err
		}
	} else {
		proceeds := fillPrice.Mul(fillQty) - commission
		if err := uow.Strategies().AdjustCash(ctx, sig.StrategyID, int64(proceeds)); err != nil {
			return nil, err
		}
	}
	if err := uow.Intents().SetReservation(ctx, intentID, 0); err != nil {
		return nil, err
	}
	if err := uow.Intents().UpdateStatus(ctx, intentID, model.IntentFilled, brokerOrderID); err != nil {
		return nil, err
	}

	if err := uow.Trades().Insert(ctx, &model.TradeModel{
		IntentID:            intentID,
		StrategyID:          sig.StrategyID,
		Symbol:              sig.Symbol,
		Side:                sig.Side,
		Quantity:            fillQty,
		RequestedPriceCents: int64(req.LimitPriceCents),
		ExecutedPriceCents:  int64(fillPrice),
		SlippageCents:       int64(slipPerShare.Mul(fillQty)),
		CommissionCents:     int64(commission),
		RealizedPnLCents:    int64(realized),
		ExecutedAtUnix:      e.now().Unix(),
	}); err != nil {
		return nil, err
	}

	if err := funnel.Advance(ctx, uow, sig, model.StageExecuted); err != nil {
		return nil, err
	}
	if err := funnel.Terminate(ctx, uow, sig, model.TerminalExecuted, "filled"); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	logger.Infof("执行: %s %s @%s 成交, 已实现盈亏 %s",
		sig.Side, money.FormatQty(sig.Symbol, fillQty), fillPrice, realized)
	return &Outcome{IntentID: intentID, Status: model.IntentFilled, RealizedPnLCents: realized}, nil
}

// bookNonFill releases the reservation and funnels the signal out with the
// venue's reason.
func (e *Executor) bookNonFill(ctx context.Context, intentID, brokerOrderID string, sig *model.SignalModel, state *broker.OrderState, reserved money.Cents) (*Outcome, error) {
	uow, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if reserved > 0 {
		if err := uow.Strategies().AdjustCash(ctx, sig.StrategyID, int64(reserved)); err != nil {
			return nil, err
		}
		if err := uow.Intents().SetReservation(ctx, intentID, 0); err != nil {
			return nil, err
		}
	}

	status := intentStatusFor(state.Status)
	if err := uow.Intents().UpdateStatus(ctx, intentID, status, brokerOrderID); err != nil {
		return nil, err
	}

	reason := state.Reason
	if reason == "" {
		reason = "broker_" + string(state.Status)
	}
	if err := funnel.Terminate(ctx, uow, sig, model.TerminalFiltered, reason); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	logger.Warnf("执行: 订单 %s 未成交 (%s): %s", brokerOrderID, status, reason)
	return &Outcome{IntentID: intentID, Status: status, Reason: reason}, nil
}

func intentStatusFor(s broker.OrderStatus) model.IntentStatus {
	switch s {
	case broker.StatusFilled:
		return model.IntentFilled
	case broker.StatusCanceled:
		return model.IntentCanceled
	case broker.StatusExpired:
		return model.IntentExpired
	default:
		return model.IntentRejected
	}
}
