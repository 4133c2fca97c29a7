// Package pnl attributes realized P&L with FIFO lot matching. Buys append
// lots; sells consume the oldest lots first, spanning as many as needed.
// Overselling is a data-integrity failure, never a clamp.
package pnl

import (
	"context"
	"errors"
	"fmt"

	"skipper/internal/costmodel"
	"skipper/internal/ledger"
	"skipper/internal/ledger/model"
	"skipper/internal/money"
)

// ErrOversell means a sell quantity exceeded the open-lot inventory for its
// (strategy, symbol) key. This halts the run: the ledger and the fill stream
// disagree about what is held.
var ErrOversell = errors.New("sell quantity exceeds open lot inventory")

// Fill is one confirmed execution to book.
type Fill struct {
	StrategyID string
	Symbol     string
	Side       costmodel.Side
	Quantity   int64
	PriceCents money.Cents // executed price per share
	CostsCents money.Cents // costs allocated against this fill's realized P&L
	ExecutedAt int64
}

// lotQueue is a FIFO view over open lots: the backing slice is the arena,
// head is the consumption index. Lots arrive oldest first from the repo.
type lotQueue struct {
	lots []model.LotModel
	head int
}

func (q *lotQueue) empty() bool { return q.head >= len(q.lots) }

func (q *lotQueue) front() *model.LotModel { return &q.lots[q.head] }

func (q *lotQueue) pop() { q.head++ }

func (q *lotQueue) totalQuantity() int64 {
	var total int64
	for i := q.head; i < len(q.lots); i++ {
		total += q.lots[i].Quantity
	}
	return total
}

// ApplyFill books a fill inside the caller's transaction and returns the
// realized P&L in cents (0 for buys). The position cache for the key is
// recomputed before returning.
func ApplyFill(ctx context.Context, uow ledger.UnitOfWork, f Fill) (money.Cents, error) {
	if f.Quantity <= 0 {
		return 0, fmt.Errorf("fill quantity must be positive, got %d", f.Quantity)
	}
	var realized money.Cents
	switch f.Side {
	case costmodel.Buy:
		if err := uow.Lots().Append(ctx, &model.LotModel{
			StrategyID:     f.StrategyID,
			Symbol:         f.Symbol,
			OpenedAtUnix:   f.ExecutedAt,
			Quantity:       f.Quantity,
			CostBasisCents: int64(f.PriceCents),
		}); err != nil {
			return 0, err
		}
	case costmodel.Sell:
		var err error
		realized, err = consume(ctx, uow, f)
		if err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("invalid side %q", f.Side)
	}

	if err := recomputePosition(ctx, uow, f.StrategyID, f.Symbol, f.PriceCents); err != nil {
		return 0, err
	}
	return realized, nil
}

func consume(ctx context.Context, uow ledger.UnitOfWork, f Fill) (money.Cents, error) {
	open, err := uow.Lots().OpenLots(ctx, f.StrategyID, f.Symbol)
	if err != nil {
		return 0, err
	}
	queue := &lotQueue{lots: open}
	if available := queue.totalQuantity(); available < f.Quantity {
		return 0, fmt.Errorf("%s %s: sell %d > open %d: %w",
			f.StrategyID, f.Symbol, f.Quantity, available, ErrOversell)
	}

	remaining := f.Quantity
	var gross money.Cents
	for remaining > 0 {
		lot := queue.front()
		portion := lot.Quantity
		if portion > remaining {
			portion = remaining
		}
		gross += (f.PriceCents - money.Cents(lot.CostBasisCents)).Mul(portion)
		newQty := lot.Quantity - portion
		if err := uow.Lots().SetQuantity(ctx, lot.ID, newQty); err != nil {
			return 0, err
		}
		lot.Quantity = newQty
		remaining -= portion
		if newQty == 0 {
			queue.pop()
		}
	}
	return gross - f.CostsCents, nil
}

// recomputePosition rebuilds the derived position row from open lots so the
// "lots sum to position" invariant holds after every fill.
func recomputePosition(ctx context.Context, uow ledger.UnitOfWork, strategyID, symbol string, markPrice money.Cents) error {
	open, err := uow.Lots().OpenLots(ctx, strategyID, symbol)
	if err != nil {
		return err
	}
	var qty int64
	var costTotal money.Cents
	for _, lot := range open {
		qty += lot.Quantity
		costTotal += money.Cents(lot.CostBasisCents).Mul(lot.Quantity)
	}
	if qty == 0 {
		return uow.Positions().Delete(ctx, strategyID, symbol)
	}
	return uow.Positions().Upsert(ctx, &model.PositionModel{
		StrategyID:       strategyID,
		Symbol:           symbol,
		Quantity:         qty,
		AvgPriceCents:    int64(costTotal) / qty,
		MarketValueCents: int64(markPrice.Mul(qty)),
	})
}

// VerifyInventory cross-checks every position row against its open lots.
// Any mismatch is a report of ledger corruption.
func VerifyInventory(ctx context.Context, uow ledger.UnitOfWork) error {
	positions, err := uow.Positions().List(ctx)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		open, err := uow.Lots().OpenLots(ctx, pos.StrategyID, pos.Symbol)
		if err != nil {
			return err
		}
		var qty int64
		for _, lot := range open {
			qty += lot.Quantity
		}
		if qty != pos.Quantity {
			return fmt.Errorf("inventory mismatch %s %s: lots=%d position=%d",
				pos.StrategyID, pos.Symbol, qty, pos.Quantity)
		}
	}
	return nil
}
