// Package reconcile compares the local ledger's derived view against the
// venue's authoritative account state. Any divergence fails the run closed:
// the engine submits zero orders on a FAIL.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"skipper/internal/broker"
	"skipper/internal/ledger"
	"skipper/internal/ledger/model"
	"skipper/internal/logger"
	"skipper/internal/money"
)

// Discrepancy is one detected divergence, kept with both sides' values so
// the audit row is enough to diagnose without replaying the run.
type Discrepancy struct {
	Kind        string      `json:"kind"` // quantity | price | phantom_local | phantom_broker | cash
	Symbol      string      `json:"symbol,omitempty"`
	LocalQty    int64       `json:"local_qty,omitempty"`
	BrokerQty   int64       `json:"broker_qty,omitempty"`
	LocalCents  money.Cents `json:"local_cents,omitempty"`
	BrokerCents money.Cents `json:"broker_cents,omitempty"`
	PctDiff     float64     `json:"pct_diff,omitempty"`
	Detail      string      `json:"detail"`
}

// Result of one reconciliation pass.
type Result struct {
	Status        model.SnapshotStatus
	Discrepancies []Discrepancy
	Snapshot      *broker.AccountSnapshot
}

// Passed reports whether the ledger and venue agree.
func (r *Result) Passed() bool { return r.Status == model.SnapshotPass }

// Reconciler holds tolerances and collaborators.
type Reconciler struct {
	venue    broker.Venue
	store    ledger.Store
	priceTol float64 // e.g. 0.05
	cashTol  float64
}

func New(venue broker.Venue, store ledger.Store, priceTolerancePct, cashTolerancePct float64) *Reconciler {
	return &Reconciler{venue: venue, store: store, priceTol: priceTolerancePct, cashTol: cashTolerancePct}
}

// Reconcile re-fetches the venue snapshot (never a cached one) and compares
// it to the ledger's strategy-aggregated positions and cash.
func (r *Reconciler) Reconcile(ctx context.Context) (*Result, error) {
	snap, err := r.venue.FetchSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: fetching venue snapshot: %w", err)
	}

	uow, err := r.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	positions, err := uow.Positions().List(ctx)
	if err != nil {
		return nil, err
	}
	strategies, err := uow.Strategies().List(ctx)
	if err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	local := aggregate(positions)
	var localCash money.Cents
	for _, s := range strategies {
		localCash += money.Cents(s.CashCents)
	}

	result := &Result{Status: model.SnapshotPass, Snapshot: snap}
	result.Discrepancies = compare(local, snap, localCash, r.priceTol, r.cashTol)
	if len(result.Discrepancies) > 0 {
		result.Status = model.SnapshotFail
		for _, d := range result.Discrepancies {
			logger.Errorf("reconcile: %s", d.Detail)
		}
	}
	return result, nil
}

type aggregated struct {
	qty       int64
	costCents money.Cents // quantity-weighted
}

// aggregate folds per-strategy positions into per-symbol totals, since the
// venue has no notion of strategies.
func aggregate(positions []model.PositionModel) map[string]aggregated {
	out := make(map[string]aggregated)
	for _, pos := range positions {
		agg := out[pos.Symbol]
		agg.costCents += money.Cents(pos.AvgPriceCents).Mul(pos.Quantity)
		agg.qty += pos.Quantity
		out[pos.Symbol] = agg
	}
	return out
}

func compare(local map[string]aggregated, snap *broker.AccountSnapshot, localCash money.Cents, priceTol, cashTol float64) []Discrepancy {
	var out []Discrepancy

	brokerBySymbol := make(map[string]broker.VenuePosition, len(snap.Positions))
	for _, pos := range snap.Positions {
		brokerBySymbol[strings.ToUpper(pos.Symbol)] = pos
	}

	symbols := make([]string, 0, len(local))
	for sym := range local {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		agg := local[sym]
		remote, ok := brokerBySymbol[sym]
		if !ok {
			out = append(out, Discrepancy{
				Kind:     "phantom_local",
				Symbol:   sym,
				LocalQty: agg.qty,
				Detail:   fmt.Sprintf("%s held locally (qty=%d) but unknown to broker", sym, agg.qty),
			})
			continue
		}
		delete(brokerBySymbol, sym)

		if agg.qty != remote.Quantity {
			out = append(out, Discrepancy{
				Kind:      "quantity",
				Symbol:    sym,
				LocalQty:  agg.qty,
				BrokerQty: remote.Quantity,
				Detail:    fmt.Sprintf("%s quantity mismatch: local=%d broker=%d", sym, agg.qty, remote.Quantity),
			})
			// Quantity disagreement makes the per-share comparison moot.
			continue
		}

		localAvg := money.Cents(0)
		if agg.qty > 0 {
			localAvg = agg.costCents / money.Cents(agg.qty)
		}
		pct, _ := money.PctDiff(localAvg, remote.AvgPriceCents).Float64()
		if pct > priceTol {
			out = append(out, Discrepancy{
				Kind:        "price",
				Symbol:      sym,
				LocalQty:    agg.qty,
				BrokerQty:   remote.Quantity,
				LocalCents:  localAvg,
				BrokerCents: remote.AvgPriceCents,
				PctDiff:     pct,
				Detail: fmt.Sprintf("%s price mismatch: local=%s broker=%s diff=%.1f%%",
					sym, localAvg, remote.AvgPriceCents, pct*100),
			})
		}
	}

	// Anything left on the broker side has no local counterpart.
	remaining := make([]string, 0, len(brokerBySymbol))
	for sym := range brokerBySymbol {
		remaining = append(remaining, sym)
	}
	sort.Strings(remaining)
	for _, sym := range remaining {
		remote := brokerBySymbol[sym]
		out = append(out, Discrepancy{
			Kind:        "phantom_broker",
			Symbol:      sym,
			BrokerQty:   remote.Quantity,
			BrokerCents: remote.AvgPriceCents,
			Detail:      fmt.Sprintf("%s held at broker (qty=%d) but absent from ledger", sym, remote.Quantity),
		})
	}

	cashPct, _ := money.PctDiff(localCash, snap.CashCents).Float64()
	if cashPct > cashTol {
		out = append(out, Discrepancy{
			Kind:        "cash",
			LocalCents:  localCash,
			BrokerCents: snap.CashCents,
			PctDiff:     cashPct,
			Detail: fmt.Sprintf("cash mismatch: local=%s broker=%s diff=%.1f%%",
				localCash, snap.CashCents, cashPct*100),
		})
	}

	return out
}
