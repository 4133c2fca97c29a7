package broker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"skipper/internal/money"
)

// Paper is an in-process venue for paper runs and tests. Orders fill
// immediately at the limit price; the idempotency-key contract matches the
// real venue: a duplicate key returns the original order instead of a new one.
type Paper struct {
	mu        sync.Mutex
	cash      money.Cents
	positions map[string]*VenuePosition
	orders    map[string]*paperOrder // by broker order id
	byKey     map[string]string      // idempotency key -> broker order id
	rejectAll string                 // when non-empty, all orders reject with this reason
}

type paperOrder struct {
	id     string
	state  OrderState
	symbol string
}

// NewPaper seeds a paper venue with starting cash.
func NewPaper(startingCash money.Cents) *Paper {
	return &Paper{
		cash:      startingCash,
		positions: make(map[string]*VenuePosition),
		orders:    make(map[string]*paperOrder),
		byKey:     make(map[string]string),
	}
}

func (p *Paper) Name() string { return "paper" }

func (p *Paper) FetchSnapshot(ctx context.Context) (*AccountSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := &AccountSnapshot{
		CashCents: p.cash,
		FetchedAt: time.Now(),
	}
	symbols := make([]string, 0, len(p.positions))
	for sym := range p.positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	total := p.cash
	for _, sym := range symbols {
		pos := *p.positions[sym]
		snap.Positions = append(snap.Positions, pos)
		total += pos.MarketValueCents
	}
	snap.PortfolioValueCents = total
	return snap, nil
}

func (p *Paper) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.byKey[req.IdempotencyKey]; ok {
		// Same decision resubmitted: hand back the original order.
		return &OrderAck{BrokerOrderID: id, Status: p.orders[id].state.Status}, nil
	}

	order := &paperOrder{id: uuid.NewString(), symbol: req.Symbol}
	if p.rejectAll != "" {
		order.state = OrderState{Status: StatusRejected, Reason: p.rejectAll}
	} else if err := p.fillLocked(req); err != nil {
		order.state = OrderState{Status: StatusRejected, Reason: err.Error()}
	} else {
		order.state = OrderState{
			Status:         StatusFilled,
			FilledQuantity: req.Quantity,
			FillPriceCents: req.LimitPriceCents,
		}
	}
	p.orders[order.id] = order
	p.byKey[req.IdempotencyKey] = order.id
	return &OrderAck{BrokerOrderID: order.id, Status: order.state.Status}, nil
}

func (p *Paper) fillLocked(req OrderRequest) error {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	notional := req.LimitPriceCents.Mul(req.Quantity)
	switch strings.ToUpper(req.Side) {
	case "BUY":
		if notional > p.cash {
			return fmt.Errorf("insufficient cash: need %s have %s", notional, p.cash)
		}
		p.cash -= notional
		pos, ok := p.positions[symbol]
		if !ok {
			p.positions[symbol] = &VenuePosition{
				Symbol:           symbol,
				Quantity:         req.Quantity,
				AvgPriceCents:    req.LimitPriceCents,
				MarketValueCents: notional,
			}
			return nil
		}
		totalCost := pos.AvgPriceCents.Mul(pos.Quantity) + notional
		pos.Quantity += req.Quantity
		pos.AvgPriceCents = money.Cents(int64(totalCost) / pos.Quantity)
		pos.MarketValueCents = req.LimitPriceCents.Mul(pos.Quantity)
		return nil
	case "SELL":
		pos, ok := p.positions[symbol]
		if !ok || pos.Quantity < req.Quantity {
			return fmt.Errorf("insufficient position %s", symbol)
		}
		p.cash += notional
		pos.Quantity -= req.Quantity
		if pos.Quantity == 0 {
			delete(p.positions, symbol)
		} else {
			pos.MarketValueCents = req.LimitPriceCents.Mul(pos.Quantity)
		}
		return nil
	default:
		return fmt.Errorf("invalid side %q", req.Side)
	}
}

func (p *Paper) OrderStatus(ctx context.Context, brokerOrderID string) (*OrderState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	order, ok := p.orders[brokerOrderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", brokerOrderID)
	}
	state := order.state
	return &state, nil
}

// RejectAll makes every subsequent order reject with reason. Test hook.
func (p *Paper) RejectAll(reason string) {
	p.mu.Lock()
	p.rejectAll = reason
	p.mu.Unlock()
}

// SetPosition overwrites a venue position. Test hook for reconciliation
// divergence scenarios.
func (p *Paper) SetPosition(symbol string, qty int64, priceCents money.Cents) {
	p.mu.Lock()
	defer p.mu.Unlock()
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if qty <= 0 {
		delete(p.positions, symbol)
		return
	}
	p.positions[symbol] = &VenuePosition{
		Symbol:           symbol,
		Quantity:         qty,
		AvgPriceCents:    priceCents,
		MarketValueCents: priceCents.Mul(qty),
	}
}

// SetCash overwrites venue cash. Test hook.
func (p *Paper) SetCash(cents money.Cents) {
	p.mu.Lock()
	p.cash = cents
	p.mu.Unlock()
}
