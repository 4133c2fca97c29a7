package model

import "gorm.io/datatypes"

// SignalStage 表示信号在漏斗中已到达的阶段。
type SignalStage int

const (
	StageRaw SignalStage = iota
	StageRegime
	StageCorrelation
	StageRisk
	StageExecuted
)

func (s SignalStage) String() string {
	switch s {
	case StageRaw:
		return "raw"
	case StageRegime:
		return "regime"
	case StageCorrelation:
		return "correlation"
	case StageRisk:
		return "risk"
	case StageExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

// TerminalState 是信号的终态。0 表示尚未终结。
type TerminalState int

const (
	TerminalNone TerminalState = iota
	TerminalExecuted
	TerminalRejected
	TerminalFiltered
	TerminalPendingDecay
)

func (t TerminalState) String() string {
	switch t {
	case TerminalNone:
		return "none"
	case TerminalExecuted:
		return "EXECUTED"
	case TerminalRejected:
		return "REJECTED"
	case TerminalFiltered:
		return "FILTERED"
	case TerminalPendingDecay:
		return "PENDING_DECAY"
	default:
		return "unknown"
	}
}

// IntentStatus 是订单意图的生命周期状态。
type IntentStatus int

const (
	IntentUnknown IntentStatus = iota
	IntentSubmitted
	IntentFilled
	IntentRejected
	IntentCanceled
	IntentExpired
)

func (s IntentStatus) String() string {
	switch s {
	case IntentSubmitted:
		return "SUBMITTED"
	case IntentFilled:
		return "FILLED"
	case IntentRejected:
		return "REJECTED"
	case IntentCanceled:
		return "CANCELED"
	case IntentExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the intent cannot change state anymore.
func (s IntentStatus) Terminal() bool {
	switch s {
	case IntentFilled, IntentRejected, IntentCanceled, IntentExpired:
		return true
	default:
		return false
	}
}

// DrawdownState 是安全状态机的回撤状态。
type DrawdownState int

const (
	DrawdownNormal DrawdownState = iota
	DrawdownRampup
	DrawdownHalt
	DrawdownPanic
)

func (d DrawdownState) String() string {
	switch d {
	case DrawdownNormal:
		return "NORMAL"
	case DrawdownRampup:
		return "RAMPUP"
	case DrawdownHalt:
		return "HALT"
	case DrawdownPanic:
		return "PANIC"
	default:
		return "unknown"
	}
}

// SnapshotStatus 是对账结果。零值表示本次运行没有执行对账 (例如安全停机)。
type SnapshotStatus int

const (
	SnapshotSkipped SnapshotStatus = 0
	SnapshotPass    SnapshotStatus = 1
	SnapshotFail    SnapshotStatus = 2
)

func (s SnapshotStatus) String() string {
	switch s {
	case SnapshotPass:
		return "PASS"
	case SnapshotFail:
		return "FAIL"
	default:
		return "SKIPPED"
	}
}

// StrategyModel maps to the 'strategies' table.
type StrategyModel struct {
	ID                    string `gorm:"column:id;primaryKey"`
	Name                  string `gorm:"column:name"`
	AllocatedCapitalCents int64  `gorm:"column:allocated_capital_cents"`
	CashCents             int64  `gorm:"column:cash_cents"`
	Enabled               bool   `gorm:"column:enabled"`
	CreatedAtUnix         int64  `gorm:"column:created_at"`
	UpdatedAtUnix         int64  `gorm:"column:updated_at"`
}

func (StrategyModel) TableName() string { return "strategies" }

// SignalModel maps to the 'signals' table. 信号一旦终结不再改写。
type SignalModel struct {
	ID             string        `gorm:"column:id;primaryKey"`
	StrategyID     string        `gorm:"column:strategy_id;index"`
	Symbol         string        `gorm:"column:symbol"`
	Side           string        `gorm:"column:side"` // BUY | SELL
	Confidence     float64       `gorm:"column:confidence"`
	Rationale      string        `gorm:"column:rationale"`
	AsOf           string        `gorm:"column:as_of;index"` // YYYY-MM-DD
	FunnelStage    SignalStage   `gorm:"column:funnel_stage"`
	TerminalState  TerminalState `gorm:"column:terminal_state"`
	TerminalReason string        `gorm:"column:terminal_reason"`
	CreatedAtUnix  int64         `gorm:"column:created_at"`
	UpdatedAtUnix  int64         `gorm:"column:updated_at"`
}

func (SignalModel) TableName() string { return "signals" }

// OrderIntentModel maps to the 'order_intents' table.
// IntentID 由 (strategy_id, symbol, side, as_of, signal_id) 的结构化哈希得出。
type OrderIntentModel struct {
	IntentID      string       `gorm:"column:intent_id;primaryKey"`
	SignalID      string       `gorm:"column:signal_id;index"`
	StrategyID    string       `gorm:"column:strategy_id"`
	Symbol        string       `gorm:"column:symbol"`
	Side          string       `gorm:"column:side"`
	AsOf          string       `gorm:"column:as_of"`
	BrokerOrderID string       `gorm:"column:broker_order_id"`
	Status        IntentStatus `gorm:"column:status"`
	ReservedCents int64        `gorm:"column:reserved_cents"`
	CreatedAtUnix int64        `gorm:"column:created_at"`
	UpdatedAtUnix int64        `gorm:"column:updated_at"`
}

func (OrderIntentModel) TableName() string { return "order_intents" }

// TradeModel maps to the 'trades' table. Immutable once written.
type TradeModel struct {
	ID                  int64  `gorm:"column:id;primaryKey"`
	IntentID            string `gorm:"column:intent_id;index"`
	StrategyID          string `gorm:"column:strategy_id;index"`
	Symbol              string `gorm:"column:symbol"`
	Side                string `gorm:"column:side"`
	Quantity            int64  `gorm:"column:quantity"`
	RequestedPriceCents int64  `gorm:"column:requested_price_cents"`
	ExecutedPriceCents  int64  `gorm:"column:executed_price_cents"`
	SlippageCents       int64  `gorm:"column:slippage_cents"`
	CommissionCents     int64  `gorm:"column:commission_cents"`
	RealizedPnLCents    int64  `gorm:"column:realized_pnl_cents"`
	ExecutedAtUnix      int64  `gorm:"column:executed_at"`
}

func (TradeModel) TableName() string { return "trades" }

// LotModel maps to the 'lots' table. Quantity is the remaining open quantity.
type LotModel struct {
	ID              int64  `gorm:"column:id;primaryKey"`
	StrategyID      string `gorm:"column:strategy_id;index:idx_lot_key"`
	Symbol          string `gorm:"column:symbol;index:idx_lot_key"`
	OpenedAtUnix    int64  `gorm:"column:opened_at"`
	Quantity        int64  `gorm:"column:quantity"`
	InitialQuantity int64  `gorm:"column:initial_quantity"`
	CostBasisCents  int64  `gorm:"column:cost_basis_cents"`
}

func (LotModel) TableName() string { return "lots" }

// PositionModel is the derived per-(strategy,symbol) view over open lots.
type PositionModel struct {
	ID               int64  `gorm:"column:id;primaryKey"`
	StrategyID       string `gorm:"column:strategy_id;uniqueIndex:idx_position_key,priority:1"`
	Symbol           string `gorm:"column:symbol;uniqueIndex:idx_position_key,priority:2"`
	Quantity         int64  `gorm:"column:quantity"`
	AvgPriceCents    int64  `gorm:"column:avg_price_cents"`
	MarketValueCents int64  `gorm:"column:market_value_cents"`
	UpdatedAtUnix    int64  `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }

// BrokerSnapshotModel maps to 'broker_snapshots'. Append-only audit trail.
type BrokerSnapshotModel struct {
	ID                  int64          `gorm:"column:id;primaryKey"`
	RunDate             string         `gorm:"column:run_date;index"`
	CashCents           int64          `gorm:"column:cash_cents"`
	PortfolioValueCents int64          `gorm:"column:portfolio_value_cents"`
	Positions           datatypes.JSON `gorm:"column:positions;type:TEXT"`
	Status              SnapshotStatus `gorm:"column:status"`
	Discrepancies       datatypes.JSON `gorm:"column:discrepancies;type:TEXT"`
	CreatedAtUnix       int64          `gorm:"column:created_at"`
}

func (BrokerSnapshotModel) TableName() string { return "broker_snapshots" }

// SafetyStateModel is the singleton safety row (id is always 1).
type SafetyStateModel struct {
	ID                      int64         `gorm:"column:id;primaryKey"`
	DrawdownState           DrawdownState `gorm:"column:drawdown_state"`
	CooldownRemaining       int           `gorm:"column:cooldown_remaining"`
	PeakPortfolioValueCents int64         `gorm:"column:peak_portfolio_value_cents"`
	KillSwitchActive        bool          `gorm:"column:kill_switch_active"`
	KillSwitchReason        string        `gorm:"column:kill_switch_reason"`
	UpdatedAtUnix           int64         `gorm:"column:updated_at"`
}

func (SafetyStateModel) TableName() string { return "safety_state" }
