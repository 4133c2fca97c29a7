package ledger

import (
	"context"

	"skipper/internal/ledger/model"
)

// UnitOfWork defines a transaction scope over the ledger tables.
type UnitOfWork interface {
	// Commit commits the transaction.
	Commit() error
	// Rollback rolls back the transaction.
	Rollback() error

	Strategies() StrategyRepository
	Signals() SignalRepository
	Intents() IntentRepository
	Trades() TradeRepository
	Lots() LotRepository
	Positions() PositionRepository
	Snapshots() SnapshotRepository
	Safety() SafetyRepository
}

// Store is the entry point for ledger access.
type Store interface {
	// Begin starts a new UnitOfWork (transaction).
	Begin(ctx context.Context) (UnitOfWork, error)
	// Close closes the store connection.
	Close() error
}

// StrategyRepository handles strategy rows and their cash balances.
type StrategyRepository interface {
	Upsert(ctx context.Context, s *model.StrategyModel) error
	FindByID(ctx context.Context, id string) (*model.StrategyModel, error)
	ListEnabled(ctx context.Context) ([]model.StrategyModel, error)
	List(ctx context.Context) ([]model.StrategyModel, error)
	// AdjustCash adds delta (may be negative) to the strategy's cash balance.
	AdjustCash(ctx context.Context, id string, deltaCents int64) error
}

// SignalRepository handles signal funnel bookkeeping.
type SignalRepository interface {
	Save(ctx context.Context, sig *model.SignalModel) error
	FindByID(ctx context.Context, id string) (*model.SignalModel, error)
	// UpdateStage advances the funnel stage of a non-terminal signal.
	UpdateStage(ctx context.Context, id string, stage model.SignalStage) error
	// SetTerminal writes the terminal state exactly once; a second write is an error.
	SetTerminal(ctx context.Context, id string, state model.TerminalState, reason string) error
	ListByDate(ctx context.Context, asOf string) ([]model.SignalModel, error)
	ListNonTerminal(ctx context.Context, asOf string) ([]model.SignalModel, error)
}

// IntentRepository handles idempotent order intents.
type IntentRepository interface {
	Create(ctx context.Context, in *model.OrderIntentModel) error
	FindByID(ctx context.Context, intentID string) (*model.OrderIntentModel, error)
	UpdateStatus(ctx context.Context, intentID string, status model.IntentStatus, brokerOrderID string) error
	// SetReservation records the cash reserved for the intent (0 releases it).
	SetReservation(ctx context.Context, intentID string, cents int64) error
}

// TradeRepository handles immutable trade rows.
type TradeRepository interface {
	Insert(ctx context.Context, tr *model.TradeModel) error
	ListByDate(ctx context.Context, asOf string) ([]model.TradeModel, error)
	// SumRealizedPnL totals realized P&L in cents for a run date.
	SumRealizedPnL(ctx context.Context, asOf string) (int64, error)
}

// LotRepository handles open FIFO lots.
type LotRepository interface {
	Append(ctx context.Context, lot *model.LotModel) error
	// OpenLots returns open lots for a (strategy, symbol) key, oldest first.
	OpenLots(ctx context.Context, strategyID, symbol string) ([]model.LotModel, error)
	// SetQuantity updates the remaining quantity of a lot (0 closes it).
	SetQuantity(ctx context.Context, lotID int64, quantity int64) error
	ListOpen(ctx context.Context) ([]model.LotModel, error)
}

// PositionRepository handles the derived position cache.
type PositionRepository interface {
	Upsert(ctx context.Context, pos *model.PositionModel) error
	Get(ctx context.Context, strategyID, symbol string) (*model.PositionModel, error)
	List(ctx context.Context) ([]model.PositionModel, error)
	Delete(ctx context.Context, strategyID, symbol string) error
}

// SnapshotRepository appends broker snapshots (audit trail; never updated).
type SnapshotRepository interface {
	Append(ctx context.Context, snap *model.BrokerSnapshotModel) error
	Latest(ctx context.Context) (*model.BrokerSnapshotModel, error)
	// LatestBefore returns the newest snapshot taken before the given run
	// date, for overnight mark-to-market baselines.
	LatestBefore(ctx context.Context, date string) (*model.BrokerSnapshotModel, error)
}

// SafetyRepository persists the singleton safety row.
type SafetyRepository interface {
	Load(ctx context.Context) (*model.SafetyStateModel, error)
	Save(ctx context.Context, st *model.SafetyStateModel) error
}
