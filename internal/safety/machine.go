// Package safety owns the layered fail-closed controls: the drawdown state
// machine (NORMAL/RAMPUP/HALT/PANIC) and the orthogonal kill switches. The
// machine is the single source of the global sizing multiplier; it is
// evaluated exactly once at the start of each run from persisted state.
package safety

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"skipper/internal/ledger"
	"skipper/internal/ledger/model"
	"skipper/internal/logger"
	"skipper/internal/money"
)

// Config mirrors the safety.* settings.
type Config struct {
	HaltDrawdownPct  float64
	PanicDrawdownPct float64
	HaltCooldownRuns int
	RampupRuns       int
	RampupMultiplier float64
	KillSwitchFile   string
}

// Status is the outcome of one evaluation.
type Status struct {
	State            model.DrawdownState
	Multiplier       decimal.Decimal
	DrawdownPct      float64
	PeakValue        money.Cents
	KillSwitchActive bool
	KillSwitchReason string
	EnteredHalt      bool
	EnteredPanic     bool
}

// Halted reports whether execution must not proceed.
func (s Status) Halted() bool {
	return s.KillSwitchActive || s.State == model.DrawdownHalt || s.State == model.DrawdownPanic
}

// Machine evaluates and persists the singleton safety state.
type Machine struct {
	cfg   Config
	store ledger.Store
}

func NewMachine(cfg Config, store ledger.Store) *Machine {
	return &Machine{cfg: cfg, store: store}
}

// Evaluate runs one transition step against the current portfolio value and
// persists the result. The kill-switch file, if configured, acts as the
// manual operator flag regardless of what the row says.
func (m *Machine) Evaluate(ctx context.Context, portfolioValue money.Cents) (Status, error) {
	uow, err := m.store.Begin(ctx)
	if err != nil {
		return Status{}, err
	}
	defer uow.Rollback()

	st, err := uow.Safety().Load(ctx)
	if err != nil {
		return Status{}, err
	}

	if m.killSwitchFilePresent() && !st.KillSwitchActive {
		st.KillSwitchActive = true
		st.KillSwitchReason = "operator kill-switch file present"
	}

	status := m.step(st, portfolioValue)

	if err := uow.Safety().Save(ctx, st); err != nil {
		return Status{}, err
	}
	if err := uow.Commit(); err != nil {
		return Status{}, err
	}
	return status, nil
}

// step mutates st in place and returns the derived status.
func (m *Machine) step(st *model.SafetyStateModel, portfolioValue money.Cents) Status {
	// Peak only ratchets up.
	if portfolioValue > money.Cents(st.PeakPortfolioValueCents) {
		st.PeakPortfolioValueCents = int64(portfolioValue)
	}
	dd := drawdown(money.Cents(st.PeakPortfolioValueCents), portfolioValue)

	prev := st.DrawdownState
	switch {
	case st.DrawdownState == model.DrawdownPanic:
		// Manual intervention only; no automatic exit.
	case dd >= m.cfg.PanicDrawdownPct:
		st.DrawdownState = model.DrawdownPanic
		st.CooldownRemaining = 0
	case st.DrawdownState == model.DrawdownHalt:
		st.CooldownRemaining--
		if st.CooldownRemaining <= 0 {
			st.DrawdownState = model.DrawdownRampup
			st.CooldownRemaining = m.cfg.RampupRuns
		}
	case dd >= m.cfg.HaltDrawdownPct:
		st.DrawdownState = model.DrawdownHalt
		st.CooldownRemaining = m.cfg.HaltCooldownRuns
	case st.DrawdownState == model.DrawdownRampup:
		st.CooldownRemaining--
		if st.CooldownRemaining <= 0 {
			st.DrawdownState = model.DrawdownNormal
			st.CooldownRemaining = 0
		}
	default:
		st.DrawdownState = model.DrawdownNormal
	}

	status := Status{
		State:            st.DrawdownState,
		Multiplier:       m.multiplier(st),
		DrawdownPct:      dd,
		PeakValue:        money.Cents(st.PeakPortfolioValueCents),
		KillSwitchActive: st.KillSwitchActive,
		KillSwitchReason: st.KillSwitchReason,
		EnteredHalt:      prev != model.DrawdownHalt && st.DrawdownState == model.DrawdownHalt,
		EnteredPanic:     prev != model.DrawdownPanic && st.DrawdownState == model.DrawdownPanic,
	}
	if status.EnteredHalt || status.EnteredPanic {
		logger.Warnf("safety: %s -> %s drawdown=%.2f%% peak=%s current=%s",
			prev, st.DrawdownState, dd*100, status.PeakValue, portfolioValue)
	}
	return status
}

func (m *Machine) multiplier(st *model.SafetyStateModel) decimal.Decimal {
	if st.KillSwitchActive {
		return decimal.Zero
	}
	switch st.DrawdownState {
	case model.DrawdownNormal:
		return decimal.NewFromInt(1)
	case model.DrawdownRampup:
		return decimal.NewFromFloat(m.cfg.RampupMultiplier)
	default:
		return decimal.Zero
	}
}

func drawdown(peak, current money.Cents) float64 {
	if peak <= 0 || current >= peak {
		return 0
	}
	dd, _ := decimal.NewFromInt(int64(peak - current)).
		Div(decimal.NewFromInt(int64(peak))).Float64()
	return dd
}

// SetKillSwitch flips the manual kill switch.
func (m *Machine) SetKillSwitch(ctx context.Context, active bool, reason string) error {
	uow, err := m.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()
	st, err := uow.Safety().Load(ctx)
	if err != nil {
		return err
	}
	st.KillSwitchActive = active
	if active {
		st.KillSwitchReason = strings.TrimSpace(reason)
	} else {
		st.KillSwitchReason = ""
	}
	if err := uow.Safety().Save(ctx, st); err != nil {
		return err
	}
	return uow.Commit()
}

// ClearPanic is the manual exit from PANIC. It drops straight into RAMPUP
// rather than NORMAL so the first runs after recovery stay half-sized.
func (m *Machine) ClearPanic(ctx context.Context) error {
	uow, err := m.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()
	st, err := uow.Safety().Load(ctx)
	if err != nil {
		return err
	}
	if st.DrawdownState != model.DrawdownPanic {
		return fmt.Errorf("safety state is %s, not PANIC", st.DrawdownState)
	}
	st.DrawdownState = model.DrawdownRampup
	st.CooldownRemaining = m.cfg.RampupRuns
	// Reset the peak so the old high-water mark does not immediately
	// re-trigger on the drawn-down account.
	st.PeakPortfolioValueCents = 0
	if err := uow.Safety().Save(ctx, st); err != nil {
		return err
	}
	return uow.Commit()
}

// State returns the persisted row without stepping the machine.
func (m *Machine) State(ctx context.Context) (*model.SafetyStateModel, error) {
	uow, err := m.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()
	st, err := uow.Safety().Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}
	return st, nil
}

func (m *Machine) killSwitchFilePresent() bool {
	path := strings.TrimSpace(m.cfg.KillSwitchFile)
	if path == "" {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		return false
	}
	return true
}
