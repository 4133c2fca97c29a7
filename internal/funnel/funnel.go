// Package funnel enforces the signal pipeline's bookkeeping rules: stages
// advance one at a time in a fixed order, every signal ends in exactly one
// terminal state, and a terminated signal never mutates again. The transition
// table lives here so a "silently dropped" signal has nowhere to hide.
package funnel

import (
	"context"
	"fmt"

	"skipper/internal/ledger"
	"skipper/internal/ledger/model"
)

// transitions is the exhaustive stage table. A stage may only step to its
// direct successor; anything else is a programming error surfaced at the
// call site, not a data state.
var transitions = map[model.SignalStage]model.SignalStage{
	model.StageRaw:         model.StageRegime,
	model.StageRegime:      model.StageCorrelation,
	model.StageCorrelation: model.StageRisk,
	model.StageRisk:        model.StageExecuted,
}

// CanAdvance reports whether from -> to is a legal single step.
func CanAdvance(from, to model.SignalStage) bool {
	next, ok := transitions[from]
	return ok && next == to
}

// Advance moves a signal one stage forward, persisting through the
// transaction. Skipping stages or advancing a terminal signal errors.
func Advance(ctx context.Context, uow ledger.UnitOfWork, sig *model.SignalModel, to model.SignalStage) error {
	if sig.TerminalState != model.TerminalNone {
		return fmt.Errorf("signal %s is terminal (%s), cannot advance", sig.ID, sig.TerminalState)
	}
	if !CanAdvance(sig.FunnelStage, to) {
		return fmt.Errorf("signal %s: illegal stage transition %s -> %s", sig.ID, sig.FunnelStage, to)
	}
	if err := uow.Signals().UpdateStage(ctx, sig.ID, to); err != nil {
		return err
	}
	sig.FunnelStage = to
	return nil
}

// Terminate writes the one and only terminal state for a signal.
func Terminate(ctx context.Context, uow ledger.UnitOfWork, sig *model.SignalModel, state model.TerminalState, reason string) error {
	if sig.TerminalState != model.TerminalNone {
		return fmt.Errorf("signal %s already terminal (%s)", sig.ID, sig.TerminalState)
	}
	if err := uow.Signals().SetTerminal(ctx, sig.ID, state, reason); err != nil {
		return err
	}
	sig.TerminalState = state
	sig.TerminalReason = reason
	return nil
}

// TerminateAll filters every remaining non-terminal signal for a run date.
// Used by the halt paths so a stopped run still terminates its signals.
func TerminateAll(ctx context.Context, uow ledger.UnitOfWork, asOf string, state model.TerminalState, reason string) (int, error) {
	pending, err := uow.Signals().ListNonTerminal(ctx, asOf)
	if err != nil {
		return 0, err
	}
	for i := range pending {
		if err := Terminate(ctx, uow, &pending[i], state, reason); err != nil {
			return 0, err
		}
	}
	return len(pending), nil
}

// AssertAllTerminal fails if any signal for the run date has no terminal
// state. Runs before the report is written.
func AssertAllTerminal(ctx context.Context, uow ledger.UnitOfWork, asOf string) error {
	pending, err := uow.Signals().ListNonTerminal(ctx, asOf)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return fmt.Errorf("%d signals left without terminal state on %s (first: %s)",
			len(pending), asOf, pending[0].ID)
	}
	return nil
}

// Counts tallies a run's signals per stage reached and per terminal state.
type Counts struct {
	Stage    map[string]int
	Terminal map[string]int
	Reasons  map[string]int
}

// Count builds funnel tallies for a run date.
func Count(ctx context.Context, uow ledger.UnitOfWork, asOf string) (Counts, error) {
	sigs, err := uow.Signals().ListByDate(ctx, asOf)
	if err != nil {
		return Counts{}, err
	}
	c := Counts{
		Stage:    make(map[string]int),
		Terminal: make(map[string]int),
		Reasons:  make(map[string]int),
	}
	for _, sig := range sigs {
		c.Stage[sig.FunnelStage.String()]++
		c.Terminal[sig.TerminalState.String()]++
		if sig.TerminalReason != "" {
			c.Reasons[sig.TerminalReason]++
		}
	}
	return c, nil
}
