package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skipper/internal/ledger/model"

	"gorm.io/gorm"
)

// ErrTerminalRewrite is returned when a terminal signal is terminated again.
// Signals are immutable once terminal; a second write is a funnel bug.
var ErrTerminalRewrite = errors.New("signal already terminal")

// signalRepository implements the SignalRepository interface.
type signalRepository struct {
	db *gorm.DB
}

func newSignalRepo(db *gorm.DB) *signalRepository {
	return &signalRepository{db: db}
}

func (r *signalRepository) Save(ctx context.Context, sig *model.SignalModel) error {
	if sig == nil {
		return errors.New("signal cannot be nil")
	}
	now := time.Now().Unix()
	if sig.CreatedAtUnix == 0 {
		sig.CreatedAtUnix = now
	}
	sig.UpdatedAtUnix = now
	return r.db.WithContext(ctx).Save(sig).Error
}

func (r *signalRepository) FindByID(ctx context.Context, id string) (*model.SignalModel, error) {
	var sig model.SignalModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sig).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sig, nil
}

func (r *signalRepository) UpdateStage(ctx context.Context, id string, stage model.SignalStage) error {
	res := r.db.WithContext(ctx).Model(&model.SignalModel{}).
		Where("id = ? AND terminal_state = ?", id, model.TerminalNone).
		Updates(map[string]any{
			"funnel_stage": stage,
			"updated_at":   time.Now().Unix(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("signal %s: %w", id, ErrTerminalRewrite)
	}
	return nil
}

func (r *signalRepository) SetTerminal(ctx context.Context, id string, state model.TerminalState, reason string) error {
	if state == model.TerminalNone {
		return fmt.Errorf("signal %s: terminal state cannot be none", id)
	}
	// Guarded update: only a non-terminal row may be terminated, so the
	// "exactly one terminal state" invariant holds at the storage layer too.
	res := r.db.WithContext(ctx).Model(&model.SignalModel{}).
		Where("id = ? AND terminal_state = ?", id, model.TerminalNone).
		Updates(map[string]any{
			"terminal_state":  state,
			"terminal_reason": reason,
			"updated_at":      time.Now().Unix(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("signal %s: %w", id, ErrTerminalRewrite)
	}
	return nil
}

func (r *signalRepository) ListByDate(ctx context.Context, asOf string) ([]model.SignalModel, error) {
	var sigs []model.SignalModel
	if err := r.db.WithContext(ctx).
		Where("as_of = ?", asOf).
		Order("created_at ASC, id ASC").
		Find(&sigs).Error; err != nil {
		return nil, err
	}
	return sigs, nil
}

func (r *signalRepository) ListNonTerminal(ctx context.Context, asOf string) ([]model.SignalModel, error) {
	var sigs []model.SignalModel
	if err := r.db.WithContext(ctx).
		Where("as_of = ? AND terminal_state = ?", asOf, model.TerminalNone).
		Order("created_at ASC, id ASC").
		Find(&sigs).Error; err != nil {
		return nil, err
	}
	return sigs, nil
}
