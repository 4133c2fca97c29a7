package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skipper/internal/ledger/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// strategyRepository implements the StrategyRepository interface.
type strategyRepository struct {
	db *gorm.DB
}

func newStrategyRepo(db *gorm.DB) *strategyRepository {
	return &strategyRepository{db: db}
}

func (r *strategyRepository) Upsert(ctx context.Context, s *model.StrategyModel) error {
	if s == nil {
		return errors.New("strategy cannot be nil")
	}
	now := time.Now().Unix()
	if s.CreatedAtUnix == 0 {
		s.CreatedAtUnix = now
	}
	s.UpdatedAtUnix = now
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "allocated_capital_cents", "enabled", "updated_at"}),
	}).Create(s).Error
}

func (r *strategyRepository) FindByID(ctx context.Context, id string) (*model.StrategyModel, error) {
	var s model.StrategyModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *strategyRepository) ListEnabled(ctx context.Context) ([]model.StrategyModel, error) {
	var out []model.StrategyModel
	if err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *strategyRepository) List(ctx context.Context) ([]model.StrategyModel, error) {
	var out []model.StrategyModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *strategyRepository) AdjustCash(ctx context.Context, id string, deltaCents int64) error {
	res := r.db.WithContext(ctx).Model(&model.StrategyModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"cash_cents": gorm.Expr("cash_cents + ?", deltaCents),
			"updated_at": time.Now().Unix(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("strategy %s not found", id)
	}
	return nil
}
