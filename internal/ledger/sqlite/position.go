package sqlite

import (
	"context"
	"errors"
	"time"

	"skipper/internal/ledger/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// positionRepository implements the PositionRepository interface.
type positionRepository struct {
	db *gorm.DB
}

func newPositionRepo(db *gorm.DB) *positionRepository {
	return &positionRepository{db: db}
}

func (r *positionRepository) Upsert(ctx context.Context, pos *model.PositionModel) error {
	if pos == nil {
		return errors.New("position cannot be nil")
	}
	pos.UpdatedAtUnix = time.Now().Unix()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "strategy_id"}, {Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "avg_price_cents", "market_value_cents", "updated_at"}),
	}).Create(pos).Error
}

func (r *positionRepository) Get(ctx context.Context, strategyID, symbol string) (*model.PositionModel, error) {
	var pos model.PositionModel
	err := r.db.WithContext(ctx).
		Where("strategy_id = ? AND symbol = ?", strategyID, symbol).
		First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func (r *positionRepository) List(ctx context.Context) ([]model.PositionModel, error) {
	var out []model.PositionModel
	if err := r.db.WithContext(ctx).
		Where("quantity > 0").
		Order("strategy_id ASC, symbol ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *positionRepository) Delete(ctx context.Context, strategyID, symbol string) error {
	return r.db.WithContext(ctx).
		Where("strategy_id = ? AND symbol = ?", strategyID, symbol).
		Delete(&model.PositionModel{}).Error
}
