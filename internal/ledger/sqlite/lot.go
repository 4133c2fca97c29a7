package sqlite

import (
	"context"
	"errors"
	"fmt"

	"skipper/internal/ledger/model"

	"gorm.io/gorm"
)

// lotRepository implements the LotRepository interface.
type lotRepository struct {
	db *gorm.DB
}

func newLotRepo(db *gorm.DB) *lotRepository {
	return &lotRepository{db: db}
}

func (r *lotRepository) Append(ctx context.Context, lot *model.LotModel) error {
	if lot == nil {
		return errors.New("lot cannot be nil")
	}
	if lot.Quantity <= 0 {
		return fmt.Errorf("lot quantity must be positive, got %d", lot.Quantity)
	}
	if lot.InitialQuantity == 0 {
		lot.InitialQuantity = lot.Quantity
	}
	return r.db.WithContext(ctx).Create(lot).Error
}

// OpenLots returns remaining lots oldest first. FIFO consumption order
// depends on this ordering; id breaks ties for same-second opens.
func (r *lotRepository) OpenLots(ctx context.Context, strategyID, symbol string) ([]model.LotModel, error) {
	var lots []model.LotModel
	if err := r.db.WithContext(ctx).
		Where("strategy_id = ? AND symbol = ? AND quantity > 0", strategyID, symbol).
		Order("opened_at ASC, id ASC").
		Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

func (r *lotRepository) SetQuantity(ctx context.Context, lotID int64, quantity int64) error {
	if quantity < 0 {
		return fmt.Errorf("lot %d: quantity cannot go negative (%d)", lotID, quantity)
	}
	res := r.db.WithContext(ctx).Model(&model.LotModel{}).
		Where("id = ?", lotID).
		Update("quantity", quantity)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("lot %d not found", lotID)
	}
	return nil
}

func (r *lotRepository) ListOpen(ctx context.Context) ([]model.LotModel, error) {
	var lots []model.LotModel
	if err := r.db.WithContext(ctx).
		Where("quantity > 0").
		Order("strategy_id ASC, symbol ASC, opened_at ASC, id ASC").
		Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}
