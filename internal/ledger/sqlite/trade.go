package sqlite

import (
	"context"
	"errors"
	"time"

	"skipper/internal/ledger/model"

	"gorm.io/gorm"
)

// tradeRepository implements the TradeRepository interface.
type tradeRepository struct {
	db *gorm.DB
}

func newTradeRepo(db *gorm.DB) *tradeRepository {
	return &tradeRepository{db: db}
}

func (r *tradeRepository) Insert(ctx context.Context, tr *model.TradeModel) error {
	if tr == nil {
		return errors.New("trade cannot be nil")
	}
	if tr.ExecutedAtUnix == 0 {
		tr.ExecutedAtUnix = time.Now().Unix()
	}
	return r.db.WithContext(ctx).Create(tr).Error
}

func (r *tradeRepository) ListByDate(ctx context.Context, asOf string) ([]model.TradeModel, error) {
	start, end, err := dayBounds(asOf)
	if err != nil {
		return nil, err
	}
	var out []model.TradeModel
	if err := r.db.WithContext(ctx).
		Where("executed_at >= ? AND executed_at < ?", start, end).
		Order("executed_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *tradeRepository) SumRealizedPnL(ctx context.Context, asOf string) (int64, error) {
	start, end, err := dayBounds(asOf)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.TradeModel{}).
		Where("executed_at >= ? AND executed_at < ?", start, end).
		Select("COALESCE(SUM(realized_pnl_cents), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func dayBounds(asOf string) (int64, int64, error) {
	day, err := time.ParseInLocation("2006-01-02", asOf, time.UTC)
	if err != nil {
		return 0, 0, err
	}
	return day.Unix(), day.Add(24 * time.Hour).Unix(), nil
}
