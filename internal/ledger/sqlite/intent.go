package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skipper/internal/ledger/model"

	"gorm.io/gorm"
)

// intentRepository implements the IntentRepository interface.
type intentRepository struct {
	db *gorm.DB
}

func newIntentRepo(db *gorm.DB) *intentRepository {
	return &intentRepository{db: db}
}

// Create inserts a new intent. A primary-key conflict means the same logical
// decision was already recorded; callers treat that as the idempotent path.
func (r *intentRepository) Create(ctx context.Context, in *model.OrderIntentModel) error {
	if in == nil {
		return errors.New("intent cannot be nil")
	}
	now := time.Now().Unix()
	if in.CreatedAtUnix == 0 {
		in.CreatedAtUnix = now
	}
	in.UpdatedAtUnix = now
	return r.db.WithContext(ctx).Create(in).Error
}

func (r *intentRepository) FindByID(ctx context.Context, intentID string) (*model.OrderIntentModel, error) {
	var in model.OrderIntentModel
	err := r.db.WithContext(ctx).Where("intent_id = ?", intentID).First(&in).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (r *intentRepository) UpdateStatus(ctx context.Context, intentID string, status model.IntentStatus, brokerOrderID string) error {
	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().Unix(),
	}
	if brokerOrderID != "" {
		updates["broker_order_id"] = brokerOrderID
	}
	res := r.db.WithContext(ctx).Model(&model.OrderIntentModel{}).
		Where("intent_id = ?", intentID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("intent %s not found", intentID)
	}
	return nil
}

func (r *intentRepository) SetReservation(ctx context.Context, intentID string, cents int64) error {
	res := r.db.WithContext(ctx).Model(&model.OrderIntentModel{}).
		Where("intent_id = ?", intentID).
		Updates(map[string]any{
			"reserved_cents": cents,
			"updated_at":     time.Now().Unix(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("intent %s not found", intentID)
	}
	return nil
}
