package sqlite

import (
	"context"
	"errors"
	"time"

	"skipper/internal/ledger/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const safetyRowID = 1

// safetyRepository persists the singleton safety row.
type safetyRepository struct {
	db *gorm.DB
}

func newSafetyRepo(db *gorm.DB) *safetyRepository {
	return &safetyRepository{db: db}
}

// Load returns the singleton row, creating a NORMAL default on first use.
func (r *safetyRepository) Load(ctx context.Context) (*model.SafetyStateModel, error) {
	var st model.SafetyStateModel
	err := r.db.WithContext(ctx).Where("id = ?", safetyRowID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		st = model.SafetyStateModel{
			ID:            safetyRowID,
			DrawdownState: model.DrawdownNormal,
			UpdatedAtUnix: time.Now().Unix(),
		}
		if err := r.db.WithContext(ctx).Create(&st).Error; err != nil {
			return nil, err
		}
		return &st, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *safetyRepository) Save(ctx context.Context, st *model.SafetyStateModel) error {
	if st == nil {
		return errors.New("safety state cannot be nil")
	}
	st.ID = safetyRowID
	st.UpdatedAtUnix = time.Now().Unix()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(st).Error
}
