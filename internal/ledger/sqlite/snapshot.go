package sqlite

import (
	"context"
	"errors"
	"time"

	"skipper/internal/ledger/model"

	"gorm.io/gorm"
)

// snapshotRepository implements the SnapshotRepository interface.
// Snapshots are append-only; there is deliberately no update method.
type snapshotRepository struct {
	db *gorm.DB
}

func newSnapshotRepo(db *gorm.DB) *snapshotRepository {
	return &snapshotRepository{db: db}
}

func (r *snapshotRepository) Append(ctx context.Context, snap *model.BrokerSnapshotModel) error {
	if snap == nil {
		return errors.New("snapshot cannot be nil")
	}
	if snap.CreatedAtUnix == 0 {
		snap.CreatedAtUnix = time.Now().Unix()
	}
	return r.db.WithContext(ctx).Create(snap).Error
}

func (r *snapshotRepository) Latest(ctx context.Context) (*model.BrokerSnapshotModel, error) {
	var snap model.BrokerSnapshotModel
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// LatestBefore returns the most recent snapshot from a run date strictly
// earlier than date, or nil when none exists.
func (r *snapshotRepository) LatestBefore(ctx context.Context, date string) (*model.BrokerSnapshotModel, error) {
	var snap model.BrokerSnapshotModel
	err := r.db.WithContext(ctx).
		Where("run_date < ?", date).
		Order("created_at DESC, id DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
