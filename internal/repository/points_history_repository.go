package repository

import (
	"context"

	"github.com/shinyyama/referral-tree-backend/internal/model"
	"gorm.io/gorm"
)

type PointsHistoryRepository interface {
	Append(ctx context.Context, userID uint64, points int64, operation, description string) error
	ListByUser(ctx context.Context, userID uint64, limit int) ([]model.PointsHistory, error)
	Count(ctx context.Context) (int64, error)
	SetDB(db *gorm.DB)
}

type pointsHistoryRepository struct {
	db *gorm.DB
}

func NewPointsHistoryRepository(db *gorm.DB) PointsHistoryRepository {
	return &pointsHistoryRepository{db: db}
}

func (r *pointsHistoryRepository) SetDB(db *gorm.DB) {
	r.db = db
}

func (r *pointsHistoryRepository) Append(ctx context.Context, userID uint64, points int64, operation, description string) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Create(&model.PointsHistory{
		UserID:      userID,
		Points:      points,
		Operation:   operation,
		Description: description,
	}).Error
}

func (r *pointsHistoryRepository) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.PointsHistory, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.PointsHistory
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *pointsHistoryRepository) Count(ctx context.Context) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.PointsHistory{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
