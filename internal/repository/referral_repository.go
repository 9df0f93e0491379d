package repository

import (
	"context"

	"github.com/shinyyama/referral-tree-backend/internal/model"
	"gorm.io/gorm"
)

type ReferralRepository interface {
	Create(ctx context.Context, ref *model.Referral) error
	ListReferred(ctx context.Context, referrerID uint64) ([]model.User, error)
	Count(ctx context.Context) (int64, error)
	SetDB(db *gorm.DB)
}

type referralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) ReferralRepository {
	return &referralRepository{db: db}
}

func (r *referralRepository) SetDB(db *gorm.DB) {
	r.db = db
}

func (r *referralRepository) Create(ctx context.Context, ref *model.Referral) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return translate(r.db.WithContext(ctx).Create(ref).Error)
}

// ListReferred returns the users directly referred by referrerID, oldest first.
func (r *referralRepository) ListReferred(ctx context.Context, referrerID uint64) ([]model.User, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var users []model.User
	if err := r.db.WithContext(ctx).
		Joins("JOIN referrals ON referrals.referred_id = users.id").
		Where("referrals.referrer_id = ?", referrerID).
		Order("referrals.id ASC").
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *referralRepository) Count(ctx context.Context) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Referral{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
