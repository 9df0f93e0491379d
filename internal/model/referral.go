package model

import "time"

type Referral struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ReferrerID uint64    `gorm:"column:referrer_id;not null;index" json:"referrerId"`
	ReferredID uint64    `gorm:"column:referred_id;not null;uniqueIndex:uk_referrals_referred" json:"referredId"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Referral) TableName() string {
	return "referrals"
}
