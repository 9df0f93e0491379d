package model

import "time"

const (
	OperationSet = "set"

	DescriptionInitialPoints = "Initial Points"
	DescriptionPointsUpdated = "Points updated"
)

// PointsHistory is append-only; rows are removed only by a full reset.
type PointsHistory struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint64    `gorm:"column:user_id;not null;index" json:"userId"`
	Points      int64     `gorm:"column:points;not null" json:"points"`
	Operation   string    `gorm:"column:operation;size:32;not null" json:"operation"`
	Description string    `gorm:"column:description;size:255" json:"description"`
	Timestamp   time.Time `gorm:"column:timestamp;autoCreateTime" json:"timestamp"`
}

func (PointsHistory) TableName() string {
	return "points_history"
}
