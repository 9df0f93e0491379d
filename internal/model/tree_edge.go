package model

import "time"

type Position string

const (
	PositionRoot  Position = "root"
	PositionLeft  Position = "left"
	PositionRight Position = "right"
	// PositionNone is returned when a parent already has both children.
	PositionNone Position = ""
)

// TreeEdge places one user in the binary tree. A parent holds at most one
// edge per side; the root edge is the only one with a NULL parent.
// RootGuard is true on the root edge and NULL elsewhere, so its unique index
// admits a single root.
type TreeEdge struct {
	UserID    uint64    `gorm:"column:user_id;primaryKey;autoIncrement:false" json:"userId"`
	ParentID  *uint64   `gorm:"column:parent_id;uniqueIndex:uk_parent_position" json:"parentId"`
	Position  Position  `gorm:"column:position;size:8;not null;uniqueIndex:uk_parent_position" json:"position"`
	RootGuard *bool     `gorm:"column:root_guard;uniqueIndex:uk_tree_root" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (TreeEdge) TableName() string {
	return "binary_tree_structure"
}
