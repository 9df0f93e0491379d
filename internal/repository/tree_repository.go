package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/shinyyama/referral-tree-backend/internal/model"
	"github.com/shinyyama/referral-tree-backend/internal/tree"
	"gorm.io/gorm"
)

const DefaultMaxDepth = 64

type TreeRepository interface {
	NextAvailablePosition(ctx context.Context, parentID uint64) (model.Position, error)
	InsertEdge(ctx context.Context, edge *model.TreeEdge) error
	FindEdge(ctx context.Context, userID uint64) (*model.TreeEdge, error)
	HasRoot(ctx context.Context) (bool, error)
	FindRoot(ctx context.Context) (*model.TreeEdge, error)
	ReconstructSubtree(ctx context.Context, rootUserID uint64, maxDepth int) (*tree.Node, error)
	Count(ctx context.Context) (int64, error)
	SetDB(db *gorm.DB)
}

type treeRepository struct {
	db *gorm.DB
}

func NewTreeRepository(db *gorm.DB) TreeRepository {
	return &treeRepository{db: db}
}

func (r *treeRepository) SetDB(db *gorm.DB) {
	r.db = db
}

// NextAvailablePosition returns left, then right, then PositionNone once the
// parent has both children.
func (r *treeRepository) NextAvailablePosition(ctx context.Context, parentID uint64) (model.Position, error) {
	if r.db == nil {
		return model.PositionNone, ErrDBNotReady
	}
	var taken []model.Position
	if err := r.db.WithContext(ctx).
		Model(&model.TreeEdge{}).
		Where("parent_id = ?", parentID).
		Pluck("position", &taken).Error; err != nil {
		return model.PositionNone, err
	}
	has := make(map[model.Position]bool, len(taken))
	for _, p := range taken {
		has[p] = true
	}
	switch {
	case !has[model.PositionLeft]:
		return model.PositionLeft, nil
	case !has[model.PositionRight]:
		return model.PositionRight, nil
	default:
		return model.PositionNone, nil
	}
}

// InsertEdge relies on the unique indexes on user_id, (parent_id, position)
// and root_guard; a violation comes back wrapped in ErrDuplicate.
func (r *treeRepository) InsertEdge(ctx context.Context, edge *model.TreeEdge) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	edge.RootGuard = nil
	if edge.Position == model.PositionRoot {
		guard := true
		edge.RootGuard = &guard
	}
	return translate(r.db.WithContext(ctx).Create(edge).Error)
}

func (r *treeRepository) FindEdge(ctx context.Context, userID uint64) (*model.TreeEdge, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var e model.TreeEdge
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *treeRepository) HasRoot(ctx context.Context) (bool, error) {
	if r.db == nil {
		return false, ErrDBNotReady
	}
	var n int64
	if err := r.db.WithContext(ctx).
		Model(&model.TreeEdge{}).
		Where("position = ? AND parent_id IS NULL", model.PositionRoot).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindRoot returns gorm.ErrRecordNotFound while the tree is empty.
func (r *treeRepository) FindRoot(ctx context.Context) (*model.TreeEdge, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var e model.TreeEdge
	if err := r.db.WithContext(ctx).
		Where("position = ? AND parent_id IS NULL", model.PositionRoot).
		Order("user_id ASC").
		First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *treeRepository) Count(ctx context.Context) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.TreeEdge{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// childEdge is one non-root edge joined with its user row. Name is nil when
// the edge points at a user that no longer exists.
type childEdge struct {
	UserID        uint64
	ParentID      uint64
	Position      model.Position
	Name          *string
	CurrentPoints *int64
}

// ReconstructSubtree loads every child edge in one query, indexes them by
// parent and materialises the subtree under rootUserID. It returns nil, nil
// when the root user does not exist. Cycles, edges to missing users and
// depth beyond maxDepth fail with ErrStructuralCorruption.
func (r *treeRepository) ReconstructSubtree(ctx context.Context, rootUserID uint64, maxDepth int) (*tree.Node, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	var root model.User
	if err := r.db.WithContext(ctx).First(&root, rootUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var edges []childEdge
	if err := r.db.WithContext(ctx).
		Table("binary_tree_structure AS e").
		Select("e.user_id, e.parent_id, e.position, u.name, u.current_points").
		Joins("LEFT JOIN users u ON u.id = e.user_id").
		Where("e.parent_id IS NOT NULL").
		Order("e.user_id ASC").
		Scan(&edges).Error; err != nil {
		return nil, err
	}
	children := make(map[uint64][]childEdge, len(edges))
	for _, e := range edges {
		children[e.ParentID] = append(children[e.ParentID], e)
	}

	b := &builder{children: children, visited: map[uint64]bool{root.ID: true}, maxDepth: maxDepth}
	node := tree.NewNode(root.ID, root.Name, root.CurrentPoints)
	if err := b.attachChildren(node, 0); err != nil {
		return nil, err
	}
	return node, nil
}

type builder struct {
	children map[uint64][]childEdge
	visited  map[uint64]bool
	maxDepth int
}

func (b *builder) attachChildren(n *tree.Node, depth int) error {
	for _, e := range b.children[n.ID()] {
		if e.Position != model.PositionLeft && e.Position != model.PositionRight {
			continue
		}
		if b.visited[e.UserID] {
			return fmt.Errorf("%w: user %d reached twice (cycle under parent %d)", ErrStructuralCorruption, e.UserID, e.ParentID)
		}
		if e.Name == nil || e.CurrentPoints == nil {
			return fmt.Errorf("%w: edge for user %d under parent %d has no user row", ErrStructuralCorruption, e.UserID, e.ParentID)
		}
		if depth+1 > b.maxDepth {
			return fmt.Errorf("%w: subtree deeper than %d levels", ErrStructuralCorruption, b.maxDepth)
		}
		b.visited[e.UserID] = true

		child := tree.NewNode(e.UserID, *e.Name, *e.CurrentPoints)
		if err := n.Attach(e.Position, child); err != nil {
			return fmt.Errorf("%w: %v", ErrStructuralCorruption, err)
		}
		if err := b.attachChildren(child, depth+1); err != nil {
			return err
		}
	}
	return nil
}
