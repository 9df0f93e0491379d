package tree

import (
	"errors"
	"fmt"

	"github.com/shinyyama/referral-tree-backend/internal/model"
)

var ErrSlotTaken = errors.New("child slot already set")

// Node is one participant materialised from the store together with the
// subtrees hanging off its left and right slots. Nodes are built per request
// and never persisted.
type Node struct {
	id     uint64
	name   string
	points int64
	left   *Node
	right  *Node
}

func NewNode(id uint64, name string, points int64) *Node {
	return &Node{id: id, name: name, points: points}
}

func (n *Node) ID() uint64 { return n.id }
func (n *Node) Name() string { return n.name }
func (n *Node) Points() int64 { return n.points }
func (n *Node) Left() *Node { return n.left }
func (n *Node) Right() *Node { return n.right }

// Attach sets a child on the given side. Each side can be set once.
func (n *Node) Attach(pos model.Position, child *Node) error {
	switch pos {
	case model.PositionLeft:
		if n.left != nil {
			return fmt.Errorf("%w: node %d left", ErrSlotTaken, n.id)
		}
		n.left = child
	case model.PositionRight:
		if n.right != nil {
			return fmt.Errorf("%w: node %d right", ErrSlotTaken, n.id)
		}
		n.right = child
	default:
		return fmt.Errorf("cannot attach child at position %q", pos)
	}
	return nil
}

// CalculatePoints returns the node's own balance plus the aggregate of both
// subtrees. The graph must be acyclic.
func (n *Node) CalculatePoints() int64 {
	total := n.points
	if n.left != nil {
		total += n.left.CalculatePoints()
	}
	if n.right != nil {
		total += n.right.CalculatePoints()
	}
	return total
}

// Size counts the nodes in the subtree rooted at n.
func (n *Node) Size() int {
	if n == nil {
		return 0
	}
	return 1 + n.left.Size() + n.right.Size()
}

// NodeView is the serialised form of a subtree. Points holds the aggregate,
// not the raw balance.
type NodeView struct {
	ID     uint64    `json:"id"`
	Name   string    `json:"name"`
	Points int64     `json:"points"`
	Left   *NodeView `json:"left"`
	Right  *NodeView `json:"right"`
}

func (n *Node) View() *NodeView {
	v, _ := n.view()
	return v
}

// view builds the subtree bottom-up so every aggregate is computed once.
func (n *Node) view() (*NodeView, int64) {
	if n == nil {
		return nil, 0
	}
	left, leftTotal := n.left.view()
	right, rightTotal := n.right.view()
	total := n.points + leftTotal + rightTotal
	return &NodeView{
		ID:     n.id,
		Name:   n.name,
		Points: total,
		Left:   left,
		Right:  right,
	}, total
}
