package tree

import (
	"errors"
	"testing"

	"github.com/shinyyama/referral-tree-backend/internal/model"
)

// buildSample returns R(100) -> L(10) -> LL(5), right side empty.
func buildSample(t *testing.T) (root, left, leftLeft *Node) {
	t.Helper()
	root = NewNode(1, "R", 100)
	left = NewNode(2, "L", 10)
	leftLeft = NewNode(3, "LL", 5)
	if err := left.Attach(model.PositionLeft, leftLeft); err != nil {
		t.Fatalf("attach LL: %v", err)
	}
	if err := root.Attach(model.PositionLeft, left); err != nil {
		t.Fatalf("attach L: %v", err)
	}
	return root, left, leftLeft
}

func TestCalculatePointsSample(t *testing.T) {
	root, left, leftLeft := buildSample(t)
	tests := []struct {
		name string
		node *Node
		want int64
	}{
		{"leaf", leftLeft, 5},
		{"left child", left, 15},
		{"root", root, 115},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.CalculatePoints(); got != tt.want {
				t.Fatalf("got=%d want=%d", got, tt.want)
			}
		})
	}
}

func TestCalculatePointsRecursiveDefinition(t *testing.T) {
	// three full levels with mixed signs
	n := make([]*Node, 8)
	for i := 1; i <= 7; i++ {
		n[i] = NewNode(uint64(i), "n", int64(i*10-35))
	}
	for i := 1; i <= 3; i++ {
		if err := n[i].Attach(model.PositionLeft, n[2*i]); err != nil {
			t.Fatal(err)
		}
		if err := n[i].Attach(model.PositionRight, n[2*i+1]); err != nil {
			t.Fatal(err)
		}
	}
	for i := 1; i <= 7; i++ {
		node := n[i]
		want := node.Points()
		if node.Left() != nil {
			want += node.Left().CalculatePoints()
		}
		if node.Right() != nil {
			want += node.Right().CalculatePoints()
		}
		if got := node.CalculatePoints(); got != want {
			t.Fatalf("node %d: got=%d want=%d", i, got, want)
		}
	}
	if got := n[1].Size(); got != 7 {
		t.Fatalf("size=%d want 7", got)
	}
}

func TestAttachOnce(t *testing.T) {
	root := NewNode(1, "R", 0)
	if err := root.Attach(model.PositionRight, NewNode(2, "A", 0)); err != nil {
		t.Fatalf("first attach: %v", err)
	}
	err := root.Attach(model.PositionRight, NewNode(3, "B", 0))
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("err=%v want ErrSlotTaken", err)
	}
	if root.Right().ID() != 2 {
		t.Fatalf("right child replaced: %d", root.Right().ID())
	}
	if err := root.Attach(model.PositionRoot, NewNode(4, "C", 0)); err == nil {
		t.Fatal("expected error attaching at root position")
	}
}

func TestViewUsesAggregates(t *testing.T) {
	root, _, _ := buildSample(t)
	v := root.View()
	if v.Points != 115 || v.Name != "R" {
		t.Fatalf("root view = %+v", v)
	}
	if v.Left == nil || v.Left.Points != 15 {
		t.Fatalf("left view = %+v", v.Left)
	}
	if v.Left.Left == nil || v.Left.Left.Points != 5 || v.Left.Right != nil {
		t.Fatalf("left-left view = %+v", v.Left.Left)
	}
	if v.Right != nil {
		t.Fatalf("right view = %+v, want nil", v.Right)
	}
}
