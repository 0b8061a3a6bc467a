package graph

import (
	"testing"

	"github.com/go-quicktest/qt"
)

// diamond builds entry -> a, entry -> b, a -> join, b -> join.
func diamond() (*Graph, *Block) {
	g := New()
	entry := g.NewBlock()
	a := g.NewBlock()
	b := g.NewBlock()
	join := g.NewBlock()
	g.AddEdge(entry, a)
	g.AddEdge(entry, b)
	g.AddEdge(a, join)
	g.AddEdge(b, join)
	return g, join
}

func TestClassifyDiamond(t *testing.T) {
	g, join := diamond()
	singles, multis := g.Classify()

	qt.Assert(t, qt.HasLen(singles, 2))
	qt.Assert(t, qt.HasLen(multis, 1))
	qt.Assert(t, qt.Equals(multis[0], join))
	qt.Assert(t, qt.HasLen(join.Preds, 2))
}

func TestClassifyKeepsBlockOrder(t *testing.T) {
	g := New()
	pred := g.NewBlock()
	var want []int
	for i := 0; i < 5; i++ {
		b := g.NewBlock()
		g.AddEdge(pred, b)
		want = append(want, b.ID)
	}
	singles, multis := g.Classify()
	qt.Assert(t, qt.HasLen(multis, 0))

	var got []int
	for _, b := range singles {
		got = append(got, b.ID)
	}
	qt.Assert(t, qt.DeepEquals(got, want))
}

func TestAssignKeysBounded(t *testing.T) {
	g, _ := diamond()
	const mapSize = 16
	g.AssignKeys(mapSize)
	for _, b := range g.Blocks {
		if b.Key >= mapSize {
			t.Fatalf("block %d got key %d outside [0, %d)", b.ID, b.Key, mapSize)
		}
	}
}

func TestEmptyGraphClassifies(t *testing.T) {
	g := New()
	singles, multis := g.Classify()
	qt.Assert(t, qt.HasLen(singles, 0))
	qt.Assert(t, qt.HasLen(multis, 0))
}
