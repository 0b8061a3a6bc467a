package solver

import (
	"testing"

	"github.com/go-quicktest/qt"
	"github.com/google/go-cmp/cmp"

	"github.com/chan-shaw/collafl-go/coverage"
	"github.com/chan-shaw/collafl-go/graph"
)

func smallConfig(pow2 int) coverage.Config {
	conf := coverage.DefaultConfig()
	conf.MapSizePow2 = pow2
	return conf
}

// join builds a graph holding one multi-predecessor block whose two
// predecessors carry the given keys.
func join(curKey, predKey1, predKey2 uint32) *graph.Graph {
	g := graph.New()
	p1 := g.NewBlock()
	p2 := g.NewBlock()
	cur := g.NewBlock()
	p1.Key, p2.Key, cur.Key = predKey1, predKey2, curKey
	g.AddEdge(p1, cur)
	g.AddEdge(p2, cur)
	return g
}

// With map size 8 and keys (5; 1, 2) the very first candidate x=1, y=1, z=1
// separates the two edges: (5>>1)^((1>>1)+1) = 3, (5>>1)^((2>>1)+1) = 0.
func TestSolvableJoinGetsHashParams(t *testing.T) {
	g := join(5, 1, 2)
	res, err := Solve(g, smallConfig(3))
	qt.Assert(t, qt.IsNil(err))

	qt.Assert(t, qt.HasLen(res.Solved, 1))
	qt.Assert(t, qt.Equals(res.Solved[0].Params, HashParams{X: 1, Y: 1, Z: 1}))

	// Solved edges never reach the fallback table.
	qt.Assert(t, qt.HasLen(res.EdgeSlots, 0))
	qt.Assert(t, qt.HasLen(res.SingleSlots, 0))

	// Exactness: the block's own params separate all its edges.
	b := res.Solved[0].Block
	seen := map[uint32]bool{}
	for _, p := range b.Preds {
		h := EdgeHash(b.Key, p.Key, res.Solved[0].Params)
		qt.Assert(t, qt.IsFalse(seen[h]))
		qt.Assert(t, qt.IsTrue(res.Occupied(h)))
		seen[h] = true
	}
	qt.Assert(t, qt.Equals(res.OccupiedCount(), 2))
}

// Predecessor keys 0 and 1 shift to the same value for every y >= 1, so no
// (x, y, z) can tell the two edges apart and the block must be deferred to
// the fallback table, which hands its edges the first two free slots.
func TestUnsolvableJoinFallsBack(t *testing.T) {
	g := join(5, 0, 1)
	res, err := Solve(g, smallConfig(3))
	qt.Assert(t, qt.IsNil(err))

	qt.Assert(t, qt.HasLen(res.Solved, 0))
	qt.Assert(t, qt.Equals(res.Stats.UnsolvedBlocks, 1))
	qt.Assert(t, qt.Equals(res.Stats.MinUnsolvedRatio, 1.0))

	want := map[EdgeKey]uint32{
		{Cur: 5, Pred: 0}: 0,
		{Cur: 5, Pred: 1}: 1,
	}
	if diff := cmp.Diff(want, res.EdgeSlots); diff != "" {
		t.Fatalf("fallback table mismatch (-want +got):\n%s", diff)
	}
	qt.Assert(t, qt.Equals(res.OccupiedCount(), 2))
}

// Map size 4 cannot hold five single-predecessor blocks.
func TestSingleTableExhaustsMap(t *testing.T) {
	g := graph.New()
	for i := uint32(0); i < 5; i++ {
		pred := g.NewBlock()
		b := g.NewBlock()
		b.Key = i % 4
		g.AddEdge(pred, b)
	}

	_, err := Solve(g, smallConfig(2))
	qt.Assert(t, qt.ErrorIs(err, coverage.ErrSlotExhausted))
}

func TestEmptyGraphIsNoOp(t *testing.T) {
	res, err := Solve(graph.New(), coverage.DefaultConfig())
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(res.Solved, 0))
	qt.Assert(t, qt.HasLen(res.EdgeSlots, 0))
	qt.Assert(t, qt.HasLen(res.SingleSlots, 0))
	qt.Assert(t, qt.Equals(res.OccupiedCount(), 0))
	qt.Assert(t, qt.Equals(res.Stats.Instrumented, 0))

	res, err = Solve(nil, coverage.DefaultConfig())
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(res.OccupiedCount(), 0))
}

func TestInvalidConfigRejectedBeforeSolving(t *testing.T) {
	_, err := Solve(join(5, 1, 2), coverage.Config{MapSizePow2: 0})
	qt.Assert(t, qt.ErrorIs(err, coverage.ErrInvalidConfig))
}

// Zero tolerances disable both early exits, so the y sweep must run every
// round and still halt at y = log2(M)-1, keeping the last round's outcome.
func TestSweepTerminatesAtMapWidth(t *testing.T) {
	conf := smallConfig(4)
	conf.Delta = 0
	conf.Sigma = 0

	res, err := Solve(join(5, 0, 1), conf)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(res.Stats.Rounds, conf.MapSizePow2-1))
	qt.Assert(t, qt.Equals(res.Stats.UnsolvedBlocks, 1))
}

// The smallest valid map width gives the y sweep no rounds at all. Multi
// blocks must then surface as unsolved and take fallback slots; their edges
// may not silently drop out of every table.
func TestMapWidthOneDefersEveryJoin(t *testing.T) {
	res, err := Solve(join(1, 0, 1), smallConfig(1))
	qt.Assert(t, qt.IsNil(err))

	qt.Assert(t, qt.Equals(res.Stats.Rounds, 0))
	qt.Assert(t, qt.HasLen(res.Solved, 0))
	qt.Assert(t, qt.Equals(res.Stats.MultiBlocks, 1))
	qt.Assert(t, qt.Equals(res.Stats.UnsolvedBlocks, 1))

	want := map[EdgeKey]uint32{
		{Cur: 1, Pred: 0}: 0,
		{Cur: 1, Pred: 1}: 1,
	}
	if diff := cmp.Diff(want, res.EdgeSlots); diff != "" {
		t.Fatalf("fallback table mismatch (-want +got):\n%s", diff)
	}
}

// A block the search accepts must never be re-processed by the fallback
// builder: solved and unsolved are disjoint partitions of the multi set.
func TestSolvedBlocksExcludedFromFallback(t *testing.T) {
	g := graph.New()
	// Solvable join.
	p1, p2, cur := g.NewBlock(), g.NewBlock(), g.NewBlock()
	p1.Key, p2.Key, cur.Key = 1, 2, 5
	g.AddEdge(p1, cur)
	g.AddEdge(p2, cur)
	// Join no parameters can separate.
	q1, q2, stuck := g.NewBlock(), g.NewBlock(), g.NewBlock()
	q1.Key, q2.Key, stuck.Key = 0, 1, 6
	g.AddEdge(q1, stuck)
	g.AddEdge(q2, stuck)

	res, err := Solve(g, smallConfig(3))
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(res.Solved, 1))
	qt.Assert(t, qt.Equals(res.Solved[0].Block, cur))
	qt.Assert(t, qt.Equals(res.Stats.UnsolvedBlocks, 1))

	for _, p := range cur.Preds {
		_, present := res.EdgeSlots[EdgeKey{Cur: cur.Key, Pred: p.Key}]
		qt.Assert(t, qt.IsFalse(present))
	}
	for _, p := range stuck.Preds {
		_, present := res.EdgeSlots[EdgeKey{Cur: stuck.Key, Pred: p.Key}]
		qt.Assert(t, qt.IsTrue(present))
	}
}

// mixedGraph wires roots, joins and straight-line blocks with distinct keys
// so that every claimed slot is attributable to exactly one edge.
func mixedGraph() *graph.Graph {
	g := graph.New()
	roots := make([]*graph.Block, 4)
	for i := range roots {
		roots[i] = g.NewBlock()
		roots[i].Key = uint32(1 + i*3)
	}
	for i := 0; i < 3; i++ {
		join := g.NewBlock()
		join.Key = uint32(20 + i*5)
		g.AddEdge(roots[i], join)
		g.AddEdge(roots[i+1], join)
	}
	for i := 0; i < 5; i++ {
		b := g.NewBlock()
		b.Key = uint32(40 + i*2)
		g.AddEdge(roots[i%4], b)
	}
	return g
}

// Uniqueness across all three mechanisms: no parametric hash, fallback slot
// or single-block slot may coincide, and occupancy never exceeds the map.
func TestSlotOwnershipIsGloballyUnique(t *testing.T) {
	conf := smallConfig(6)
	res, err := Solve(mixedGraph(), conf)
	qt.Assert(t, qt.IsNil(err))

	owners := map[uint32]int{}
	for _, s := range res.Solved {
		for _, p := range s.Block.Preds {
			owners[EdgeHash(s.Block.Key, p.Key, s.Params)]++
		}
	}
	for _, slot := range res.EdgeSlots {
		owners[slot]++
	}
	for _, slot := range res.SingleSlots {
		owners[slot]++
	}

	for slot, n := range owners {
		if n != 1 {
			t.Fatalf("slot %d has %d owners", slot, n)
		}
		qt.Assert(t, qt.IsTrue(res.Occupied(slot)))
		if slot >= conf.MapSize() {
			t.Fatalf("slot %d outside map of size %d", slot, conf.MapSize())
		}
	}
	qt.Assert(t, qt.Equals(res.OccupiedCount(), len(owners)))
	qt.Assert(t, qt.Equals(res.Stats.Instrumented, len(owners)))
}

// The fallback phases only ever add to the occupied set.
func TestOccupancyMonotonic(t *testing.T) {
	g := mixedGraph()
	conf := smallConfig(6)
	res, err := Solve(g, conf)
	qt.Assert(t, qt.IsNil(err))

	solvedSlots := 0
	for _, s := range res.Solved {
		solvedSlots += len(s.Block.Preds)
	}
	total := res.OccupiedCount()
	qt.Assert(t, qt.IsTrue(total >= solvedSlots))
	qt.Assert(t, qt.IsTrue(total <= int(conf.MapSize())))
	qt.Assert(t, qt.Equals(total, solvedSlots+len(res.EdgeSlots)+len(res.SingleSlots)))
}
