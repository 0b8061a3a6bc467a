// Package solver assigns coverage-map slots to control-flow edges with as
// few collisions as the map geometry allows. Multi-predecessor blocks are
// tried against a three-parameter family of per-block edge hashes first;
// whatever that search cannot place falls back to exact first-fit tables.
// All search state is local to one Solve call, so independent compilation
// units can be solved concurrently, each with its own Result.
package solver

import (
	"github.com/chan-shaw/collafl-go/coverage"
	"github.com/chan-shaw/collafl-go/graph"
)

// HashParams selects one member of the per-block edge-hash family. X and Z
// are found per block; Y is the round-global shift the block was solved
// under.
type HashParams struct {
	X, Y, Z int
}

// EdgeKey identifies an edge by the key pair of its endpoints, current
// block first.
type EdgeKey struct {
	Cur, Pred uint32
}

// SolvedBlock couples a multi-predecessor block with the parameters that
// hash all of its incoming edges to distinct, globally unclaimed slots.
type SolvedBlock struct {
	Block  *graph.Block
	Params HashParams
}

// Stats are the diagnostic scalars of a run, for reporting only.
type Stats struct {
	MultiBlocks      int
	SingleBlocks     int
	SolvedBlocks     int
	UnsolvedBlocks   int
	Rounds           int
	Instrumented     int
	MinUnsolvedRatio float64
}

// Result is the read-only outcome of one Solve, consumed by the
// instrumentation emitter.
type Result struct {
	Solved      []SolvedBlock
	EdgeSlots   map[EdgeKey]uint32
	SingleSlots map[uint32]uint32
	Stats       Stats

	occupied *slotSet
}

// Occupied reports whether a slot was claimed by any phase of the run.
func (r *Result) Occupied(slot uint32) bool {
	return r.occupied.has(slot)
}

// OccupiedCount is the number of distinct slots claimed across the run.
func (r *Result) OccupiedCount() int {
	return r.occupied.len()
}

// EdgeHash evaluates the parametric family for one edge. The shifted
// current key is XORed with the shifted-then-offset predecessor key; all
// arithmetic stays inside uint32, and for keys below the map size the
// result stays below the map size.
func EdgeHash(cur, pred uint32, p HashParams) uint32 {
	return (cur >> p.X) ^ ((pred >> p.Y) + uint32(p.Z))
}

// Solve computes slot assignments for every incoming edge of every block in
// g. An empty graph is a successful no-op. The returned Result is
// self-contained; g is not retained beyond the blocks referenced from
// Solved.
func Solve(g *graph.Graph, conf coverage.Config) (*Result, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	res := &Result{
		EdgeSlots:   map[EdgeKey]uint32{},
		SingleSlots: map[uint32]uint32{},
		occupied:    newSlotSet(conf.MapSize()),
		Stats:       Stats{MinUnsolvedRatio: 1},
	}
	if g == nil || len(g.Blocks) == 0 {
		// Nothing to instrument.
		res.Stats.MinUnsolvedRatio = 0
		return res, nil
	}

	singles, multis := g.Classify()
	res.Stats.MultiBlocks = len(multis)
	res.Stats.SingleBlocks = len(singles)

	unsolved := res.solveMulti(multis, conf)
	if err := res.buildEdgeTable(unsolved, conf); err != nil {
		return nil, err
	}
	if err := res.buildSingleTable(singles, conf); err != nil {
		return nil, err
	}

	for _, s := range res.Solved {
		res.Stats.Instrumented += len(s.Block.Preds)
	}
	res.Stats.Instrumented += len(res.EdgeSlots) + len(res.SingleSlots)
	return res, nil
}

// solveMulti runs trial rounds over the global shift y. Every round starts
// from a clean claimed set; the state of the round that terminates the
// sweep is kept, and its claimed slots seed the fallback phases.
func (r *Result) solveMulti(multis []*graph.Block, conf coverage.Config) []*graph.Block {
	if len(multis) == 0 {
		r.Stats.MinUnsolvedRatio = 0
		return nil
	}

	// At pow2 = 1 the sweep below has no rounds to run; the seed keeps
	// every multi block headed for the fallback table instead of
	// vanishing from all outputs.
	unsolved := append([]*graph.Block(nil), multis...)
	scratch := make(map[uint32]struct{}, 8)
	var hashes []uint32

	for y := 1; y < conf.MapSizePow2; y++ {
		r.Stats.Rounds++
		claimed := newSlotSet(conf.MapSize())
		solved := make([]SolvedBlock, 0, len(multis))
		unsolved = unsolved[:0]

		for _, b := range multis {
			params, ok := searchBlock(b, y, conf.MapSizePow2, claimed, scratch, &hashes)
			if ok {
				solved = append(solved, SolvedBlock{Block: b, Params: params})
				claimed.claimAll(hashes)
			} else {
				unsolved = append(unsolved, b)
			}
		}

		ratio := float64(len(unsolved)) / float64(len(unsolved)+len(solved))
		if ratio < r.Stats.MinUnsolvedRatio {
			r.Stats.MinUnsolvedRatio = ratio
		}
		r.Solved = solved
		r.occupied = claimed
		if len(unsolved) < conf.Delta || ratio < conf.Sigma {
			break
		}
	}

	r.Stats.SolvedBlocks = len(r.Solved)
	r.Stats.UnsolvedBlocks = len(unsolved)
	return unsolved
}

// searchBlock scans (x, z) pairs in ascending x, then ascending z, and
// accepts the first pair whose edge hashes are pairwise distinct and absent
// from the round's claimed set. The acceptance order is load-bearing: it
// decides which blocks get solved before the free hash space thins out, so
// it must not be reordered. On success the accepted hashes are left in
// *hashes for the caller to claim.
func searchBlock(b *graph.Block, y, pow2 int, claimed *slotSet, scratch map[uint32]struct{}, hashes *[]uint32) (HashParams, bool) {
	for x := 1; x < pow2; x++ {
		for z := 1; z < pow2; z++ {
			p := HashParams{X: x, Y: y, Z: z}
			clear(scratch)
			*hashes = (*hashes)[:0]
			ok := true
			for _, pred := range b.Preds {
				h := EdgeHash(b.Key, pred.Key, p)
				if _, dup := scratch[h]; dup || claimed.has(h) {
					ok = false
					break
				}
				scratch[h] = struct{}{}
				*hashes = append(*hashes, h)
			}
			if ok {
				return p, true
			}
		}
	}
	return HashParams{}, false
}
