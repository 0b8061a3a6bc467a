// Package graph is the control-flow-graph model the slot solver operates on.
// A Graph is built once per compilation unit by a front end (for Go source,
// see the instrumentor package), given random keys, and then handed to the
// solver read-only.
package graph

import "github.com/chan-shaw/collafl-go/random"

// Block is one basic block. ID is the insertion order and is the stable
// identity within a run; Key is the block's random coverage-map identifier.
// The order of Preds is whatever order edges were added in, which the
// builder must keep stable so that runs are reproducible.
type Block struct {
	ID    int
	Key   uint32
	Preds []*Block
}

// Graph owns its blocks in insertion order.
type Graph struct {
	Blocks []*Block
}

func New() *Graph {
	return &Graph{}
}

// NewBlock appends a block with the next ID and no predecessors.
func (g *Graph) NewBlock() *Block {
	b := &Block{ID: len(g.Blocks)}
	g.Blocks = append(g.Blocks, b)
	return b
}

// AddEdge records the control-flow transition pred -> cur.
func (g *Graph) AddEdge(pred, cur *Block) {
	cur.Preds = append(cur.Preds, pred)
}

// AssignKeys draws a key in [0, mapSize) for every block. Duplicate keys are
// possible and permitted; they cost solver precision, never correctness.
func (g *Graph) AssignKeys(mapSize uint32) {
	for _, b := range g.Blocks {
		b.Key = random.KeyBelow(mapSize)
	}
}

// Classify partitions blocks by in-degree: exactly one predecessor, or more
// than one. Blocks without predecessors (function entries) belong to neither
// set; they appear only on the predecessor side of edges. Both partitions
// preserve Graph.Blocks order.
func (g *Graph) Classify() (singles, multis []*Block) {
	for _, b := range g.Blocks {
		switch {
		case len(b.Preds) == 1:
			singles = append(singles, b)
		case len(b.Preds) > 1:
			multis = append(multis, b)
		}
	}
	return singles, multis
}
