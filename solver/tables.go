package solver

import (
	"fmt"

	"github.com/chan-shaw/collafl-go/coverage"
	"github.com/chan-shaw/collafl-go/graph"
)

// firstFreeSlot scans slot indices in increasing order against the shared
// occupied set.
func firstFreeSlot(occupied *slotSet, mapSize uint32) (uint32, bool) {
	for i := uint32(0); i < mapSize; i++ {
		if !occupied.has(i) {
			return i, true
		}
	}
	return 0, false
}

// buildEdgeTable gives every incoming edge of every unsolved block an exact
// slot. A slot is claimed the moment it is handed out, so no later edge or
// single-predecessor block can reuse it. Running out of slots aborts the
// run: the map is too small for this program's edge count.
func (r *Result) buildEdgeTable(unsolved []*graph.Block, conf coverage.Config) error {
	for _, b := range unsolved {
		for _, p := range b.Preds {
			slot, ok := firstFreeSlot(r.occupied, conf.MapSize())
			if !ok {
				return fmt.Errorf("edge (%d, %d): %w", b.Key, p.Key, coverage.ErrSlotExhausted)
			}
			r.EdgeSlots[EdgeKey{Cur: b.Key, Pred: p.Key}] = slot
			r.occupied.claim(slot)
		}
	}
	return nil
}

// buildSingleTable is the same first-fit discipline for blocks with exactly
// one predecessor, keyed by the block's own key.
func (r *Result) buildSingleTable(singles []*graph.Block, conf coverage.Config) error {
	for _, b := range singles {
		slot, ok := firstFreeSlot(r.occupied, conf.MapSize())
		if !ok {
			return fmt.Errorf("single-predecessor block key %d: %w", b.Key, coverage.ErrSlotExhausted)
		}
		r.SingleSlots[b.Key] = slot
		r.occupied.claim(slot)
	}
	return nil
}
