package solver

// slotSet tracks claimed coverage-map slots. It is a fixed-capacity bitset:
// a slot can be claimed, never released, so disjointness against it is a
// plain membership probe rather than a scan. One slotSet is private to one
// trial round, and the final round's set becomes the run's occupied set.
type slotSet struct {
	words []uint64
	count int
}

func newSlotSet(capacity uint32) *slotSet {
	return &slotSet{words: make([]uint64, (int(capacity)+63)/64)}
}

func (s *slotSet) has(slot uint32) bool {
	w := int(slot / 64)
	if w >= len(s.words) {
		return false
	}
	return s.words[w]&(uint64(1)<<(slot%64)) != 0
}

// claim marks a slot. Claiming the same slot twice is a no-op so that count
// stays an exact occupancy figure.
func (s *slotSet) claim(slot uint32) {
	w := int(slot / 64)
	if w >= len(s.words) {
		extension := 1 + w - len(s.words)
		s.words = append(s.words, make([]uint64, extension)...)
	}
	mask := uint64(1) << (slot % 64)
	if s.words[w]&mask == 0 {
		s.words[w] |= mask
		s.count++
	}
}

func (s *slotSet) claimAll(slots []uint32) {
	for _, slot := range slots {
		s.claim(slot)
	}
}

func (s *slotSet) len() int {
	return s.count
}
