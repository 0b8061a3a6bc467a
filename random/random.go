// Package random supplies the randomness used to hand out block keys and to
// sample the instrumentation ratio. Keys only need to be unpredictable
// between runs, not cryptographically strong, but crypto/rand saves us from
// seeding discipline.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
)

func GetRandom() uint64 {
	var tmp [8]byte
	crand.Read(tmp[:])
	return binary.LittleEndian.Uint64(tmp[:])
}

// KeyBelow returns a block key in [0, n). Keys are random, not unique:
// two blocks may draw the same key, which the solver tolerates.
func KeyBelow(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return uint32(GetRandom() % uint64(n))
}
