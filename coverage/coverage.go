// Package coverage holds the geometry of the shared coverage map and the
// tolerances that bound the slot-assignment search. One Config describes one
// run over one compilation unit; values are supplied directly by the caller
// rather than read from the environment.
package coverage

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned before any work is performed when the
	// map geometry or the search tolerances are unusable.
	ErrInvalidConfig = errors.New("invalid coverage configuration")

	// ErrSlotExhausted is returned when a first-fit scan finds no free slot
	// left in the coverage map. The whole run must be abandoned: an
	// under-instrumented result would silently merge distinct edges.
	ErrSlotExhausted = errors.New("coverage map has no free slot")
)

const (
	// DefaultMapSizePow2 yields the classic 64 KiB coverage map.
	DefaultMapSizePow2 = 16

	// DefaultDelta stops the parameter sweep once fewer than this many
	// blocks remain unsolved.
	DefaultDelta = 10

	// DefaultSigma stops the parameter sweep once the unsolved ratio drops
	// below this fraction.
	DefaultSigma = 0.001

	// DefaultInstRatio instruments every eligible block.
	DefaultInstRatio = 100
)

// Config carries the per-run knobs. MapSizePow2 fixes the map capacity at
// 1<<MapSizePow2 slots; Delta and Sigma bound the parametric search;
// InstRatio is the percentage of blocks that receive instrumentation.
type Config struct {
	MapSizePow2 int
	Delta       int
	Sigma       float64
	InstRatio   int
}

// DefaultConfig matches the constants compiled into the original pass.
func DefaultConfig() Config {
	return Config{
		MapSizePow2: DefaultMapSizePow2,
		Delta:       DefaultDelta,
		Sigma:       DefaultSigma,
		InstRatio:   DefaultInstRatio,
	}
}

// MapSize is the slot capacity of the coverage map.
func (c Config) MapSize() uint32 {
	return uint32(1) << c.MapSizePow2
}

// Validate reports the first unusable field. The capacity bound keeps the
// map expressible as a uint32 slot space with room for hash arithmetic.
func (c Config) Validate() error {
	if c.MapSizePow2 < 1 || c.MapSizePow2 > 30 {
		return fmt.Errorf("%w: map size 2^%d out of range [2^1, 2^30]", ErrInvalidConfig, c.MapSizePow2)
	}
	if c.Delta < 0 {
		return fmt.Errorf("%w: delta %d must not be negative", ErrInvalidConfig, c.Delta)
	}
	if c.Sigma < 0 || c.Sigma > 1 {
		return fmt.Errorf("%w: sigma %g outside [0, 1]", ErrInvalidConfig, c.Sigma)
	}
	if c.InstRatio < 1 || c.InstRatio > 100 {
		return fmt.Errorf("%w: instrumentation ratio %d outside [1, 100]", ErrInvalidConfig, c.InstRatio)
	}
	return nil
}
