// Package grid describes the geometry of a local subdomain on a staggered
// finite-difference mesh: extents, spacing, halo width, and the offset of the
// subdomain inside the decomposed global grid. All index resolution goes
// through this package so that out-of-range positions are typed conditions
// rather than silent memory corruption.
package grid

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutOfGrid reports a position that resolves outside the global grid.
// It is distinct from a position owned by a neighboring subdomain, which is
// not an error at all.
var ErrOutOfGrid = errors.New("grid: position resolves outside the global grid")

// Config is the explicit geometry threaded through every solver call.
// NX counts local cells along the decomposed axis including both halos.
// NZ covers the orthogonal axis and is 1 for a 1-D chain.
type Config struct {
	NX       int
	NZ       int
	GlobalNX int
	DH       float64
	FDOH     int
	Offset   int
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.FDOH < 1 {
		return fmt.Errorf("grid: halo width %d must be at least 1", c.FDOH)
	}
	if c.NX < 2*c.FDOH+1 {
		return fmt.Errorf("grid: local extent %d leaves no interior for halo width %d", c.NX, c.FDOH)
	}
	if c.NZ < 1 {
		return fmt.Errorf("grid: orthogonal extent %d must be at least 1", c.NZ)
	}
	if c.GlobalNX < c.NX {
		return fmt.Errorf("grid: global extent %d smaller than local extent %d", c.GlobalNX, c.NX)
	}
	if !(c.DH > 0) {
		return fmt.Errorf("grid: spacing %v must be positive", c.DH)
	}
	if c.Offset < 0 || c.Offset+c.NX > c.GlobalNX {
		return fmt.Errorf("grid: offset %d places local extent %d outside global extent %d", c.Offset, c.NX, c.GlobalNX)
	}
	return nil
}

// Cells returns the number of samples a local field array must hold.
func (c Config) Cells() int { return c.NX * c.NZ }

// Interior returns the inclusive range of local x indices updated by the
// stencil; indices outside it belong to the halo.
func (c Config) Interior() (lo, hi int) { return c.FDOH, c.NX - c.FDOH - 1 }

// LocateX converts a physical coordinate to its global grid index.
func (c Config) LocateX(x float64) int {
	return int(math.Floor(x/c.DH)) + c.FDOH
}

// Owns reports whether the global index i falls in this subdomain's
// writable interior. A false result means the cell is owned by a
// neighboring subdomain (or sits in a halo) and must not be written here.
func (c Config) Owns(i int) bool {
	li := i - c.Offset
	return li >= c.FDOH && li <= c.NX-c.FDOH-1
}

// Local translates a global index into this subdomain's array index.
// The result is only meaningful when Owns(i) is true.
func (c Config) Local(i int) int { return i - c.Offset }

// CheckGlobal verifies that a global index lies on the global grid's
// interior. Failing this check means the input is malformed, not that the
// cell belongs elsewhere.
func (c Config) CheckGlobal(i int) error {
	if i < c.FDOH || i > c.GlobalNX-c.FDOH-1 {
		return fmt.Errorf("%w: index %d outside [%d, %d]", ErrOutOfGrid, i, c.FDOH, c.GlobalNX-c.FDOH-1)
	}
	return nil
}

// Decompose splits a global extent of globalNX cells (halos included) into
// parts contiguous subdomains along x. Each subdomain carries its own halo
// of width fdoh, so neighboring configs overlap by 2*fdoh cells; refreshing
// those overlaps between steps is the caller's halo-exchange contract.
func Decompose(globalNX, parts, fdoh int, dh float64) ([]Config, error) {
	if parts < 1 {
		return nil, fmt.Errorf("grid: cannot decompose into %d parts", parts)
	}
	interior := globalNX - 2*fdoh
	if interior < parts {
		return nil, fmt.Errorf("grid: %d interior cells cannot fill %d subdomains", interior, parts)
	}
	configs := make([]Config, parts)
	start := fdoh
	for p := 0; p < parts; p++ {
		count := interior / parts
		if p < interior%parts {
			count++
		}
		configs[p] = Config{
			NX:       count + 2*fdoh,
			NZ:       1,
			GlobalNX: globalNX,
			DH:       dh,
			FDOH:     fdoh,
			Offset:   start - fdoh,
		}
		if err := configs[p].Validate(); err != nil {
			return nil, err
		}
		start += count
	}
	return configs, nil
}
