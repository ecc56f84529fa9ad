package solver

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/dongqianbei/Seis-float16/internal/grid"
	"github.com/dongqianbei/Seis-float16/internal/source"
)

// Injector adds scaled source amplitudes into the velocity field of one
// subdomain. Position resolution distinguishes two very different misses:
// a source owned by a neighboring subdomain is silently skipped, while a
// source off the global grid is malformed input and fails fast.
type Injector struct {
	grid grid.Config
	dt   float64
	pdir float64
	// exponent shifts every injected amplitude by an exact power of two
	// so it lands in the velocity field's scaled range.
	exponent int
}

// NewInjector builds an injector for one subdomain. pdir selects forward
// (+1) or adjoint (-1) propagation; exponent is the per-call source scale,
// e_s - e_v for a velocity source in the scaled domain.
func NewInjector(g grid.Config, dt float64, pdir int, exponent int) (*Injector, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if pdir != 1 && pdir != -1 {
		return nil, fmt.Errorf("solver: propagation direction %d must be +1 or -1", pdir)
	}
	if !(dt > 0) {
		return nil, fmt.Errorf("solver: time step %v must be positive", dt)
	}
	return &Injector{grid: g, dt: dt, pdir: float64(pdir), exponent: exponent}, nil
}

// Resolved is a source whose position has been mapped to a local field
// index. Sources owned by other subdomains resolve with local=false and
// are no-ops for the rest of the run.
type Resolved struct {
	index int
	local bool
	trace []float64
}

// Resolve maps velocity-type records onto local field indices. Resolution
// is independent per source and fans out across the CPUs; records of other
// types resolve as non-local so callers can pass a mixed set. The grid
// index is step-invariant, so this runs once per simulation, not per step.
func (in *Injector) Resolve(records []source.Record) ([]Resolved, error) {
	resolved := make([]Resolved, len(records))
	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for s := range records {
		eg.Go(func() error {
			rec := records[s]
			if rec.Type != source.Velocity {
				return nil
			}
			i := in.grid.LocateX(rec.X)
			if err := in.grid.CheckGlobal(i); err != nil {
				return fmt.Errorf("source %d at x=%v: %w", s, rec.X, err)
			}
			if !in.grid.Owns(i) {
				// Owned by a neighboring subdomain; not an error.
				return nil
			}
			index := in.grid.Local(i)
			if in.grid.NZ > 1 {
				k := int(math.Floor(rec.Z/in.grid.DH)) + in.grid.FDOH
				if k < in.grid.FDOH || k > in.grid.NZ-in.grid.FDOH-1 {
					return fmt.Errorf("source %d at z=%v: %w", s, rec.Z, grid.ErrOutOfGrid)
				}
				index = index*in.grid.NZ + k
			}
			resolved[s] = Resolved{index: index, local: true, trace: rec.Trace}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return resolved, nil
}

// Add accumulates amplitude step nt of every locally resolved source into
// v. The merge is serialized on purpose: two sources resolving to the same
// cell must both contribute, and an unsynchronized write-after-write race
// would drop one of them.
func (in *Injector) Add(nt int, resolved []Resolved, v []float64) error {
	for s, r := range resolved {
		if !r.local {
			continue
		}
		if nt < 0 || nt >= len(r.trace) {
			return fmt.Errorf("solver: step %d outside source %d's %d-sample trace", nt, s, len(r.trace))
		}
		v[r.index] += math.Ldexp(in.pdir*in.dt*r.trace[nt], in.exponent)
	}
	return nil
}

// Inject is the single-call entry point: resolve the records against this
// subdomain and accumulate their step-nt amplitudes into v.
func (in *Injector) Inject(nt int, records []source.Record, v []float64) error {
	resolved, err := in.Resolve(records)
	if err != nil {
		return err
	}
	return in.Add(nt, resolved, v)
}
