// Package solver advances the velocity–stress formulation of the elastic
// wave equation on a staggered grid. Fields are expected in the scaled
// domain produced by the scale package; the stepper itself is agnostic to
// the scaling, which is what makes scale-then-propagate-then-unscale
// algebraically equivalent to propagating the raw fields.
package solver

import (
	"fmt"

	"github.com/dongqianbei/Seis-float16/internal/grid"
	"github.com/dongqianbei/Seis-float16/internal/half"
	"github.com/dongqianbei/Seis-float16/internal/stencil"
)

// Config collects the explicit per-simulation state of a Stepper.
type Config struct {
	Grid grid.Config
	Dt   float64
	// Workers bounds the goroutines used for interior sweeps; zero or one
	// keeps the sweeps serial.
	Workers int
	// EmulateHalf rounds both fields through binary16 after each
	// sub-update, emulating half-precision field storage.
	EmulateHalf bool
}

// Stepper owns the material parameters and advances a (velocity, stress)
// pair one leapfrog step at a time. Material slices are interior-indexed:
// sample n corresponds to grid cell n+FDOH.
type Stepper struct {
	cfg     Config
	modulus []float64
	rhoInv  []float64
	deriv   []float64
	pool    *pool

	// OnStep, when set, observes both fields after every completed step.
	OnStep func(nt int, v, sig []float64)

	halfOverflows int
}

// New validates the configuration and builds a Stepper. modulus and rhoInv
// must already carry whatever scaling the caller wants the scheme to run
// under, and must cover exactly the interior cells.
func New(cfg Config, modulus, rhoInv []float64) (*Stepper, error) {
	if err := cfg.Grid.Validate(); err != nil {
		return nil, err
	}
	if cfg.Grid.NZ != 1 {
		return nil, fmt.Errorf("solver: stepper is one-dimensional, got NZ=%d", cfg.Grid.NZ)
	}
	if cfg.Grid.FDOH != stencil.Halo {
		return nil, fmt.Errorf("solver: halo width %d does not match the stencil's %d", cfg.Grid.FDOH, stencil.Halo)
	}
	if !(cfg.Dt > 0) {
		return nil, fmt.Errorf("solver: time step %v must be positive", cfg.Dt)
	}
	interior := cfg.Grid.NX - 2*cfg.Grid.FDOH
	if len(modulus) != interior || len(rhoInv) != interior {
		return nil, fmt.Errorf("solver: material fields cover %d/%d cells, want %d", len(modulus), len(rhoInv), interior)
	}
	return &Stepper{
		cfg:     cfg,
		modulus: modulus,
		rhoInv:  rhoInv,
		deriv:   make([]float64, interior),
		pool:    newPool(cfg.Workers),
	}, nil
}

// Step advances the pair one leapfrog step: velocity first, then stress,
// always in that order. Both slices must have length Grid.NX with halos
// already populated; only the interior is written.
func (s *Stepper) Step(v, sig []float64) {
	_ = s.step(0, v, sig, nil, nil)
}

// Run executes steps leapfrog steps, injecting sources into the velocity
// field between the velocity and stress updates of each step. inj may be
// nil when no per-step sources exist. The fields are left in their scaled
// form; recovering physical values is the caller's final unscale.
func (s *Stepper) Run(steps int, v, sig []float64, inj *Injector, sources []Resolved) error {
	if len(v) != s.cfg.Grid.NX || len(sig) != s.cfg.Grid.NX {
		return fmt.Errorf("solver: field length %d/%d, want %d", len(v), len(sig), s.cfg.Grid.NX)
	}
	for nt := 0; nt < steps; nt++ {
		if err := s.step(nt, v, sig, inj, sources); err != nil {
			return fmt.Errorf("step %d: %w", nt, err)
		}
		if s.OnStep != nil {
			s.OnStep(nt, v, sig)
		}
	}
	return nil
}

func (s *Stepper) step(nt int, v, sig []float64, inj *Injector, sources []Resolved) error {
	interior := len(s.deriv)
	dt := s.cfg.Dt

	s.pool.sweep(0, interior-1, func(lo, hi int) {
		stencil.DpRange(s.deriv, sig, lo, hi+1)
		for n := lo; n <= hi; n++ {
			v[n+stencil.Halo] += dt * s.rhoInv[n] * s.deriv[n]
		}
	})
	if inj != nil {
		if err := inj.Add(nt, sources, v); err != nil {
			return err
		}
	}
	s.roundHalf(v)

	s.pool.sweep(0, interior-1, func(lo, hi int) {
		stencil.DmRange(s.deriv, v, lo, hi+1)
		for n := lo; n <= hi; n++ {
			sig[n+stencil.Halo] += dt * s.modulus[n] * s.deriv[n]
		}
	})
	s.roundHalf(sig)
	return nil
}

func (s *Stepper) roundHalf(field []float64) {
	if !s.cfg.EmulateHalf {
		return
	}
	s.halfOverflows += half.RoundSlice(field)
}

// HalfOverflows reports how many samples left the binary16 range since the
// stepper was built. Nonzero means the scaling failed to keep the run
// inside half precision.
func (s *Stepper) HalfOverflows() int { return s.halfOverflows }
