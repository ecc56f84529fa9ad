package solver

import (
	"math"
	"math/rand"
	"testing"

	"github.com/dongqianbei/Seis-float16/internal/grid"
	"github.com/dongqianbei/Seis-float16/internal/scale"
	"github.com/dongqianbei/Seis-float16/internal/source"
)

// demoMedium builds the 100-cell test setup: 96 interior modulus and
// density samples, a stress impulse of ~1e-4 and a velocity source of
// ~1e-1 near the middle of the grid.
func demoMedium() (g grid.Config, modulus, rhoInv, v0, sig0 []float64, srcs []source.Record) {
	g = grid.Config{NX: 100, NZ: 1, GlobalNX: 100, DH: 10, FDOH: 2}
	rng := rand.New(rand.NewSource(7))
	interior := g.NX - 2*g.FDOH
	modulus = make([]float64, interior)
	rhoInv = make([]float64, interior)
	for n := range modulus {
		modulus[n] = rng.Float64() * 1000
		rhoInv[n] = 1 / (1 + rng.Float64()*999)
	}
	v0 = make([]float64, g.NX)
	sig0 = make([]float64, g.NX)
	sig0[50] = 1e-4
	srcs = []source.Record{{X: 480, Type: source.Velocity, Trace: source.Ricker(8, 0.01, 100)}}
	for i := range srcs[0].Trace {
		srcs[0].Trace[i] *= 1e-1
	}
	return g, modulus, rhoInv, v0, sig0, srcs
}

func runPropagation(t *testing.T, workers int, factors scale.Factors, emulateHalf bool) (v, sig []float64, st *Stepper) {
	t.Helper()
	g, modulus, rhoInv, v0, sig0, srcs := demoMedium()
	const dt = 0.01

	factors.ScaleModulus(modulus)
	factors.ScaleDensityInverse(rhoInv)
	factors.ScaleStressSource(sig0)
	factors.ScaleVelocitySource(v0)

	st, err := New(Config{Grid: g, Dt: dt, Workers: workers, EmulateHalf: emulateHalf}, modulus, rhoInv)
	if err != nil {
		t.Fatal(err)
	}
	inj, err := NewInjector(g, dt, 1, factors.SourceExponent())
	if err != nil {
		t.Fatal(err)
	}
	resolved, err := inj.Resolve(srcs)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Run(100, v0, sig0, inj, resolved); err != nil {
		t.Fatal(err)
	}
	factors.RecoverVelocity(v0)
	factors.RecoverStress(sig0)
	return v0, sig0, st
}

func maxRelDeviation(a, b []float64) float64 {
	norm := scale.MaxAbs(b)
	if norm == 0 {
		norm = 1
	}
	worst := 0.0
	for i := range a {
		if d := math.Abs(a[i]-b[i]) / norm; d > worst {
			worst = d
		}
	}
	return worst
}

func TestScaledPropagationMatchesUnscaled(t *testing.T) {
	refV, refSig, _ := runPropagation(t, 1, scale.Factors{}, false)

	_, modulus, _, _, sig0, _ := demoMedium()
	factors := scale.Compute(modulus, sig0)
	if factors.Ev == 0 || factors.Es == 0 {
		t.Fatalf("degenerate factors %+v make this test vacuous", factors)
	}
	scaledV, scaledSig, _ := runPropagation(t, 1, factors, false)

	if dev := maxRelDeviation(scaledV, refV); dev > 1e-10 {
		t.Fatalf("velocity deviation %g exceeds 1e-10", dev)
	}
	if dev := maxRelDeviation(scaledSig, refSig); dev > 1e-10 {
		t.Fatalf("stress deviation %g exceeds 1e-10", dev)
	}
}

func TestWorkerCountDoesNotChangeResults(t *testing.T) {
	serialV, serialSig, _ := runPropagation(t, 1, scale.Factors{}, false)
	parV, parSig, _ := runPropagation(t, 4, scale.Factors{}, false)
	for i := range serialV {
		if math.Float64bits(serialV[i]) != math.Float64bits(parV[i]) {
			t.Fatalf("v[%d] differs between 1 and 4 workers: %g vs %g", i, serialV[i], parV[i])
		}
		if math.Float64bits(serialSig[i]) != math.Float64bits(parSig[i]) {
			t.Fatalf("sig[%d] differs between 1 and 4 workers: %g vs %g", i, serialSig[i], parSig[i])
		}
	}
}

// halfMedium is a physically consistent hard case: modulus ρ·vp² ≈ 1.8e10
// dwarfs the binary16 range while the wavefield amplitudes sit far below
// its smallest subnormal.
func halfMedium() (g grid.Config, modulus, rhoInv, v0, sig0 []float64) {
	g = grid.Config{NX: 100, NZ: 1, GlobalNX: 100, DH: 10, FDOH: 2}
	interior := g.NX - 2*g.FDOH
	modulus = make([]float64, interior)
	rhoInv = make([]float64, interior)
	for n := range modulus {
		modulus[n] = 2000 * 3000 * 3000
		rhoInv[n] = 1.0 / 2000
	}
	v0 = make([]float64, g.NX)
	sig0 = make([]float64, g.NX)
	sig0[50] = 1e-4
	return g, modulus, rhoInv, v0, sig0
}

func runHalfCase(t *testing.T, factors scale.Factors, emulateHalf bool) (v, sig []float64, st *Stepper) {
	t.Helper()
	g, modulus, rhoInv, v0, sig0 := halfMedium()
	const dt = 1e-4

	factors.ScaleModulus(modulus)
	factors.ScaleDensityInverse(rhoInv)
	factors.ScaleStressSource(sig0)

	st, err := New(Config{Grid: g, Dt: dt, EmulateHalf: emulateHalf}, modulus, rhoInv)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Run(100, v0, sig0, nil, nil); err != nil {
		t.Fatal(err)
	}
	factors.RecoverVelocity(v0)
	factors.RecoverStress(sig0)
	return v0, sig0, st
}

func TestHalfEmulationNeedsTheScaling(t *testing.T) {
	refV, refSig, _ := runHalfCase(t, scale.Factors{}, false)
	if scale.MaxAbs(refV) == 0 {
		t.Fatal("reference wavefield did not develop")
	}

	// Without scaling the velocity increments sit below the smallest
	// binary16 subnormal and flush to zero: the wave never starts.
	rawV, _, rawSt := runHalfCase(t, scale.Factors{}, true)
	if got := scale.MaxAbs(rawV); got != 0 {
		t.Fatalf("unscaled half-precision run should underflow to a dead field, got max %g", got)
	}
	if rawSt.HalfOverflows() != 0 {
		t.Fatalf("unscaled run failed by underflow, not overflow; counted %d", rawSt.HalfOverflows())
	}

	_, mod, _, _, sig0 := halfMedium()
	factors := scale.Compute(mod, sig0)
	hv, hsig, hst := runHalfCase(t, factors, true)
	if hst.HalfOverflows() != 0 {
		t.Fatalf("scaled run left the binary16 range %d times", hst.HalfOverflows())
	}
	if dev := maxRelDeviation(hv, refV); dev > 0.1 {
		t.Fatalf("scaled half-precision velocity deviates by %g", dev)
	}
	if dev := maxRelDeviation(hsig, refSig); dev > 0.1 {
		t.Fatalf("scaled half-precision stress deviates by %g", dev)
	}
}

func TestStepperValidation(t *testing.T) {
	g := grid.Config{NX: 100, NZ: 1, GlobalNX: 100, DH: 10, FDOH: 2}
	interior := make([]float64, 96)
	if _, err := New(Config{Grid: g, Dt: 0}, interior, interior); err == nil {
		t.Error("zero time step must be rejected")
	}
	if _, err := New(Config{Grid: g, Dt: 0.01}, interior[:10], interior); err == nil {
		t.Error("short material field must be rejected")
	}
	bad := g
	bad.FDOH = 3
	badInterior := make([]float64, 100-6)
	if _, err := New(Config{Grid: bad, Dt: 0.01}, badInterior, badInterior); err == nil {
		t.Error("halo width mismatching the stencil must be rejected")
	}
}
