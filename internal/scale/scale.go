// Package scale maps physical fields into a reduced dynamic range by
// power-of-two multiplication. Because the multiplier is an exact power of
// two, only exponents move: mantissas are untouched, scaling is bit-exact to
// invert, and linear operators commute with it. That property is the entire
// basis for running the wave scheme in half precision.
package scale

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrZeroField reports a governing field with no nonzero sample; its
// magnitude exponent is undefined. Policy for callers is to fall back to
// exponent 0, since a zero field imposes no dynamic-range requirement.
var ErrZeroField = errors.New("scale: field is identically zero")

// MaxAbs returns the largest magnitude in x. Under domain decomposition
// each rank computes its local MaxAbs and the results are reduced with
// math.Max before ExponentFromMax; every rank must finish this reduction
// before any scaled field is used.
func MaxAbs(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Norm(x, math.Inf(1))
}

// ExponentFromMax derives the integer exponent e with 2^e·max ≤ 1, and
// exactly 1 when max is itself a power of two.
func ExponentFromMax(max float64) (int, error) {
	if max == 0 {
		return 0, ErrZeroField
	}
	if math.IsNaN(max) || math.IsInf(max, 0) {
		return 0, fmt.Errorf("scale: field maximum %v is not finite", max)
	}
	frac, exp := math.Frexp(max) // max = frac·2^exp, frac ∈ [0.5, 1)
	if frac == 0.5 {
		return -(exp - 1), nil
	}
	return -exp, nil
}

// Exponent computes ExponentFromMax over a whole field.
func Exponent(x []float64) (int, error) {
	return ExponentFromMax(MaxAbs(x))
}

// ExponentOrZero applies the zero-field fallback policy.
func ExponentOrZero(x []float64) int {
	e, err := Exponent(x)
	if err != nil {
		return 0
	}
	return e
}

// Apply multiplies x elementwise by 2^e in place. The operation is exact
// while results stay inside the representable exponent range; outside it
// values flush to zero or overflow exactly as Ldexp does.
func Apply(x []float64, e int) {
	for i, v := range x {
		x[i] = math.Ldexp(v, e)
	}
}

// Scaled returns a scaled copy, leaving x untouched.
func Scaled(x []float64, e int) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Ldexp(v, e)
	}
	return out
}

// Factors carries the two exponents governing a propagation: Ev from the
// modulus field, Es from the stress-source field. Both come from global
// reductions over the entire domain.
type Factors struct {
	Ev int
	Es int
}

// Compute derives the factors for a simulation, applying the zero-field
// fallback for either input.
func Compute(modulus, stressSource []float64) Factors {
	return Factors{
		Ev: ExponentOrZero(modulus),
		Es: ExponentOrZero(stressSource),
	}
}

// ScaleModulus maps M to M' = 2^Ev·M in place.
func (f Factors) ScaleModulus(m []float64) { Apply(m, f.Ev) }

// ScaleDensityInverse maps 1/ρ to 2^-Ev·(1/ρ) in place.
func (f Factors) ScaleDensityInverse(r []float64) { Apply(r, -f.Ev) }

// ScaleStressSource maps s to s” = 2^Es·s in place.
func (f Factors) ScaleStressSource(s []float64) { Apply(s, f.Es) }

// ScaleVelocitySource maps f to f” = 2^(Es-Ev)·f in place.
func (f Factors) ScaleVelocitySource(v []float64) { Apply(v, f.Es-f.Ev) }

// SourceExponent is the per-call exponent handed to the injector so that
// injected amplitudes land in the velocity field's scaled range.
func (f Factors) SourceExponent() int { return f.Es - f.Ev }

// RecoverStress undoes the stress scaling after propagation: σ = 2^-Es·σ”.
func (f Factors) RecoverStress(s []float64) { Apply(s, -f.Es) }

// RecoverVelocity undoes the velocity scaling: v = 2^(Ev-Es)·v”.
func (f Factors) RecoverVelocity(v []float64) { Apply(v, f.Ev-f.Es) }
