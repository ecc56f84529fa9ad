// Package stencil implements the fourth-order staggered-grid derivative
// operators of the velocity–stress scheme. The coefficients are
// dispersion-optimized rather than Taylor-derived, which is why they do not
// sum to the textbook 9/8 and 1/24 values.
package stencil

// C1 and C2 weight the inner and outer sample pairs of both operators.
const (
	C1 = 1.1382
	C2 = 0.046414
)

// Halo is the number of samples each operator trims from both ends of its
// input; callers must keep a halo of this width populated around every
// subdomain interior.
const Halo = 2

// Dp applies the forward-biased derivative, producing len(u)-2*Halo samples.
// Output sample n sits half a cell above input cell n+1.
func Dp(u []float64) []float64 {
	dst := make([]float64, len(u)-2*Halo)
	DpRange(dst, u, 0, len(dst))
	return dst
}

// Dm applies the backward-biased derivative, producing len(u)-2*Halo samples.
// Output sample n sits half a cell above input cell n+2.
func Dm(u []float64) []float64 {
	dst := make([]float64, len(u)-2*Halo)
	DmRange(dst, u, 0, len(dst))
	return dst
}

// DpRange evaluates Dp for output indices [lo, hi) only, so that disjoint
// ranges can be computed concurrently into a shared destination.
func DpRange(dst, u []float64, lo, hi int) {
	for n := lo; n < hi; n++ {
		dst[n] = C1*(u[n+2]-u[n+1]) - C2*(u[n+3]-u[n])
	}
}

// DmRange evaluates Dm for output indices [lo, hi).
func DmRange(dst, u []float64, lo, hi int) {
	for n := lo; n < hi; n++ {
		dst[n] = C1*(u[n+3]-u[n+2]) - C2*(u[n+4]-u[n+1])
	}
}
