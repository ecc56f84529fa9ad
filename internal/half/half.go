// Package half encodes float64 values as IEEE 754-2008 binary16. The solver
// uses it to emulate storing the propagated fields in half precision: a
// field that survives RoundSlice without overflow fits the five-bit exponent
// range the scaling scheme targets.
package half

import "math"

// MaxFinite is the largest finite binary16 magnitude.
const MaxFinite = 65504.0

// Bits narrows f to its binary16 representation, rounding to nearest.
func Bits(f float64) uint16 {
	bits := math.Float64bits(f)
	sign := uint16((bits >> 48) & 0x8000)
	exp := int((bits >> 52) & 0x7ff)
	mant := bits & 0xfffffffffffff

	switch exp {
	case 0x7ff:
		// Preserve NaN payloads where possible.
		if mant == 0 {
			return sign | 0x7c00
		}
		mant >>= 42
		if mant == 0 {
			mant = 1
		}
		return sign | 0x7c00 | uint16(mant)
	case 0:
		if mant == 0 {
			return sign
		}
	}

	expHalf := exp - 1023 + 15
	if expHalf >= 0x1f {
		return sign | 0x7c00
	}
	if expHalf <= 0 {
		if expHalf < -10 {
			return sign
		}
		mant |= 1 << 52
		mant >>= uint(1 - expHalf)
		mant += 1 << 41
		return sign | uint16(mant>>42)
	}

	mant += 1 << 41
	if mant&(1<<52) != 0 {
		mant = 0
		expHalf++
		if expHalf >= 0x1f {
			return sign | 0x7c00
		}
	}
	return sign | uint16(expHalf<<10) | uint16(mant>>42)
}

// Float expands a binary16 bit pattern back to float64, exactly.
func Float(h uint16) float64 {
	sign := uint64(h>>15) << 63
	exp := int((h >> 10) & 0x1f)
	mant := uint64(h & 0x3ff)

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float64frombits(sign)
		}
		e := -14
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3ff
		return math.Float64frombits(sign | uint64(e+1023)<<52 | mant<<42)
	case 0x1f:
		bits := sign | 0x7ff<<52 | mant<<42
		return math.Float64frombits(bits)
	default:
		return math.Float64frombits(sign | uint64(exp-15+1023)<<52 | mant<<42)
	}
}

// RoundSlice snaps every sample of x onto the binary16 grid in place and
// returns how many finite samples overflowed to infinity, which signals
// that the field's dynamic range exceeds what half precision can hold.
func RoundSlice(x []float64) int {
	overflowed := 0
	for i, v := range x {
		r := Float(Bits(v))
		if math.IsInf(r, 0) && !math.IsInf(v, 0) {
			overflowed++
		}
		x[i] = r
	}
	return overflowed
}
