// Package source describes point sources on the staggered grid: a physical
// position, a type discriminator, and one amplitude per simulation step.
package source

import (
	"fmt"
	"math"
)

// Type discriminates which field a source drives.
type Type int

const (
	// Velocity sources are injected into the velocity field each step.
	Velocity Type = 1
	// Stress sources enter the stress field, typically as the initial
	// condition of a propagation.
	Stress Type = 2
)

// Record is one point source. X, Y, Z are physical coordinates; Trace holds
// the amplitude for every step of the simulation.
type Record struct {
	X, Y, Z float64
	Type    Type
	Trace   []float64
}

// descriptorStride is the raw per-source layout: x, y, z, a reserved slot,
// and the type code.
const descriptorStride = 5

// FromRaw assembles records from the flat wire layout used by external
// drivers: descriptorStride values per source and a row-major nsrc×steps
// amplitude table.
func FromRaw(descriptors, amplitudes []float64, steps int) ([]Record, error) {
	if steps < 1 {
		return nil, fmt.Errorf("source: step count %d must be positive", steps)
	}
	if len(descriptors)%descriptorStride != 0 {
		return nil, fmt.Errorf("source: descriptor block of %d values is not a multiple of %d", len(descriptors), descriptorStride)
	}
	nsrc := len(descriptors) / descriptorStride
	if len(amplitudes) != nsrc*steps {
		return nil, fmt.Errorf("source: amplitude table holds %d values, want %d×%d", len(amplitudes), nsrc, steps)
	}
	records := make([]Record, nsrc)
	for s := 0; s < nsrc; s++ {
		d := descriptors[s*descriptorStride : (s+1)*descriptorStride]
		typ := Type(d[4])
		if typ != Velocity && typ != Stress {
			return nil, fmt.Errorf("source %d: unknown type code %v", s, d[4])
		}
		records[s] = Record{
			X:     d[0],
			Y:     d[1],
			Z:     d[2],
			Type:  typ,
			Trace: amplitudes[s*steps : (s+1)*steps],
		}
	}
	return records, nil
}

// Ricker synthesizes a Ricker wavelet trace of the given length: the second
// derivative of a Gaussian, peaking at 1 after a delay of 1.5 periods so the
// onset is effectively zero.
func Ricker(peakFreq, dt float64, steps int) []float64 {
	trace := make([]float64, steps)
	t0 := 1.5 / peakFreq
	for n := range trace {
		tau := float64(n)*dt - t0
		arg := math.Pi * math.Pi * peakFreq * peakFreq * tau * tau
		trace[n] = (1 - 2*arg) * math.Exp(-arg)
	}
	return trace
}
