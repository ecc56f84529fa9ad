//go:build !opencl

package solver

import "errors"

// GPUStepper is only available in builds with the opencl tag.
type GPUStepper struct{}

// NewGPUStepper reports that OpenCL support was compiled out.
func NewGPUStepper(cfg Config, modulus, rhoInv []float64) (*GPUStepper, error) {
	return nil, errors.New("OpenCL support is not enabled; rebuild with -tags opencl")
}

func (s *GPUStepper) Run(steps int, v, sig []float64, inj *Injector, sources []Resolved) error {
	return errors.New("OpenCL stepper unavailable")
}

func (s *GPUStepper) DeviceName() string { return "" }

func (s *GPUStepper) Close() {}
