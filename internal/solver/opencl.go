//go:build opencl

package solver

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"

	"github.com/dongqianbei/Seis-float16/internal/stencil"
)

// GPUStepper runs the leapfrog scheme on an OpenCL device. Fields are
// uploaded once, all steps execute on the device, and the scaled results
// are read back at the end. Device arithmetic is float32, which is already
// a reduced exponent range compared to the float64 host path; the scaling
// is what keeps the scheme healthy there.
type GPUStepper struct {
	cfg Config

	context      *cl.Context
	queue        *cl.CommandQueue
	program      *cl.Program
	velKernel    *cl.Kernel
	stressKernel *cl.Kernel
	injectKernel *cl.Kernel
	velBuf       *cl.MemObject
	sigBuf       *cl.MemObject
	modBuf       *cl.MemObject
	ripBuf       *cl.MemObject
	deviceName   string
}

const stepKernelSource = `#define C1 1.1382f
#define C2 0.046414f

__kernel void update_v(
    const int n_interior,
    const float dt,
    __global const float* rip,
    __global const float* sig,
    __global float* vel)
{
    int n = get_global_id(0);
    if (n >= n_interior) {
        return;
    }
    float d = C1 * (sig[n + 2] - sig[n + 1]) - C2 * (sig[n + 3] - sig[n]);
    vel[n + 2] += dt * rip[n] * d;
}

__kernel void update_s(
    const int n_interior,
    const float dt,
    __global const float* mu,
    __global const float* vel,
    __global float* sig)
{
    int n = get_global_id(0);
    if (n >= n_interior) {
        return;
    }
    float d = C1 * (vel[n + 3] - vel[n + 2]) - C2 * (vel[n + 4] - vel[n + 1]);
    sig[n + 2] += dt * mu[n] * d;
}

__kernel void inject_src(
    const int idx,
    const float amp,
    const int e,
    __global float* vel)
{
    if (get_global_id(0) != 0) {
        return;
    }
    vel[idx] += ldexp(amp, e);
}`

// NewGPUStepper builds the device-side counterpart of New. The material
// slices carry the same interior indexing and scaling as the host stepper.
func NewGPUStepper(cfg Config, modulus, rhoInv []float64) (*GPUStepper, error) {
	if _, err := New(cfg, modulus, rhoInv); err != nil {
		return nil, err
	}
	if cfg.EmulateHalf {
		return nil, errors.New("solver: binary16 emulation is a host-path feature")
	}

	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying OpenCL platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms; install OpenCL drivers and verify with `clinfo`"
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	if len(platforms) == 0 {
		return nil, errors.New("no OpenCL platforms available")
	}
	var device *cl.Device
	for _, p := range platforms {
		devices, derr := p.GetDevices(cl.DeviceTypeGPU)
		if derr != nil && derr != cl.ErrDeviceNotFound {
			continue
		}
		if len(devices) > 0 {
			device = devices[0]
			break
		}
	}
	if device == nil {
		for _, p := range platforms {
			devices, derr := p.GetDevices(cl.DeviceTypeCPU)
			if derr != nil && derr != cl.ErrDeviceNotFound {
				continue
			}
			if len(devices) > 0 {
				device = devices[0]
				break
			}
		}
	}
	if device == nil {
		return nil, errors.New("no suitable OpenCL devices found")
	}

	context, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL context: %w", err)
	}
	s := &GPUStepper{cfg: cfg, context: context, deviceName: device.Name()}

	s.queue, err = context.CreateCommandQueue(device, 0)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating OpenCL command queue: %w", err)
	}
	s.program, err = context.CreateProgramWithSource([]string{stepKernelSource})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating OpenCL program: %w", err)
	}
	if err := s.program.BuildProgram([]*cl.Device{device}, ""); err != nil {
		defer s.Close()
		if buildErr, ok := err.(cl.BuildError); ok {
			return nil, fmt.Errorf("building OpenCL program: %s", string(buildErr))
		}
		return nil, fmt.Errorf("building OpenCL program: %w", err)
	}
	for name, dst := range map[string]**cl.Kernel{
		"update_v":   &s.velKernel,
		"update_s":   &s.stressKernel,
		"inject_src": &s.injectKernel,
	} {
		k, err := s.program.CreateKernel(name)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("creating %s kernel: %w", name, err)
		}
		*dst = k
	}

	fieldBytes := cfg.Grid.NX * int(unsafe.Sizeof(float32(0)))
	interiorBytes := len(modulus) * int(unsafe.Sizeof(float32(0)))
	if s.velBuf, err = context.CreateEmptyBuffer(cl.MemReadWrite, fieldBytes); err != nil {
		s.Close()
		return nil, fmt.Errorf("allocating velocity buffer: %w", err)
	}
	if s.sigBuf, err = context.CreateEmptyBuffer(cl.MemReadWrite, fieldBytes); err != nil {
		s.Close()
		return nil, fmt.Errorf("allocating stress buffer: %w", err)
	}
	if s.modBuf, err = context.CreateEmptyBuffer(cl.MemReadOnly, interiorBytes); err != nil {
		s.Close()
		return nil, fmt.Errorf("allocating modulus buffer: %w", err)
	}
	if s.ripBuf, err = context.CreateEmptyBuffer(cl.MemReadOnly, interiorBytes); err != nil {
		s.Close()
		return nil, fmt.Errorf("allocating density buffer: %w", err)
	}

	if _, err := s.queue.EnqueueWriteBufferFloat32(s.modBuf, false, 0, narrow(modulus), nil); err != nil {
		s.Close()
		return nil, fmt.Errorf("uploading modulus: %w", err)
	}
	if _, err := s.queue.EnqueueWriteBufferFloat32(s.ripBuf, false, 0, narrow(rhoInv), nil); err != nil {
		s.Close()
		return nil, fmt.Errorf("uploading inverse density: %w", err)
	}

	interior := int32(cfg.Grid.NX - 2*stencil.Halo)
	dt := float32(cfg.Dt)
	if err := s.velKernel.SetArgs(interior, dt, s.ripBuf, s.sigBuf, s.velBuf); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting velocity kernel arguments: %w", err)
	}
	if err := s.stressKernel.SetArgs(interior, dt, s.modBuf, s.velBuf, s.sigBuf); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting stress kernel arguments: %w", err)
	}
	return s, nil
}

// Run mirrors Stepper.Run on the device: upload both fields, execute
// steps×(update_v, inject, update_s), read the scaled results back.
func (s *GPUStepper) Run(steps int, v, sig []float64, inj *Injector, sources []Resolved) error {
	if len(v) != s.cfg.Grid.NX || len(sig) != s.cfg.Grid.NX {
		return fmt.Errorf("solver: field length %d/%d, want %d", len(v), len(sig), s.cfg.Grid.NX)
	}
	if _, err := s.queue.EnqueueWriteBufferFloat32(s.velBuf, false, 0, narrow(v), nil); err != nil {
		return fmt.Errorf("uploading velocity: %w", err)
	}
	if _, err := s.queue.EnqueueWriteBufferFloat32(s.sigBuf, false, 0, narrow(sig), nil); err != nil {
		return fmt.Errorf("uploading stress: %w", err)
	}

	global := []int{s.cfg.Grid.NX - 2*stencil.Halo}
	for nt := 0; nt < steps; nt++ {
		if _, err := s.queue.EnqueueNDRangeKernel(s.velKernel, nil, global, nil, nil); err != nil {
			return fmt.Errorf("step %d velocity update: %w", nt, err)
		}
		if inj != nil {
			if err := s.inject(nt, inj, sources); err != nil {
				return fmt.Errorf("step %d: %w", nt, err)
			}
		}
		if _, err := s.queue.EnqueueNDRangeKernel(s.stressKernel, nil, global, nil, nil); err != nil {
			return fmt.Errorf("step %d stress update: %w", nt, err)
		}
	}

	velBack := make([]float32, len(v))
	sigBack := make([]float32, len(sig))
	if _, err := s.queue.EnqueueReadBufferFloat32(s.velBuf, true, 0, velBack, nil); err != nil {
		return fmt.Errorf("reading velocity back: %w", err)
	}
	if _, err := s.queue.EnqueueReadBufferFloat32(s.sigBuf, true, 0, sigBack, nil); err != nil {
		return fmt.Errorf("reading stress back: %w", err)
	}
	widen(v, velBack)
	widen(sig, sigBack)
	return nil
}

func (s *GPUStepper) inject(nt int, inj *Injector, sources []Resolved) error {
	for src, r := range sources {
		if !r.local {
			continue
		}
		if nt < 0 || nt >= len(r.trace) {
			return fmt.Errorf("solver: step %d outside source %d's %d-sample trace", nt, src, len(r.trace))
		}
		amp := float32(inj.pdir * inj.dt * r.trace[nt])
		if err := s.injectKernel.SetArgs(int32(r.index), amp, int32(inj.exponent), s.velBuf); err != nil {
			return fmt.Errorf("setting injection arguments: %w", err)
		}
		if _, err := s.queue.EnqueueNDRangeKernel(s.injectKernel, nil, []int{1}, nil, nil); err != nil {
			return fmt.Errorf("injecting source %d: %w", src, err)
		}
	}
	return nil
}

// DeviceName names the selected OpenCL device.
func (s *GPUStepper) DeviceName() string { return s.deviceName }

// Close releases every device resource; the stepper is unusable afterwards.
func (s *GPUStepper) Close() {
	for _, buf := range []*cl.MemObject{s.velBuf, s.sigBuf, s.modBuf, s.ripBuf} {
		if buf != nil {
			buf.Release()
		}
	}
	for _, k := range []*cl.Kernel{s.velKernel, s.stressKernel, s.injectKernel} {
		if k != nil {
			k.Release()
		}
	}
	if s.program != nil {
		s.program.Release()
	}
	if s.queue != nil {
		s.queue.Release()
	}
	if s.context != nil {
		s.context.Release()
	}
}

func narrow(x []float64) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32(v)
	}
	return out
}

func widen(dst []float64, src []float32) {
	for i, v := range src {
		dst[i] = float64(v)
	}
}
