// Command seisprop propagates an elastic wavefield through a layered demo
// medium twice, once with raw physical fields and once through the
// power-of-two scaling pipeline, and reports how closely the scaled run
// reproduces the reference. Optional outputs: a waterfall PNG of the
// propagation, a receiver-trace chart, an MJPEG movie, and a CPU profile.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"image/jpeg"
	"image/png"
	"log"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/icza/mjpeg"
	"github.com/wcharczuk/go-chart/v2"

	"github.com/dongqianbei/Seis-float16/internal/grid"
	"github.com/dongqianbei/Seis-float16/internal/render"
	"github.com/dongqianbei/Seis-float16/internal/scale"
	"github.com/dongqianbei/Seis-float16/internal/solver"
	"github.com/dongqianbei/Seis-float16/internal/source"
)

var (
	// nxFlag sets the local grid extent including halos.
	nxFlag = flag.Int("nx", 512, "grid cells along x, halos included")

	// stepsFlag sets the number of leapfrog steps.
	stepsFlag = flag.Int("steps", 1000, "number of time steps")

	// dtFlag sets the time step; keeping dt*vp below ~0.5 is the
	// caller's CFL responsibility.
	dtFlag = flag.Float64("dt", 1e-4, "time step in seconds")

	// dhFlag sets the grid spacing used to resolve source positions.
	dhFlag = flag.Float64("dh", 10, "grid spacing in meters")

	// freqFlag sets the Ricker wavelet peak frequency.
	freqFlag = flag.Float64("f0", 100, "source peak frequency in Hz")

	// workersFlag bounds the goroutines used for interior sweeps.
	workersFlag = flag.Int("workers", runtime.NumCPU(), "worker goroutines for the stencil sweeps")

	// halfFlag rounds the scaled fields through binary16 after every
	// sub-update, emulating half-precision storage.
	halfFlag = flag.Bool("half", false, "emulate binary16 storage of the scaled fields")

	// adjointFlag runs the backward propagation direction.
	adjointFlag = flag.Bool("adjoint", false, "inject sources with pdir=-1")

	// openclFlag moves the scaled run onto an OpenCL device.
	openclFlag = flag.Bool("opencl", false, "run the scaled propagation on an OpenCL device (requires -tags opencl)")

	// waterfallFlag writes a space-by-time PNG of the scaled run.
	waterfallFlag = flag.String("waterfall", "", "write a waterfall PNG of the propagation to this path")

	// chartFlag writes the receiver traces of both runs as a PNG chart.
	chartFlag = flag.String("chart", "", "write a receiver-trace chart PNG to this path")

	// movieFlag writes the propagation as an MJPEG AVI.
	movieFlag = flag.String("movie", "", "write an MJPEG movie of the propagation to this path")

	// cpuProfileFlag records a CPU profile for the whole run.
	cpuProfileFlag = flag.String("cpuprofile", "", "write a CPU profile to this path")
)

// demo medium: a slow upper layer over a fast basement.
const (
	slowVp, slowRho = 1500.0, 1000.0
	fastVp, fastRho = 3000.0, 2200.0
	stressAmp       = 1e-4
	sourceAmp       = 1e-9
)

func main() {
	flag.Parse()
	if *cpuProfileFlag != "" {
		stop, err := startCPUProfile(*cpuProfileFlag)
		if err != nil {
			log.Fatalf("cpu profile: %v", err)
		}
		defer stop()
	}

	g := grid.Config{NX: *nxFlag, NZ: 1, GlobalNX: *nxFlag, DH: *dhFlag, FDOH: 2}
	if err := g.Validate(); err != nil {
		log.Fatal(err)
	}
	steps := *stepsFlag
	interior := g.NX - 2*g.FDOH

	modulus := make([]float64, interior)
	rhoInv := make([]float64, interior)
	for n := range modulus {
		vp, rho := slowVp, slowRho
		if n >= interior/2 {
			vp, rho = fastVp, fastRho
		}
		modulus[n] = rho * vp * vp
		rhoInv[n] = 1 / rho
	}

	srcX := float64(g.NX/4) * g.DH
	recvCell := g.NX * 3 / 4
	trace := source.Ricker(*freqFlag, *dtFlag, steps)
	for i := range trace {
		trace[i] *= sourceAmp
	}
	records := []source.Record{{X: srcX, Type: source.Velocity, Trace: trace}}

	newFields := func() (v, sig []float64) {
		v = make([]float64, g.NX)
		sig = make([]float64, g.NX)
		sig[g.NX/2] = stressAmp
		return v, sig
	}

	pdir := 1
	if *adjointFlag {
		pdir = -1
	}

	// Reference: double precision, no scaling.
	refV, refSig := newFields()
	refTrace := make([]float64, steps)
	refStepper := mustStepper(solver.Config{Grid: g, Dt: *dtFlag, Workers: *workersFlag}, modulus, rhoInv)
	refStepper.OnStep = func(nt int, v, _ []float64) { refTrace[nt] = v[recvCell] }
	refInj := mustInjector(g, *dtFlag, pdir, 0)
	refResolved, err := refInj.Resolve(records)
	if err != nil {
		log.Fatal(err)
	}
	start := time.Now()
	if err := refStepper.Run(steps, refV, refSig, refInj, refResolved); err != nil {
		log.Fatal(err)
	}
	log.Printf("reference run: %d steps in %v", steps, time.Since(start))

	// Scaled run. The exponents come from global reductions over the
	// modulus and stress-source fields; with one subdomain the local
	// maxima are already global.
	_, sigSrc := newFields()
	factors := scale.Compute(modulus, sigSrc)
	log.Printf("scale exponents: e_v=%d e_s=%d source=%d", factors.Ev, factors.Es, factors.SourceExponent())

	scaledMod := append([]float64(nil), modulus...)
	scaledRho := append([]float64(nil), rhoInv...)
	factors.ScaleModulus(scaledMod)
	factors.ScaleDensityInverse(scaledRho)
	v, sig := newFields()
	factors.ScaleVelocitySource(v)
	factors.ScaleStressSource(sig)

	inj := mustInjector(g, *dtFlag, pdir, factors.SourceExponent())
	resolved, err := inj.Resolve(records)
	if err != nil {
		log.Fatal(err)
	}

	scaledTrace := make([]float64, steps)
	wf := render.NewWaterfall(g.NX, steps)
	start = time.Now()
	if *openclFlag && (*waterfallFlag != "" || *chartFlag != "" || *movieFlag != "") {
		log.Print("note: waterfall, chart, and movie capture per-step snapshots and need the host path")
	}
	if *openclFlag {
		gpu, err := solver.NewGPUStepper(solver.Config{Grid: g, Dt: *dtFlag}, scaledMod, scaledRho)
		if err != nil {
			log.Fatalf("opencl: %v", err)
		}
		defer gpu.Close()
		log.Printf("opencl device: %s", gpu.DeviceName())
		if err := gpu.Run(steps, v, sig, inj, resolved); err != nil {
			log.Fatal(err)
		}
	} else {
		st := mustStepper(solver.Config{Grid: g, Dt: *dtFlag, Workers: *workersFlag, EmulateHalf: *halfFlag}, scaledMod, scaledRho)
		st.OnStep = func(nt int, v, _ []float64) {
			scaledTrace[nt] = math.Ldexp(v[recvCell], factors.Ev-factors.Es)
			wf.Push(scale.Scaled(v, factors.Ev-factors.Es))
		}
		if err := st.Run(steps, v, sig, inj, resolved); err != nil {
			log.Fatal(err)
		}
		if *halfFlag {
			log.Printf("binary16 emulation: %d samples left the representable range", st.HalfOverflows())
		}
	}
	log.Printf("scaled run: %d steps in %v", steps, time.Since(start))

	factors.RecoverVelocity(v)
	factors.RecoverStress(sig)
	log.Printf("max relative deviation: velocity %.3g, stress %.3g",
		maxRelDeviation(v, refV), maxRelDeviation(sig, refSig))

	if *waterfallFlag != "" {
		if err := writePNG(*waterfallFlag, wf); err != nil {
			log.Fatalf("waterfall: %v", err)
		}
		log.Printf("wrote waterfall to %s", *waterfallFlag)
	}
	if *chartFlag != "" {
		if err := writeChart(*chartFlag, *dtFlag, refTrace, scaledTrace); err != nil {
			log.Fatalf("chart: %v", err)
		}
		log.Printf("wrote receiver chart to %s", *chartFlag)
	}
	if *movieFlag != "" {
		if err := writeMovie(*movieFlag, wf); err != nil {
			log.Fatalf("movie: %v", err)
		}
		log.Printf("wrote movie to %s", *movieFlag)
	}
}

func mustStepper(cfg solver.Config, modulus, rhoInv []float64) *solver.Stepper {
	st, err := solver.New(cfg, modulus, rhoInv)
	if err != nil {
		log.Fatal(err)
	}
	return st
}

func mustInjector(g grid.Config, dt float64, pdir, exponent int) *solver.Injector {
	inj, err := solver.NewInjector(g, dt, pdir, exponent)
	if err != nil {
		log.Fatal(err)
	}
	return inj
}

func maxRelDeviation(got, want []float64) float64 {
	norm := scale.MaxAbs(want)
	if norm == 0 {
		norm = 1
	}
	worst := 0.0
	for i := range got {
		if d := math.Abs(got[i]-want[i]) / norm; d > worst {
			worst = d
		}
	}
	return worst
}

func writePNG(path string, wf *render.Waterfall) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, wf.Image())
}

func writeChart(path string, dt float64, refTrace, scaledTrace []float64) error {
	times := make([]float64, len(refTrace))
	for i := range times {
		times[i] = float64(i) * dt
	}
	graph := chart.Chart{
		Width:  1024,
		Height: 400,
		XAxis: chart.XAxis{
			Name:  "time (s)",
			Style: chart.Style{FontSize: 10.0},
		},
		YAxis: chart.YAxis{
			Name:  "receiver velocity",
			Style: chart.Style{FontSize: 10.0},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "reference",
				XValues: times,
				YValues: refTrace,
				Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 2.0},
			},
			chart.ContinuousSeries{
				Name:    "scaled",
				XValues: times,
				YValues: scaledTrace,
				Style:   chart.Style{StrokeColor: chart.ColorRed, StrokeWidth: 1.0},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return graph.Render(chart.PNG, f)
}

func writeMovie(path string, wf *render.Waterfall) error {
	w, h := wf.Size()
	writer, err := mjpeg.New(path, int32(w), int32(h), 30)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	for nt := 0; nt < wf.Rows(); nt++ {
		buf.Reset()
		if err := jpeg.Encode(&buf, wf.FrameAt(nt+1), &jpeg.Options{Quality: 80}); err != nil {
			writer.Close()
			return err
		}
		if err := writer.AddFrame(buf.Bytes()); err != nil {
			writer.Close()
			return fmt.Errorf("frame %d: %w", nt, err)
		}
	}
	return writer.Close()
}
