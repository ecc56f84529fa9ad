//go:build ebiten

// Command seiswatch shows the scaled propagation live: the wavefield is
// advanced on a background goroutine while the window draws the waterfall
// raster as it grows.
package main

import (
	"errors"
	"flag"
	"log"
	"runtime"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/dongqianbei/Seis-float16/internal/grid"
	"github.com/dongqianbei/Seis-float16/internal/render"
	"github.com/dongqianbei/Seis-float16/internal/scale"
	"github.com/dongqianbei/Seis-float16/internal/solver"
	"github.com/dongqianbei/Seis-float16/internal/source"
)

var (
	nxFlag    = flag.Int("nx", 512, "grid cells along x, halos included")
	stepsFlag = flag.Int("steps", 1000, "number of time steps")
	dtFlag    = flag.Float64("dt", 1e-4, "time step in seconds")
	dhFlag    = flag.Float64("dh", 10, "grid spacing in meters")
	freqFlag  = flag.Float64("f0", 100, "source peak frequency in Hz")
	halfFlag  = flag.Bool("half", false, "emulate binary16 storage of the scaled fields")
)

type viewer struct {
	mu sync.Mutex
	wf *render.Waterfall

	width, height int
}

func (vw *viewer) Update() error { return nil }

func (vw *viewer) Draw(screen *ebiten.Image) {
	vw.mu.Lock()
	img := vw.wf.Image()
	vw.mu.Unlock()
	screen.WritePixels(img.Pix)
}

func (vw *viewer) Layout(_, _ int) (int, int) { return vw.width, vw.height }

func main() {
	flag.Parse()

	g := grid.Config{NX: *nxFlag, NZ: 1, GlobalNX: *nxFlag, DH: *dhFlag, FDOH: 2}
	if err := g.Validate(); err != nil {
		log.Fatal(err)
	}
	steps := *stepsFlag
	interior := g.NX - 2*g.FDOH

	modulus := make([]float64, interior)
	rhoInv := make([]float64, interior)
	for n := range modulus {
		vp, rho := 1500.0, 1000.0
		if n >= interior/2 {
			vp, rho = 3000.0, 2200.0
		}
		modulus[n] = rho * vp * vp
		rhoInv[n] = 1 / rho
	}

	v := make([]float64, g.NX)
	sig := make([]float64, g.NX)
	sig[g.NX/2] = 1e-4

	trace := source.Ricker(*freqFlag, *dtFlag, steps)
	for i := range trace {
		trace[i] *= 1e-9
	}
	records := []source.Record{{X: float64(g.NX/4) * g.DH, Type: source.Velocity, Trace: trace}}

	factors := scale.Compute(modulus, sig)
	factors.ScaleModulus(modulus)
	factors.ScaleDensityInverse(rhoInv)
	factors.ScaleStressSource(sig)
	factors.ScaleVelocitySource(v)

	st, err := solver.New(solver.Config{Grid: g, Dt: *dtFlag, Workers: runtime.NumCPU(), EmulateHalf: *halfFlag}, modulus, rhoInv)
	if err != nil {
		log.Fatal(err)
	}
	inj, err := solver.NewInjector(g, *dtFlag, 1, factors.SourceExponent())
	if err != nil {
		log.Fatal(err)
	}
	resolved, err := inj.Resolve(records)
	if err != nil {
		log.Fatal(err)
	}

	vw := &viewer{wf: render.NewWaterfall(g.NX, steps), width: g.NX, height: steps}
	st.OnStep = func(_ int, v, _ []float64) {
		row := scale.Scaled(v, factors.Ev-factors.Es)
		vw.mu.Lock()
		vw.wf.Push(row)
		vw.mu.Unlock()
	}

	go func() {
		if err := st.Run(steps, v, sig, inj, resolved); err != nil {
			log.Printf("propagation: %v", err)
		}
	}()

	ebiten.SetWindowTitle("seiswatch")
	ebiten.SetWindowSize(g.NX, min(steps, 768))
	if err := ebiten.RunGame(vw); err != nil && !errors.Is(err, ebiten.Termination) {
		log.Fatal(err)
	}
}
