package solver

import (
	"errors"
	"math"
	"testing"

	"github.com/dongqianbei/Seis-float16/internal/grid"
	"github.com/dongqianbei/Seis-float16/internal/source"
)

func testGrid() grid.Config {
	return grid.Config{NX: 100, NZ: 1, GlobalNX: 100, DH: 10, FDOH: 2}
}

func TestInjectUpdatesExactlyOneCell(t *testing.T) {
	g := testGrid()
	inj, err := NewInjector(g, 0.001, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	v := make([]float64, g.NX)
	rec := []source.Record{{X: 250, Type: source.Velocity, Trace: []float64{0.25}}}
	if err := inj.Inject(0, rec, v); err != nil {
		t.Fatal(err)
	}

	// floor(250/10) + 2 = 27
	want := math.Ldexp(0.001*0.25, 3)
	for i := range v {
		switch i {
		case 27:
			if v[i] != want {
				t.Fatalf("v[27] = %g, want %g", v[i], want)
			}
		default:
			if v[i] != 0 {
				t.Fatalf("v[%d] = %g, want untouched 0", i, v[i])
			}
		}
	}
}

func TestRemoteSourceIsSilentNoOp(t *testing.T) {
	// Right half of a 200-cell global grid; x=250 resolves to global
	// index 27, owned by the left neighbor.
	g := grid.Config{NX: 102, NZ: 1, GlobalNX: 200, DH: 10, FDOH: 2, Offset: 98}
	inj, err := NewInjector(g, 0.001, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	v := make([]float64, g.NX)
	for i := range v {
		v[i] = float64(i) * 0.5
	}
	before := append([]float64(nil), v...)

	rec := []source.Record{{X: 250, Type: source.Velocity, Trace: []float64{1}}}
	if err := inj.Inject(0, rec, v); err != nil {
		t.Fatalf("remote ownership must not be an error: %v", err)
	}
	for i := range v {
		if math.Float64bits(v[i]) != math.Float64bits(before[i]) {
			t.Fatalf("v[%d] changed from %g to %g", i, before[i], v[i])
		}
	}
}

func TestOffGridSourceFailsFast(t *testing.T) {
	inj, err := NewInjector(testGrid(), 0.001, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	v := make([]float64, 100)
	rec := []source.Record{{X: 5000, Type: source.Velocity, Trace: []float64{1}}}
	if err := inj.Inject(0, rec, v); !errors.Is(err, grid.ErrOutOfGrid) {
		t.Fatalf("want ErrOutOfGrid, got %v", err)
	}
	rec[0].X = -30
	if err := inj.Inject(0, rec, v); !errors.Is(err, grid.ErrOutOfGrid) {
		t.Fatalf("negative position: want ErrOutOfGrid, got %v", err)
	}
}

func TestCollidingSourcesAccumulate(t *testing.T) {
	inj, err := NewInjector(testGrid(), 0.5, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	v := make([]float64, 100)
	recs := []source.Record{
		{X: 251, Type: source.Velocity, Trace: []float64{2}},
		{X: 258, Type: source.Velocity, Trace: []float64{3}},
	}
	if err := inj.Inject(0, recs, v); err != nil {
		t.Fatal(err)
	}
	if v[27] != 0.5*2+0.5*3 {
		t.Fatalf("colliding contributions: v[27] = %g, want 2.5", v[27])
	}
}

func TestStressRecordsAreNotInjected(t *testing.T) {
	inj, err := NewInjector(testGrid(), 0.001, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	v := make([]float64, 100)
	rec := []source.Record{{X: 250, Type: source.Stress, Trace: []float64{1}}}
	if err := inj.Inject(0, rec, v); err != nil {
		t.Fatal(err)
	}
	for i, val := range v {
		if val != 0 {
			t.Fatalf("stress record wrote v[%d] = %g", i, val)
		}
	}
}

func TestAdjointDirectionFlipsSign(t *testing.T) {
	inj, err := NewInjector(testGrid(), 0.001, -1, 0)
	if err != nil {
		t.Fatal(err)
	}
	v := make([]float64, 100)
	rec := []source.Record{{X: 250, Type: source.Velocity, Trace: []float64{4}}}
	if err := inj.Inject(0, rec, v); err != nil {
		t.Fatal(err)
	}
	if v[27] != -0.004 {
		t.Fatalf("adjoint injection: v[27] = %g, want -0.004", v[27])
	}
}

func TestTraceExhaustionIsAnError(t *testing.T) {
	inj, err := NewInjector(testGrid(), 0.001, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	v := make([]float64, 100)
	rec := []source.Record{{X: 250, Type: source.Velocity, Trace: []float64{1, 2}}}
	if err := inj.Inject(2, rec, v); err == nil {
		t.Fatal("step index past the trace must fail")
	}
}
