package grid

import (
	"errors"
	"testing"
)

func TestDecomposeCoversInterior(t *testing.T) {
	configs, err := Decompose(103, 4, 2, 10.0)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(configs) != 4 {
		t.Fatalf("got %d subdomains, want 4", len(configs))
	}

	owned := make(map[int]int)
	for p, cfg := range configs {
		if cfg.GlobalNX != 103 || cfg.FDOH != 2 {
			t.Fatalf("subdomain %d carries wrong globals: %+v", p, cfg)
		}
		for i := 0; i < cfg.GlobalNX; i++ {
			if cfg.Owns(i) {
				owned[i]++
			}
		}
	}
	for i := 2; i <= 100; i++ {
		if owned[i] != 1 {
			t.Fatalf("interior cell %d owned by %d subdomains, want exactly 1", i, owned[i])
		}
	}
	if owned[0] != 0 || owned[1] != 0 || owned[101] != 0 || owned[102] != 0 {
		t.Fatal("halo cells must not be owned by any subdomain")
	}
}

func TestLocateX(t *testing.T) {
	cfg := Config{NX: 100, NZ: 1, GlobalNX: 100, DH: 10, FDOH: 2}
	cases := []struct {
		x    float64
		want int
	}{
		{0, 2},
		{9.99, 2},
		{10, 3},
		{250, 27},
	}
	for _, c := range cases {
		if got := cfg.LocateX(c.x); got != c.want {
			t.Errorf("LocateX(%v) = %d, want %d", c.x, got, c.want)
		}
	}
}

func TestCheckGlobalDistinguishesRemoteFromMalformed(t *testing.T) {
	cfg := Config{NX: 54, NZ: 1, GlobalNX: 104, DH: 10, FDOH: 2, Offset: 50}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	// A cell owned by the left neighbor is globally valid but not local.
	if cfg.Owns(10) {
		t.Fatal("index 10 must belong to the neighboring subdomain")
	}
	if err := cfg.CheckGlobal(10); err != nil {
		t.Fatalf("index 10 is globally valid, got %v", err)
	}

	// An index off the global grid is malformed input.
	err := cfg.CheckGlobal(200)
	if !errors.Is(err, ErrOutOfGrid) {
		t.Fatalf("index 200 should report ErrOutOfGrid, got %v", err)
	}
	if err := cfg.CheckGlobal(1); !errors.Is(err, ErrOutOfGrid) {
		t.Fatalf("global halo index should report ErrOutOfGrid, got %v", err)
	}
}

func TestInteriorBounds(t *testing.T) {
	cfg := Config{NX: 100, NZ: 1, GlobalNX: 100, DH: 10, FDOH: 2}
	lo, hi := cfg.Interior()
	if lo != 2 || hi != 97 {
		t.Fatalf("Interior() = [%d, %d], want [2, 97]", lo, hi)
	}
	if cfg.Owns(1) || cfg.Owns(98) {
		t.Fatal("halo indices must not be owned")
	}
	if !cfg.Owns(2) || !cfg.Owns(97) {
		t.Fatal("interior edge indices must be owned")
	}
}

func TestValidateRejectsDegenerateConfigs(t *testing.T) {
	bad := []Config{
		{NX: 4, NZ: 1, GlobalNX: 4, DH: 10, FDOH: 2},
		{NX: 10, NZ: 0, GlobalNX: 10, DH: 10, FDOH: 2},
		{NX: 10, NZ: 1, GlobalNX: 10, DH: 0, FDOH: 2},
		{NX: 10, NZ: 1, GlobalNX: 10, DH: 10, FDOH: 2, Offset: 5},
	}
	for i, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Errorf("config %d should fail validation: %+v", i, cfg)
		}
	}
}
