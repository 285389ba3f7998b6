package solver

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/pbdsim/internal/parallel"
	"github.com/san-kum/pbdsim/internal/pbd"
	"github.com/san-kum/pbdsim/internal/scene"
)

// sagCloth returns a cloth whose free particles have been pushed off their
// rest layout so every strategy has work to do.
func sagCloth(t *testing.T, n int) *scene.Scene {
	t.Helper()
	s, err := scene.Cloth(n, 0.1, r2.Vec{X: 0.25, Y: 0.25}, scene.DefaultPinned(scene.KindCloth, n))
	if err != nil {
		t.Fatal(err)
	}
	for _, i := range s.Particles.Free() {
		s.Particles.Pos[i] = r2.Add(s.Particles.Pos[i], r2.Vec{
			X: 0.01 * math.Sin(float64(i)),
			Y: -0.02 * float64(i%7),
		})
	}
	return s
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"gauss-seidel", GaussSeidel, false},
		{"Gauss_Seidel", GaussSeidel, false},
		{"jacobi", Jacobi, false},
		{" JACOBI ", Jacobi, false},
		{"schur-jacobi", SchurJacobi, false},
		{"schur_dense", SchurDense, false},
		{"sor", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStrategy(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, pbd.ErrInvalidConfig) {
			t.Errorf("ParseStrategy(%q) should wrap ErrInvalidConfig", tt.in)
		}
		if got != tt.want {
			t.Errorf("ParseStrategy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStrategyParallel(t *testing.T) {
	if GaussSeidel.Parallel() {
		t.Error("gauss-seidel must not be parallel")
	}
	for _, s := range []Strategy{Jacobi, SchurJacobi, SchurDense} {
		if !s.Parallel() {
			t.Errorf("%s should be parallel", s)
		}
	}
}

func TestNewRejectsRelaxation(t *testing.T) {
	s := sagCloth(t, 2)
	for _, relax := range []float64{0, -0.5, 1.5, math.NaN()} {
		for _, strat := range []Strategy{Jacobi, SchurJacobi, SchurDense} {
			_, err := New(s.Particles, s.Graph, Options{Strategy: strat, Relaxation: relax})
			if !errors.Is(err, pbd.ErrInvalidConfig) {
				t.Errorf("%s with relaxation %v: expected ErrInvalidConfig, got %v", strat, relax, err)
			}
		}
	}
	if _, err := New(s.Particles, s.Graph, Options{Strategy: GaussSeidel}); err != nil {
		t.Errorf("gauss-seidel ignores relaxation, got %v", err)
	}
	if _, err := New(s.Particles, s.Graph, Options{Strategy: "sor", Relaxation: 1}); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestOmegaSchedule(t *testing.T) {
	rho := 0.6
	for k := 0; k < WarmupIterations; k++ {
		if w := Omega(k, rho, 1); w != 1 {
			t.Errorf("Omega(%d) = %f, want 1", k, w)
		}
	}

	w11 := Omega(11, rho, 1)
	if want := 2 / (2 - rho*rho); math.Abs(w11-want) > 1e-15 {
		t.Errorf("Omega(11) = %f, want %f", w11, want)
	}
	w12 := Omega(12, rho, w11)
	if want := 4 / (4 - rho*rho*w11); math.Abs(w12-want) > 1e-15 {
		t.Errorf("Omega(12) = %f, want %f", w12, want)
	}

	prev := w12
	for k := 13; k < 200; k++ {
		prev = Omega(k, rho, prev)
	}
	fixed := 2 / (1 + math.Sqrt(1-rho*rho))
	if math.Abs(prev-fixed) > 1e-9 {
		t.Errorf("Omega converged to %f, want fixed point %f", prev, fixed)
	}

	if w := Omega(30, 0, 1.7); w != 1 {
		t.Errorf("rho = 0 must disable acceleration, got %f", w)
	}
}

func TestChebyshevRejectsRho(t *testing.T) {
	s := sagCloth(t, 1)
	for _, rho := range []float64{-0.1, 1, 1.5, math.NaN()} {
		if _, err := NewChebyshev(s.Particles, rho, nil); !errors.Is(err, pbd.ErrInvalidConfig) {
			t.Errorf("rho %v: expected ErrInvalidConfig, got %v", rho, err)
		}
	}
}

func TestChebyshevResetRestartsSchedule(t *testing.T) {
	s := sagCloth(t, 2)
	c, err := NewChebyshev(s.Particles, 0.9, nil)
	if err != nil {
		t.Fatal(err)
	}
	var last float64
	for k := 0; k < 20; k++ {
		c.Snapshot()
		last = c.Apply(k)
	}
	if last <= 1 {
		t.Fatalf("expected ω > 1 after warm-up, got %f", last)
	}
	c.Reset()
	c.Snapshot()
	if w := c.Apply(0); w != 1 {
		t.Errorf("ω after reset = %f, want 1", w)
	}
}

func TestSchurDiagonalMatchesDenseAssembly(t *testing.T) {
	s := sagCloth(t, 4)
	dense := AssembleSchur(s.Particles.Clone(), s.Graph)

	sj, err := NewSchurJacobi(s.Particles, s.Graph, 0.8, nil)
	if err != nil {
		t.Fatal(err)
	}
	sj.SolveOnce()
	diag := sj.Diagonal()

	for c := range diag {
		if math.Abs(diag[c]-dense.A.At(c, c)) > 1e-12 {
			t.Errorf("diag[%d] = %f, dense A = %f", c, diag[c], dense.A.At(c, c))
		}
	}

	rows, cols := dense.G.Dims()
	if rows != 2*len(s.Particles.Free()) || cols != s.Graph.Len() {
		t.Errorf("G dims = %dx%d, want %dx%d", rows, cols, 2*len(s.Particles.Free()), s.Graph.Len())
	}
}

func TestSchurMatchesDenseSweep(t *testing.T) {
	a := sagCloth(t, 4)
	b := sagCloth(t, 4)

	sparse, err := NewSchurJacobi(a.Particles, a.Graph, 0.8, nil)
	if err != nil {
		t.Fatal(err)
	}
	dense, err := NewSchurDense(b.Particles, b.Graph, 0.8)
	if err != nil {
		t.Fatal(err)
	}

	for it := 0; it < 5; it++ {
		ra := sparse.SolveOnce()
		rb := dense.SolveOnce()
		if math.Abs(ra-rb) > 1e-12 {
			t.Fatalf("iteration %d residual %g vs %g", it, ra, rb)
		}
	}
	for i := range a.Particles.Pos {
		if r2.Norm(r2.Sub(a.Particles.Pos[i], b.Particles.Pos[i])) > 1e-12 {
			t.Errorf("particle %d: sparse %v dense %v", i, a.Particles.Pos[i], b.Particles.Pos[i])
		}
	}
}

func TestJacobiSerialAndPoolAgree(t *testing.T) {
	for _, strat := range []Strategy{Jacobi, SchurJacobi} {
		t.Run(string(strat), func(t *testing.T) {
			a := sagCloth(t, 6)
			b := sagCloth(t, 6)

			sa, err := New(a.Particles, a.Graph, Options{Strategy: strat, Relaxation: 0.8, Runner: parallel.Serial{}})
			if err != nil {
				t.Fatal(err)
			}
			sb, err := New(b.Particles, b.Graph, Options{Strategy: strat, Relaxation: 0.8, Runner: parallel.NewPool(4, 1)})
			if err != nil {
				t.Fatal(err)
			}

			for it := 0; it < 10; it++ {
				if ra, rb := sa.SolveOnce(), sb.SolveOnce(); ra != rb {
					t.Fatalf("iteration %d residual %v vs %v", it, ra, rb)
				}
			}
			for i := range a.Particles.Pos {
				if a.Particles.Pos[i] != b.Particles.Pos[i] {
					t.Fatalf("particle %d: serial %v pool %v", i, a.Particles.Pos[i], b.Particles.Pos[i])
				}
			}
		})
	}
}

func TestDegenerateConstraints(t *testing.T) {
	// Constraint 0 joins two pinned particles; constraint 1 has coincident
	// free endpoints.
	p, err := pbd.NewParticles(
		[]r2.Vec{{X: 0}, {X: 1}, {X: 2, Y: 1}, {X: 2.5, Y: 1}},
		[]float64{0, 0, 1, 1},
	)
	if err != nil {
		t.Fatal(err)
	}
	g, err := pbd.NewGraph(p, []pbd.Edge{{A: 0, B: 1}, {A: 2, B: 3}})
	if err != nil {
		t.Fatal(err)
	}
	p.Pos[3] = p.Pos[2]

	for _, strat := range Strategies() {
		t.Run(string(strat), func(t *testing.T) {
			q := p.Clone()
			s, err := New(q, g, Options{Strategy: strat, Relaxation: 0.8})
			if err != nil {
				t.Fatal(err)
			}
			r := s.SolveOnce()
			if math.IsNaN(r) || math.IsInf(r, 0) {
				t.Fatalf("residual %v", r)
			}
			if math.Abs(r-0.5) > 1e-12 {
				t.Errorf("residual = %f, want 0.5 from the coincident constraint only", r)
			}
			if !q.IsValid() {
				t.Fatal("positions became non-finite")
			}
			if q.Pos[0] != p.Pos[0] || q.Pos[1] != p.Pos[1] {
				t.Error("pinned particles moved")
			}
		})
	}
}
