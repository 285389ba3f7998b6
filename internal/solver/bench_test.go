package solver

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/pbdsim/internal/parallel"
	"github.com/san-kum/pbdsim/internal/scene"
)

func benchCloth(b *testing.B, n int) *scene.Scene {
	s, err := scene.Cloth(n, 0.01, r2.Vec{}, scene.DefaultPinned(scene.KindCloth, n))
	if err != nil {
		b.Fatal(err)
	}
	for _, i := range s.Particles.Free() {
		s.Particles.Pos[i].Y -= 0.001
	}
	return s
}

func benchStrategy(b *testing.B, strat Strategy, runner parallel.Runner) {
	s := benchCloth(b, 64)
	sol, err := New(s.Particles, s.Graph, Options{Strategy: strat, Relaxation: DefaultRelaxation, Runner: runner})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sol.SolveOnce()
	}
}

func BenchmarkGaussSeidel(b *testing.B) {
	benchStrategy(b, GaussSeidel, nil)
}

func BenchmarkJacobiSerial(b *testing.B) {
	benchStrategy(b, Jacobi, parallel.Serial{})
}

func BenchmarkJacobiPool(b *testing.B) {
	benchStrategy(b, Jacobi, parallel.NewPool(0, 0))
}

func BenchmarkSchurJacobiPool(b *testing.B) {
	benchStrategy(b, SchurJacobi, parallel.NewPool(0, 0))
}

func BenchmarkSchurDense_Cloth8(b *testing.B) {
	s := benchCloth(b, 8)
	sol, err := NewSchurDense(s.Particles, s.Graph, DefaultRelaxation)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sol.SolveOnce()
	}
}
