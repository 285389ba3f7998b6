package solver_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/pbdsim/internal/pbd"
	"github.com/san-kum/pbdsim/internal/scene"
	"github.com/san-kum/pbdsim/internal/solver"
)

// stretchedRod returns an n-particle rod pinned at particle 0 whose rest
// spacing is 0.1 but whose particles sit 0.2 apart.
func stretchedRod(n int) *scene.Scene {
	s, err := scene.Rod(n, 0.1, r2.Vec{X: 0.4, Y: 0.5}, []int{0})
	Expect(err).NotTo(HaveOccurred())
	for i := range s.Particles.Pos {
		s.Particles.Pos[i].X = 0.4 + 0.2*float64(i)
	}
	return s
}

func disjointPairs() (*pbd.Particles, *pbd.Graph) {
	p, err := pbd.NewParticles(
		[]r2.Vec{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 1}, {X: 3, Y: 3}, {X: 4, Y: 4}},
		[]float64{1, 1, 0, 2, 0.5, 3},
	)
	Expect(err).NotTo(HaveOccurred())
	g, err := pbd.NewGraph(p, []pbd.Edge{{A: 0, B: 1}, {A: 2, B: 3}, {A: 4, B: 5}})
	Expect(err).NotTo(HaveOccurred())

	p.Pos[1] = r2.Vec{X: 1.5, Y: 0.2}
	p.Pos[3] = r2.Vec{X: 2.1, Y: 0.6}
	p.Pos[5] = r2.Vec{X: 4.5, Y: 3.7}
	return p, g
}

func sweep(s solver.Solver, n int) []float64 {
	res := make([]float64, n)
	for k := range res {
		res[k] = s.SolveOnce()
	}
	return res
}

// sweepsTo counts Jacobi sweeps until the residual drops below eps,
// optionally with Chebyshev extrapolation between sweeps.
func sweepsTo(eps float64, rho float64, accelerate bool) int {
	s := stretchedRod(10)
	sol, err := solver.NewJacobi(s.Particles, s.Graph, solver.DefaultRelaxation, nil)
	Expect(err).NotTo(HaveOccurred())
	cheb, err := solver.NewChebyshev(s.Particles, rho, nil)
	Expect(err).NotTo(HaveOccurred())

	const limit = 20000
	for k := 0; k < limit; k++ {
		if accelerate {
			cheb.Snapshot()
		}
		if sol.SolveOnce() < eps {
			return k
		}
		if accelerate {
			cheb.Apply(k)
		}
	}
	return limit
}

var _ = Describe("constraint projection", func() {
	DescribeTable("two-particle rod stretched to twice its rest length",
		func(strategy solver.Strategy, relax float64) {
			s := stretchedRod(2)
			sol, err := solver.New(s.Particles, s.Graph, solver.Options{Strategy: strategy, Relaxation: relax})
			Expect(err).NotTo(HaveOccurred())

			res := sweep(sol, 50)
			Expect(res[0]).To(BeNumerically("~", 0.1, 1e-12))
			for k := 1; k < len(res); k++ {
				Expect(res[k]).To(BeNumerically("<=", res[k-1]+1e-12), "residual rose at sweep %d", k)
			}
			Expect(res[len(res)-1]).To(BeNumerically("<", 1e-5))

			dist := r2.Norm(r2.Sub(s.Particles.Pos[1], s.Particles.Pos[0]))
			Expect(dist).To(BeNumerically("~", s.Graph.At(0).RestLength, 1e-4))
		},
		Entry("gauss-seidel", solver.GaussSeidel, 0.0),
		Entry("jacobi", solver.Jacobi, 0.8),
		Entry("jacobi without relaxation", solver.Jacobi, 1.0),
		Entry("schur-jacobi", solver.SchurJacobi, 0.8),
		Entry("schur-dense", solver.SchurDense, 0.8),
	)

	It("recovers the rest length for an off-axis stretch", func() {
		s := stretchedRod(2)
		s.Particles.Pos[1] = r2.Vec{X: 0.4 + 0.15, Y: 0.5 - 0.3}
		for _, strategy := range []solver.Strategy{solver.GaussSeidel, solver.Jacobi, solver.SchurJacobi} {
			p := s.Particles.Clone()
			sol, err := solver.New(p, s.Graph, solver.Options{Strategy: strategy, Relaxation: 0.8})
			Expect(err).NotTo(HaveOccurred())
			sweep(sol, 50)
			Expect(r2.Norm(r2.Sub(p.Pos[1], p.Pos[0]))).To(BeNumerically("~", 0.1, 1e-4), string(strategy))
			Expect(p.Pos[0]).To(Equal(s.Particles.Pos[0]))
		}
	})

	It("gives identical updates for all strategies when no particle is shared", func() {
		p, g := disjointPairs()

		results := map[solver.Strategy][]r2.Vec{}
		residuals := map[solver.Strategy]float64{}
		for _, strategy := range solver.Strategies() {
			q := p.Clone()
			sol, err := solver.New(q, g, solver.Options{Strategy: strategy, Relaxation: 1})
			Expect(err).NotTo(HaveOccurred())
			residuals[strategy] = sol.SolveOnce()
			results[strategy] = q.Pos
		}

		ref := results[solver.GaussSeidel]
		for strategy, pos := range results {
			Expect(residuals[strategy]).To(BeNumerically("~", residuals[solver.GaussSeidel], 1e-12))
			for i := range pos {
				Expect(pos[i].X).To(BeNumerically("~", ref[i].X, 1e-4), "%s particle %d", strategy, i)
				Expect(pos[i].Y).To(BeNumerically("~", ref[i].Y, 1e-4), "%s particle %d", strategy, i)
			}
		}

		// One full-strength correction satisfies each isolated constraint.
		for c := 0; c < g.Len(); c++ {
			v, _ := g.At(c).Evaluate(ref)
			Expect(v).To(BeNumerically("~", 0, 1e-12))
		}
	})

	It("visits Gauss-Seidel constraints in index order", func() {
		// Both constraints pull particle 1; the second one sees the first's
		// correction, so reversing the edge list changes the result.
		build := func(edges []pbd.Edge) r2.Vec {
			p, err := pbd.NewParticles([]r2.Vec{{X: 0}, {X: 1}, {X: 2}}, []float64{0, 1, 0})
			Expect(err).NotTo(HaveOccurred())
			g, err := pbd.NewGraph(p, edges)
			Expect(err).NotTo(HaveOccurred())
			p.Pos[1] = r2.Vec{X: 1, Y: 0.5}
			solver.NewGaussSeidel(p, g).SolveOnce()
			return p.Pos[1]
		}
		forward := build([]pbd.Edge{{A: 0, B: 1}, {A: 1, B: 2}})
		backward := build([]pbd.Edge{{A: 1, B: 2}, {A: 0, B: 1}})
		Expect(forward).NotTo(Equal(backward))
	})

	It("never moves pinned particles", func() {
		s, err := scene.Cloth(4, 0.1, r2.Vec{X: 0.25, Y: 0.25}, []int{0, 4, 24})
		Expect(err).NotTo(HaveOccurred())
		for _, i := range s.Particles.Free() {
			s.Particles.Pos[i].Y -= 0.03 * float64(i%5)
		}

		for _, strategy := range solver.Strategies() {
			p := s.Particles.Clone()
			sol, err := solver.New(p, s.Graph, solver.Options{Strategy: strategy, Relaxation: 0.8})
			Expect(err).NotTo(HaveOccurred())
			var cheb *solver.Chebyshev
			if strategy.Parallel() {
				cheb, err = solver.NewChebyshev(p, 0.9, nil)
				Expect(err).NotTo(HaveOccurred())
			}
			for k := 0; k < 30; k++ {
				if cheb != nil {
					cheb.Snapshot()
				}
				sol.SolveOnce()
				if cheb != nil {
					cheb.Apply(k)
				}
			}
			for _, i := range []int{0, 4, 24} {
				Expect(p.Pos[i]).To(Equal(s.Particles.Pos[i]), "%s moved pinned particle %d", strategy, i)
				Expect(p.Vel[i]).To(Equal(s.Particles.Vel[i]))
			}
		}
	})
})

var _ = Describe("Chebyshev acceleration", func() {
	It("reaches the residual threshold in fewer Jacobi sweeps", func() {
		const eps = 1e-3
		plain := sweepsTo(eps, 0.5, false)
		accelerated := sweepsTo(eps, 0.5, true)

		Expect(plain).To(BeNumerically(">", solver.WarmupIterations))
		Expect(accelerated).To(BeNumerically("<", plain))
	})

	It("matches plain Jacobi when rho is zero", func() {
		Expect(sweepsTo(1e-3, 0, true)).To(Equal(sweepsTo(1e-3, 0, false)))
	})
})
