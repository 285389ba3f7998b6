package solver

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/pbdsim/internal/parallel"
	"github.com/san-kum/pbdsim/internal/pbd"
)

// JacobiSolver evaluates all constraints from one frozen snapshot and then
// applies the summed, relaxed corrections.
type JacobiSolver struct {
	p      *pbd.Particles
	g      *pbd.Graph
	relax  float64
	runner parallel.Runner

	violation []float64
	dir       []r2.Vec
	lambda    []float64
}

func NewJacobi(p *pbd.Particles, g *pbd.Graph, relax float64, runner parallel.Runner) (*JacobiSolver, error) {
	if err := checkRelaxation(relax); err != nil {
		return nil, err
	}
	m := g.Len()
	return &JacobiSolver{
		p:         p,
		g:         g,
		relax:     relax,
		runner:    runnerOrSerial(runner),
		violation: make([]float64, m),
		dir:       make([]r2.Vec, m),
		lambda:    make([]float64, m),
	}, nil
}

func (s *JacobiSolver) Strategy() Strategy { return Jacobi }

func (s *JacobiSolver) SolveOnce() float64 {
	pos := s.p.Pos

	// Evaluate. Reads: pos, inverse masses. Writes: violation[c], dir[c],
	// lambda[c] for c in [lo, hi).
	s.runner.For(s.g.Len(), func(lo, hi int) {
		for c := lo; c < hi; c++ {
			k := s.g.At(c)
			wsum := s.p.InvMass(k.A) + s.p.InvMass(k.B)
			if wsum == 0 {
				s.violation[c], s.dir[c], s.lambda[c] = 0, r2.Vec{}, 0
				continue
			}
			s.violation[c], s.dir[c] = k.Evaluate(pos)
			s.lambda[c] = -s.relax * s.violation[c] / wsum
		}
	})

	// Apply. Reads: lambda, dir, incidence. Writes: pos[i] for i in [lo, hi).
	// Each particle gathers every incident correction, so shared particles
	// receive the sum and no two chunks write the same slot.
	s.runner.For(s.p.Len(), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			w := s.p.InvMass(i)
			if w == 0 {
				continue
			}
			var delta r2.Vec
			for _, inc := range s.g.Incident(i) {
				delta = r2.Add(delta, r2.Scale(inc.Sign*w*s.lambda[inc.C], s.dir[inc.C]))
			}
			pos[i] = r2.Add(pos[i], delta)
		}
	})

	return floats.Norm(s.violation, 2)
}
