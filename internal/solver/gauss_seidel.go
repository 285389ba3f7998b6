package solver

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/pbdsim/internal/pbd"
)

// GaussSeidelSolver is the sequential strategy. It never uses a parallel
// runner: every correction must be visible to the next constraint.
type GaussSeidelSolver struct {
	p         *pbd.Particles
	g         *pbd.Graph
	violation []float64
}

func NewGaussSeidel(p *pbd.Particles, g *pbd.Graph) *GaussSeidelSolver {
	return &GaussSeidelSolver{
		p:         p,
		g:         g,
		violation: make([]float64, g.Len()),
	}
}

func (s *GaussSeidelSolver) Strategy() Strategy { return GaussSeidel }

// SolveOnce visits constraints in ascending index order.
func (s *GaussSeidelSolver) SolveOnce() float64 {
	pos := s.p.Pos
	for c := 0; c < s.g.Len(); c++ {
		k := s.g.At(c)
		wa, wb := s.p.InvMass(k.A), s.p.InvMass(k.B)
		if wa+wb == 0 {
			s.violation[c] = 0
			continue
		}

		violation, dir := k.Evaluate(pos)
		s.violation[c] = violation

		lambda := -violation / (wa + wb)
		if wa != 0 {
			pos[k.A] = r2.Add(pos[k.A], r2.Scale(wa*lambda, dir))
		}
		if wb != 0 {
			pos[k.B] = r2.Sub(pos[k.B], r2.Scale(wb*lambda, dir))
		}
	}
	return floats.Norm(s.violation, 2)
}
