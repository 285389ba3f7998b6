package solver

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/pbdsim/internal/parallel"
	"github.com/san-kum/pbdsim/internal/pbd"
)

// Gradient is the constraint-gradient matrix G (2F x M) with the rows of
// pinned particles removed, stored as per-constraint column blocks.
//
// Column c holds +dir_c in the two rows of its A endpoint and -dir_c in the
// rows of its B endpoint. Only the directions change between sweeps; the
// sparsity pattern is fixed at construction.
type Gradient struct {
	rowOf      []int // particle -> free row, -1 when pinned
	particleOf []int // free row -> particle
	cols       [][]entry
	dir        []r2.Vec
}

type entry struct {
	row  int
	sign float64
}

// NewGradient builds the sparsity pattern of G for p and g.
func NewGradient(p *pbd.Particles, g *pbd.Graph) *Gradient {
	free := p.Free()
	gr := &Gradient{
		rowOf:      make([]int, p.Len()),
		particleOf: make([]int, len(free)),
		cols:       make([][]entry, g.Len()),
		dir:        make([]r2.Vec, g.Len()),
	}
	for i := range gr.rowOf {
		gr.rowOf[i] = -1
	}
	for r, i := range free {
		gr.rowOf[i] = r
		gr.particleOf[r] = i
	}
	for c := 0; c < g.Len(); c++ {
		k := g.At(c)
		col := make([]entry, 0, 2)
		if r := gr.rowOf[k.A]; r >= 0 {
			col = append(col, entry{row: r, sign: 1})
		}
		if r := gr.rowOf[k.B]; r >= 0 {
			col = append(col, entry{row: r, sign: -1})
		}
		gr.cols[c] = col
	}
	return gr
}

// Rows returns the number of free particles (G has twice as many scalar rows).
func (gr *Gradient) Rows() int { return len(gr.particleOf) }

func (gr *Gradient) Cols() int { return len(gr.cols) }

// Particle maps a free row back to its particle index.
func (gr *Gradient) Particle(row int) int { return gr.particleOf[row] }

// SetColumn stores the gradient direction of constraint c.
func (gr *Gradient) SetColumn(c int, dir r2.Vec) { gr.dir[c] = dir }

// Block returns the 2-vector of column c in free row r, or zero when the
// constraint does not touch that particle.
func (gr *Gradient) Block(r, c int) r2.Vec {
	for _, e := range gr.cols[c] {
		if e.row == r {
			return r2.Scale(e.sign, gr.dir[c])
		}
	}
	return r2.Vec{}
}

// Diagonal returns A[c,c] of A = G^T M^-1 G, summed over the column's free
// endpoints without forming A.
func (gr *Gradient) Diagonal(c int, p *pbd.Particles) float64 {
	var d float64
	for _, e := range gr.cols[c] {
		d += p.InvMass(gr.particleOf[e.row]) * r2.Norm2(gr.dir[c])
	}
	return d
}

// SchurJacobiSolver runs one diagonal (Jacobi) splitting pass on the Schur
// complement system per sweep.
type SchurJacobiSolver struct {
	p      *pbd.Particles
	g      *pbd.Graph
	relax  float64
	runner parallel.Runner
	grad   *Gradient

	violation []float64
	diag      []float64
	lambda    []float64
}

func NewSchurJacobi(p *pbd.Particles, g *pbd.Graph, relax float64, runner parallel.Runner) (*SchurJacobiSolver, error) {
	if err := checkRelaxation(relax); err != nil {
		return nil, err
	}
	m := g.Len()
	return &SchurJacobiSolver{
		p:         p,
		g:         g,
		relax:     relax,
		runner:    runnerOrSerial(runner),
		grad:      NewGradient(p, g),
		violation: make([]float64, m),
		diag:      make([]float64, m),
		lambda:    make([]float64, m),
	}, nil
}

func (s *SchurJacobiSolver) Strategy() Strategy { return SchurJacobi }

// Diagonal returns the Schur diagonal from the most recent sweep.
func (s *SchurJacobiSolver) Diagonal() []float64 {
	d := make([]float64, len(s.diag))
	copy(d, s.diag)
	return d
}

func (s *SchurJacobiSolver) SolveOnce() float64 {
	pos := s.p.Pos

	// Assemble and solve the diagonal system. Reads: pos, inverse masses.
	// Writes: column c of G, violation[c], diag[c], lambda[c] for c in [lo, hi).
	s.runner.For(s.g.Len(), func(lo, hi int) {
		for c := lo; c < hi; c++ {
			k := s.g.At(c)
			violation, dir := k.Evaluate(pos)
			s.grad.SetColumn(c, dir)
			s.diag[c] = s.grad.Diagonal(c, s.p)
			if s.diag[c] == 0 {
				// Both endpoints pinned or coincident: no usable gradient.
				if s.p.InvMass(k.A)+s.p.InvMass(k.B) == 0 {
					violation = 0
				}
				s.violation[c], s.lambda[c] = violation, 0
				continue
			}
			s.violation[c] = violation
			s.lambda[c] = -violation / s.diag[c]
		}
	})

	// Δx = relax * M^-1 G λ, one free row at a time. Reads: lambda, G.
	// Writes: pos of the particle owning row r for r in [lo, hi).
	s.runner.For(s.grad.Rows(), func(lo, hi int) {
		for r := lo; r < hi; r++ {
			i := s.grad.Particle(r)
			var gl r2.Vec
			for _, inc := range s.g.Incident(i) {
				gl = r2.Add(gl, r2.Scale(inc.Sign*s.lambda[inc.C], s.grad.dir[inc.C]))
			}
			pos[i] = r2.Add(pos[i], r2.Scale(s.relax*s.p.InvMass(i), gl))
		}
	})

	return floats.Norm(s.violation, 2)
}
