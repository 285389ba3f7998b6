package solver

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/pbdsim/internal/pbd"
)

// SchurSystem is the dense normal-equation system of one sweep.
type SchurSystem struct {
	G         *mat.Dense // 2F x M constraint gradients, pinned rows removed
	A         *mat.Dense // M x M Schur complement G^T M^-1 G
	B         *mat.VecDense
	Violation []float64
	grad      *Gradient
}

// AssembleSchur builds G, A = G^T M^-1 G and b = -C densely from the current
// positions. Memory is O(F*M + M*M); use it only on small topologies.
func AssembleSchur(p *pbd.Particles, g *pbd.Graph) *SchurSystem {
	grad := NewGradient(p, g)
	m := g.Len()
	violation := make([]float64, m)
	b := mat.NewVecDense(max(m, 1), nil)

	for c := 0; c < m; c++ {
		k := g.At(c)
		v, dir := k.Evaluate(p.Pos)
		if p.InvMass(k.A)+p.InvMass(k.B) == 0 {
			v, dir = 0, r2.Vec{}
		}
		grad.SetColumn(c, dir)
		violation[c] = v
		b.SetVec(c, -v)
	}

	rows := 2 * grad.Rows()
	if rows == 0 || m == 0 {
		return &SchurSystem{Violation: violation, grad: grad}
	}

	G := mat.NewDense(rows, m, nil)
	WG := mat.NewDense(rows, m, nil)
	for c := 0; c < m; c++ {
		for _, e := range grad.cols[c] {
			blk := r2.Scale(e.sign, grad.dir[c])
			w := p.InvMass(grad.Particle(e.row))
			G.Set(2*e.row, c, blk.X)
			G.Set(2*e.row+1, c, blk.Y)
			WG.Set(2*e.row, c, w*blk.X)
			WG.Set(2*e.row+1, c, w*blk.Y)
		}
	}

	var A mat.Dense
	A.Mul(G.T(), WG)

	return &SchurSystem{G: G, A: &A, B: b, Violation: violation, grad: grad}
}

// JacobiLambda solves A λ = b with one diagonal splitting pass. Rows with a
// zero diagonal get λ = 0.
func (s *SchurSystem) JacobiLambda() *mat.VecDense {
	m := len(s.Violation)
	l := mat.NewVecDense(max(m, 1), nil)
	if s.A == nil {
		return l
	}
	for c := 0; c < m; c++ {
		if d := s.A.At(c, c); d != 0 {
			l.SetVec(c, s.B.AtVec(c)/d)
		}
	}
	return l
}

// Correction returns Δx = relax * M^-1 G λ indexed by particle. Pinned
// particles get a zero correction.
func (s *SchurSystem) Correction(p *pbd.Particles, lambda *mat.VecDense, relax float64) []r2.Vec {
	dx := make([]r2.Vec, p.Len())
	if s.G == nil {
		return dx
	}
	rows, _ := s.G.Dims()
	var gl mat.VecDense
	gl.MulVec(s.G, lambda)
	for r := 0; r < rows/2; r++ {
		i := s.grad.Particle(r)
		w := relax * p.InvMass(i)
		dx[i] = r2.Vec{X: w * gl.AtVec(2*r), Y: w * gl.AtVec(2*r+1)}
	}
	return dx
}

// SchurDenseSolver rebuilds the dense Schur system on every sweep.
type SchurDenseSolver struct {
	p     *pbd.Particles
	g     *pbd.Graph
	relax float64
}

func NewSchurDense(p *pbd.Particles, g *pbd.Graph, relax float64) (*SchurDenseSolver, error) {
	if err := checkRelaxation(relax); err != nil {
		return nil, err
	}
	return &SchurDenseSolver{p: p, g: g, relax: relax}, nil
}

func (s *SchurDenseSolver) Strategy() Strategy { return SchurDense }

func (s *SchurDenseSolver) SolveOnce() float64 {
	sys := AssembleSchur(s.p, s.g)
	dx := sys.Correction(s.p, sys.JacobiLambda(), s.relax)
	for _, i := range s.p.Free() {
		s.p.Pos[i] = r2.Add(s.p.Pos[i], dx[i])
	}
	return floats.Norm(sys.Violation, 2)
}
