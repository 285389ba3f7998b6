package pbd

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"
)

// Edge joins two particle indices.
type Edge struct {
	A, B int
}

// Constraint keeps particles A and B at RestLength apart.
type Constraint struct {
	A, B       int
	RestLength float64
}

// Evaluate returns the current violation (length minus rest length) and the
// unit direction from B to A. Coincident endpoints yield a zero direction, so
// any correction built from it is zero.
func (c Constraint) Evaluate(pos []r2.Vec) (violation float64, dir r2.Vec) {
	d := r2.Sub(pos[c.A], pos[c.B])
	l := r2.Norm(d)
	violation = l - c.RestLength
	if l == 0 {
		return violation, r2.Vec{}
	}
	return violation, r2.Scale(1/l, d)
}

// Incidence records that a particle is an endpoint of constraint C.
// Sign is +1 for the A endpoint and -1 for the B endpoint, matching the sign
// of the constraint gradient with respect to that particle.
type Incidence struct {
	C    int
	Sign float64
}

// Graph is the immutable distance-constraint topology.
type Graph struct {
	constraints []Constraint
	offsets     []int
	incidence   []Incidence
}

// NewGraph validates edges against p and computes rest lengths from the
// current positions. Index errors are fatal setup errors.
func NewGraph(p *Particles, edges []Edge) (*Graph, error) {
	n := p.Len()
	g := &Graph{
		constraints: make([]Constraint, len(edges)),
		offsets:     make([]int, n+1),
		incidence:   make([]Incidence, 2*len(edges)),
	}

	for c, e := range edges {
		if e.A < 0 || e.A >= n || e.B < 0 || e.B >= n {
			return nil, fmt.Errorf("%w: constraint %d references (%d, %d) with %d particles", ErrInvalidTopology, c, e.A, e.B, n)
		}
		if e.A == e.B {
			return nil, fmt.Errorf("%w: constraint %d joins particle %d to itself", ErrInvalidTopology, c, e.A)
		}
		g.constraints[c] = Constraint{
			A:          e.A,
			B:          e.B,
			RestLength: r2.Norm(r2.Sub(p.Pos[e.A], p.Pos[e.B])),
		}
		g.offsets[e.A+1]++
		g.offsets[e.B+1]++
	}

	for i := 0; i < n; i++ {
		g.offsets[i+1] += g.offsets[i]
	}
	fill := make([]int, n)
	copy(fill, g.offsets[:n])
	for c, e := range edges {
		g.incidence[fill[e.A]] = Incidence{C: c, Sign: 1}
		fill[e.A]++
		g.incidence[fill[e.B]] = Incidence{C: c, Sign: -1}
		fill[e.B]++
	}

	return g, nil
}

func (g *Graph) Len() int { return len(g.constraints) }

// At returns constraint c.
func (g *Graph) At(c int) Constraint { return g.constraints[c] }

// Incident returns the constraints touching particle i, in ascending
// constraint order. The returned slice must not be modified.
func (g *Graph) Incident(i int) []Incidence {
	return g.incidence[g.offsets[i]:g.offsets[i+1]]
}

// Edges returns a copy of the edge list.
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, len(g.constraints))
	for c, k := range g.constraints {
		edges[c] = Edge{A: k.A, B: k.B}
	}
	return edges
}
