// Package scene builds the initial particle layouts and constraint
// topologies: a straight rod and a square cloth grid.
package scene

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/pbdsim/internal/pbd"
)

const (
	KindRod   = "rod"
	KindCloth = "cloth"
)

// Scene is a freshly built simulation state.
type Scene struct {
	Kind      string
	Particles *pbd.Particles
	Graph     *pbd.Graph
}

// Kinds lists the known scene kinds.
func Kinds() []string { return []string{KindRod, KindCloth} }

// Build dispatches on kind. resolution is the particle count for a rod and
// the number of cells per side for a cloth.
func Build(kind string, resolution int, spacing float64, origin r2.Vec, pinned []int) (*Scene, error) {
	switch kind {
	case KindRod:
		return Rod(resolution, spacing, origin, pinned)
	case KindCloth:
		return Cloth(resolution, spacing, origin, pinned)
	default:
		return nil, fmt.Errorf("%w: unknown scene %q", pbd.ErrInvalidConfig, kind)
	}
}

// DefaultPinned returns the pinned particles of the reference setups: the
// first rod particle, or the two top corners of the cloth.
func DefaultPinned(kind string, resolution int) []int {
	switch kind {
	case KindCloth:
		nv := (resolution + 1) * (resolution + 1)
		return []int{resolution, nv - 1}
	default:
		return []int{0}
	}
}

// Rod places n particles along +x, spacing apart, joined by n-1 constraints.
func Rod(n int, spacing float64, origin r2.Vec, pinned []int) (*Scene, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: rod needs at least 2 particles, got %d", pbd.ErrInvalidConfig, n)
	}
	if spacing <= 0 {
		return nil, fmt.Errorf("%w: spacing must be positive, got %v", pbd.ErrInvalidConfig, spacing)
	}

	pos := make([]r2.Vec, n)
	for i := range pos {
		pos[i] = r2.Add(origin, r2.Vec{X: float64(i) * spacing})
	}
	edges := make([]pbd.Edge, n-1)
	for i := range edges {
		edges[i] = pbd.Edge{A: i, B: i + 1}
	}
	return assemble(KindRod, pos, edges, pinned)
}

// Cloth places (n+1)^2 particles on a grid; particle i*(n+1)+j sits at
// origin + (i, j)*spacing. Edges are listed horizontally-adjacent first
// (along j), then vertically-adjacent (along i).
func Cloth(n int, spacing float64, origin r2.Vec, pinned []int) (*Scene, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: cloth needs at least 1 cell, got %d", pbd.ErrInvalidConfig, n)
	}
	if spacing <= 0 {
		return nil, fmt.Errorf("%w: spacing must be positive, got %v", pbd.ErrInvalidConfig, spacing)
	}

	side := n + 1
	pos := make([]r2.Vec, side*side)
	for i := 0; i < side; i++ {
		for j := 0; j < side; j++ {
			pos[i*side+j] = r2.Add(origin, r2.Scale(spacing, r2.Vec{X: float64(i), Y: float64(j)}))
		}
	}

	edges := make([]pbd.Edge, 2*side*n)
	for i := 0; i < side; i++ {
		for j := 0; j < n; j++ {
			a := i*side + j
			edges[i*n+j] = pbd.Edge{A: a, B: a + 1}
		}
	}
	start := n * side
	for i := 0; i < n; i++ {
		for j := 0; j < side; j++ {
			a := i*side + j
			edges[start+i+j*n] = pbd.Edge{A: a, B: a + side}
		}
	}
	return assemble(KindCloth, pos, edges, pinned)
}

func assemble(kind string, pos []r2.Vec, edges []pbd.Edge, pinned []int) (*Scene, error) {
	invMass := make([]float64, len(pos))
	for i := range invMass {
		invMass[i] = 1
	}
	for _, i := range pinned {
		if i < 0 || i >= len(pos) {
			return nil, fmt.Errorf("%w: pinned index %d outside [0, %d)", pbd.ErrInvalidConfig, i, len(pos))
		}
		invMass[i] = 0
	}

	p, err := pbd.NewParticles(pos, invMass)
	if err != nil {
		return nil, err
	}
	g, err := pbd.NewGraph(p, edges)
	if err != nil {
		return nil, err
	}
	return &Scene{Kind: kind, Particles: p, Graph: g}, nil
}
