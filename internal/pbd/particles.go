package pbd

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Particles holds per-particle state as parallel slices.
//
// Pos is the current estimate, Prev the position at the start of the current
// step and Vel the velocity. The slices are exported so solver stages can work
// on them in place; their lengths never change.
type Particles struct {
	Pos  []r2.Vec
	Prev []r2.Vec
	Vel  []r2.Vec

	invMass []float64
	free    []int
}

// NewParticles copies the initial positions and inverse masses. Velocities
// start at zero and Prev equals Pos.
func NewParticles(pos []r2.Vec, invMass []float64) (*Particles, error) {
	if len(pos) != len(invMass) {
		return nil, fmt.Errorf("%w: %d positions but %d inverse masses", ErrInvalidConfig, len(pos), len(invMass))
	}
	p := &Particles{
		Pos:     make([]r2.Vec, len(pos)),
		Prev:    make([]r2.Vec, len(pos)),
		Vel:     make([]r2.Vec, len(pos)),
		invMass: make([]float64, len(pos)),
		free:    make([]int, 0, len(pos)),
	}
	for i := range pos {
		if !finite(pos[i]) {
			return nil, fmt.Errorf("%w: particle %d has non-finite position", ErrInvalidConfig, i)
		}
		w := invMass[i]
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: particle %d has inverse mass %v", ErrInvalidConfig, i, w)
		}
		p.Pos[i] = pos[i]
		p.Prev[i] = pos[i]
		p.invMass[i] = w
		if w != 0 {
			p.free = append(p.free, i)
		}
	}
	return p, nil
}

func (p *Particles) Len() int { return len(p.Pos) }

// InvMass returns the inverse mass of particle i.
func (p *Particles) InvMass(i int) float64 { return p.invMass[i] }

// IsPinned reports whether particle i has zero inverse mass.
func (p *Particles) IsPinned(i int) bool { return p.invMass[i] == 0 }

// Free returns the indices of non-pinned particles in ascending order.
// The returned slice must not be modified.
func (p *Particles) Free() []int { return p.free }

// Pinned returns a mask with true for every pinned particle.
func (p *Particles) Pinned() []bool {
	mask := make([]bool, len(p.invMass))
	for i, w := range p.invMass {
		mask[i] = w == 0
	}
	return mask
}

// CopyPositions copies Pos into dst, allocating when dst is too small.
func (p *Particles) CopyPositions(dst []r2.Vec) []r2.Vec {
	if cap(dst) < len(p.Pos) {
		dst = make([]r2.Vec, len(p.Pos))
	}
	dst = dst[:len(p.Pos)]
	copy(dst, p.Pos)
	return dst
}

// Clone returns a deep copy.
func (p *Particles) Clone() *Particles {
	c := &Particles{
		Pos:     make([]r2.Vec, len(p.Pos)),
		Prev:    make([]r2.Vec, len(p.Prev)),
		Vel:     make([]r2.Vec, len(p.Vel)),
		invMass: make([]float64, len(p.invMass)),
		free:    make([]int, len(p.free)),
	}
	copy(c.Pos, p.Pos)
	copy(c.Prev, p.Prev)
	copy(c.Vel, p.Vel)
	copy(c.invMass, p.invMass)
	copy(c.free, p.free)
	return c
}

// IsValid reports whether every position and velocity is finite.
func (p *Particles) IsValid() bool {
	for i := range p.Pos {
		if !finite(p.Pos[i]) || !finite(p.Vel[i]) {
			return false
		}
	}
	return true
}

func finite(v r2.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) && !math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}
