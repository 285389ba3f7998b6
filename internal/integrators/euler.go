// Package integrators advances particle state explicitly before constraint
// projection and rebuilds velocities afterwards.
package integrators

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/pbdsim/internal/parallel"
	"github.com/san-kum/pbdsim/internal/pbd"
)

// SemiImplicitEuler applies gravity to velocities, snapshots the pre-step
// position and moves every free particle to its predicted position.
type SemiImplicitEuler struct {
	gravity r2.Vec
	runner  parallel.Runner
}

func NewSemiImplicitEuler(gravity r2.Vec, runner parallel.Runner) (*SemiImplicitEuler, error) {
	if math.IsNaN(gravity.X) || math.IsInf(gravity.X, 0) || math.IsNaN(gravity.Y) || math.IsInf(gravity.Y, 0) {
		return nil, fmt.Errorf("%w: gravity must be finite, got %v", pbd.ErrInvalidConfig, gravity)
	}
	if runner == nil {
		runner = parallel.Serial{}
	}
	return &SemiImplicitEuler{gravity: gravity, runner: runner}, nil
}

func (e *SemiImplicitEuler) Gravity() r2.Vec { return e.gravity }

// Step integrates with step size h. Pinned particles are untouched.
func (e *SemiImplicitEuler) Step(p *pbd.Particles, h float64) {
	dv := r2.Scale(h, e.gravity)
	free := p.Free()
	// Reads and writes Vel[i], Prev[i], Pos[i] for the free particles in [lo, hi).
	e.runner.For(len(free), func(lo, hi int) {
		for _, i := range free[lo:hi] {
			p.Vel[i] = r2.Add(p.Vel[i], dv)
			p.Prev[i] = p.Pos[i]
			p.Pos[i] = r2.Add(p.Pos[i], r2.Scale(h, p.Vel[i]))
		}
	})
}
