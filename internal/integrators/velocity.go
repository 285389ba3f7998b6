package integrators

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/pbdsim/internal/parallel"
	"github.com/san-kum/pbdsim/internal/pbd"
)

// VelocityReconstructor derives post-solve velocities from the position
// change over the step. It must run once per step, after every constraint
// iteration and collision pass.
type VelocityReconstructor struct {
	runner parallel.Runner
}

func NewVelocityReconstructor(runner parallel.Runner) *VelocityReconstructor {
	if runner == nil {
		runner = parallel.Serial{}
	}
	return &VelocityReconstructor{runner: runner}
}

// Apply sets Vel = (Pos - Prev) / h for every free particle.
func (v *VelocityReconstructor) Apply(p *pbd.Particles, h float64) {
	inv := 1 / h
	free := p.Free()
	// Reads Pos[i], Prev[i]. Writes Vel[i] for the free particles in [lo, hi).
	v.runner.For(len(free), func(lo, hi int) {
		for _, i := range free[lo:hi] {
			p.Vel[i] = r2.Scale(inv, r2.Sub(p.Pos[i], p.Prev[i]))
		}
	})
}
