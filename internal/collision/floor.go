// Package collision keeps particles out of static obstacles.
package collision

import (
	"github.com/san-kum/pbdsim/internal/parallel"
	"github.com/san-kum/pbdsim/internal/pbd"
)

// Resolver projects particles out of an obstacle.
type Resolver interface {
	Resolve(p *pbd.Particles)
}

// Floor is the half-plane y >= Height. Particles below it are clamped onto
// it; no velocity response is applied, the next velocity reconstruction
// picks up the push-out.
type Floor struct {
	Height float64
	runner parallel.Runner
}

func NewFloor(height float64, runner parallel.Runner) *Floor {
	if runner == nil {
		runner = parallel.Serial{}
	}
	return &Floor{Height: height, runner: runner}
}

// Resolve clamps every free particle. Pinned particles are never moved.
func (f *Floor) Resolve(p *pbd.Particles) {
	free := p.Free()
	// Reads and writes Pos[i].Y for the free particles in [lo, hi).
	f.runner.For(len(free), func(lo, hi int) {
		for _, i := range free[lo:hi] {
			if p.Pos[i].Y < f.Height {
				p.Pos[i].Y = f.Height
			}
		}
	})
}

// None is a Resolver that does nothing.
type None struct{}

func (None) Resolve(*pbd.Particles) {}
