package solver

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/pbdsim/internal/parallel"
	"github.com/san-kum/pbdsim/internal/pbd"
)

// WarmupIterations is the number of leading iterations run with ω = 1.
const WarmupIterations = 11

// Omega returns the Chebyshev coefficient for 0-based iteration k, given the
// spectral radius estimate rho and the coefficient used at iteration k-1.
func Omega(k int, rho, prev float64) float64 {
	switch {
	case k < WarmupIterations:
		return 1
	case k == WarmupIterations:
		return 2 / (2 - rho*rho)
	default:
		return 4 / (4 - rho*rho*prev)
	}
}

// Chebyshev over-relaxes successive Jacobi iterates. Call Reset at the start
// of each step, Snapshot before each constraint pass and Apply after it.
type Chebyshev struct {
	p      *pbd.Particles
	rho    float64
	runner parallel.Runner
	pre    []r2.Vec
	omega  float64
}

// NewChebyshev validates rho in [0, 1). rho is a property of the topology and
// stiffness; it is not estimated here.
func NewChebyshev(p *pbd.Particles, rho float64, runner parallel.Runner) (*Chebyshev, error) {
	if !(rho >= 0 && rho < 1) {
		return nil, fmt.Errorf("%w: spectral radius must be in [0, 1), got %v", pbd.ErrInvalidConfig, rho)
	}
	return &Chebyshev{
		p:      p,
		rho:    rho,
		runner: runnerOrSerial(runner),
		pre:    make([]r2.Vec, p.Len()),
		omega:  1,
	}, nil
}

func (c *Chebyshev) Rho() float64 { return c.rho }

// Reset restarts the ω schedule.
func (c *Chebyshev) Reset() { c.omega = 1 }

// Snapshot records the positions before a constraint pass.
func (c *Chebyshev) Snapshot() {
	c.pre = c.p.CopyPositions(c.pre)
}

// Apply extrapolates x = ω x + (1 - ω) pre for every free particle and returns
// the ω used for iteration k.
func (c *Chebyshev) Apply(k int) float64 {
	c.omega = Omega(k, c.rho, c.omega)
	if c.omega == 1 {
		return c.omega
	}

	omega := c.omega
	free := c.p.Free()
	pos := c.p.Pos
	// Reads: pos[i], pre[i]. Writes: pos[i] for the free particles in [lo, hi).
	c.runner.For(len(free), func(lo, hi int) {
		for _, i := range free[lo:hi] {
			pos[i] = r2.Add(r2.Scale(omega, pos[i]), r2.Scale(1-omega, c.pre[i]))
		}
	})
	return omega
}
