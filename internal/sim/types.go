package sim

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/pbdsim/internal/pbd"
)

// World owns the simulation state: the particles and the fixed constraint
// topology over them. Every stage of a step works on the same World.
type World struct {
	Particles *pbd.Particles
	Graph     *pbd.Graph
}

// Integrator predicts positions before constraint projection.
type Integrator interface {
	Step(p *pbd.Particles, h float64)
}

// Projector runs one constraint sweep and returns its residual.
type Projector interface {
	SolveOnce() float64
}

// Accelerator extrapolates between constraint sweeps. Reset is called at the
// start of every step, Snapshot before each sweep and Apply after it.
type Accelerator interface {
	Reset()
	Snapshot()
	Apply(k int) float64
}

// Collider pushes particles out of obstacles after each sweep.
type Collider interface {
	Resolve(p *pbd.Particles)
}

// VelocityUpdater rebuilds velocities once all sweeps are done.
type VelocityUpdater interface {
	Apply(p *pbd.Particles, h float64)
}

// Metric accumulates a statistic over completed steps.
type Metric interface {
	Name() string
	Observe(w *World, residuals []float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(step int, residuals []float64)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(step int, residuals []float64)

func (f ObserverFunc) OnStep(step int, residuals []float64) { f(step, residuals) }

// Options control a driver.
type Options struct {
	Dt         float64
	Iterations int
	// Tolerance > 0 ends a step early once a sweep reports a residual
	// below it. Zero keeps the fixed iteration count.
	Tolerance float64
	// ValidateState halts the driver when a residual or the post-step state
	// is NaN or Inf.
	ValidateState bool
}

// Snapshot is a copy of the state handed to viewers between steps.
type Snapshot struct {
	Positions []r2.Vec
	Pinned    []bool
	Edges     []pbd.Edge
	Step      int
	Residuals []float64
}

// Result collects a multi-step run.
type Result struct {
	Steps     int
	Residuals [][]float64
	Metrics   map[string]float64
}

// Final returns the last residual of the last step, or 0 when nothing ran.
func (r *Result) Final() float64 {
	if len(r.Residuals) == 0 {
		return 0
	}
	last := r.Residuals[len(r.Residuals)-1]
	if len(last) == 0 {
		return 0
	}
	return last[len(last)-1]
}
