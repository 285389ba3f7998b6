package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/pbdsim/internal/sim"
)

// FinalResidual reports the last sweep residual of the latest step.
type FinalResidual struct {
	last float64
}

func NewFinalResidual() *FinalResidual { return &FinalResidual{} }

func (f *FinalResidual) Name() string { return "final_residual" }

func (f *FinalResidual) Observe(_ *sim.World, residuals []float64) {
	if len(residuals) > 0 {
		f.last = residuals[len(residuals)-1]
	}
}

func (f *FinalResidual) Value() float64 { return f.last }
func (f *FinalResidual) Reset()         { f.last = 0 }

// IterationsToTolerance averages, over steps, the number of sweeps needed
// before the residual first fell below tolerance. A step that never gets
// there counts all of its sweeps.
type IterationsToTolerance struct {
	tolerance float64
	total     int
	steps     int
}

func NewIterationsToTolerance(tolerance float64) *IterationsToTolerance {
	return &IterationsToTolerance{tolerance: tolerance}
}

func (m *IterationsToTolerance) Name() string { return "iterations_to_tolerance" }

func (m *IterationsToTolerance) Observe(_ *sim.World, residuals []float64) {
	m.total += SweepsTo(residuals, m.tolerance)
	m.steps++
}

func (m *IterationsToTolerance) Value() float64 {
	if m.steps == 0 {
		return 0
	}
	return float64(m.total) / float64(m.steps)
}

func (m *IterationsToTolerance) Reset() {
	m.total = 0
	m.steps = 0
}

// SweepsTo returns the 1-based index of the first residual below tolerance,
// or len(residuals) when none is.
func SweepsTo(residuals []float64, tolerance float64) int {
	for k, r := range residuals {
		if r < tolerance {
			return k + 1
		}
	}
	return len(residuals)
}

// ConvergenceRate is the geometric mean of r[k+1]/r[k] over the sweeps of
// every observed step. Values below 1 mean the residual shrinks.
type ConvergenceRate struct {
	logSum float64
	count  int
}

func NewConvergenceRate() *ConvergenceRate { return &ConvergenceRate{} }

func (c *ConvergenceRate) Name() string { return "convergence_rate" }

func (c *ConvergenceRate) Observe(_ *sim.World, residuals []float64) {
	if len(residuals) < 2 {
		return
	}
	ratios := make([]float64, 0, len(residuals)-1)
	for k := 1; k < len(residuals); k++ {
		prev, cur := residuals[k-1], residuals[k]
		if prev <= 0 || cur <= 0 {
			continue
		}
		ratios = append(ratios, math.Log(cur/prev))
	}
	c.logSum += floats.Sum(ratios)
	c.count += len(ratios)
}

func (c *ConvergenceRate) Value() float64 {
	if c.count == 0 {
		return 0
	}
	return math.Exp(c.logSum / float64(c.count))
}

func (c *ConvergenceRate) Reset() {
	c.logSum = 0
	c.count = 0
}
