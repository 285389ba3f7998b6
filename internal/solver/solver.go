// Package solver projects distance constraints onto (approximately) satisfied
// positions.
//
// Three interchangeable strategies implement [Solver]:
//
//   - Gauss-Seidel visits constraints one at a time in ascending constraint
//     index and applies each correction immediately. Results depend on that
//     order; it is fixed and must stay fixed for reproducible runs.
//   - Jacobi evaluates every constraint against the positions at the start of
//     the sweep, then sums all corrections per particle in a second pass.
//   - Schur-Jacobi solves the normal equations (G^T M^-1 G) λ = -C with one
//     diagonal splitting pass, holding G as sparse per-constraint columns.
//
// [Chebyshev] extrapolates the Jacobi variants between sweeps.
package solver

import (
	"fmt"
	"strings"

	"github.com/san-kum/pbdsim/internal/parallel"
	"github.com/san-kum/pbdsim/internal/pbd"
)

// Strategy names a constraint iteration scheme.
type Strategy string

const (
	GaussSeidel Strategy = "gauss-seidel"
	Jacobi      Strategy = "jacobi"
	SchurJacobi Strategy = "schur-jacobi"
	// SchurDense assembles G and A as dense matrices every sweep. It is a
	// validation reference for SchurJacobi on small topologies.
	SchurDense Strategy = "schur-dense"
)

// DefaultRelaxation scales every Jacobi correction.
const DefaultRelaxation = 0.8

// Strategies lists the accepted strategy names.
func Strategies() []Strategy {
	return []Strategy{GaussSeidel, Jacobi, SchurJacobi, SchurDense}
}

// ParseStrategy accepts a strategy name, case-insensitively, with '_' or '-'.
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-"))
	for _, known := range Strategies() {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown solver strategy %q", pbd.ErrInvalidConfig, name)
}

// Parallel reports whether the strategy evaluates constraints against a
// frozen snapshot, which is what Chebyshev extrapolation assumes.
func (s Strategy) Parallel() bool {
	return s == Jacobi || s == SchurJacobi || s == SchurDense
}

type Solver interface {
	// SolveOnce runs one sweep over every constraint, updating positions in
	// place, and returns the dual residual sqrt(Σ violation²) of the
	// violations evaluated during the sweep.
	SolveOnce() float64
	Strategy() Strategy
}

type Options struct {
	Strategy Strategy
	// Relaxation scales Jacobi-type corrections; must lie in (0, 1].
	// Ignored by Gauss-Seidel.
	Relaxation float64
	// Runner executes the parallel phases. Nil means parallel.Serial.
	Runner parallel.Runner
}

// New builds the solver selected by opts.Strategy.
func New(p *pbd.Particles, g *pbd.Graph, opts Options) (Solver, error) {
	switch opts.Strategy {
	case GaussSeidel:
		return NewGaussSeidel(p, g), nil
	case Jacobi:
		return NewJacobi(p, g, opts.Relaxation, opts.Runner)
	case SchurJacobi:
		return NewSchurJacobi(p, g, opts.Relaxation, opts.Runner)
	case SchurDense:
		return NewSchurDense(p, g, opts.Relaxation)
	default:
		return nil, fmt.Errorf("%w: unknown solver strategy %q", pbd.ErrInvalidConfig, opts.Strategy)
	}
}

func checkRelaxation(relax float64) error {
	if !(relax > 0 && relax <= 1) {
		return fmt.Errorf("%w: relaxation must be in (0, 1], got %v", pbd.ErrInvalidConfig, relax)
	}
	return nil
}

func runnerOrSerial(r parallel.Runner) parallel.Runner {
	if r == nil {
		return parallel.Serial{}
	}
	return r
}
