package pbd

import (
	"errors"
	"fmt"
)

// Domain errors for simulation setup and stepping.
var (
	// ErrInvalidConfig indicates a configuration value that cannot be simulated.
	ErrInvalidConfig = errors.New("pbd: invalid configuration")

	// ErrInvalidTopology indicates a constraint referencing a missing particle
	// or joining a particle to itself.
	ErrInvalidTopology = errors.New("pbd: invalid constraint topology")

	// ErrInvalidState indicates a particle state with NaN or Inf components.
	ErrInvalidState = errors.New("pbd: invalid state (NaN or Inf detected)")

	// ErrReentrantStep indicates Step was called while a step was running.
	ErrReentrantStep = errors.New("pbd: step already in progress")

	// ErrHalted indicates the driver stopped after an invalid state and must be reset.
	ErrHalted = errors.New("pbd: simulation halted")
)

// SimulationError wraps an error with the step and iteration it occurred in.
type SimulationError struct {
	Step      int
	Iteration int
	Wrapped   error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (iteration %d): %v", e.Step, e.Iteration, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
