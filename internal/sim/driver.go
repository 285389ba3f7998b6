package sim

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/san-kum/pbdsim/internal/pbd"
)

// State is the driver's lifecycle state.
type State int32

const (
	Idle State = iota
	Stepping
)

func (s State) String() string {
	if s == Stepping {
		return "stepping"
	}
	return "idle"
}

// Stages are the per-step collaborators. Accelerator and Collider are
// optional.
type Stages struct {
	Integrator  Integrator
	Solver      Projector
	Accelerator Accelerator
	Collider    Collider
	Velocity    VelocityUpdater
}

// Driver advances a World one step at a time:
//
//	integrate; for k in 0..K: [snapshot] solve [extrapolate] collide; reconstruct velocity
//
// Step is not reentrant. A driver that hit an invalid state refuses to step
// until Reset.
type Driver struct {
	world   *World
	initial *pbd.Particles
	stages  Stages
	opts    Options
	logger  *log.Logger

	state  atomic.Int32
	step   int
	halted error
	last   []float64

	metrics   []Metric
	observers []Observer
}

// NewDriver validates opts and stages. The world's current particle state is
// remembered as the reset point.
func NewDriver(world *World, stages Stages, opts Options) (*Driver, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	if world == nil || world.Particles == nil || world.Graph == nil {
		return nil, fmt.Errorf("%w: driver needs particles and constraints", pbd.ErrInvalidConfig)
	}
	if stages.Integrator == nil || stages.Solver == nil || stages.Velocity == nil {
		return nil, fmt.Errorf("%w: integrator, solver and velocity stages are required", pbd.ErrInvalidConfig)
	}
	return &Driver{
		world:   world,
		initial: world.Particles.Clone(),
		stages:  stages,
		opts:    opts,
		logger:  log.New(io.Discard),
	}, nil
}

func validateOptions(opts Options) error {
	if !(opts.Dt > 0) || math.IsInf(opts.Dt, 0) {
		return fmt.Errorf("%w: dt must be positive, got %v", pbd.ErrInvalidConfig, opts.Dt)
	}
	if opts.Iterations <= 0 {
		return fmt.Errorf("%w: iterations must be positive, got %d", pbd.ErrInvalidConfig, opts.Iterations)
	}
	if opts.Tolerance < 0 || math.IsNaN(opts.Tolerance) {
		return fmt.Errorf("%w: tolerance must be non-negative, got %v", pbd.ErrInvalidConfig, opts.Tolerance)
	}
	return nil
}

func (d *Driver) SetLogger(l *log.Logger) {
	if l != nil {
		d.logger = l
	}
}

func (d *Driver) AddMetric(m Metric)     { d.metrics = append(d.metrics, m) }
func (d *Driver) AddObserver(o Observer) { d.observers = append(d.observers, o) }

func (d *Driver) World() *World    { return d.world }
func (d *Driver) Options() Options { return d.opts }
func (d *Driver) State() State     { return State(d.state.Load()) }
func (d *Driver) Steps() int       { return d.step }
func (d *Driver) Halted() bool     { return d.halted != nil }

func (d *Driver) LastResiduals() []float64 {
	return append([]float64(nil), d.last...)
}

func (d *Driver) acquire() bool {
	return d.state.CompareAndSwap(int32(Idle), int32(Stepping))
}

func (d *Driver) release() { d.state.Store(int32(Idle)) }

// Step runs one time step and returns the residual of every sweep, in order.
// The slice has Iterations entries unless Tolerance ended the step early.
//
// Cancelling ctx stops between sweeps; the driver returns to Idle and the
// partially projected positions are kept without counting the step.
func (d *Driver) Step(ctx context.Context) ([]float64, error) {
	if !d.acquire() {
		return nil, pbd.ErrReentrantStep
	}
	defer d.release()

	if d.halted != nil {
		return nil, fmt.Errorf("%w: %w", pbd.ErrHalted, d.halted)
	}

	p := d.world.Particles
	h := d.opts.Dt
	accel := d.stages.Accelerator

	d.stages.Integrator.Step(p, h)
	if accel != nil {
		accel.Reset()
	}

	residuals := make([]float64, 0, d.opts.Iterations)
	for k := 0; k < d.opts.Iterations; k++ {
		if err := ctx.Err(); err != nil {
			return residuals, fmt.Errorf("step %d interrupted at iteration %d: %w", d.step, k, err)
		}

		if accel != nil {
			accel.Snapshot()
		}
		r := d.stages.Solver.SolveOnce()
		if accel != nil {
			accel.Apply(k)
		}
		if d.stages.Collider != nil {
			d.stages.Collider.Resolve(p)
		}
		residuals = append(residuals, r)

		if d.opts.ValidateState && (math.IsNaN(r) || math.IsInf(r, 0)) {
			return residuals, d.halt(k)
		}
		if d.opts.Tolerance > 0 && r < d.opts.Tolerance {
			break
		}
	}

	d.stages.Velocity.Apply(p, h)
	if d.opts.ValidateState && !p.IsValid() {
		return residuals, d.halt(len(residuals) - 1)
	}

	d.step++
	d.last = residuals
	for _, m := range d.metrics {
		m.Observe(d.world, residuals)
	}
	for _, o := range d.observers {
		o.OnStep(d.step, residuals)
	}
	return residuals, nil
}

func (d *Driver) halt(iteration int) error {
	err := &pbd.SimulationError{Step: d.step, Iteration: iteration, Wrapped: pbd.ErrInvalidState}
	d.halted = err
	d.logger.Error("simulation halted", "step", d.step, "iteration", iteration)
	return err
}

// Run steps the driver n times, like a headless batch, and collects every
// residual series and the registered metrics.
func (d *Driver) Run(ctx context.Context, steps int) (*Result, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("%w: steps must be positive, got %d", pbd.ErrInvalidConfig, steps)
	}
	result := &Result{
		Residuals: make([][]float64, 0, steps),
		Metrics:   make(map[string]float64),
	}
	for i := 0; i < steps; i++ {
		res, err := d.Step(ctx)
		if err != nil {
			d.collect(result)
			return result, err
		}
		result.Residuals = append(result.Residuals, res)
		result.Steps++
	}
	d.collect(result)
	d.logger.Debug("run finished", "steps", result.Steps, "final", result.Final())
	return result, nil
}

func (d *Driver) collect(r *Result) {
	for _, m := range d.metrics {
		r.Metrics[m.Name()] = m.Value()
	}
}

// Reset restores the initial particle state, clears a halt and the step
// counter, and resets every metric.
func (d *Driver) Reset() error {
	if !d.acquire() {
		return pbd.ErrReentrantStep
	}
	defer d.release()

	p := d.world.Particles
	copy(p.Pos, d.initial.Pos)
	copy(p.Prev, d.initial.Prev)
	copy(p.Vel, d.initial.Vel)

	d.step = 0
	d.halted = nil
	d.last = nil
	for _, m := range d.metrics {
		m.Reset()
	}
	return nil
}

// Snapshot copies the state for a viewer. It fails with ErrReentrantStep
// while a step is running.
func (d *Driver) Snapshot() (Snapshot, error) {
	if !d.acquire() {
		return Snapshot{}, pbd.ErrReentrantStep
	}
	defer d.release()

	return Snapshot{
		Positions: d.world.Particles.CopyPositions(nil),
		Pinned:    d.world.Particles.Pinned(),
		Edges:     d.world.Graph.Edges(),
		Step:      d.step,
		Residuals: append([]float64(nil), d.last...),
	}, nil
}
