package experiment

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/san-kum/pbdsim/internal/collision"
	"github.com/san-kum/pbdsim/internal/config"
	"github.com/san-kum/pbdsim/internal/integrators"
	"github.com/san-kum/pbdsim/internal/parallel"
	"github.com/san-kum/pbdsim/internal/scene"
	"github.com/san-kum/pbdsim/internal/sim"
	"github.com/san-kum/pbdsim/internal/solver"
	"github.com/san-kum/pbdsim/internal/storage"
)

// Experiment is one validated configuration wired into a ready driver.
type Experiment struct {
	cfg       *config.Config
	scene     *scene.Scene
	strategy  solver.Strategy
	runner    parallel.Runner
	chebyshev *solver.Chebyshev
	driver    *sim.Driver
}

// New validates cfg and builds the scene, every step stage and the driver.
func New(cfg *config.Config, registry *Registry) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		registry = NewRegistry()
	}
	strategy, err := cfg.SolverStrategy()
	if err != nil {
		return nil, err
	}

	sc, err := registry.BuildScene(cfg)
	if err != nil {
		return nil, err
	}

	e := &Experiment{
		cfg:      cfg.Clone(),
		scene:    sc,
		strategy: strategy,
		runner:   parallel.New(cfg.Workers),
	}
	world := &sim.World{Particles: sc.Particles, Graph: sc.Graph}

	sol, err := solver.New(sc.Particles, sc.Graph, solver.Options{
		Strategy:   strategy,
		Relaxation: cfg.Relaxation,
		Runner:     e.runner,
	})
	if err != nil {
		return nil, err
	}
	euler, err := integrators.NewSemiImplicitEuler(cfg.Gravity.R2(), e.runner)
	if err != nil {
		return nil, err
	}

	stages := sim.Stages{
		Integrator: euler,
		Solver:     sol,
		Velocity:   integrators.NewVelocityReconstructor(e.runner),
	}
	if cfg.Chebyshev.Enabled {
		e.chebyshev, err = solver.NewChebyshev(sc.Particles, cfg.Chebyshev.Rho, e.runner)
		if err != nil {
			return nil, err
		}
		stages.Accelerator = e.chebyshev
	}
	if cfg.Floor.Enabled {
		stages.Collider = collision.NewFloor(cfg.Floor.Height, e.runner)
	}

	e.driver, err = sim.NewDriver(world, stages, sim.Options{
		Dt:            cfg.Dt,
		Iterations:    cfg.Iterations,
		Tolerance:     cfg.Tolerance,
		ValidateState: cfg.ValidateState,
	})
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", cfg.Scene, strategy, err)
	}
	for _, m := range registry.DefaultMetrics(cfg) {
		e.driver.AddMetric(m)
	}
	return e, nil
}

func (e *Experiment) SetLogger(l *log.Logger) {
	e.driver.SetLogger(l.With("scene", e.cfg.Scene, "strategy", e.Label()))
}

func (e *Experiment) Config() *config.Config    { return e.cfg }
func (e *Experiment) Scene() *scene.Scene       { return e.scene }
func (e *Experiment) Strategy() solver.Strategy { return e.strategy }
func (e *Experiment) Driver() *sim.Driver       { return e.driver }

// Label names the solver configuration, e.g. "jacobi+chebyshev".
func (e *Experiment) Label() string {
	if e.chebyshev != nil {
		return string(e.strategy) + "+chebyshev"
	}
	return string(e.strategy)
}

// Run steps the configured number of steps.
func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	return e.driver.Run(ctx, e.cfg.Steps)
}

// Metadata describes a finished run for the run store.
func (e *Experiment) Metadata(result *sim.Result) storage.RunMetadata {
	meta := storage.RunMetadata{
		Scene:       e.cfg.Scene,
		Strategy:    string(e.strategy),
		Chebyshev:   e.chebyshev != nil,
		Dt:          e.cfg.Dt,
		Iterations:  e.cfg.Iterations,
		Particles:   e.scene.Particles.Len(),
		Constraints: e.scene.Graph.Len(),
		Workers:     e.runner.Workers(),
		Metrics:     map[string]float64{},
	}
	if e.strategy.Parallel() {
		meta.Relaxation = e.cfg.Relaxation
	}
	if e.chebyshev != nil {
		meta.Rho = e.chebyshev.Rho()
	}
	if result != nil {
		meta.Steps = result.Steps
		for k, v := range result.Metrics {
			meta.Metrics[k] = v
		}
	}
	return meta
}
