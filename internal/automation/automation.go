// Package automation runs batches of experiments: spectral-radius sweeps for
// tuning Chebyshev acceleration and scripted scenarios of several runs.
package automation

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/pbdsim/internal/config"
	"github.com/san-kum/pbdsim/internal/experiment"
	"github.com/san-kum/pbdsim/internal/metrics"
	"github.com/san-kum/pbdsim/internal/pbd"
	"github.com/san-kum/pbdsim/internal/sim"
)

// Scenario is a scripted sequence of runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep starts from a preset (scene/name) or the scene defaults and
// applies the non-zero overrides.
type ScenarioStep struct {
	Scene      string  `yaml:"scene"`
	Preset     string  `yaml:"preset"`
	Strategy   string  `yaml:"strategy"`
	Iterations int     `yaml:"iterations"`
	Steps      int     `yaml:"steps"`
	Rho        float64 `yaml:"rho"`
	Workers    int     `yaml:"workers"`
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &scenario, nil
}

// Config resolves a step into a full configuration.
func (s ScenarioStep) Config() (*config.Config, error) {
	var cfg *config.Config
	if s.Preset != "" {
		cfg = config.GetPreset(s.Scene, s.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("%w: unknown preset %s/%s", pbd.ErrInvalidConfig, s.Scene, s.Preset)
		}
	} else {
		cfg = config.ForScene(s.Scene)
	}

	if s.Strategy != "" {
		cfg.Strategy = s.Strategy
	}
	if s.Iterations > 0 {
		cfg.Iterations = s.Iterations
	}
	if s.Steps > 0 {
		cfg.Steps = s.Steps
	}
	if s.Rho > 0 {
		cfg.Chebyshev = config.ChebyshevConfig{Enabled: true, Rho: s.Rho}
	}
	if s.Workers > 0 {
		cfg.Workers = s.Workers
	}
	return cfg, cfg.Validate()
}

// ScenarioResult pairs a step's experiment with its outcome.
type ScenarioResult struct {
	Experiment *experiment.Experiment
	Result     *sim.Result
}

// RunScenario executes all steps in order and stops at the first failure.
func RunScenario(ctx context.Context, scenario *Scenario, registry *experiment.Registry, logger *log.Logger) ([]ScenarioResult, error) {
	results := make([]ScenarioResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := step.Config()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		exp, err := experiment.New(cfg, registry)
		if err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}
		if logger != nil {
			exp.SetLogger(logger)
			logger.Info("scenario step", "n", i+1, "of", len(scenario.Steps), "scene", cfg.Scene, "solver", exp.Label())
		}

		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}
		results = append(results, ScenarioResult{Experiment: exp, Result: result})
	}

	return results, nil
}

// RhoSweep runs one base configuration with Chebyshev acceleration at every
// spectral radius in Rhos.
type RhoSweep struct {
	Base *config.Config
	Rhos []float64
	// Tolerance the sweep counts are measured against; 0 means
	// experiment.DefaultTolerance.
	Tolerance float64
	// Parallelism bounds concurrent runs; <= 0 runs them one at a time.
	Parallelism int
}

// SweepResult summarises one ρ.
type SweepResult struct {
	Rho             float64
	MeanSweeps      float64
	FinalResidual   float64
	ConvergenceRate float64
	Err             error
}

// RhoRange returns n evenly spaced values in [lo, hi]. hi must stay below 1.
func RhoRange(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	step := (hi - lo) / float64(n-1)
	rhos := make([]float64, n)
	for i := range rhos {
		rhos[i] = lo + float64(i)*step
	}
	return rhos
}

// Run executes the sweep. A configuration that fails (for example by
// diverging) is reported in its SweepResult.Err; Run itself only fails on an
// invalid base configuration or cancellation.
func (s *RhoSweep) Run(ctx context.Context) ([]SweepResult, error) {
	if s.Base == nil {
		return nil, fmt.Errorf("%w: sweep needs a base configuration", pbd.ErrInvalidConfig)
	}
	if err := s.Base.Validate(); err != nil {
		return nil, err
	}
	strategy, _ := s.Base.SolverStrategy()
	if !strategy.Parallel() {
		return nil, fmt.Errorf("%w: chebyshev sweep requires a jacobi strategy, got %s", pbd.ErrInvalidConfig, strategy)
	}
	tol := s.Tolerance
	if tol <= 0 {
		tol = experiment.DefaultTolerance
	}

	results := make([]SweepResult, len(s.Rhos))
	g, ctx := errgroup.WithContext(ctx)
	if s.Parallelism > 0 {
		g.SetLimit(s.Parallelism)
	} else {
		g.SetLimit(1)
	}

	for i, rho := range s.Rhos {
		i, rho := i, rho
		g.Go(func() error {
			results[i] = s.runOne(ctx, rho, tol)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (s *RhoSweep) runOne(ctx context.Context, rho, tol float64) SweepResult {
	res := SweepResult{Rho: rho}

	cfg := s.Base.Clone()
	cfg.Chebyshev = config.ChebyshevConfig{Enabled: rho > 0, Rho: rho}
	if s.Parallelism > 1 {
		cfg.Workers = 1
	}

	exp, err := experiment.New(cfg, nil)
	if err != nil {
		res.Err = err
		return res
	}
	sweeps := metrics.NewIterationsToTolerance(tol)
	exp.Driver().AddMetric(sweeps)

	result, err := exp.Run(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	res.MeanSweeps = sweeps.Value()
	res.FinalResidual = result.Metrics["final_residual"]
	res.ConvergenceRate = result.Metrics["convergence_rate"]
	return res
}

// Best returns the successful result with the fewest mean sweeps, breaking
// ties on the final residual. ok is false when every run failed.
func Best(results []SweepResult) (best SweepResult, ok bool) {
	bestSweeps := math.Inf(1)
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		if r.MeanSweeps < bestSweeps || (r.MeanSweeps == bestSweeps && r.FinalResidual < best.FinalResidual) {
			best, bestSweeps, ok = r, r.MeanSweeps, true
		}
	}
	return best, ok
}
