package config

import (
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r2"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/pbdsim/internal/pbd"
	"github.com/san-kum/pbdsim/internal/scene"
	"github.com/san-kum/pbdsim/internal/solver"
)

const (
	DefaultDt         = 0.01
	DefaultSteps      = 200
	DefaultIterations = 100
	DefaultDataDir    = "runs"

	DefaultRodResolution = 10
	DefaultRodSpacing    = 0.1
	DefaultRodGravity    = -9.8

	DefaultClothResolution = 5
	DefaultClothIterations = 200
	DefaultClothGravity    = -0.8
)

type Config struct {
	Scene      string  `yaml:"scene"`
	Resolution int     `yaml:"resolution"`
	Spacing    float64 `yaml:"spacing"`
	Origin     Vec     `yaml:"origin"`
	Gravity    Vec     `yaml:"gravity"`

	// Pinned lists pinned particle indices. Empty means the scene default.
	Pinned []int `yaml:"pinned,omitempty"`

	Dt         float64 `yaml:"dt"`
	Steps      int     `yaml:"steps"`
	Iterations int     `yaml:"iterations"`
	Tolerance  float64 `yaml:"tolerance"`

	Strategy   string          `yaml:"strategy"`
	Relaxation float64         `yaml:"relaxation"`
	Chebyshev  ChebyshevConfig `yaml:"chebyshev"`
	Floor      FloorConfig     `yaml:"floor"`

	Workers       int    `yaml:"workers"`
	ValidateState bool   `yaml:"validate_state"`
	DataDir       string `yaml:"data_dir"`
	ResidualDir   string `yaml:"residual_dir,omitempty"`
}

type Vec struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

func (v Vec) R2() r2.Vec { return r2.Vec{X: v.X, Y: v.Y} }

type ChebyshevConfig struct {
	Enabled bool    `yaml:"enabled"`
	Rho     float64 `yaml:"rho"`
}

type FloorConfig struct {
	Enabled bool    `yaml:"enabled"`
	Height  float64 `yaml:"height"`
}

// DefaultConfig is the rod setup solved with Jacobi.
func DefaultConfig() *Config {
	return ForScene(scene.KindRod)
}

// ForScene returns the reference setup of a scene kind. Unknown kinds get the
// rod geometry with the kind left in place for Validate to reject.
func ForScene(kind string) *Config {
	cfg := &Config{
		Scene:         kind,
		Resolution:    DefaultRodResolution,
		Spacing:       DefaultRodSpacing,
		Origin:        Vec{X: 0.4, Y: 0.5},
		Gravity:       Vec{Y: DefaultRodGravity},
		Dt:            DefaultDt,
		Steps:         DefaultSteps,
		Iterations:    DefaultIterations,
		Strategy:      string(solver.Jacobi),
		Relaxation:    solver.DefaultRelaxation,
		ValidateState: true,
		DataDir:       DefaultDataDir,
	}
	if kind == scene.KindCloth {
		cfg.Resolution = DefaultClothResolution
		cfg.Spacing = 0.5 / DefaultClothResolution
		cfg.Origin = Vec{X: 0.25, Y: 0.25}
		cfg.Gravity = Vec{Y: DefaultClothGravity}
		cfg.Iterations = DefaultClothIterations
		cfg.Floor = FloorConfig{Enabled: true}
	}
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Pinned = append([]int(nil), c.Pinned...)
	return &cp
}

// PinnedOrDefault returns the configured pinned set, or the scene default.
func (c *Config) PinnedOrDefault() []int {
	if len(c.Pinned) > 0 {
		return c.Pinned
	}
	return scene.DefaultPinned(c.Scene, c.Resolution)
}

// SolverStrategy returns the parsed strategy.
func (c *Config) SolverStrategy() (solver.Strategy, error) {
	return solver.ParseStrategy(c.Strategy)
}

// Validate rejects values that cannot be simulated. Nothing is clamped.
func (c *Config) Validate() error {
	known := false
	for _, k := range scene.Kinds() {
		if c.Scene == k {
			known = true
		}
	}
	if !known {
		return invalid("unknown scene %q", c.Scene)
	}
	if c.Resolution <= 0 {
		return invalid("resolution must be positive, got %d", c.Resolution)
	}
	if !(c.Spacing > 0) || math.IsInf(c.Spacing, 0) {
		return invalid("spacing must be positive, got %v", c.Spacing)
	}
	if !finite(c.Gravity.X) || !finite(c.Gravity.Y) {
		return invalid("gravity must be finite, got (%v, %v)", c.Gravity.X, c.Gravity.Y)
	}
	if !finite(c.Origin.X) || !finite(c.Origin.Y) {
		return invalid("origin must be finite, got (%v, %v)", c.Origin.X, c.Origin.Y)
	}
	if !(c.Dt > 0) || math.IsInf(c.Dt, 0) {
		return invalid("dt must be positive, got %v", c.Dt)
	}
	if c.Iterations <= 0 {
		return invalid("iterations must be positive, got %d", c.Iterations)
	}
	if c.Steps <= 0 {
		return invalid("steps must be positive, got %d", c.Steps)
	}
	if !(c.Tolerance >= 0) {
		return invalid("tolerance must be non-negative, got %v", c.Tolerance)
	}
	if c.Workers < 0 {
		return invalid("workers must be non-negative, got %d", c.Workers)
	}

	strategy, err := c.SolverStrategy()
	if err != nil {
		return err
	}
	if strategy.Parallel() && !(c.Relaxation > 0 && c.Relaxation <= 1) {
		return invalid("relaxation must be in (0, 1], got %v", c.Relaxation)
	}
	if c.Chebyshev.Enabled {
		if !strategy.Parallel() {
			return invalid("chebyshev acceleration requires a jacobi strategy, got %s", strategy)
		}
		if !(c.Chebyshev.Rho >= 0 && c.Chebyshev.Rho < 1) {
			return invalid("chebyshev rho must be in [0, 1), got %v", c.Chebyshev.Rho)
		}
	}
	if c.Floor.Enabled && !finite(c.Floor.Height) {
		return invalid("floor height must be finite, got %v", c.Floor.Height)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{pbd.ErrInvalidConfig}, args...)...)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
