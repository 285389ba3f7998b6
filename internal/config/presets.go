package config

import (
	"sort"

	"github.com/san-kum/pbdsim/internal/scene"
	"github.com/san-kum/pbdsim/internal/solver"
)

// Presets are the reference setups, keyed by scene then name.
var Presets = map[string]map[string]*Config{
	scene.KindRod: {
		"gauss-seidel": preset(scene.KindRod, func(c *Config) {
			c.Strategy = string(solver.GaussSeidel)
			c.Iterations = 10
		}),
		"jacobi": preset(scene.KindRod, func(c *Config) {
			c.Strategy = string(solver.Jacobi)
			c.Iterations = 100
		}),
		"schur-jacobi": preset(scene.KindRod, func(c *Config) {
			c.Strategy = string(solver.SchurJacobi)
			c.Iterations = 100
		}),
	},
	scene.KindCloth: {
		"jacobi": preset(scene.KindCloth, func(c *Config) {
			c.Strategy = string(solver.Jacobi)
		}),
		"chebyshev": preset(scene.KindCloth, func(c *Config) {
			c.Strategy = string(solver.Jacobi)
			c.Chebyshev = ChebyshevConfig{Enabled: true, Rho: 0.6}
		}),
		"schur-chebyshev": preset(scene.KindCloth, func(c *Config) {
			c.Strategy = string(solver.SchurJacobi)
			c.Chebyshev = ChebyshevConfig{Enabled: true, Rho: 0.6}
		}),
	},
}

func preset(kind string, edit func(*Config)) *Config {
	cfg := ForScene(kind)
	edit(cfg)
	return cfg
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(kind, name string) *Config {
	scenePresets, ok := Presets[kind]
	if !ok {
		return nil
	}
	cfg, ok := scenePresets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

// ListPresets returns the preset names of a scene, sorted.
func ListPresets(kind string) []string {
	scenePresets, ok := Presets[kind]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(scenePresets))
	for name := range scenePresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
