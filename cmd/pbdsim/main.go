package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/san-kum/pbdsim/internal/config"
	"github.com/san-kum/pbdsim/internal/experiment"
	"github.com/san-kum/pbdsim/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string
	logLevel   string

	dt          float64
	steps       int
	iterations  int
	strategy    string
	relaxation  float64
	rho         float64
	resolution  int
	workers     int
	tolerance   float64
	floor       bool
	validate    bool
	residualDir string
	noSave      bool

	sweepFrom     float64
	sweepTo       float64
	sweepCount    int
	sweepParallel int

	plotStep int
	svgPath  string

	logger = log.Default()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pbdsim",
		Short: "position-based dynamics solver lab",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return viz.RunInteractive(presetMenu(), launchPreset)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "run store directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run [scene]",
		Short: "run a headless simulation and store its residuals",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addSetupFlags(runCmd)
	runCmd.Flags().StringVar(&residualDir, "residual-dir", "", "also write the per-sweep residual file into this directory")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not write the run to the store")
	runCmd.Flags().StringVar(&svgPath, "svg", "", "write the final state as SVG")

	liveCmd := &cobra.Command{
		Use:   "live [scene]",
		Short: "run a simulation in the terminal viewer",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addSetupFlags(liveCmd)

	compareCmd := &cobra.Command{
		Use:   "compare [scene] [strategy1] [strategy2] ...",
		Short: "run several strategies side by side on the same scene",
		Args:  cobra.MinimumNArgs(1),
		RunE:  compareStrategies,
	}
	addSetupFlags(compareCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep [scene]",
		Short: "sweep the Chebyshev spectral radius",
		Args:  cobra.MaximumNArgs(1),
		RunE:  sweepRho,
	}
	addSetupFlags(sweepCmd)
	sweepCmd.Flags().Float64Var(&sweepFrom, "from", 0, "first rho")
	sweepCmd.Flags().Float64Var(&sweepTo, "to", 0.9, "last rho")
	sweepCmd.Flags().IntVar(&sweepCount, "n", 10, "number of rho values")
	sweepCmd.Flags().IntVar(&sweepParallel, "parallel", 4, "concurrent runs")

	plotCmd := &cobra.Command{
		Use:   "plot [run_id|residual_file]",
		Short: "plot stored residuals",
		Args:  cobra.ExactArgs(1),
		RunE:  plotResiduals,
	}
	plotCmd.Flags().IntVar(&plotStep, "step", 0, "step to chart (default: last)")
	plotCmd.Flags().StringVar(&svgPath, "svg", "", "also write the charted step as SVG")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [scene]",
		Short: "list presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a scripted scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	scenarioCmd.Flags().BoolVar(&noSave, "no-save", false, "do not write the runs to the store")

	rootCmd.AddCommand(runCmd, liveCmd, compareCmd, sweepCmd, plotCmd, listCmd, exportCmd, presetsCmd, scenarioCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func setupLogger() error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logger = log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		ReportTimestamp: true,
		Prefix:          "pbdsim",
	})
	return nil
}

func addSetupFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "start from a preset")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "time step")
	cmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "number of steps")
	cmd.Flags().IntVar(&iterations, "iterations", config.DefaultIterations, "constraint sweeps per step")
	cmd.Flags().StringVar(&strategy, "strategy", "jacobi", "gauss-seidel, jacobi, schur-jacobi or schur-dense")
	cmd.Flags().Float64Var(&relaxation, "relaxation", 0.8, "jacobi relaxation factor")
	cmd.Flags().Float64Var(&rho, "rho", 0, "chebyshev spectral radius (0 disables)")
	cmd.Flags().IntVar(&resolution, "resolution", 0, "rod particle count or cloth cells per side")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker goroutines (0 = GOMAXPROCS)")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 0, "stop sweeping once the residual drops below this")
	cmd.Flags().BoolVar(&floor, "floor", false, "enable the floor collision")
	cmd.Flags().BoolVar(&validate, "validate", true, "halt on a non-finite residual or state")
}

// resolveConfig builds the configuration for a command. A config file
// replaces the preset, and flags the user set override both.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case configFile != "":
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if len(args) > 0 && args[0] != loaded.Scene {
			return nil, fmt.Errorf("scene %q conflicts with %s (scene %q)", args[0], configFile, loaded.Scene)
		}
		cfg = loaded
	case preset != "":
		kind := sceneArg(args)
		cfg = config.GetPreset(kind, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(kind))
		}
	default:
		cfg = config.ForScene(sceneArg(args))
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("steps") {
		cfg.Steps = steps
	}
	if flags.Changed("iterations") {
		cfg.Iterations = iterations
	}
	if flags.Changed("strategy") {
		cfg.Strategy = strategy
	}
	if flags.Changed("relaxation") {
		cfg.Relaxation = relaxation
	}
	if flags.Changed("rho") {
		cfg.Chebyshev = config.ChebyshevConfig{Enabled: rho > 0, Rho: rho}
	}
	if flags.Changed("resolution") {
		cfg.Resolution = resolution
		cfg.Pinned = nil
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("tolerance") {
		cfg.Tolerance = tolerance
	}
	if flags.Changed("floor") {
		cfg.Floor.Enabled = floor
	}
	if flags.Changed("validate") {
		cfg.ValidateState = validate
	}
	if flags.Changed("residual-dir") {
		cfg.ResidualDir = residualDir
	}
	if flags.Changed("data") {
		cfg.DataDir = dataDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func sceneArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return config.DefaultConfig().Scene
}

// presetMenu lists every preset as scene/name for the interactive picker.
func presetMenu() []viz.Preset {
	registry := experiment.NewRegistry()
	var menu []viz.Preset
	for _, kind := range registry.ListScenes() {
		for _, name := range config.ListPresets(kind) {
			cfg := config.GetPreset(kind, name)
			info := cfg.Strategy
			if cfg.Chebyshev.Enabled {
				info += fmt.Sprintf(" + chebyshev ρ=%.2f", cfg.Chebyshev.Rho)
			}
			menu = append(menu, viz.Preset{
				Name: kind + "/" + name,
				Info: fmt.Sprintf("%-34s %s", info, registry.SceneDoc(kind)),
			})
		}
	}
	return menu
}

func launchPreset(name string) (viz.Stepper, string, string, error) {
	kind, presetName, ok := strings.Cut(name, "/")
	if !ok {
		return nil, "", "", fmt.Errorf("malformed preset %q", name)
	}
	cfg := config.GetPreset(kind, presetName)
	if cfg == nil {
		return nil, "", "", fmt.Errorf("unknown preset: %s", name)
	}
	exp, err := experiment.New(cfg, nil)
	if err != nil {
		return nil, "", "", err
	}
	return exp.Driver(), kind, exp.Label(), nil
}
