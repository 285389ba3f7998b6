package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/pbdsim/internal/automation"
	"github.com/san-kum/pbdsim/internal/config"
	"github.com/san-kum/pbdsim/internal/experiment"
	"github.com/san-kum/pbdsim/internal/export"
	"github.com/san-kum/pbdsim/internal/sim"
	"github.com/san-kum/pbdsim/internal/solver"
	"github.com/san-kum/pbdsim/internal/storage"
	"github.com/san-kum/pbdsim/internal/viz"
)

func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runSimulation(cmd *cobra.Command, args []string) (err error) {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}

	exp, err := experiment.New(cfg, experiment.NewRegistry())
	if err != nil {
		return err
	}
	exp.SetLogger(logger)

	var rlog *storage.ResidualLog
	if cfg.ResidualDir != "" {
		rlog, err = storage.CreateResidualLog(cfg.ResidualDir, string(exp.Strategy()), cfg.Chebyshev.Enabled)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := rlog.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("residual log: %w", cerr)
			}
		}()
		exp.Driver().AddObserver(rlog)
	}

	logger.Info("running", "scene", cfg.Scene, "solver", exp.Label(), "steps", cfg.Steps, "iterations", cfg.Iterations)
	ctx, stop := interruptible()
	defer stop()

	start := time.Now()
	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("particles: %d  constraints: %d\n", exp.Scene().Particles.Len(), exp.Scene().Graph.Len())
	fmt.Printf("steps: %d\n", result.Steps)
	fmt.Printf("final residual: %.6e\n", result.Final())
	printMetrics(result.Metrics)
	if rlog != nil {
		fmt.Printf("residual log: %s\n", rlog.Path())
	}
	if svgPath != "" {
		snap, err := exp.Driver().Snapshot()
		if err != nil {
			return err
		}
		if err := writeSVG(svgPath, func(w io.Writer) error { return export.SnapshotSVG(w, snap, 600, 600) }); err != nil {
			return err
		}
		fmt.Printf("snapshot: %s\n", svgPath)
	}

	if noSave {
		return nil
	}
	st := storage.New(cfg.DataDir)
	st.SetLogger(logger)
	runID, err := st.Save(exp.Metadata(result), result.Residuals)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func printMetrics(m map[string]float64) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6g\n", name, m[name])
	}
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg, nil)
	if err != nil {
		return err
	}
	return viz.Run(viz.NewModel(exp.Driver(), cfg.Scene, exp.Label()))
}

// compareStrategies runs one driver per strategy concurrently. With no
// strategies given it compares all of them.
func compareStrategies(cmd *cobra.Command, args []string) error {
	names := args[1:]
	if len(names) == 0 {
		for _, s := range solver.Strategies() {
			names = append(names, string(s))
		}
	}

	exps := make([]*experiment.Experiment, 0, len(names))
	drivers := make([]*sim.Driver, 0, len(names))
	registry := experiment.NewRegistry()
	for _, name := range names {
		cfg, err := resolveConfig(cmd, args[:1])
		if err != nil {
			return err
		}
		cfg.Strategy = name
		s, err := cfg.SolverStrategy()
		if err != nil {
			return err
		}
		if !s.Parallel() {
			cfg.Chebyshev.Enabled = false
		}
		exp, err := experiment.New(cfg, registry)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		exp.SetLogger(logger)
		exps = append(exps, exp)
		drivers = append(drivers, exp.Driver())
	}

	steps := exps[0].Config().Steps
	logger.Info("comparing", "scene", args[0], "strategies", len(exps), "steps", steps)
	ctx, stop := interruptible()
	defer stop()

	results, err := sim.NewEnsemble(drivers...).Run(ctx, steps)
	if err != nil {
		logger.Warn("ensemble finished with errors", "err", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOLVER\tSTEPS\tFINAL\tSWEEPS\tRATE\tLAST STEP (log10)")
	for i, exp := range exps {
		r := results[i]
		if r == nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\tfailed\n", exp.Label())
			continue
		}
		var last []float64
		if len(r.Residuals) > 0 {
			last = r.Residuals[len(r.Residuals)-1]
		}
		fmt.Fprintf(w, "%s\t%d\t%.3e\t%.1f\t%.4f\t%s\n",
			exp.Label(),
			r.Steps,
			r.Final(),
			r.Metrics["iterations_to_tolerance"],
			r.Metrics["convergence_rate"],
			viz.Sparkline(viz.Log10(last, -16), 40),
		)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	return err
}

func sweepRho(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}

	sweep := &automation.RhoSweep{
		Base:        cfg,
		Rhos:        automation.RhoRange(sweepFrom, sweepTo, sweepCount),
		Tolerance:   cfg.Tolerance,
		Parallelism: sweepParallel,
	}
	logger.Info("sweeping rho", "scene", cfg.Scene, "strategy", cfg.Strategy, "from", sweepFrom, "to", sweepTo, "n", sweepCount)

	ctx, stop := interruptible()
	defer stop()
	results, err := sweep.Run(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RHO\tMEAN SWEEPS\tFINAL\tRATE\tSTATUS")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%.3f\t-\t-\t-\t%s\n", r.Rho, firstLine(r.Err))
			continue
		}
		fmt.Fprintf(w, "%.3f\t%.1f\t%.3e\t%.4f\tok\n", r.Rho, r.MeanSweeps, r.FinalResidual, r.ConvergenceRate)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if best, ok := automation.Best(results); ok {
		fmt.Printf("\nbest rho: %.3f (%.1f sweeps per step)\n", best.Rho, best.MeanSweeps)
	} else {
		fmt.Println("\nevery configuration failed")
	}
	return nil
}

func firstLine(err error) string {
	msg, _, _ := strings.Cut(err.Error(), "\n")
	return msg
}

// plotResiduals charts either a residual file or a stored run. For a run it
// draws the sweeps of one step and the final residual of every step.
func plotResiduals(cmd *cobra.Command, args []string) error {
	target := args[0]

	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		values, err := storage.ReadResiduals(target)
		if err != nil {
			return err
		}
		if len(values) == 0 {
			return errors.New("no data to plot")
		}
		fmt.Printf("file: %s\nvalues: %d\n\n", target, len(values))
		fmt.Println(plot(values, "log10 residual"))
		return nil
	}

	st := storage.New(dataDir)
	meta, err := st.Load(target)
	if err != nil {
		return err
	}
	residuals, err := st.LoadResiduals(target)
	if err != nil {
		return err
	}
	if len(residuals) == 0 {
		return errors.New("no data to plot")
	}

	step := plotStep
	if step <= 0 || step > len(residuals) {
		step = len(residuals)
	}

	label := meta.Strategy
	if meta.Chebyshev {
		label += fmt.Sprintf("+chebyshev (ρ=%.2f)", meta.Rho)
	}
	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scene: %s  solver: %s\n", meta.Scene, label)
	fmt.Printf("steps: %d  iterations: %d\n\n", len(residuals), meta.Iterations)

	fmt.Println(plot(residuals[step-1], fmt.Sprintf("log10 residual per sweep, step %d", step)))
	fmt.Println()
	if svgPath != "" {
		if err := writeSVG(svgPath, func(w io.Writer) error { return export.ResidualSVG(w, residuals[step-1], 800, 300) }); err != nil {
			return err
		}
	}

	finals := make([]float64, 0, len(residuals))
	for _, r := range residuals {
		if len(r) > 0 {
			finals = append(finals, r[len(r)-1])
		}
	}
	if len(finals) > 1 {
		fmt.Println(plot(finals, "log10 final residual per step"))
	}
	return nil
}

func writeSVG(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return write(f)
}

func plot(values []float64, caption string) string {
	return asciigraph.Plot(viz.Log10(values, -16),
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENE\tSOLVER\tTIME\tSTEPS\tITER\tFINAL")

	for _, run := range runs {
		solverName := run.Strategy
		if run.Chebyshev {
			solverName += "+chebyshev"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%.3e\n",
			run.ID,
			run.Scene,
			solverName,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Steps,
			run.Iterations,
			run.Metrics["final_residual"],
		)
	}

	return w.Flush()
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	residuals, err := st.LoadResiduals(args[0])
	if err != nil {
		return err
	}
	return storage.ExportJSON(os.Stdout, *meta, residuals)
}

func listPresets(cmd *cobra.Command, args []string) error {
	registry := experiment.NewRegistry()
	scenes := registry.ListScenes()
	if len(args) > 0 {
		scenes = args
	}

	for _, kind := range scenes {
		presets := config.ListPresets(kind)
		if len(presets) == 0 {
			fmt.Printf("no presets for scene: %s\n", kind)
			continue
		}
		fmt.Printf("presets for %s (%s):\n", kind, registry.SceneDoc(kind))
		for _, name := range presets {
			cfg := config.GetPreset(kind, name)
			desc := fmt.Sprintf("%s, %d iterations", cfg.Strategy, cfg.Iterations)
			if cfg.Chebyshev.Enabled {
				desc += fmt.Sprintf(", chebyshev ρ=%.2f", cfg.Chebyshev.Rho)
			}
			fmt.Printf("  %-18s %s\n", name, desc)
		}
	}

	if len(args) == 0 {
		fmt.Println("\nstrategies:")
		for _, s := range registry.ListStrategies() {
			fmt.Printf("  %-18s %s\n", s, registry.StrategyDoc(s))
		}
	}
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	logger.Info("scenario", "name", scenario.Name, "steps", len(scenario.Steps))

	ctx, stop := interruptible()
	defer stop()
	results, err := automation.RunScenario(ctx, scenario, experiment.NewRegistry(), logger)

	st := storage.New(dataDir)
	st.SetLogger(logger)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSCENE\tSOLVER\tSTEPS\tFINAL\tRUN")
	for i, r := range results {
		runID := "-"
		if !noSave {
			id, serr := st.Save(r.Experiment.Metadata(r.Result), r.Result.Residuals)
			if serr != nil {
				return serr
			}
			runID = id
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%.3e\t%s\n",
			i+1,
			r.Experiment.Config().Scene,
			r.Experiment.Label(),
			r.Result.Steps,
			r.Result.Final(),
			runID,
		)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	return err
}
