package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/lqrsim/internal/analysis"
	"github.com/san-kum/lqrsim/internal/automation"
	"github.com/san-kum/lqrsim/internal/config"
	"github.com/san-kum/lqrsim/internal/experiment"
	"github.com/san-kum/lqrsim/internal/export"
	"github.com/san-kum/lqrsim/internal/optim"
	"github.com/san-kum/lqrsim/internal/physics"
	"github.com/san-kum/lqrsim/internal/storage"
	"github.com/san-kum/lqrsim/internal/tui"
)

var (
	dataDir string
	verbose bool

	configFile string
	preset     string
	method     string
	duration   float64
	epsilon    float64
	hStart     float64
	hMin       float64
	hMax       float64
	maxIter    int
	sampleTime float64

	live      bool
	frameRate int

	outFile       string
	exportHz      float64
	plotComponent int
	component     int
	pngWidth      float64
	pngHeight     float64

	sampleRate float64
	xAxis      int
	yAxis      int
	phase      bool

	metricName string
	qScales    []float64
	rScales    []float64
	parallel   int

	trials    int
	perturb   float64
	tolerance float64
	seed      int64

	logger = zap.NewNop()
)

// defaultPresets is used by run, gain and tune when neither --preset nor
// --config is given.
var defaultPresets = map[string]string{
	"drone":      "hover",
	"oscillator": "settle",
	"linear":     "double-integrator",
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "lqrsim",
		Short:         "LQR closed-loop simulation lab",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(verbose)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".lqrsim", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log step rejections and solver progress")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run a closed-loop simulation and store it",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().BoolVar(&live, "live", false, "draw the plant while integrating")
	runCmd.Flags().IntVar(&frameRate, "fps", 30, "live view frame rate")

	gainCmd := &cobra.Command{
		Use:   "gain [model]",
		Short: "print the LQR gain and closed-loop poles",
		Args:  cobra.MaximumNArgs(1),
		RunE:  printGain,
	}
	addConfigFlags(gainCmd)

	configCmd := &cobra.Command{
		Use:   "config [model]",
		Short: "print or write the resolved configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE:  writeConfig,
	}
	addConfigFlags(configCmd)
	configCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVarP(&plotComponent, "component", "c", -1, "state component to plot (default all)")

	pngCmd := &cobra.Command{
		Use:   "png [run_id]",
		Short: "render run results to a PNG figure",
		Args:  cobra.ExactArgs(1),
		RunE:  renderPNG,
	}
	pngCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default <run_id>.png)")
	pngCmd.Flags().Float64Var(&pngWidth, "width", 8, "figure width in inches")
	pngCmd.Flags().Float64Var(&pngHeight, "height", 10, "figure height in inches")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export the trajectory to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default <run_id>.csv)")
	exportCSVCmd.Flags().Float64Var(&exportHz, "hz", -1, "resample rate, 0 for raw steps (default from the run config)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default <run_id>.json)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "frequency content and closed-loop modes of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().IntVarP(&component, "component", "c", 0, "state component for the spectrum")
	analyzeCmd.Flags().Float64Var(&sampleRate, "rate", 100, "spectrum sample rate in Hz")
	analyzeCmd.Flags().BoolVar(&phase, "phase", false, "draw a phase portrait")
	analyzeCmd.Flags().IntVar(&xAxis, "x", 0, "phase portrait x component")
	analyzeCmd.Flags().IntVar(&yAxis, "y", 1, "phase portrait y component")

	tuneCmd := &cobra.Command{
		Use:   "tune [model]",
		Short: "grid-search Q and R scales against a run metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  tuneWeights,
	}
	addConfigFlags(tuneCmd)
	tuneCmd.Flags().StringVar(&metricName, "metric", "", "metric to minimize (default per model)")
	tuneCmd.Flags().Float64SliceVar(&qScales, "q", optim.Logspace(0.1, 10, 5), "Q scale factors")
	tuneCmd.Flags().Float64SliceVar(&rScales, "r", optim.Logspace(0.1, 10, 5), "R scale factors")
	tuneCmd.Flags().IntVar(&parallel, "parallel", 0, "candidates simulated at once (default unbounded)")
	tuneCmd.Flags().StringVarP(&outFile, "out", "o", "", "write the tuned config to this file")

	replayCmd := &cobra.Command{
		Use:   "replay [run_id]",
		Short: "play a stored run back in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  replayRun,
	}
	replayCmd.Flags().IntVar(&frameRate, "fps", 30, "playback frame rate")

	batchCmd := &cobra.Command{
		Use:   "batch [scenario.yaml]",
		Short: "run a scenario of simulations concurrently and store them",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [model]",
		Short: "run perturbed initial conditions and count converged trials",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	addConfigFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&trials, "trials", 20, "number of trials")
	monteCarloCmd.Flags().Float64Var(&perturb, "perturb", 0.1, "half-width of the uniform initial state offset")
	monteCarloCmd.Flags().Float64Var(&tolerance, "tol", automation.DefaultTolerance, "final reference distance counted as converged")
	monteCarloCmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
	monteCarloCmd.Flags().IntVar(&parallel, "parallel", 0, "trials simulated at once (default unbounded)")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			models := config.ListModels()
			if len(args) > 0 {
				models = args
			}
			for _, m := range models {
				presets := config.ListPresets(m)
				if len(presets) == 0 {
					fmt.Printf("no presets for model: %s\n", m)
					continue
				}
				fmt.Printf("presets for %s:\n", m)
				for _, p := range presets {
					marker := ""
					if p == defaultPresets[m] {
						marker = " (default)"
					}
					fmt.Printf("  %s%s\n", p, marker)
				}
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, gainCmd, configCmd, listCmd, plotCmd, pngCmd, exportCSVCmd, exportJSONCmd,
		analyzeCmd, tuneCmd, replayCmd, batchCmd, monteCarloCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().StringVar(&method, "method", config.DefaultMethod, "integration method (dopri5, bs23)")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "end time")
	cmd.Flags().Float64Var(&epsilon, "eps", 1e-6, "local error tolerance")
	cmd.Flags().Float64Var(&hStart, "h0", 1e-3, "initial step")
	cmd.Flags().Float64Var(&hMin, "hmin", 1e-8, "minimum step")
	cmd.Flags().Float64Var(&hMax, "hmax", 0, "maximum step (0 for unbounded)")
	cmd.Flags().IntVar(&maxIter, "maxiter", 1_000_000, "maximum step attempts")
	cmd.Flags().Float64Var(&sampleTime, "sample-time", 0, "controller period with zero-order hold (0 for continuous)")
	cmd.MarkFlagsMutuallyExclusive("config", "preset")
}

// resolveConfig loads --config or a preset and applies the integration
// flags the user set explicitly. It returns the preset name, empty for a
// config file.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, string, error) {
	var cfg *config.Config
	name := preset

	if configFile != "" {
		c, err := config.Load(configFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		if len(args) > 0 && args[0] != c.Model {
			return nil, "", fmt.Errorf("%s configures model %s, not %s", configFile, c.Model, args[0])
		}
		cfg = c
	} else {
		model := config.DefaultModel
		if len(args) > 0 {
			model = args[0]
		}
		if name == "" {
			name = defaultPresets[model]
		}
		cfg = config.GetPreset(model, name)
		if cfg == nil {
			if len(config.ListPresets(model)) == 0 {
				return nil, "", fmt.Errorf("unknown model: %s (available: %v)", model, config.ListModels())
			}
			return nil, "", fmt.Errorf("unknown preset: %s (available: %v)", name, config.ListPresets(model))
		}
	}

	flags := cmd.Flags()
	if flags.Changed("method") {
		cfg.Method = method
	}
	if flags.Changed("time") {
		cfg.Options.TEnd = duration
	}
	if flags.Changed("eps") {
		cfg.Options.Epsilon = epsilon
	}
	if flags.Changed("h0") {
		cfg.Options.HStart = hStart
	}
	if flags.Changed("hmin") {
		cfg.Options.HMin = hMin
	}
	if flags.Changed("hmax") {
		cfg.Options.HMax = hMax
	}
	if flags.Changed("maxiter") {
		cfg.Options.MaxIter = maxIter
	}
	if flags.Changed("sample-time") {
		cfg.SampleTime = sampleTime
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, name, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, presetName, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	exp, err := experiment.New(experiment.NewRegistry(), cfg, logger)
	if err != nil {
		return err
	}
	if live {
		r := tui.NewLiveRenderer(os.Stdout, cfg.Model, frameRate)
		exp.GetSimulator().AddObserver(r)
		r.Start()
		defer r.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running %s simulation (%s, t=%g..%g, eps=%g)...\n",
		cfg.Model, cfg.Method, cfg.Options.TStart, cfg.Options.TEnd, cfg.Options.Epsilon)
	start := time.Now()

	result, runErr := exp.Run(ctx)
	if result == nil {
		return runErr
	}
	elapsed := time.Since(start)

	runID, err := st.Save(storage.RunMetadata{
		Model:   cfg.Model,
		Preset:  presetName,
		Options: cfg.Options,
		Config:  cfg,
		Gain:    exp.Plant().Controller.Gain().Rows(),
	}, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("status: %s\n", result.Status)
	fmt.Printf("steps: %d accepted, %d rejected\n", result.Stats.Accepted, result.Stats.Rejected)
	if result.SampleTime > 0 {
		fmt.Printf("controller updates: %d (every %gs)\n", len(result.Updates), result.SampleTime)
	}
	if runErr != nil {
		fmt.Printf("error: %v\n", runErr)
	}
	fmt.Println("\nmetrics:")
	printMetrics(result.Metrics)

	final := result.Final()
	fmt.Printf("\nfinal state at t=%.4f:\n  %v\n", final.T, formatVector(final.X))
	return runErr
}

func printGain(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	plant, err := experiment.NewRegistry().Build(cfg)
	if err != nil {
		return err
	}
	gain := plant.Controller.Gain()
	m, n := gain.Dims()

	fmt.Printf("model: %s\n", cfg.Model)
	fmt.Printf("K (%dx%d):\n%v\n\n", m, n, mat.Formatted(gain.K(), mat.Prefix("  "), mat.Squeeze()))
	fmt.Println("closed-loop modes:")
	printModes(analysis.Modes(gain.Poles()))
	return nil
}

func writeConfig(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	if outFile != "" {
		if err := config.Save(outFile, cfg); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", outFile)
		return nil
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
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
	fmt.Fprintln(w, "ID\tMODEL\tPRESET\tTIME\tT_END\tMETHOD\tSTATUS\tSTEPS")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2fs\t%s\t%s\t%d\n",
			run.ID,
			run.Model,
			orDash(run.Preset),
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Options.TEnd,
			run.Method,
			run.Status,
			run.Stats.Accepted,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, result, err := storage.New(dataDir).LoadResult(args[0])
	if err != nil {
		return err
	}
	if result.Len() == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("samples: %d\n\n", result.Len())

	labels := componentLabels(meta.Model, meta.StateDim)
	indices := []int{plotComponent}
	if plotComponent < 0 {
		indices = indices[:0]
		for i := 0; i < min(meta.StateDim, 6); i++ {
			indices = append(indices, i)
		}
	} else if plotComponent >= meta.StateDim {
		return fmt.Errorf("component %d out of range (state has %d)", plotComponent, meta.StateDim)
	}

	for _, i := range indices {
		fmt.Println(plotSeries(result.Component(i), labels[i]+" vs time"))
		fmt.Println()
	}
	if plotComponent < 0 {
		for i := 0; i < meta.ControlDim; i++ {
			fmt.Println(plotSeries(result.ControlComponent(i), fmt.Sprintf("u%d vs time", i)))
			fmt.Println()
		}
	}
	return nil
}

func plotSeries(data []float64, caption string) string {
	opts := []asciigraph.Option{
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	}
	if lo, hi := floats.Min(data), floats.Max(data); lo == hi {
		opts = append(opts, asciigraph.LowerBound(lo-1), asciigraph.UpperBound(hi+1))
	}
	return asciigraph.Plot(data, opts...)
}

func renderPNG(cmd *cobra.Command, args []string) error {
	meta, result, err := storage.New(dataDir).LoadResult(args[0])
	if err != nil {
		return err
	}

	panels := export.GenericPanels(meta.StateDim, meta.ControlDim)
	if meta.Model == "drone" {
		panels = export.DronePanels(physics.IdxPos, physics.IdxQuat)
	}

	path := outputPath(meta.ID, ".png")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := export.WritePNG(f, result, panels, pngWidth, pngHeight); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return f.Close()
}

func exportCSV(cmd *cobra.Command, args []string) error {
	meta, result, err := storage.New(dataDir).LoadResult(args[0])
	if err != nil {
		return err
	}

	hz := exportHz
	if !cmd.Flags().Changed("hz") {
		hz = config.DefaultExportHz
		if meta.Config != nil {
			hz = meta.Config.ExportHz
		}
	}

	path := outputPath(meta.ID, ".csv")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := export.WriteCSV(f, result, hz); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", path)
	return f.Close()
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, result, err := storage.New(dataDir).LoadResult(args[0])
	if err != nil {
		return err
	}

	path := outputPath(meta.ID, ".json")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := storage.ExportJSON(f, meta, result); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", path)
	return f.Close()
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, result, err := storage.New(dataDir).LoadResult(args[0])
	if err != nil {
		return err
	}
	labels := componentLabels(meta.Model, meta.StateDim)

	fmt.Printf("run: %s (%s, %s)\n\n", meta.ID, meta.Model, meta.Status)

	sp, err := analysis.Spectrum(result.Samples, component, sampleRate)
	if err != nil {
		return err
	}
	peak := sp.Peak()
	fmt.Printf("spectrum of %s at %.0f Hz:\n", labels[component], sp.Rate)
	fmt.Printf("  dominant frequency: %.4f Hz (period %.4f s)\n", peak.Frequency, 1/peak.Frequency)
	fmt.Printf("  amplitude: %.6g\n", peak.Amplitude)

	if phase {
		portrait := analysis.NewPhasePortrait(result, xAxis, yAxis)
		if portrait == nil {
			return fmt.Errorf("phase axes %d/%d out of range (state has %d)", xAxis, yAxis, meta.StateDim)
		}
		fmt.Printf("\nphase portrait %s vs %s:\n", labels[yAxis], labels[xAxis])
		fmt.Println(analysis.PhasePortraitToASCII(portrait, 60, 20))
	}

	if meta.Config == nil {
		return nil
	}
	plant, err := experiment.NewRegistry().Build(meta.Config)
	if err != nil {
		return fmt.Errorf("rebuild plant: %w", err)
	}
	fmt.Println("\nclosed-loop modes:")
	printModes(analysis.Modes(plant.Controller.Gain().Poles()))

	w := meta.Config.Weights
	q := mat.NewDiagDense(len(w.Q), append([]float64(nil), w.Q...))
	r := mat.NewDiagDense(len(w.R), append([]float64(nil), w.R...))
	fmt.Println("\nslowest pole vs R scale:")
	for _, pt := range analysis.WeightSweep(plant.Lin.A, plant.Lin.B, q, r, optim.Logspace(0.01, 100, 5)) {
		if pt.Err != nil {
			fmt.Printf("  %8.3g  %v\n", pt.Scale, pt.Err)
			continue
		}
		s := pt.Slowest()
		fmt.Printf("  %8.3g  %.4f%+.4fi\n", pt.Scale, real(s), imag(s))
	}
	return nil
}

func tuneWeights(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	metric := metricName
	if metric == "" {
		metric = defaultMetric(cfg.Model)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("tuning %s: %d candidates against %s\n", cfg.Model, len(qScales)*len(rScales), metric)
	start := time.Now()
	best, cost, cands, err := optim.TuneWeights(ctx, experiment.NewRegistry(), cfg, qScales, rScales, metric, parallel, logger)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Q_SCALE\tR_SCALE\tCOST\tSTATUS")
	for _, c := range cands {
		status := c.Status.String()
		if c.Err != nil {
			status = c.Err.Error()
		}
		fmt.Fprintf(w, "%.4g\t%.4g\t%.6g\t%s\n", c.Params[optim.ParamQScale], c.Params[optim.ParamRScale], c.Cost, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\ncompleted in %v\n", time.Since(start))
	fmt.Printf("best %s: %.6g\n", metric, cost)
	fmt.Printf("Q: %v\nR: %v\n", formatVector(best.Q), formatVector(best.R))

	if outFile != "" {
		tuned := cfg.Clone()
		tuned.Weights = best
		if err := config.Save(outFile, tuned); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", outFile)
	}
	return nil
}

func replayRun(cmd *cobra.Command, args []string) error {
	meta, result, err := storage.New(dataDir).LoadResult(args[0])
	if err != nil {
		return err
	}
	return tui.RunReplay(meta.Model, result, float64(frameRate))
}

func runBatch(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running scenario %s: %d steps\n", orDash(scenario.Name), len(scenario.Steps))
	start := time.Now()
	results, err := automation.RunScenario(ctx, experiment.NewRegistry(), scenario, logger)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tRUN ID\tMODEL\tSTATUS\tSTEPS\tT_FINAL")
	for _, r := range results {
		runID, err := st.Save(storage.RunMetadata{
			Model:   r.Config.Model,
			Preset:  r.Step.Preset,
			Options: r.Config.Options,
			Config:  r.Config,
		}, r.Result)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.4g\n",
			r.Step.Name, runID, r.Config.Model, r.Result.Status, r.Result.Stats.Accepted, r.Result.Final().T)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\ncompleted in %v\n", time.Since(start))
	return nil
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("monte carlo %s: %d trials, perturbation ±%g\n", cfg.Model, trials, perturb)
	start := time.Now()
	results, err := automation.RunMonteCarlo(ctx, experiment.NewRegistry(), cfg, automation.MonteCarloConfig{
		Trials:       trials,
		Perturbation: perturb,
		Tolerance:    tolerance,
		Seed:         seed,
		Parallel:     parallel,
	})
	if err != nil {
		return err
	}

	stats := automation.Summarize(results)
	fmt.Printf("completed in %v\n", time.Since(start))
	fmt.Printf("converged: %d/%d\n", stats.Converged, len(results))
	fmt.Printf("not converged: %d\n", stats.Diverged)
	fmt.Printf("failed: %d\n", stats.Failed)
	fmt.Printf("worst final error: %.6g\n", stats.WorstError)
	return nil
}

func defaultMetric(model string) string {
	if model == "drone" {
		return "attitude_step"
	}
	return "step"
}

func printMetrics(m map[string]float64) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Printf("  %s: %.6g\n", name, m[name])
	}
}

func printModes(modes []analysis.Mode) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  POLE\tDAMPING\tWN (rad/s)\tTAU (s)")
	for _, m := range modes {
		pole := fmt.Sprintf("%.4f", real(m.Pole))
		if imag(m.Pole) != 0 {
			pole = fmt.Sprintf("%.4f±%.4fi", real(m.Pole), imag(m.Pole))
		}
		tau := "inf"
		if !math.IsInf(m.TimeConstant, 0) {
			tau = fmt.Sprintf("%.4f", m.TimeConstant)
		}
		fmt.Fprintf(w, "  %s\t%.3f\t%.4f\t%s\n", pole, m.Damping, m.NaturalFreq, tau)
	}
	w.Flush()
}

func componentLabels(model string, n int) []string {
	if model == "drone" && n == physics.DroneStateDim {
		return []string{"x", "y", "z", "vx", "vy", "vz", "qw", "qx", "qy", "qz", "p", "q", "r"}
	}
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("x%d", i)
	}
	return labels
}

func formatVector(v []float64) string {
	return fmt.Sprintf("%.4g", v)
}

func outputPath(runID, ext string) string {
	if outFile != "" {
		return outFile
	}
	return runID + ext
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
