package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/netmeta/pkg/estimator"
	"github.com/matzehuels/netmeta/pkg/observability"
	"github.com/matzehuels/netmeta/pkg/pipeline"
)

// analyzeFlags holds flags for the analyze command.
type analyzeFlags struct {
	input    inputFlags
	options  optionFlags
	solver   string
	rPath    string
	natural  bool
	jsonOut  bool
	output   string
	plot     string
	markdown bool
	noCache  bool
}

// analyzeCommand creates the analyze command for running a complete network
// meta-analysis.
func (c *CLI) analyzeCommand() *cobra.Command {
	var flags analyzeFlags

	cmd := &cobra.Command{
		Use:     "analyze <file>",
		Aliases: []string{"analyse", "run"},
		Short:   "Run a network meta-analysis",
		Long: `Run a network meta-analysis: build contrasts, check that the treatment
network is connected, fit fixed and random effects models and report the
league table, P-score ranking and forest plot data.

The input is a CSV or Excel table in one of the --format layouts, or a JSON
file holding a request with records or contrasts and optional options.
Command-line flags override options from the file and the configuration.`,
		Example: `  netmeta analyze trials.csv --format arm_binary --reference Placebo
  netmeta analyze pairs.csv --sm RR --models random --natural
  netmeta analyze request.json --json --output analysis.json
  netmeta analyze trials.csv --format arm_binary --solver rscript --plot network.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAnalyze(cmd, args[0], &flags)
		},
	}

	flags.input.register(cmd)
	flags.options.registerAnalysis(cmd)
	cmd.Flags().StringVar(&flags.solver, "solver", "", "estimation backend: gls, rscript (default from config)")
	cmd.Flags().StringVar(&flags.rPath, "r-path", "", "R executable for the rscript solver")
	cmd.Flags().BoolVar(&flags.natural, "natural", false, "report ratio measures on the natural scale")
	cmd.Flags().BoolVar(&flags.jsonOut, "json", false, "print the analysis as JSON")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "write the analysis as JSON to this file")
	cmd.Flags().StringVar(&flags.plot, "plot", "", "write an SVG network plot to this file")
	cmd.Flags().BoolVar(&flags.markdown, "markdown", false, "render tables as Markdown")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "disable the plot cache")

	return cmd
}

func (c *CLI) runAnalyze(cmd *cobra.Command, path string, flags *analyzeFlags) error {
	ctx := cmd.Context()
	if err := c.applySolverFlags(flags.solver, flags.rPath); err != nil {
		return err
	}

	req, err := flags.input.request(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}
	opts, err := c.options()
	if err != nil {
		return err
	}
	overlay(&opts, req.Options)
	if err := flags.options.apply(cmd, &opts); err != nil {
		return err
	}
	opts.Plot = opts.Plot || flags.plot != ""
	req.Options = opts

	runner, err := c.newRunner(ctx, flags.noCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	out := cmd.OutOrStdout()
	p := printer{w: out, quiet: flags.jsonOut}

	var spinner *Spinner
	if !flags.jsonOut && !c.verbose {
		spinner = newSpinner(ctx, cmd.ErrOrStderr(), "Building contrasts...")
		spinner.Start()
		observability.SetPipelineHooks(spinnerHooks{s: spinner})
		defer observability.Reset()
	}

	prog := newProgress(c.Logger)
	analysis, err := runner.Execute(ctx, req)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return err
	}
	if c.verbose {
		prog.done(fmt.Sprintf("Analysed %d studies", analysis.Stats.Studies))
	}

	if flags.natural {
		analysis.League = analysis.League.Natural()
	}
	if flags.plot != "" {
		if err := os.WriteFile(flags.plot, analysis.Plot, 0o644); err != nil {
			return fmt.Errorf("write plot: %w", err)
		}
	}
	if flags.output != "" {
		if err := writeJSONFile(flags.output, analysis); err != nil {
			return err
		}
	}

	if flags.jsonOut {
		return writeJSON(out, analysis)
	}
	printAnalysis(out, analysis, flags.natural, flags.markdown)
	if flags.natural && analysis.Result.Measure.IsRatio() {
		p.info("League table and forest data are on the natural scale; seTE stays on the log scale")
	}
	if flags.output != "" {
		p.success("Wrote analysis")
		p.file(flags.output)
	}
	if flags.plot != "" {
		p.success("Wrote network plot")
		p.file(flags.plot)
	}
	return nil
}

// applySolverFlags overrides the configured solver.
func (c *CLI) applySolverFlags(solver, rPath string) error {
	if solver == "" && rPath == "" {
		return nil
	}
	cfg := *c.config()
	if solver != "" {
		cfg.Solver.Name = strings.ToLower(solver)
	}
	if rPath != "" {
		cfg.Solver.RPath = rPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = &cfg
	return nil
}

func writeJSONFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := writeJSON(f, v); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// printAnalysis renders the human-readable report of an analysis.
func printAnalysis(w io.Writer, a *pipeline.Analysis, natural, markdown bool) {
	p := printer{w: w}
	tw := tableWriter{w: w, markdown: markdown}
	res := a.Result

	p.title("Network meta-analysis")
	p.keyValue("Solver", res.Solver)
	p.keyValue("Measure", fmt.Sprintf("%s (%s)", res.Measure, res.Measure.Scale()))
	p.keyValue("Reference", res.Reference)
	p.keyValue("Treatments", strings.Join(res.Treatments, ", "))
	p.keyValue("Studies", fmt.Sprint(res.Studies))
	p.keyValue("Comparisons", fmt.Sprint(res.Comparisons))

	p.title("Heterogeneity")
	tw.heterogeneity(res.Heterogeneity)

	for _, m := range res.Available() {
		name := modelTitle(m)
		p.title(name + ": league table")
		tw.league(a.League, m)
		p.title(name + ": ranking")
		tw.ranking(a.Ranking[m])
	}

	p.title(fmt.Sprintf("Forest data vs %s", res.Reference))
	tw.forest(a.Forest, res.Measure, res.Level, natural)
}

func modelTitle(m estimator.Model) string {
	if m == estimator.ModelFixed {
		return "Fixed effects"
	}
	return "Random effects"
}
