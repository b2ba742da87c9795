package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/netmeta/pkg/cache"
	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
	"github.com/matzehuels/netmeta/pkg/estimator"
	"github.com/matzehuels/netmeta/pkg/estimator/gls"
	"github.com/matzehuels/netmeta/pkg/forest"
	"github.com/matzehuels/netmeta/pkg/league"
	"github.com/matzehuels/netmeta/pkg/network"
	"github.com/matzehuels/netmeta/pkg/observability"
	"github.com/matzehuels/netmeta/pkg/ranking"
)

// Runner executes analyses against one solver.
//
// The Runner is stateless except for the solver, cache and logger; it
// doesn't store analysis results. Multiple goroutines can safely use the
// same Runner with different options.
type Runner struct {
	Solver estimator.Solver
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner.
// If solver is nil, the native GLS solver is used.
// If cache is nil, a NullCache is used (plot caching disabled).
// If keyer is nil, a DefaultKeyer is used.
func NewRunner(solver estimator.Solver, c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	if solver == nil {
		solver = gls.New(logger)
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	return &Runner{
		Solver: solver,
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute runs contrasts → network → estimate → assemble.
func (r *Runner) Execute(ctx context.Context, req Request) (*Analysis, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	opts := req.Options
	outcome := req.Outcome
	if len(req.Records) == 0 {
		outcome = ""
	}
	if err := opts.ValidateAndSetDefaults(outcome); err != nil {
		return nil, err
	}

	a := &Analysis{ID: uuid.NewString(), Options: opts}
	logger := r.Logger.With("analysis", a.ID)

	// Stage 1: Contrasts
	start := time.Now()
	contrasts, err := BuildContrasts(req.Records, outcome, req.Contrasts, opts)
	a.Stats.ContrastTime = time.Since(start)
	a.Stats.Studies = len(contrast.Studies(contrasts))
	a.Stats.Contrasts = len(contrasts)
	observability.Pipeline().OnContrastsBuilt(ctx, a.Stats.Studies, a.Stats.Contrasts, a.Stats.ContrastTime, err)
	if err != nil {
		return nil, err
	}
	a.Contrasts = contrasts
	logger.Info("built contrasts",
		"studies", a.Stats.Studies,
		"contrasts", a.Stats.Contrasts,
		"duration", a.Stats.ContrastTime)

	// Stage 2: Network
	start = time.Now()
	g, err := network.Build(contrasts)
	a.Stats.NetworkTime = time.Since(start)
	if g != nil {
		a.Stats.Nodes, a.Stats.Edges = len(g.Nodes), len(g.Edges)
	}
	observability.Pipeline().OnNetworkBuilt(ctx, a.Stats.Nodes, a.Stats.Edges, a.Stats.NetworkTime, err)
	if err != nil {
		return nil, err
	}
	a.Network = g
	logger.Info("built network",
		"nodes", a.Stats.Nodes,
		"edges", a.Stats.Edges,
		"duration", a.Stats.NetworkTime)

	if a.Options.Reference == "" {
		a.Options.Reference = g.Nodes[0]
	}

	// Stage 3: Estimate
	start = time.Now()
	res, err := r.Estimate(ctx, contrasts, a.Options)
	a.Stats.EstimateTime = time.Since(start)
	if err != nil {
		return nil, err
	}
	a.Result = res
	logger.Info("estimated models",
		"solver", res.Solver,
		"models", res.Available(),
		"tau2", res.Heterogeneity.Tau2,
		"duration", a.Stats.EstimateTime)

	// Stage 4: Assemble
	start = time.Now()
	err = r.assemble(ctx, a)
	a.Stats.AssembleTime = time.Since(start)
	observability.Pipeline().OnAssembleComplete(ctx, a.Stats.AssembleTime, err)
	if err != nil {
		return nil, err
	}
	logger.Info("assembled outputs",
		"treatments", len(a.League.Treatments),
		"forest_rows", len(a.Forest),
		"duration", a.Stats.AssembleTime)

	return a, nil
}

// BuildContrasts returns the contrasts of an analysis input: records are
// converted with the measure and increment of opts, contrasts are validated
// and returned as given.
func BuildContrasts(records []contrast.ArmRecord, outcome contrast.Outcome, contrasts []contrast.PairwiseContrast, opts Options) ([]contrast.PairwiseContrast, error) {
	if len(records) > 0 {
		return contrast.Build(records, outcome, contrast.Options{Measure: opts.Measure, Increment: opts.Increment})
	}
	if err := contrast.ValidateContrasts(contrasts); err != nil {
		return nil, err
	}
	return contrasts, nil
}

// Estimate runs the solver once through an estimator.Adapter configured
// from opts. opts.Reference must be set.
func (r *Runner) Estimate(ctx context.Context, contrasts []contrast.PairwiseContrast, opts Options) (*estimator.Result, error) {
	if opts.Reference == "" {
		return nil, errors.Validation("reference treatment is required")
	}
	adapter := estimator.NewAdapter(r.Solver, opts.EstimatorOptions(), r.Logger)
	return adapter.Estimate(ctx, contrasts, opts.Measure, opts.Reference)
}

// assemble derives every output from the read-only result concurrently.
func (r *Runner) assemble(ctx context.Context, a *Analysis) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		tbl, err := league.Assemble(a.Result, nil)
		a.League = tbl
		return err
	})
	eg.Go(func() error {
		ranks, err := ranking.RankModels(a.Result)
		a.Ranking = ranks
		return err
	})
	eg.Go(func() error {
		rows, err := forest.Extract(a.Result, a.Options.Reference)
		a.Forest = rows
		return err
	})
	if a.Options.Plot {
		eg.Go(func() error {
			p := &network.Plotter{Cache: r.Cache, Keyer: r.Keyer}
			svg, err := p.Plot(egCtx, a.Network, network.PlotOptions{Labels: true, Highlight: a.Options.Reference})
			a.Plot = svg
			return err
		})
	}
	return eg.Wait()
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}
