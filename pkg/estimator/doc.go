// Package estimator delegates network meta-analysis estimation to an
// external solver and normalizes its output.
//
// # Solvers
//
// A [Solver] receives a [Request] (contrasts, measure, reference and the
// sorted treatment set) and returns a [Result]. Two implementations ship
// with netmeta:
//
//   - [github.com/matzehuels/netmeta/pkg/estimator/rscript] runs the R
//     netmeta package in a subprocess.
//   - [github.com/matzehuels/netmeta/pkg/estimator/gls] fits the same
//     frequentist model natively with gonum.
//
// # Adapter
//
// [Adapter.Estimate] checks the reference before calling the solver, bounds
// the call with [Options.Timeout], and validates the result against the
// output contract: every treatment pair has a finite estimate with a
// non-negative standard error and ordered confidence bounds, and every
// superiority probability lies in [0, 1]. The solver is called exactly once;
// failures are reported, never retried.
//
//	a := estimator.NewAdapter(gls.New(logger), estimator.Options{}, logger)
//	res, err := a.Estimate(ctx, contrasts, contrast.OddsRatio, "Placebo")
//
// # Superiority
//
// Probabilities[i][j] of a [ModelResult] is the probability that treatment
// i is better than treatment j under a normal approximation of the network
// estimate. Which direction is "better" follows [SmallValues].
package estimator
