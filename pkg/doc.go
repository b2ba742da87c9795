// Package pkg provides the core libraries for netmeta network meta-analysis.
//
// # Overview
//
// Netmeta combines direct and indirect evidence from clinical trials into
// relative effects for every pair of treatments in a comparison network. The
// pkg directory is organized into four main areas:
//
//  1. Domain logic: [contrast], [network], [estimator], [league], [ranking],
//     [forest]
//  2. Solvers: [estimator/gls] (native) and [estimator/rscript] (R netmeta)
//  3. Infrastructure: [cache], [config], [errors], [ingest], [observability]
//  4. Orchestration: [pipeline]
//
// # Architecture
//
// The typical data flow:
//
//	CSV / Excel / JSON study data
//	         ↓
//	    [ingest] package (arm-level records or pairwise contrasts)
//	         ↓
//	    [contrast] package (effect sizes, continuity corrections, multi-arm)
//	         ↓
//	    [network] package (graph, connectivity, plot)
//	         ↓
//	    [estimator] package (fixed and random effects through a solver)
//	         ↓
//	    [league], [ranking], [forest] (derived outputs)
//
// # Quick Start
//
//	tbl, _ := ingest.ReadFile("trials.csv", ingest.FormatArmBinary)
//	runner := pipeline.NewRunner(gls.New(nil), nil, nil, nil)
//	a, err := runner.Execute(ctx, pipeline.Request{
//	    Records: tbl.Records,
//	    Outcome: tbl.Format.Outcome(),
//	    Options: pipeline.Options{Reference: "Placebo"},
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(a.League.Natural().Cell(estimator.ModelRandom, "T1", "Placebo"))
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...           # All tests
//	go test ./pkg/estimator/... # Specific package
//	go test -run Example        # Examples only
//
// The rscript solver tests run R only when it is installed with the netmeta
// and jsonlite packages.
package pkg
