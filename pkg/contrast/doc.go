// Package contrast converts arm-level trial records into pairwise
// treatment-effect contrasts.
//
// # Overview
//
// Network meta-analysis solvers work on contrasts: one row per direct
// comparison with a point estimate (TE) and its standard error (SeTE).
// Trials are usually reported per arm instead (events out of n for binary
// outcomes, mean and SD for continuous outcomes). [Build] bridges the two.
//
// # Effect Measures
//
// Binary outcomes support [OddsRatio], [RiskRatio] and [RiskDifference];
// continuous outcomes support [MeanDifference] and
// [StandardizedMeanDifference]. Ratio measures are computed on the log
// scale, so TE is additive for every measure.
//
// # Multi-Arm Studies
//
// A study with k arms yields exactly k-1 contrasts. The first listed arm is
// the intra-study reference and appears as Treat1 in every contrast of the
// study. Each of those contrasts carries CovRef, the arm-level variance of
// the reference arm, which is the covariance shared by every pair of the
// study's contrasts. Solvers that need the complete set of comparisons can
// derive it from the baseline contrasts and CovRef.
//
// # Continuity Correction
//
// When any arm of a binary study has zero events or zero non-events, the
// increment (default 0.5) is added to both cells of every arm of that
// study. The whole study is corrected, not a single contrast, so all
// contrasts of a multi-arm study stay mutually consistent.
//
// # Usage
//
//	records := []contrast.ArmRecord{
//	    {Study: "T1", Treatment: "Placebo", Events: 20, N: 100},
//	    {Study: "T1", Treatment: "SSRI", Events: 35, N: 100},
//	}
//	contrasts, err := contrast.Build(records, contrast.OutcomeBinary, contrast.Options{})
package contrast
