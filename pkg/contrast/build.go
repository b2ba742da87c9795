package contrast

import (
	"math"

	"github.com/matzehuels/netmeta/pkg/errors"
)

// DefaultIncrement is the continuity correction added to every cell of a
// binary study with a zero cell.
const DefaultIncrement = 0.5

// Options configures contrast construction.
type Options struct {
	// Measure is the summary measure. Empty selects DefaultMeasure for the
	// outcome type.
	Measure Measure `json:"measure,omitempty"`

	// Increment is the continuity correction. Zero selects DefaultIncrement.
	Increment float64 `json:"increment,omitempty"`
}

// study groups the arms of one study in input order.
type study struct {
	label string
	arms  []ArmRecord
}

// Build converts arm-level records into pairwise contrasts.
//
// Records are grouped by study in order of first appearance. For each study
// the first listed arm is the reference and one contrast is emitted for
// every other arm, so a k-arm study yields k-1 contrasts.
//
// Build returns a VALIDATION_ERROR when a study has fewer than two arms,
// when a treatment label is empty or repeated within a study, when a field
// violates its invariant (n > 0, 0 <= events <= n, sd >= 0), or when a
// contrast would have a zero standard error.
func Build(records []ArmRecord, outcome Outcome, opts Options) ([]PairwiseContrast, error) {
	if len(records) == 0 {
		return nil, errors.Validation("no arm records provided")
	}
	if outcome != OutcomeBinary && outcome != OutcomeContinuous {
		return nil, errors.Validation("invalid outcome type: %q", outcome)
	}

	measure := opts.Measure
	if measure == "" {
		measure = DefaultMeasure(outcome)
	}
	if measure.Outcome() != outcome {
		return nil, errors.Validation("measure %s cannot be used with %s outcomes", measure, outcome)
	}

	inc := opts.Increment
	if inc == 0 {
		inc = DefaultIncrement
	}
	if inc < 0 || math.IsNaN(inc) || math.IsInf(inc, 0) {
		return nil, errors.Validation("continuity increment must be a positive number, got %v", opts.Increment)
	}

	studies, err := groupByStudy(records)
	if err != nil {
		return nil, err
	}

	out := make([]PairwiseContrast, 0, len(records)-len(studies))
	for _, s := range studies {
		if err := validateStudy(s, outcome); err != nil {
			return nil, err
		}
		var cs []PairwiseContrast
		if outcome == OutcomeBinary {
			cs = binaryContrasts(s, measure, inc)
		} else {
			cs, err = continuousContrasts(s, measure)
			if err != nil {
				return nil, err
			}
		}
		for _, c := range cs {
			if err := checkContrast(c); err != nil {
				return nil, err
			}
		}
		out = append(out, cs...)
	}
	return out, nil
}

func groupByStudy(records []ArmRecord) ([]study, error) {
	index := make(map[string]int)
	var studies []study
	for _, r := range records {
		if err := errors.ValidateLabel("study", r.Study); err != nil {
			return nil, err
		}
		i, ok := index[r.Study]
		if !ok {
			i = len(studies)
			index[r.Study] = i
			studies = append(studies, study{label: r.Study})
		}
		studies[i].arms = append(studies[i].arms, r)
	}
	return studies, nil
}

func validateStudy(s study, outcome Outcome) error {
	if len(s.arms) < 2 {
		return errors.Validation("study %q has %d arm(s), at least 2 are required", s.label, len(s.arms))
	}
	seen := make(map[string]bool, len(s.arms))
	for _, a := range s.arms {
		if err := errors.ValidateLabel("treatment", a.Treatment); err != nil {
			return errors.Wrap(errors.ErrCodeValidation, err, "study %q", s.label)
		}
		if seen[a.Treatment] {
			return errors.Validation("study %q lists treatment %q more than once", s.label, a.Treatment)
		}
		seen[a.Treatment] = true

		if a.N <= 0 {
			return errors.Validation("study %q, treatment %q: n must be positive, got %d", s.label, a.Treatment, a.N)
		}
		switch outcome {
		case OutcomeBinary:
			if a.Events < 0 || a.Events > a.N {
				return errors.Validation("study %q, treatment %q: events must be between 0 and n (%d), got %d",
					s.label, a.Treatment, a.N, a.Events)
			}
		case OutcomeContinuous:
			if !finite(a.Mean) {
				return errors.Validation("study %q, treatment %q: mean must be finite", s.label, a.Treatment)
			}
			if !finite(a.SD) || a.SD < 0 {
				return errors.Validation("study %q, treatment %q: sd must be a non-negative number, got %v",
					s.label, a.Treatment, a.SD)
			}
		}
	}
	return nil
}

// binaryArm holds (possibly corrected) event counts as floats.
type binaryArm struct {
	treatment string
	events    float64
	n         float64
}

func (a binaryArm) logOdds() (float64, float64) {
	nonEvents := a.n - a.events
	return math.Log(a.events / nonEvents), 1/a.events + 1/nonEvents
}

func (a binaryArm) logRisk() (float64, float64) {
	return math.Log(a.events / a.n), 1/a.events - 1/a.n
}

func (a binaryArm) risk() (float64, float64) {
	p := a.events / a.n
	return p, p * (1 - p) / a.n
}

func (a binaryArm) estimate(m Measure) (float64, float64) {
	switch m {
	case RiskRatio:
		return a.logRisk()
	case RiskDifference:
		return a.risk()
	default:
		return a.logOdds()
	}
}

func binaryContrasts(s study, m Measure, inc float64) []PairwiseContrast {
	corrected := needsCorrection(s, m)
	arms := make([]binaryArm, len(s.arms))
	for i, a := range s.arms {
		arms[i] = binaryArm{treatment: a.Treatment, events: float64(a.Events), n: float64(a.N)}
		if corrected {
			arms[i].events += inc
			arms[i].n += 2 * inc
		}
	}

	ref := arms[0]
	refEst, refVar := ref.estimate(m)
	out := make([]PairwiseContrast, 0, len(arms)-1)
	for _, other := range arms[1:] {
		est, v := other.estimate(m)
		out = append(out, PairwiseContrast{
			Study:     s.label,
			Treat1:    ref.treatment,
			Treat2:    other.treatment,
			TE:        refEst - est,
			SeTE:      math.Sqrt(refVar + v),
			CovRef:    refVar,
			Corrected: corrected,
		})
	}
	return out
}

// needsCorrection reports whether the study needs a continuity correction.
// Log-scale measures are corrected when any arm has a zero cell. The risk
// difference is only corrected when a contrast would otherwise have zero
// variance, which needs a degenerate arm on both sides.
func needsCorrection(s study, m Measure) bool {
	degenerate := func(a ArmRecord) bool { return a.Events == 0 || a.Events == a.N }
	if m != RiskDifference {
		for _, a := range s.arms {
			if degenerate(a) {
				return true
			}
		}
		return false
	}
	if !degenerate(s.arms[0]) {
		return false
	}
	for _, a := range s.arms[1:] {
		if degenerate(a) {
			return true
		}
	}
	return false
}

func continuousContrasts(s study, m Measure) ([]PairwiseContrast, error) {
	ref := s.arms[0]
	out := make([]PairwiseContrast, 0, len(s.arms)-1)
	for _, other := range s.arms[1:] {
		var te, v, cov float64
		switch m {
		case StandardizedMeanDifference:
			g, gv, err := hedgesG(ref, other)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeValidation, err, "study %q", s.label)
			}
			te, v, cov = g, gv, 1/float64(ref.N)
		default:
			refVar := ref.SD * ref.SD / float64(ref.N)
			te = ref.Mean - other.Mean
			v = refVar + other.SD*other.SD/float64(other.N)
			cov = refVar
		}
		if v <= 0 {
			return nil, errors.Validation("study %q: %s vs %s has a zero standard error (sd is 0 in both arms)",
				s.label, ref.Treatment, other.Treatment)
		}
		out = append(out, PairwiseContrast{
			Study:  s.label,
			Treat1: ref.Treatment,
			Treat2: other.Treatment,
			TE:     te,
			SeTE:   math.Sqrt(v),
			CovRef: cov,
		})
	}
	return out, nil
}

// hedgesG returns Hedges' g for a vs b and its variance.
func hedgesG(a, b ArmRecord) (float64, float64, error) {
	n1, n2 := float64(a.N), float64(b.N)
	df := n1 + n2 - 2
	if df <= 0 {
		return 0, 0, errors.Validation("standardized mean difference needs more than 2 participants, got %v", n1+n2)
	}
	pooled := math.Sqrt(((n1-1)*a.SD*a.SD + (n2-1)*b.SD*b.SD) / df)
	if pooled == 0 {
		return 0, 0, errors.Validation("%s vs %s: pooled sd is 0", a.Treatment, b.Treatment)
	}
	j := 1 - 3/(4*df-1)
	g := j * (a.Mean - b.Mean) / pooled
	return g, 1/n1 + 1/n2 + g*g/(2*(n1+n2)), nil
}

func checkContrast(c PairwiseContrast) error {
	if !finite(c.TE) {
		return errors.Validation("study %q: %s vs %s has a non-finite effect estimate", c.Study, c.Treat1, c.Treat2)
	}
	if !finite(c.SeTE) || c.SeTE <= 0 {
		return errors.Validation("study %q: %s vs %s has a non-positive standard error", c.Study, c.Treat1, c.Treat2)
	}
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
