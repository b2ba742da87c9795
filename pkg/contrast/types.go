package contrast

import (
	"slices"
	"strings"

	"github.com/matzehuels/netmeta/pkg/errors"
)

// Outcome is the type of outcome reported by arm-level records.
type Outcome string

const (
	// OutcomeBinary records carry Events and N.
	OutcomeBinary Outcome = "binary"
	// OutcomeContinuous records carry Mean, SD and N.
	OutcomeContinuous Outcome = "continuous"
)

// ParseOutcome maps an outcome name to an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(strings.ToLower(strings.TrimSpace(s))) {
	case OutcomeBinary:
		return OutcomeBinary, nil
	case OutcomeContinuous:
		return OutcomeContinuous, nil
	}
	return "", errors.Validation("invalid outcome type: %q (must be one of: binary, continuous)", s)
}

// Measure is a summary measure code. Codes match the ones used by the
// R netmeta package.
type Measure string

const (
	OddsRatio                  Measure = "OR"
	RiskRatio                  Measure = "RR"
	RiskDifference             Measure = "RD"
	MeanDifference             Measure = "MD"
	StandardizedMeanDifference Measure = "SMD"
)

// Measures lists every supported measure.
var Measures = []Measure{OddsRatio, RiskRatio, RiskDifference, MeanDifference, StandardizedMeanDifference}

// ParseMeasure maps a measure code (case-insensitive) to a Measure.
func ParseMeasure(s string) (Measure, error) {
	m := Measure(strings.ToUpper(strings.TrimSpace(s)))
	if slices.Contains(Measures, m) {
		return m, nil
	}
	return "", errors.Validation("invalid effect measure: %q (must be one of: OR, RR, RD, MD, SMD)", s)
}

// IsRatio reports whether the measure is a ratio analysed on the log scale.
func (m Measure) IsRatio() bool {
	return m == OddsRatio || m == RiskRatio
}

// Outcome returns the outcome type the measure applies to.
func (m Measure) Outcome() Outcome {
	switch m {
	case MeanDifference, StandardizedMeanDifference:
		return OutcomeContinuous
	default:
		return OutcomeBinary
	}
}

// Scale names the working scale TE is reported on.
func (m Measure) Scale() string {
	switch m {
	case OddsRatio:
		return "log odds ratio"
	case RiskRatio:
		return "log risk ratio"
	case RiskDifference:
		return "risk difference"
	case MeanDifference:
		return "mean difference"
	case StandardizedMeanDifference:
		return "standardized mean difference"
	}
	return string(m)
}

// DefaultMeasure returns the measure used when none is requested:
// OR for binary outcomes, MD for continuous ones.
func DefaultMeasure(o Outcome) Measure {
	if o == OutcomeContinuous {
		return MeanDifference
	}
	return OddsRatio
}

// ArmRecord is one arm of one study. Binary records use Events and N;
// continuous records use Mean, SD and N.
type ArmRecord struct {
	Study     string  `json:"study"`
	Treatment string  `json:"treatment"`
	Events    int     `json:"events,omitempty"`
	N         int     `json:"n"`
	Mean      float64 `json:"mean,omitempty"`
	SD        float64 `json:"sd,omitempty"`
}

// PairwiseContrast is the effect of Treat1 relative to Treat2 within a
// single study, on the working scale of the measure.
type PairwiseContrast struct {
	Study  string  `json:"study"`
	Treat1 string  `json:"treat1"`
	Treat2 string  `json:"treat2"`
	TE     float64 `json:"TE"`
	SeTE   float64 `json:"seTE"`

	// CovRef is the variance of the intra-study reference arm (Treat1).
	// It is set for contrasts built from arm-level data and is the
	// covariance between any two contrasts of the same study.
	CovRef float64 `json:"cov_ref,omitempty"`

	// Corrected reports whether a continuity correction was applied.
	Corrected bool `json:"corrected,omitempty"`
}

// Treatments returns the sorted set of treatment names in contrasts.
func Treatments(contrasts []PairwiseContrast) []string {
	seen := make(map[string]struct{})
	for _, c := range contrasts {
		seen[c.Treat1] = struct{}{}
		seen[c.Treat2] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Studies returns study labels in order of first appearance.
func Studies(contrasts []PairwiseContrast) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range contrasts {
		if !seen[c.Study] {
			seen[c.Study] = true
			out = append(out, c.Study)
		}
	}
	return out
}
