package estimator

import (
	"strings"

	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
)

// Model is a network meta-analysis model.
type Model string

const (
	// ModelFixed is the common (fixed) effect model.
	ModelFixed Model = "fixed"
	// ModelRandom is the random effects model.
	ModelRandom Model = "random"
)

// Models lists both models in reporting order.
var Models = []Model{ModelFixed, ModelRandom}

// ParseModel maps a model name to a Model. "common" is accepted as an alias
// of "fixed".
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed", "common":
		return ModelFixed, nil
	case "random":
		return ModelRandom, nil
	}
	return "", errors.Validation("invalid model: %q (must be one of: fixed, random)", s)
}

// SmallValues states whether small effect values are good or bad. It fixes
// the direction of superiority probabilities.
type SmallValues string

const (
	// SmallValuesDesirable ranks treatments with smaller TE higher.
	SmallValuesDesirable SmallValues = "desirable"
	// SmallValuesUndesirable ranks treatments with larger TE higher.
	SmallValuesUndesirable SmallValues = "undesirable"
)

// ParseSmallValues maps a name to a SmallValues value.
func ParseSmallValues(s string) (SmallValues, error) {
	switch SmallValues(strings.ToLower(strings.TrimSpace(s))) {
	case SmallValuesDesirable:
		return SmallValuesDesirable, nil
	case SmallValuesUndesirable:
		return SmallValuesUndesirable, nil
	}
	return "", errors.Validation("invalid small_values: %q (must be one of: desirable, undesirable)", s)
}

// Request is the input handed to a Solver.
type Request struct {
	Contrasts   []contrast.PairwiseContrast `json:"contrasts"`
	Measure     contrast.Measure            `json:"measure"`
	Reference   string                      `json:"reference"`
	Treatments  []string                    `json:"treatments"`
	Level       float64                     `json:"level"`
	SmallValues SmallValues                 `json:"small_values"`
}

// PairEstimate is the network estimate of Treat1 relative to Treat2 on the
// working scale, with its standard error and confidence interval.
type PairEstimate struct {
	Treat1 string  `json:"treat1"`
	Treat2 string  `json:"treat2"`
	TE     float64 `json:"TE"`
	SE     float64 `json:"seTE"`
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
}

// ModelResult holds the estimates of one model.
type ModelResult struct {
	// Estimates holds at least one orientation of every treatment pair.
	Estimates []PairEstimate `json:"estimates"`

	// Probabilities[i][j] is the probability that treatment i is better
	// than treatment j, in the order of Result.Treatments. The diagonal is
	// unused.
	Probabilities [][]float64 `json:"probabilities"`

	index map[[2]string]int
}

// Lookup returns the estimate of t1 relative to t2 as reported by the
// solver, without deriving it from the mirrored pair.
func (m *ModelResult) Lookup(t1, t2 string) (PairEstimate, bool) {
	if m.index != nil {
		i, ok := m.index[[2]string{t1, t2}]
		if !ok {
			return PairEstimate{}, false
		}
		return m.Estimates[i], true
	}
	for _, e := range m.Estimates {
		if e.Treat1 == t1 && e.Treat2 == t2 {
			return e, true
		}
	}
	return PairEstimate{}, false
}

// Effect returns the estimate of t1 relative to t2, mirroring the reverse
// orientation when only that one was reported.
func (m *ModelResult) Effect(t1, t2 string) (PairEstimate, bool) {
	if e, ok := m.Lookup(t1, t2); ok {
		return e, true
	}
	e, ok := m.Lookup(t2, t1)
	if !ok {
		return PairEstimate{}, false
	}
	return PairEstimate{Treat1: t1, Treat2: t2, TE: -e.TE, SE: e.SE, Lower: -e.Upper, Upper: -e.Lower}, true
}

func (m *ModelResult) buildIndex() {
	m.index = make(map[[2]string]int, len(m.Estimates))
	for i, e := range m.Estimates {
		m.index[[2]string{e.Treat1, e.Treat2}] = i
	}
}

// Heterogeneity summarizes between-study variation.
type Heterogeneity struct {
	Tau2   float64 `json:"tau2"`
	Tau    float64 `json:"tau"`
	I2     float64 `json:"I2"`
	Q      float64 `json:"Q"`
	DF     int     `json:"df"`
	PValue float64 `json:"pval_Q"`
}

// Result is the normalized output of one estimation. It is owned by the
// caller of [Adapter.Estimate] and must not be modified after it is
// returned.
type Result struct {
	Solver        string           `json:"solver"`
	Measure       contrast.Measure `json:"measure"`
	Reference     string           `json:"reference"`
	Treatments    []string         `json:"treatments"`
	Level         float64          `json:"level"`
	SmallValues   SmallValues      `json:"small_values"`
	Studies       int              `json:"n_studies"`
	Comparisons   int              `json:"n_comparisons"`
	Heterogeneity Heterogeneity    `json:"heterogeneity"`
	Fixed         *ModelResult     `json:"fixed,omitempty"`
	Random        *ModelResult     `json:"random,omitempty"`
}

// Model returns the estimates of model m, or nil when absent.
func (r *Result) Model(m Model) *ModelResult {
	switch m {
	case ModelFixed:
		return r.Fixed
	case ModelRandom:
		return r.Random
	}
	return nil
}

// Available lists the models present in the result.
func (r *Result) Available() []Model {
	var out []Model
	for _, m := range Models {
		if r.Model(m) != nil {
			out = append(out, m)
		}
	}
	return out
}

// TreatmentIndex returns the position of t in Treatments, or -1.
func (r *Result) TreatmentIndex(t string) int {
	for i, name := range r.Treatments {
		if name == t {
			return i
		}
	}
	return -1
}
