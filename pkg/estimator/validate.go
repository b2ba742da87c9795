package estimator

import (
	"math"
	"slices"

	"github.com/matzehuels/netmeta/pkg/errors"
)

// validateResult checks a solver result against the output contract:
// the treatment set matches the request, every required model is present,
// every unordered pair has an estimate with finite values, SE >= 0 and
// lower <= upper, and every probability lies in [0, 1].
func validateResult(res *Result, req Request, models []Model) error {
	if res == nil {
		return errors.InvalidResult("solver returned no result")
	}

	got := slices.Sorted(slices.Values(res.Treatments))
	if !slices.Equal(got, req.Treatments) {
		return errors.InvalidResult("result treatments %v do not match network treatments %v", res.Treatments, req.Treatments)
	}
	if res.Measure != req.Measure {
		return errors.InvalidResult("result measure %q does not match requested %q", res.Measure, req.Measure)
	}
	if res.Reference != req.Reference {
		return errors.InvalidResult("result reference %q does not match requested %q", res.Reference, req.Reference)
	}

	for _, m := range models {
		mr := res.Model(m)
		if mr == nil {
			return errors.InvalidResult("result has no %s effects estimates", m)
		}
		if err := validateModel(mr, res.Treatments, m); err != nil {
			return err
		}
	}

	h := res.Heterogeneity
	for name, v := range map[string]float64{"tau2": h.Tau2, "tau": h.Tau, "I2": h.I2, "Q": h.Q} {
		if !finite(v) || v < 0 {
			return errors.InvalidResult("heterogeneity %s must be a non-negative number, got %v", name, v)
		}
	}
	if h.DF < 0 {
		return errors.InvalidResult("heterogeneity df must be non-negative, got %d", h.DF)
	}
	if !finite(h.PValue) || h.PValue < 0 || h.PValue > 1 {
		return errors.InvalidResult("heterogeneity p-value must be in [0, 1], got %v", h.PValue)
	}
	return nil
}

func validateModel(mr *ModelResult, treatments []string, m Model) error {
	known := make(map[string]bool, len(treatments))
	for _, t := range treatments {
		known[t] = true
	}
	for _, e := range mr.Estimates {
		if !known[e.Treat1] || !known[e.Treat2] || e.Treat1 == e.Treat2 {
			return errors.InvalidResult("%s: estimate for unexpected pair %s vs %s", m, e.Treat1, e.Treat2)
		}
		if !finite(e.TE) || !finite(e.SE) || !finite(e.Lower) || !finite(e.Upper) {
			return errors.InvalidResult("%s: %s vs %s has non-finite values", m, e.Treat1, e.Treat2)
		}
		if e.SE < 0 {
			return errors.InvalidResult("%s: %s vs %s has negative standard error %v", m, e.Treat1, e.Treat2, e.SE)
		}
		if e.Lower > e.Upper {
			return errors.InvalidResult("%s: %s vs %s has lower bound %v above upper bound %v", m, e.Treat1, e.Treat2, e.Lower, e.Upper)
		}
	}

	for i, t1 := range treatments {
		for _, t2 := range treatments[i+1:] {
			if _, ok := mr.Effect(t1, t2); !ok {
				return errors.InvalidResult("%s: missing estimate for %s vs %s", m, t1, t2)
			}
		}
	}

	n := len(treatments)
	if len(mr.Probabilities) != n {
		return errors.InvalidResult("%s: probability matrix has %d rows, want %d", m, len(mr.Probabilities), n)
	}
	for i, row := range mr.Probabilities {
		if len(row) != n {
			return errors.InvalidResult("%s: probability row %d has %d columns, want %d", m, i, len(row), n)
		}
		for j, p := range row {
			if i == j {
				continue
			}
			if !finite(p) || p < 0 || p > 1 {
				return errors.InvalidResult("%s: probability that %s beats %s is %v, outside [0, 1]",
					m, treatments[i], treatments[j], p)
			}
		}
	}
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
