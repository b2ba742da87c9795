// Package ranking ranks treatments by P-score.
//
// The P-score of a treatment is the mean, over every other treatment, of the
// probability that it is better. It is the frequentist analogue of SUCRA and
// lies in [0, 1]; a treatment certain to beat every competitor scores 1.
package ranking

import (
	"cmp"
	"math"
	"slices"

	"github.com/montanaflynn/stats"

	"github.com/matzehuels/netmeta/pkg/errors"
	"github.com/matzehuels/netmeta/pkg/estimator"
)

// Entry is one ranked treatment.
type Entry struct {
	Treatment string  `json:"treatment"`
	PScore    float64 `json:"pscore"`
	Rank      int     `json:"rank"`
}

// Rank computes P-scores from the superiority probabilities of model m.
//
// Entries are sorted by descending P-score with ties broken by treatment
// name, and ranked 1..n without shared ranks. A probability or P-score
// outside [0, 1] is reported as INVALID_RESULT, never clamped.
func Rank(res *estimator.Result, m estimator.Model) ([]Entry, error) {
	if res == nil {
		return nil, errors.InvalidResult("no estimation result")
	}
	mr := res.Model(m)
	if mr == nil {
		return nil, errors.InvalidResult("result has no %s effects estimates", m)
	}
	n := len(res.Treatments)
	if n < 2 {
		return nil, errors.InvalidResult("ranking needs at least two treatments, got %d", n)
	}
	if len(mr.Probabilities) != n {
		return nil, errors.InvalidResult("%s: probability matrix has %d rows, want %d", m, len(mr.Probabilities), n)
	}

	entries := make([]Entry, n)
	for i, t := range res.Treatments {
		row := mr.Probabilities[i]
		if len(row) != n {
			return nil, errors.InvalidResult("%s: probability row %q has %d columns, want %d", m, t, len(row), n)
		}
		probs := make(stats.Float64Data, 0, n-1)
		for j, p := range row {
			if i == j {
				continue
			}
			if !inUnit(p) {
				return nil, errors.InvalidResult("%s: probability that %s beats %s is %v, outside [0, 1]", m, t, res.Treatments[j], p)
			}
			probs = append(probs, p)
		}
		score, err := stats.Mean(probs)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidResult, err, "%s: P-score of %s", m, t)
		}
		if !inUnit(score) {
			return nil, errors.InvalidResult("%s: P-score of %s is %v, outside [0, 1]", m, t, score)
		}
		entries[i] = Entry{Treatment: t, PScore: score}
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.PScore, a.PScore); c != 0 {
			return c
		}
		return cmp.Compare(a.Treatment, b.Treatment)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// RankModels ranks every model present in res.
func RankModels(res *estimator.Result) (map[estimator.Model][]Entry, error) {
	if res == nil {
		return nil, errors.InvalidResult("no estimation result")
	}
	out := make(map[estimator.Model][]Entry)
	for _, m := range res.Available() {
		entries, err := Rank(res, m)
		if err != nil {
			return nil, err
		}
		out[m] = entries
	}
	return out, nil
}

// Total returns the sum of the P-scores of entries. For a complete set of
// treatments whose probabilities satisfy P(i, j) + P(j, i) = 1 it equals
// n/2.
func Total(entries []Entry) float64 {
	scores := make(stats.Float64Data, len(entries))
	for i, e := range entries {
		scores[i] = e.PScore
	}
	sum, _ := stats.Sum(scores)
	return sum
}

func inUnit(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}
