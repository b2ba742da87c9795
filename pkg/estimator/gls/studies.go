package gls

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
)

// row is one contrast of a study block: the effect of t1 relative to t2.
type row struct {
	t1, t2 string
	te     float64
}

// block holds the linearly independent contrasts of one study with their
// within-study covariance V and heterogeneity structure B.
type block struct {
	study string
	rows  []row
	v     *mat.SymDense
	b     *mat.SymDense

	// uncorrelated marks a multi-arm study fitted without the covariance
	// of its shared arm because no usable cov_ref was given.
	uncorrelated bool
}

// blocks groups contrasts by study and reduces each study to independent
// contrasts.
func blocks(contrasts []contrast.PairwiseContrast) ([]block, error) {
	order := contrast.Studies(contrasts)
	byStudy := make(map[string][]contrast.PairwiseContrast, len(order))
	for _, c := range contrasts {
		byStudy[c.Study] = append(byStudy[c.Study], c)
	}

	out := make([]block, 0, len(order))
	for _, s := range order {
		b, err := reduce(s, byStudy[s])
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// reduce turns the contrasts of one study into a block.
//
// A study whose contrasts all share one treatment is a star: its contrasts
// are oriented against that treatment and share its arm variance as
// covariance. A study reporting every pair of its k treatments is reduced
// to the k-1 contrasts against its first treatment, with arm variances
// recovered from the pairwise variances. Anything else is treated as
// independent two-arm comparisons.
func reduce(study string, cs []contrast.PairwiseContrast) (block, error) {
	seen := make(map[[2]string]bool, len(cs))
	for _, c := range cs {
		a, b := c.Treat1, c.Treat2
		if b < a {
			a, b = b, a
		}
		if seen[[2]string{a, b}] {
			return block{}, errors.Validation("study %q compares %s and %s more than once", study, a, b)
		}
		seen[[2]string{a, b}] = true
	}

	if len(cs) == 1 {
		return independent(study, cs), nil
	}
	if base, ok := commonTreatment(cs); ok {
		return star(study, cs, base), nil
	}
	if arms, ok := completeSet(cs); ok {
		return decompose(study, cs, arms)
	}
	return independent(study, cs), nil
}

func independent(study string, cs []contrast.PairwiseContrast) block {
	n := len(cs)
	blk := block{study: study, v: mat.NewSymDense(n, nil), b: mat.NewSymDense(n, nil)}
	for i, c := range cs {
		blk.rows = append(blk.rows, row{t1: c.Treat1, t2: c.Treat2, te: c.TE})
		blk.v.SetSym(i, i, c.SeTE*c.SeTE)
		blk.b.SetSym(i, i, 1)
	}
	return blk
}

// commonTreatment returns the treatment present in every contrast, if the
// contrasts otherwise name distinct treatments.
func commonTreatment(cs []contrast.PairwiseContrast) (string, bool) {
	for _, cand := range []string{cs[0].Treat1, cs[0].Treat2} {
		others := make(map[string]bool, len(cs))
		ok := true
		for _, c := range cs {
			var other string
			switch cand {
			case c.Treat1:
				other = c.Treat2
			case c.Treat2:
				other = c.Treat1
			default:
				ok = false
			}
			if !ok || others[other] {
				ok = false
				break
			}
			others[other] = true
		}
		if ok {
			return cand, true
		}
	}
	return "", false
}

func star(study string, cs []contrast.PairwiseContrast, base string) block {
	n := len(cs)
	blk := block{study: study, v: mat.NewSymDense(n, nil), b: mat.NewSymDense(n, nil)}

	// The shared arm variance is only known when every contrast was built
	// against base as Treat1.
	cov := cs[0].CovRef
	for _, c := range cs {
		if c.Treat1 != base || c.CovRef != cov {
			cov = 0
			break
		}
	}
	blk.uncorrelated = n > 1 && cov == 0

	for i, c := range cs {
		r := row{t1: base, t2: c.Treat2, te: c.TE}
		if c.Treat1 != base {
			r = row{t1: base, t2: c.Treat1, te: -c.TE}
		}
		blk.rows = append(blk.rows, r)
		for j := range n {
			if i == j {
				blk.v.SetSym(i, i, c.SeTE*c.SeTE)
				blk.b.SetSym(i, i, 1)
			} else if j > i {
				blk.v.SetSym(i, j, cov)
				blk.b.SetSym(i, j, 0.5)
			}
		}
	}
	return blk
}

// completeSet reports whether cs contains every pair of its treatments and
// returns the treatments in first-appearance order.
func completeSet(cs []contrast.PairwiseContrast) ([]string, bool) {
	var arms []string
	seen := make(map[string]bool)
	for _, c := range cs {
		for _, t := range []string{c.Treat1, c.Treat2} {
			if !seen[t] {
				seen[t] = true
				arms = append(arms, t)
			}
		}
	}
	k := len(arms)
	return arms, k >= 3 && len(cs) == k*(k-1)/2
}

// decompose solves var(i,j) = s_i + s_j for the arm variances by least
// squares and rebuilds the study as a star around its first treatment.
func decompose(study string, cs []contrast.PairwiseContrast, arms []string) (block, error) {
	k := len(arms)
	pos := make(map[string]int, k)
	for i, t := range arms {
		pos[t] = i
	}

	a := mat.NewDense(len(cs), k, nil)
	y := mat.NewVecDense(len(cs), nil)
	for r, c := range cs {
		a.Set(r, pos[c.Treat1], 1)
		a.Set(r, pos[c.Treat2], 1)
		y.SetVec(r, c.SeTE*c.SeTE)
	}
	var s mat.VecDense
	if err := s.SolveVec(a, y); err != nil {
		return block{}, errors.Wrap(errors.ErrCodeEstimationFailed, err, "study %q: cannot recover arm variances", study)
	}

	base := arms[0]
	minVar := math.Inf(1)
	var baseline []contrast.PairwiseContrast
	for _, c := range cs {
		if c.Treat1 != base && c.Treat2 != base {
			continue
		}
		oriented := c
		if c.Treat1 != base {
			oriented = contrast.PairwiseContrast{Study: c.Study, Treat1: base, Treat2: c.Treat1, TE: -c.TE, SeTE: c.SeTE}
		}
		minVar = min(minVar, c.SeTE*c.SeTE)
		baseline = append(baseline, oriented)
	}

	// Keep the covariance inside the range that leaves V positive definite.
	cov := math.Max(0, math.Min(s.AtVec(0), 0.99*minVar))
	for i := range baseline {
		baseline[i].CovRef = cov
	}
	blk := star(study, baseline, base)
	blk.uncorrelated = false
	return blk, nil
}
