package rscript

import (
	"math"

	"github.com/matzehuels/netmeta/pkg/contrast"
)

// Expand completes multi-arm studies for netmeta, which expects every
// pairwise comparison of a multi-arm study.
//
// A study whose contrasts all share Treat1 and carry CovRef is recognized as
// a set of baseline contrasts. For every pair of its comparators b and c the
// missing contrast is derived as TE(b, c) = TE(ref, c) - TE(ref, b) with
// variance var(ref, b) + var(ref, c) - 2 CovRef. Other studies are passed
// through unchanged.
func Expand(contrasts []contrast.PairwiseContrast) []contrast.PairwiseContrast {
	order := contrast.Studies(contrasts)
	byStudy := make(map[string][]contrast.PairwiseContrast, len(order))
	for _, c := range contrasts {
		byStudy[c.Study] = append(byStudy[c.Study], c)
	}

	out := make([]contrast.PairwiseContrast, 0, len(contrasts))
	for _, s := range order {
		cs := byStudy[s]
		out = append(out, cs...)
		if !isBaseline(cs) {
			continue
		}
		for i := 0; i < len(cs); i++ {
			for j := i + 1; j < len(cs); j++ {
				b, c := cs[i], cs[j]
				v := b.SeTE*b.SeTE + c.SeTE*c.SeTE - 2*b.CovRef
				out = append(out, contrast.PairwiseContrast{
					Study:  s,
					Treat1: b.Treat2,
					Treat2: c.Treat2,
					TE:     c.TE - b.TE,
					SeTE:   math.Sqrt(math.Max(v, 0)),
				})
			}
		}
	}
	return out
}

func isBaseline(cs []contrast.PairwiseContrast) bool {
	if len(cs) < 2 {
		return false
	}
	ref, cov := cs[0].Treat1, cs[0].CovRef
	if cov <= 0 {
		return false
	}
	for _, c := range cs {
		if c.Treat1 != ref || c.CovRef != cov {
			return false
		}
	}
	return true
}
