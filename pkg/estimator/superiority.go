package estimator

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Superiority returns the probability that the first treatment of a pair is
// better than the second, given the pair's network estimate and standard
// error under a normal approximation. A zero standard error yields 1, 0 or
// 0.5 depending on the sign of te.
func Superiority(te, se float64, small SmallValues) float64 {
	if small == SmallValuesDesirable {
		te = -te
	}
	if se == 0 {
		switch {
		case te > 0:
			return 1
		case te < 0:
			return 0
		}
		return 0.5
	}
	return distuv.UnitNormal.CDF(te / se)
}

// SuperiorityMatrix fills the probability matrix of m over treatments.
// Pairs without an estimate are left as NaN so result validation rejects
// them.
func SuperiorityMatrix(m *ModelResult, treatments []string, small SmallValues) [][]float64 {
	n := len(treatments)
	p := make([][]float64, n)
	for i := range p {
		p[i] = make([]float64, n)
		for j := range p[i] {
			if i == j {
				continue
			}
			e, ok := m.Effect(treatments[i], treatments[j])
			if !ok {
				p[i][j] = math.NaN()
				continue
			}
			p[i][j] = Superiority(e.TE, e.SE, small)
		}
	}
	return p
}

// ConfidenceInterval returns the two-sided normal interval of te at level.
func ConfidenceInterval(te, se, level float64) (float64, float64) {
	z := distuv.UnitNormal.Quantile(1 - (1-level)/2)
	return te - z*se, te + z*se
}
