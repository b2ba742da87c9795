// Package estimatortest provides a deterministic solver for tests of code
// that consumes estimator results.
package estimatortest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/matzehuels/netmeta/pkg/estimator"
)

// FromEffects builds a consistent result for req. effects maps a treatment
// to its effect relative to req.Reference (missing treatments have effect
// 0), and every pair gets standard error se. Both models are filled; the
// random model has twice the variance of the fixed one.
func FromEffects(req estimator.Request, effects map[string]float64, se float64) *estimator.Result {
	res := &estimator.Result{
		Measure:     req.Measure,
		Reference:   req.Reference,
		Treatments:  append([]string(nil), req.Treatments...),
		Level:       req.Level,
		SmallValues: req.SmallValues,
		Comparisons: len(req.Contrasts),
		Heterogeneity: estimator.Heterogeneity{
			Tau2: se * se, Tau: se, I2: 0.5, Q: 1, DF: 1, PValue: 0.5,
		},
	}
	studies := make(map[string]bool)
	for _, c := range req.Contrasts {
		studies[c.Study] = true
	}
	res.Studies = len(studies)
	if res.Level == 0 {
		res.Level = estimator.DefaultLevel
	}
	if res.SmallValues == "" {
		res.SmallValues = estimator.DefaultSmallValues
	}

	ref := effects[req.Reference]
	model := func(se float64) *estimator.ModelResult {
		m := &estimator.ModelResult{}
		for i, t1 := range res.Treatments {
			for j, t2 := range res.Treatments {
				if i == j {
					continue
				}
				te := (effects[t1] - ref) - (effects[t2] - ref)
				lo, hi := estimator.ConfidenceInterval(te, se, res.Level)
				m.Estimates = append(m.Estimates, estimator.PairEstimate{
					Treat1: t1, Treat2: t2, TE: te, SE: se, Lower: lo, Upper: hi,
				})
			}
		}
		m.Probabilities = estimator.SuperiorityMatrix(m, res.Treatments, res.SmallValues)
		return m
	}
	res.Fixed = model(se)
	res.Random = model(se * 1.4142135623730951)
	return res
}

// Solver is a fake estimator.Solver. It returns FromEffects results unless
// Err is set, optionally after Delay, and counts its calls.
type Solver struct {
	Effects map[string]float64
	SE      float64
	Delay   time.Duration
	Err     error

	// Mutate, when set, edits the result before it is returned.
	Mutate func(*estimator.Result)

	// IgnoreContext makes the solver finish its delay even after ctx ends.
	IgnoreContext bool

	calls atomic.Int32
}

// Name implements estimator.Solver.
func (s *Solver) Name() string { return "fake" }

// Calls returns how many times Solve was invoked.
func (s *Solver) Calls() int { return int(s.calls.Load()) }

// Solve implements estimator.Solver.
func (s *Solver) Solve(ctx context.Context, req estimator.Request) (*estimator.Result, error) {
	s.calls.Add(1)
	if s.Delay > 0 {
		if s.IgnoreContext {
			time.Sleep(s.Delay)
		} else {
			select {
			case <-time.After(s.Delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if s.Err != nil {
		return nil, s.Err
	}
	se := s.SE
	if se == 0 {
		se = 0.2
	}
	res := FromEffects(req, s.Effects, se)
	if s.Mutate != nil {
		s.Mutate(res)
	}
	return res, nil
}
