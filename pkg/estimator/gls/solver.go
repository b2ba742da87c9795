package gls

import (
	"context"
	"io"
	"math"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/matzehuels/netmeta/pkg/errors"
	"github.com/matzehuels/netmeta/pkg/estimator"
)

// Solver is a native frequentist network meta-analysis solver.
type Solver struct {
	Logger *log.Logger
}

// New returns a solver. A nil logger discards output.
func New(logger *log.Logger) *Solver {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Solver{Logger: logger}
}

// Name implements estimator.Solver.
func (s *Solver) Name() string { return "gls" }

// system is the stacked contrast model y = X d + e with covariance V and
// heterogeneity structure B. d holds the basic parameters: the effect of
// every non-reference treatment relative to the reference.
type system struct {
	params []string
	pos    map[string]int
	y      *mat.VecDense
	x      *mat.Dense
	blocks []block
	offset []int
}

// fit is the GLS solution for a given tau2.
type fit struct {
	d   *mat.VecDense
	cov *mat.Dense
	w   *mat.Dense
}

// Solve implements estimator.Solver.
func (s *Solver) Solve(ctx context.Context, req estimator.Request) (*estimator.Result, error) {
	logger := s.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	level := req.Level
	if level == 0 {
		level = estimator.DefaultLevel
	}
	small := req.SmallValues
	if small == "" {
		small = estimator.DefaultSmallValues
	}

	blks, err := blocks(req.Contrasts)
	if err != nil {
		return nil, err
	}
	var uncorrelated []string
	for _, b := range blks {
		if b.uncorrelated {
			uncorrelated = append(uncorrelated, b.study)
		}
	}
	if len(uncorrelated) > 0 {
		logger.Warn("multi-arm studies have no cov_ref; their contrasts are fitted as independent",
			"studies", uncorrelated)
	}
	sys := newSystem(req.Treatments, req.Reference, blks)
	n, p := sys.y.Len(), len(sys.params)
	df := n - p
	if df < 0 {
		return nil, errors.New(errors.ErrCodeEstimationFailed, "%d independent contrasts cannot identify %d parameters", n, p)
	}
	logger.Debug("gls system", "rows", n, "params", p, "studies", len(blks))

	fixed, err := sys.solve(0)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := sys.q(fixed)
	tau2 := 0.0
	if df > 0 {
		if tr := sys.traceProjB(fixed); tr > 0 {
			tau2 = math.Max(0, (q-float64(df))/tr)
		}
	}

	random, err := sys.solve(tau2)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	het := estimator.Heterogeneity{Tau2: tau2, Tau: math.Sqrt(tau2), Q: q, DF: df, PValue: 1}
	if df > 0 {
		het.PValue = 1 - distuv.ChiSquared{K: float64(df)}.CDF(q)
		if q > 0 {
			het.I2 = math.Max(0, (q-float64(df))/q)
		}
	}
	logger.Debug("gls heterogeneity", "Q", q, "df", df, "tau2", tau2)

	res := &estimator.Result{
		Measure:       req.Measure,
		Reference:     req.Reference,
		Treatments:    append([]string(nil), req.Treatments...),
		Level:         level,
		SmallValues:   small,
		Studies:       len(blks),
		Comparisons:   len(req.Contrasts),
		Heterogeneity: het,
	}
	res.Fixed = sys.model(fixed, res.Treatments, level, small)
	res.Random = sys.model(random, res.Treatments, level, small)
	return res, nil
}

func newSystem(treatments []string, reference string, blks []block) *system {
	sys := &system{pos: make(map[string]int), blocks: blks}
	for _, t := range treatments {
		if t == reference {
			continue
		}
		sys.pos[t] = len(sys.params)
		sys.params = append(sys.params, t)
	}

	n := 0
	for _, b := range blks {
		sys.offset = append(sys.offset, n)
		n += len(b.rows)
	}
	sys.y = mat.NewVecDense(n, nil)
	sys.x = mat.NewDense(n, max(len(sys.params), 1), nil)

	for bi, b := range blks {
		for i, r := range b.rows {
			k := sys.offset[bi] + i
			sys.y.SetVec(k, r.te)
			if j, ok := sys.pos[r.t1]; ok {
				sys.x.Set(k, j, sys.x.At(k, j)+1)
			}
			if j, ok := sys.pos[r.t2]; ok {
				sys.x.Set(k, j, sys.x.At(k, j)-1)
			}
		}
	}
	return sys
}

// weights returns the block-diagonal inverse of V + tau2 B.
func (s *system) weights(tau2 float64) (*mat.Dense, error) {
	n := s.y.Len()
	w := mat.NewDense(n, n, nil)
	for bi, b := range s.blocks {
		k := len(b.rows)
		sigma := mat.NewSymDense(k, nil)
		sigma.AddSym(b.v, scaled(b.b, tau2))

		var chol mat.Cholesky
		if ok := chol.Factorize(sigma); !ok {
			return nil, errors.New(errors.ErrCodeEstimationFailed, "study %q: within-study covariance is not positive definite", b.study)
		}
		var inv mat.SymDense
		if err := chol.InverseTo(&inv); err != nil {
			return nil, errors.Wrap(errors.ErrCodeEstimationFailed, err, "study %q: invert covariance", b.study)
		}
		off := s.offset[bi]
		for i := range k {
			for j := range k {
				w.Set(off+i, off+j, inv.At(i, j))
			}
		}
	}
	return w, nil
}

func scaled(m *mat.SymDense, f float64) *mat.SymDense {
	var out mat.SymDense
	out.ScaleSym(f, m)
	return &out
}

// solve computes d = (X'WX)^-1 X'Wy and its covariance.
func (s *system) solve(tau2 float64) (*fit, error) {
	w, err := s.weights(tau2)
	if err != nil {
		return nil, err
	}
	var xtw mat.Dense
	xtw.Mul(s.x.T(), w)
	var info mat.Dense
	info.Mul(&xtw, s.x)

	var cov mat.Dense
	if err := cov.Inverse(&info); err != nil {
		return nil, errors.Wrap(errors.ErrCodeEstimationFailed, err, "information matrix is singular")
	}
	var xtwy mat.VecDense
	xtwy.MulVec(&xtw, s.y)
	var d mat.VecDense
	d.MulVec(&cov, &xtwy)
	return &fit{d: &d, cov: &cov, w: w}, nil
}

// q is the generalized Cochran statistic (y - Xd)' W (y - Xd).
func (s *system) q(f *fit) float64 {
	var e mat.VecDense
	e.MulVec(s.x, f.d)
	e.SubVec(s.y, &e)
	var we mat.VecDense
	we.MulVec(f.w, &e)
	return math.Max(0, mat.Dot(&e, &we))
}

// traceProjB returns tr(P B) with P = W - W X (X'WX)^-1 X' W, the
// denominator of the generalized DerSimonian-Laird estimator.
func (s *system) traceProjB(f *fit) float64 {
	var wx mat.Dense
	wx.Mul(f.w, s.x)
	var tmp mat.Dense
	tmp.Mul(&wx, f.cov)
	var proj mat.Dense
	proj.Mul(&tmp, wx.T())
	var p mat.Dense
	p.Sub(f.w, &proj)

	tr := 0.0
	for bi, b := range s.blocks {
		off := s.offset[bi]
		k := len(b.rows)
		for i := range k {
			for j := range k {
				tr += p.At(off+i, off+j) * b.b.At(j, i)
			}
		}
	}
	return tr
}

// model expands the basic parameters into every ordered pair.
func (s *system) model(f *fit, treatments []string, level float64, small estimator.SmallValues) *estimator.ModelResult {
	effect := func(t string) float64 {
		if j, ok := s.pos[t]; ok {
			return f.d.AtVec(j)
		}
		return 0
	}
	cov := func(a, b string) float64 {
		i, ok1 := s.pos[a]
		j, ok2 := s.pos[b]
		if !ok1 || !ok2 {
			return 0
		}
		return f.cov.At(i, j)
	}

	m := &estimator.ModelResult{}
	for _, t1 := range treatments {
		for _, t2 := range treatments {
			if t1 == t2 {
				continue
			}
			te := effect(t1) - effect(t2)
			v := cov(t1, t1) + cov(t2, t2) - 2*cov(t1, t2)
			se := math.Sqrt(math.Max(v, 0))
			lo, hi := estimator.ConfidenceInterval(te, se, level)
			m.Estimates = append(m.Estimates, estimator.PairEstimate{
				Treat1: t1, Treat2: t2, TE: te, SE: se, Lower: lo, Upper: hi,
			})
		}
	}
	m.Probabilities = estimator.SuperiorityMatrix(m, treatments, small)
	return m
}

// Ensure Solver implements estimator.Solver.
var _ estimator.Solver = (*Solver)(nil)
