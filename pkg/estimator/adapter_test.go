package estimator_test

import (
	"context"
	stderrors "errors"
	"math"
	"testing"
	"time"

	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
	"github.com/matzehuels/netmeta/pkg/estimator"
	"github.com/matzehuels/netmeta/pkg/estimator/estimatortest"
)

var triangle = []contrast.PairwiseContrast{
	{Study: "S1", Treat1: "A", Treat2: "B", TE: 0.5, SeTE: 0.2},
	{Study: "S2", Treat1: "B", Treat2: "C", TE: 0.3, SeTE: 0.25},
	{Study: "S3", Treat1: "A", Treat2: "C", TE: 0.7, SeTE: 0.3},
}

func TestEstimate(t *testing.T) {
	s := &estimatortest.Solver{Effects: map[string]float64{"B": -0.5, "C": -0.8}}
	a := estimator.NewAdapter(s, estimator.Options{}, nil)

	res, err := a.Estimate(context.Background(), triangle, contrast.OddsRatio, "A")
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if s.Calls() != 1 {
		t.Errorf("solver calls = %d, want 1", s.Calls())
	}
	if res.Solver != "fake" {
		t.Errorf("Solver = %q, want fake", res.Solver)
	}
	if got := res.Available(); len(got) != 2 {
		t.Errorf("Available() = %v, want both models", got)
	}
	e, ok := res.Random.Lookup("B", "A")
	if !ok {
		t.Fatal("Lookup(B, A) not found")
	}
	if math.Abs(e.TE-(-0.5)) > 1e-12 {
		t.Errorf("TE(B vs A) = %v, want -0.5", e.TE)
	}
}

func TestEstimateUnknownReference(t *testing.T) {
	s := &estimatortest.Solver{}
	a := estimator.NewAdapter(s, estimator.Options{}, nil)

	_, err := a.Estimate(context.Background(), triangle, contrast.OddsRatio, "Z")
	if !errors.Is(err, errors.ErrCodeUnknownReference) {
		t.Fatalf("Estimate() error = %v, want UNKNOWN_REFERENCE", err)
	}
	if s.Calls() != 0 {
		t.Errorf("solver called %d times before reference check", s.Calls())
	}
}

func TestEstimateSolverFailureIsNotRetried(t *testing.T) {
	s := &estimatortest.Solver{Err: stderrors.New("singular design matrix")}
	a := estimator.NewAdapter(s, estimator.Options{}, nil)

	_, err := a.Estimate(context.Background(), triangle, contrast.OddsRatio, "A")
	if !errors.Is(err, errors.ErrCodeEstimationFailed) {
		t.Fatalf("Estimate() error = %v, want ESTIMATION_FAILED", err)
	}
	if got := errors.UserMessage(err); got != "solver fake failed: singular design matrix" {
		t.Errorf("UserMessage() = %q", got)
	}
	if s.Calls() != 1 {
		t.Errorf("solver calls = %d, want 1", s.Calls())
	}
}

func TestEstimateTimeout(t *testing.T) {
	s := &estimatortest.Solver{Delay: time.Second, IgnoreContext: true}
	a := estimator.NewAdapter(s, estimator.Options{Timeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	res, err := a.Estimate(context.Background(), triangle, contrast.OddsRatio, "A")
	if !errors.Is(err, errors.ErrCodeEstimationTimeout) {
		t.Fatalf("Estimate() error = %v, want ESTIMATION_TIMEOUT", err)
	}
	if res != nil {
		t.Error("Estimate() returned a partial result on timeout")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Estimate() waited %s for a solver past its deadline", elapsed)
	}
}

// overrunSolver answers successfully, but only once its context has ended,
// so its result and the deadline arrive together.
type overrunSolver struct{ estimatortest.Solver }

func (s *overrunSolver) Solve(ctx context.Context, req estimator.Request) (*estimator.Result, error) {
	<-ctx.Done()
	return s.Solver.Solve(context.Background(), req)
}

func TestEstimateDiscardsLateSuccess(t *testing.T) {
	s := &overrunSolver{}
	a := estimator.NewAdapter(s, estimator.Options{Timeout: 5 * time.Millisecond}, nil)

	for i := 0; i < 20; i++ {
		res, err := a.Estimate(context.Background(), triangle, contrast.OddsRatio, "A")
		if !errors.Is(err, errors.ErrCodeEstimationTimeout) {
			t.Fatalf("run %d: Estimate() error = %v, want ESTIMATION_TIMEOUT", i, err)
		}
		if res != nil {
			t.Fatalf("run %d: Estimate() accepted a result delivered after the deadline", i)
		}
	}
}

func TestEstimateCancel(t *testing.T) {
	s := &estimatortest.Solver{Delay: time.Second}
	a := estimator.NewAdapter(s, estimator.Options{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	res, err := a.Estimate(ctx, triangle, contrast.OddsRatio, "A")
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("Estimate() error = %v, want context.Canceled", err)
	}
	if res != nil {
		t.Error("Estimate() returned a result after cancellation")
	}
}

func TestEstimateInvalidResult(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*estimator.Result)
	}{
		{"nil random", func(r *estimator.Result) { r.Random = nil }},
		{"nan effect", func(r *estimator.Result) { r.Fixed.Estimates[0].TE = math.NaN() }},
		{"negative se", func(r *estimator.Result) { r.Fixed.Estimates[0].SE = -1 }},
		{"inverted ci", func(r *estimator.Result) {
			e := &r.Fixed.Estimates[0]
			e.Lower, e.Upper = e.Upper+1, e.Lower
		}},
		{"probability above one", func(r *estimator.Result) { r.Random.Probabilities[0][1] = 1.2 }},
		{"missing pair", func(r *estimator.Result) {
			var kept []estimator.PairEstimate
			for _, e := range r.Fixed.Estimates {
				if !(e.Treat1 == "A" && e.Treat2 == "C") && !(e.Treat1 == "C" && e.Treat2 == "A") {
					kept = append(kept, e)
				}
			}
			r.Fixed.Estimates = kept
		}},
		{"extra treatment", func(r *estimator.Result) { r.Treatments = append(r.Treatments, "D") }},
		{"wrong measure", func(r *estimator.Result) { r.Measure = contrast.RiskRatio }},
		{"negative tau2", func(r *estimator.Result) { r.Heterogeneity.Tau2 = -0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &estimatortest.Solver{Effects: map[string]float64{"B": 0.2}, Mutate: tt.mutate}
			a := estimator.NewAdapter(s, estimator.Options{}, nil)
			_, err := a.Estimate(context.Background(), triangle, contrast.OddsRatio, "A")
			if !errors.Is(err, errors.ErrCodeInvalidResult) {
				t.Errorf("Estimate() error = %v, want INVALID_RESULT", err)
			}
		})
	}
}

func TestEstimateSingleModel(t *testing.T) {
	s := &estimatortest.Solver{Mutate: func(r *estimator.Result) { r.Fixed = nil }}
	a := estimator.NewAdapter(s, estimator.Options{Models: []estimator.Model{estimator.ModelRandom}}, nil)

	res, err := a.Estimate(context.Background(), triangle, contrast.OddsRatio, "A")
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if res.Fixed != nil || res.Random == nil {
		t.Errorf("models = %v, want only random", res.Available())
	}
}

func TestOptionsValidation(t *testing.T) {
	tests := []struct {
		name string
		opts estimator.Options
	}{
		{"negative timeout", estimator.Options{Timeout: -time.Second}},
		{"level above one", estimator.Options{Level: 1.5}},
		{"bad small values", estimator.Options{SmallValues: "good"}},
		{"bad model", estimator.Options{Models: []estimator.Model{"bayesian"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			if err := opts.ValidateAndSetDefaults(); !errors.Is(err, errors.ErrCodeValidation) {
				t.Errorf("ValidateAndSetDefaults() error = %v, want VALIDATION_ERROR", err)
			}
		})
	}

	var opts estimator.Options
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("zero Options error = %v", err)
	}
	if opts.Timeout != estimator.DefaultTimeout || opts.Level != estimator.DefaultLevel ||
		opts.SmallValues != estimator.SmallValuesUndesirable || len(opts.Models) != 2 {
		t.Errorf("defaults = %+v", opts)
	}
}

func TestSuperiority(t *testing.T) {
	tests := []struct {
		te, se float64
		small  estimator.SmallValues
		want   float64
	}{
		{0, 1, estimator.SmallValuesUndesirable, 0.5},
		{1.959963984540054, 1, estimator.SmallValuesUndesirable, 0.975},
		{1.959963984540054, 1, estimator.SmallValuesDesirable, 0.025},
		{0.3, 0, estimator.SmallValuesUndesirable, 1},
		{0.3, 0, estimator.SmallValuesDesirable, 0},
		{0, 0, estimator.SmallValuesDesirable, 0.5},
	}
	for _, tt := range tests {
		got := estimator.Superiority(tt.te, tt.se, tt.small)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Superiority(%v, %v, %s) = %v, want %v", tt.te, tt.se, tt.small, got, tt.want)
		}
	}

	lo, hi := estimator.ConfidenceInterval(0, 1, 0.95)
	if math.Abs(lo+1.959963984540054) > 1e-9 || math.Abs(hi-1.959963984540054) > 1e-9 {
		t.Errorf("ConfidenceInterval(0, 1, 0.95) = (%v, %v)", lo, hi)
	}
}

func TestEffectMirrors(t *testing.T) {
	m := &estimator.ModelResult{Estimates: []estimator.PairEstimate{
		{Treat1: "A", Treat2: "B", TE: 0.4, SE: 0.1, Lower: 0.2, Upper: 0.6},
	}}
	e, ok := m.Effect("B", "A")
	if !ok {
		t.Fatal("Effect(B, A) not found")
	}
	if e.TE != -0.4 || e.SE != 0.1 || e.Lower != -0.6 || e.Upper != -0.2 {
		t.Errorf("Effect(B, A) = %+v", e)
	}
	if _, ok := m.Lookup("B", "A"); ok {
		t.Error("Lookup(B, A) should not mirror")
	}
}

func TestParseModel(t *testing.T) {
	for in, want := range map[string]estimator.Model{"fixed": estimator.ModelFixed, "Common": estimator.ModelFixed, "random": estimator.ModelRandom} {
		got, err := estimator.ParseModel(in)
		if err != nil || got != want {
			t.Errorf("ParseModel(%q) = %q, %v, want %q", in, got, err, want)
		}
	}
	if _, err := estimator.ParseModel("mixed"); err == nil {
		t.Error("ParseModel(mixed) error = nil, want error")
	}
}
