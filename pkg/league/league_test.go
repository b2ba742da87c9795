package league

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
	"github.com/matzehuels/netmeta/pkg/estimator"
	"github.com/matzehuels/netmeta/pkg/estimator/estimatortest"
)

func result(t *testing.T) *estimator.Result {
	t.Helper()
	cs := []contrast.PairwiseContrast{
		{Study: "S1", Treat1: "A", Treat2: "B", TE: 0.5, SeTE: 0.2},
		{Study: "S2", Treat1: "A", Treat2: "C", TE: 0.8, SeTE: 0.25},
		{Study: "S3", Treat1: "B", Treat2: "C", TE: 0.3, SeTE: 0.22},
	}
	req := estimator.Request{
		Contrasts:  cs,
		Measure:    contrast.OddsRatio,
		Reference:  "A",
		Treatments: contrast.Treatments(cs),
	}
	return estimatortest.FromEffects(req, map[string]float64{"B": -0.5, "C": -0.8}, 0.2)
}

// upperOnly keeps the estimates with Treat1 < Treat2.
func upperOnly(mr *estimator.ModelResult) {
	var kept []estimator.PairEstimate
	for _, e := range mr.Estimates {
		if e.Treat1 < e.Treat2 {
			kept = append(kept, e)
		}
	}
	mr.Estimates = kept
}

func TestAssemble(t *testing.T) {
	res := result(t)
	tbl, err := Assemble(res, nil)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, tbl.Treatments); diff != "" {
		t.Errorf("Treatments mismatch (-want +got):\n%s", diff)
	}
	if got := tbl.Models(); len(got) != 2 {
		t.Errorf("Models() = %v, want fixed and random", got)
	}

	ab := tbl.Cell(estimator.ModelFixed, "A", "B")
	if ab == nil || math.Abs(ab.TE-0.5) > 1e-12 || ab.SE != 0.2 {
		t.Errorf("Cell(fixed, A, B) = %+v, want TE 0.5 SE 0.2", ab)
	}
	if c := tbl.Cell(estimator.ModelRandom, "B", "B"); c != nil {
		t.Errorf("Cell(random, B, B) = %+v, want nil", c)
	}
	if c := tbl.Cell(estimator.ModelRandom, "A", "Z"); c != nil {
		t.Errorf("Cell(random, A, Z) = %+v, want nil", c)
	}
}

func TestAssembleAntiSymmetry(t *testing.T) {
	res := result(t)
	upperOnly(res.Fixed)

	tbl, err := Assemble(res, nil)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	for _, m := range tbl.Models() {
		mat := tbl.Model(m)
		for i := range mat {
			if mat[i][i] != nil {
				t.Errorf("%s: diagonal %d is %+v, want nil", m, i, mat[i][i])
			}
			for j := range mat {
				if i == j {
					continue
				}
				a, b := mat[i][j], mat[j][i]
				if math.Abs(a.TE+b.TE) > 1e-12 {
					t.Errorf("%s: TE(%d,%d) = %v, TE(%d,%d) = %v", m, i, j, a.TE, j, i, b.TE)
				}
				if a.SE != b.SE {
					t.Errorf("%s: SE(%d,%d) = %v, SE(%d,%d) = %v", m, i, j, a.SE, j, i, b.SE)
				}
				if math.Abs(a.Lower+b.Upper) > 1e-12 {
					t.Errorf("%s: Lower(%d,%d) = %v, Upper(%d,%d) = %v", m, i, j, a.Lower, j, i, b.Upper)
				}
			}
		}
	}
}

func TestAssembleOrder(t *testing.T) {
	tbl, err := Assemble(result(t), []string{"C", "A"})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if got := tbl.Fixed[0][1]; math.Abs(got.TE+0.8) > 1e-12 {
		t.Errorf("C vs A TE = %v, want -0.8", got.TE)
	}
	if len(tbl.Random) != 2 {
		t.Errorf("len(Random) = %d, want 2", len(tbl.Random))
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*estimator.Result)
		treatments []string
		code       errors.Code
	}{
		{
			name:       "unknown treatment",
			treatments: []string{"A", "Z"},
			code:       errors.ErrCodeValidation,
		},
		{
			name:       "duplicate treatment",
			treatments: []string{"A", "A"},
			code:       errors.ErrCodeValidation,
		},
		{
			name: "not anti-symmetric",
			mutate: func(r *estimator.Result) {
				for i, e := range r.Random.Estimates {
					if e.Treat1 == "B" && e.Treat2 == "A" {
						r.Random.Estimates[i].TE = 0.5
					}
				}
			},
			code: errors.ErrCodeInvalidResult,
		},
		{
			name: "asymmetric SE",
			mutate: func(r *estimator.Result) {
				r.Fixed.Estimates[0].SE = 0.3
			},
			code: errors.ErrCodeInvalidResult,
		},
		{
			name: "missing pair",
			mutate: func(r *estimator.Result) {
				var kept []estimator.PairEstimate
				for _, e := range r.Fixed.Estimates {
					if (e.Treat1 == "B" || e.Treat2 == "B") && (e.Treat1 == "C" || e.Treat2 == "C") {
						continue
					}
					kept = append(kept, e)
				}
				r.Fixed.Estimates = kept
			},
			code: errors.ErrCodeInvalidResult,
		},
		{
			name: "no models",
			mutate: func(r *estimator.Result) {
				r.Fixed, r.Random = nil, nil
			},
			code: errors.ErrCodeInvalidResult,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := result(t)
			if tt.mutate != nil {
				tt.mutate(res)
			}
			_, err := Assemble(res, tt.treatments)
			if !errors.Is(err, tt.code) {
				t.Errorf("Assemble() error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestNatural(t *testing.T) {
	tbl, err := Assemble(result(t), nil)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	nat := tbl.Natural()
	if !nat.NaturalScale || tbl.NaturalScale {
		t.Errorf("NaturalScale = %v (source %v), want true (false)", nat.NaturalScale, tbl.NaturalScale)
	}

	ab, ba := nat.Cell(estimator.ModelFixed, "A", "B"), nat.Cell(estimator.ModelFixed, "B", "A")
	if want := math.Exp(0.5); math.Abs(ab.TE-want) > 1e-12 {
		t.Errorf("OR(A, B) = %v, want %v", ab.TE, want)
	}
	if math.Abs(ab.TE*ba.TE-1) > 1e-12 {
		t.Errorf("OR(A, B) * OR(B, A) = %v, want 1", ab.TE*ba.TE)
	}
	if math.Abs(ab.Lower*ba.Upper-1) > 1e-12 {
		t.Errorf("Lower(A, B) * Upper(B, A) = %v, want 1", ab.Lower*ba.Upper)
	}
	if ab.SE != 0.2 {
		t.Errorf("SE = %v, want 0.2 on the working scale", ab.SE)
	}

	// Transforming twice is a no-op.
	if diff := cmp.Diff(nat, nat.Natural()); diff != "" {
		t.Errorf("Natural() not idempotent (-once +twice):\n%s", diff)
	}
	// The source table is untouched.
	if got := tbl.Cell(estimator.ModelFixed, "A", "B").TE; math.Abs(got-0.5) > 1e-12 {
		t.Errorf("source TE = %v, want 0.5", got)
	}
}

func TestNaturalAdditiveMeasure(t *testing.T) {
	res := result(t)
	res.Measure = contrast.MeanDifference
	tbl, err := Assemble(res, nil)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	nat := tbl.Natural()
	if nat.NaturalScale {
		t.Error("NaturalScale = true for MD, want false")
	}
	if diff := cmp.Diff(tbl, nat); diff != "" {
		t.Errorf("Natural() changed an MD table (-want +got):\n%s", diff)
	}
}
