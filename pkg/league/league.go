// Package league assembles network estimates into a league table: the full
// treatment by treatment matrix of pairwise effects for each model.
//
// Cell (i, j) of a model holds the effect of treatment i relative to
// treatment j. On the working scale the matrix is anti-symmetric in TE and
// symmetric in SE; the diagonal is empty. For ratio measures, [Table.Natural]
// returns the back-transformed table, which is reciprocal instead.
package league

import (
	"math"
	"slices"

	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
	"github.com/matzehuels/netmeta/pkg/estimator"
)

// Tolerance bounds the disagreement allowed between the two orientations of
// a pair when a solver reports both.
const Tolerance = 1e-8

// Cell is one pairwise comparison.
type Cell struct {
	TE    float64 `json:"TE"`
	SE    float64 `json:"seTE"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Matrix is a square matrix of cells indexed like Table.Treatments. Diagonal
// entries are nil.
type Matrix [][]*Cell

// Table is a league table.
type Table struct {
	Treatments []string         `json:"treatments"`
	Measure    contrast.Measure `json:"measure"`

	// NaturalScale reports whether ratio measures have been back-transformed
	// with exp. SE always stays on the working scale.
	NaturalScale bool `json:"natural_scale,omitempty"`

	Fixed  Matrix `json:"fixed,omitempty"`
	Random Matrix `json:"random,omitempty"`
}

// Assemble builds the league table of res for treatments, in that order. An
// empty treatments list selects every treatment of the result.
//
// Estimates are taken as reported, including indirect ones. A pair reported
// in one orientation only is mirrored by negation. A pair reported in both
// orientations must be anti-symmetric in TE and symmetric in SE, otherwise
// an INVALID_RESULT error is returned.
func Assemble(res *estimator.Result, treatments []string) (*Table, error) {
	if res == nil {
		return nil, errors.InvalidResult("no estimation result")
	}
	if len(treatments) == 0 {
		treatments = res.Treatments
	}
	seen := make(map[string]bool, len(treatments))
	for _, t := range treatments {
		if res.TreatmentIndex(t) < 0 {
			return nil, errors.Validation("treatment %q is not in the network", t)
		}
		if seen[t] {
			return nil, errors.Validation("treatment %q is listed twice", t)
		}
		seen[t] = true
	}
	models := res.Available()
	if len(models) == 0 {
		return nil, errors.InvalidResult("result has no model estimates")
	}

	tbl := &Table{Treatments: slices.Clone(treatments), Measure: res.Measure}
	for _, m := range models {
		mat, err := assemble(res.Model(m), tbl.Treatments, m)
		if err != nil {
			return nil, err
		}
		tbl.set(m, mat)
	}
	return tbl, nil
}

func assemble(mr *estimator.ModelResult, treatments []string, m estimator.Model) (Matrix, error) {
	n := len(treatments)
	out := make(Matrix, n)
	for i := range out {
		out[i] = make([]*Cell, n)
	}
	for i, t1 := range treatments {
		for j := i + 1; j < n; j++ {
			t2 := treatments[j]
			fwd, okFwd := mr.Lookup(t1, t2)
			rev, okRev := mr.Lookup(t2, t1)
			switch {
			case okFwd && okRev:
				if !antiSymmetric(fwd, rev) {
					return nil, errors.InvalidResult("%s: %s vs %s (TE %v, SE %v) and %s vs %s (TE %v, SE %v) are not mirror images",
						m, t1, t2, fwd.TE, fwd.SE, t2, t1, rev.TE, rev.SE)
				}
			case okFwd:
				rev = mirror(fwd)
			case okRev:
				fwd = mirror(rev)
			default:
				return nil, errors.InvalidResult("%s: missing estimate for %s vs %s", m, t1, t2)
			}
			out[i][j] = cell(fwd)
			out[j][i] = cell(rev)
		}
	}
	return out, nil
}

func antiSymmetric(a, b estimator.PairEstimate) bool {
	return near(a.TE, -b.TE) && near(a.SE, b.SE)
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= Tolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func mirror(e estimator.PairEstimate) estimator.PairEstimate {
	return estimator.PairEstimate{
		Treat1: e.Treat2, Treat2: e.Treat1,
		TE: -e.TE, SE: e.SE, Lower: -e.Upper, Upper: -e.Lower,
	}
}

func cell(e estimator.PairEstimate) *Cell {
	return &Cell{TE: e.TE, SE: e.SE, Lower: e.Lower, Upper: e.Upper}
}

func (t *Table) set(m estimator.Model, mat Matrix) {
	switch m {
	case estimator.ModelFixed:
		t.Fixed = mat
	case estimator.ModelRandom:
		t.Random = mat
	}
}

// Model returns the matrix of model m, or nil when absent.
func (t *Table) Model(m estimator.Model) Matrix {
	switch m {
	case estimator.ModelFixed:
		return t.Fixed
	case estimator.ModelRandom:
		return t.Random
	}
	return nil
}

// Models lists the models present in the table.
func (t *Table) Models() []estimator.Model {
	var out []estimator.Model
	for _, m := range estimator.Models {
		if t.Model(m) != nil {
			out = append(out, m)
		}
	}
	return out
}

// Cell returns the comparison of t1 relative to t2 under model m. It
// returns nil for the diagonal, an absent model or an unknown treatment.
func (t *Table) Cell(m estimator.Model, t1, t2 string) *Cell {
	mat := t.Model(m)
	i, j := slices.Index(t.Treatments, t1), slices.Index(t.Treatments, t2)
	if mat == nil || i < 0 || j < 0 {
		return nil
	}
	return mat[i][j]
}

// Natural returns a copy of the table with ratio measures back-transformed
// to their natural scale. Other measures, and tables already on the natural
// scale, are returned as an unchanged copy.
func (t *Table) Natural() *Table {
	out := &Table{
		Treatments:   slices.Clone(t.Treatments),
		Measure:      t.Measure,
		NaturalScale: t.NaturalScale || t.Measure.IsRatio(),
	}
	transform := !t.NaturalScale && t.Measure.IsRatio()
	for _, m := range t.Models() {
		src := t.Model(m)
		dst := make(Matrix, len(src))
		for i, row := range src {
			dst[i] = make([]*Cell, len(row))
			for j, c := range row {
				if c == nil {
					continue
				}
				cp := *c
				if transform {
					cp.TE, cp.Lower, cp.Upper = math.Exp(c.TE), math.Exp(c.Lower), math.Exp(c.Upper)
				}
				dst[i][j] = &cp
			}
		}
		out.set(m, dst)
	}
	return out
}
