// Package forest reshapes network estimates into forest plot series: the
// effect of every treatment relative to one reference.
package forest

import (
	"slices"

	"github.com/matzehuels/netmeta/pkg/errors"
	"github.com/matzehuels/netmeta/pkg/estimator"
	"github.com/matzehuels/netmeta/pkg/league"
)

// Row is the effect of Treatment relative to Reference under Model, on the
// working scale.
type Row struct {
	Model     estimator.Model `json:"model"`
	Treatment string          `json:"treatment"`
	Reference string          `json:"reference"`
	TE        float64         `json:"TE"`
	SE        float64         `json:"seTE"`
	Lower     float64         `json:"lower"`
	Upper     float64         `json:"upper"`
}

// Extract returns one row per non-reference treatment per model, in the
// order of models and then res.Treatments. No models selects every model in
// the result.
func Extract(res *estimator.Result, reference string, models ...estimator.Model) ([]Row, error) {
	if res == nil {
		return nil, errors.InvalidResult("no estimation result")
	}
	if res.TreatmentIndex(reference) < 0 {
		return nil, errors.UnknownReference(reference)
	}
	if len(models) == 0 {
		models = res.Available()
	}

	var rows []Row
	for _, m := range models {
		mr := res.Model(m)
		if mr == nil {
			return nil, errors.InvalidResult("result has no %s effects estimates", m)
		}
		for _, t := range res.Treatments {
			if t == reference {
				continue
			}
			e, ok := mr.Effect(t, reference)
			if !ok {
				return nil, errors.InvalidResult("%s: missing estimate for %s vs %s", m, t, reference)
			}
			rows = append(rows, Row{
				Model: m, Treatment: t, Reference: reference,
				TE: e.TE, SE: e.SE, Lower: e.Lower, Upper: e.Upper,
			})
		}
	}
	return rows, nil
}

// FromLeague derives the rows of Extract from a league table. For a table
// assembled from res, FromLeague(table, r) equals Extract(res, r) for every
// reference r.
func FromLeague(tbl *league.Table, reference string, models ...estimator.Model) ([]Row, error) {
	if tbl == nil {
		return nil, errors.InvalidResult("no league table")
	}
	if !slices.Contains(tbl.Treatments, reference) {
		return nil, errors.UnknownReference(reference)
	}
	if len(models) == 0 {
		models = tbl.Models()
	}

	var rows []Row
	for _, m := range models {
		if tbl.Model(m) == nil {
			return nil, errors.InvalidResult("league table has no %s model", m)
		}
		for _, t := range tbl.Treatments {
			if t == reference {
				continue
			}
			c := tbl.Cell(m, t, reference)
			rows = append(rows, Row{
				Model: m, Treatment: t, Reference: reference,
				TE: c.TE, SE: c.SE, Lower: c.Lower, Upper: c.Upper,
			})
		}
	}
	return rows, nil
}
