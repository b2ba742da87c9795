// Package pipeline runs a complete network meta-analysis.
//
// This package chains the analysis stages so that the CLI, the HTTP API and
// the MCP server share one implementation:
//
//  1. Contrasts: convert arm-level records into pairwise contrasts, or
//     validate contrasts supplied directly
//  2. Network: build the comparison network and reject disconnected ones
//  3. Estimate: fit fixed and random effects models through a solver
//  4. Assemble: derive the league table, ranking and forest data from the
//     same result, concurrently
//
// # Usage
//
//	runner := pipeline.NewRunner(gls.New(logger), nil, nil, logger)
//	analysis, err := runner.Execute(ctx, pipeline.Request{
//	    Records: records,
//	    Outcome: contrast.OutcomeBinary,
//	    Options: pipeline.Options{Reference: "Placebo"},
//	})
//	if err != nil {
//	    return err
//	}
//	for _, e := range analysis.Ranking[estimator.ModelRandom] {
//	    fmt.Println(e.Rank, e.Treatment, e.PScore)
//	}
//
// Configuration travels with each request in [Options]; a [Runner] holds no
// per-request state and can serve concurrent requests with different
// options.
package pipeline

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
	"github.com/matzehuels/netmeta/pkg/estimator"
	"github.com/matzehuels/netmeta/pkg/forest"
	"github.com/matzehuels/netmeta/pkg/league"
	"github.com/matzehuels/netmeta/pkg/network"
	"github.com/matzehuels/netmeta/pkg/ranking"
)

// =============================================================================
// Options - Analysis Configuration
// =============================================================================

// Options configures one analysis. The zero value analyses contrasts with
// the odds ratio against the first treatment, fitting both models.
type Options struct {
	// Measure is the summary measure. Empty selects OR for binary records
	// and contrasts, MD for continuous records.
	Measure contrast.Measure `json:"measure,omitempty"`

	// Reference is the reference treatment. Empty selects the first
	// treatment in sorted order.
	Reference string `json:"reference,omitempty"`

	// Models lists the models to fit. Empty selects both.
	Models []estimator.Model `json:"models,omitempty"`

	// Increment is the continuity correction for zero cells.
	Increment float64 `json:"increment,omitempty"`

	// Timeout bounds the estimation stage. In JSON it is either a number of
	// seconds or a duration string such as "30s".
	Timeout time.Duration `json:"timeout,omitempty"`

	Level       float64               `json:"level,omitempty"`
	SmallValues estimator.SmallValues `json:"small_values,omitempty"`

	// Plot renders the network plot as SVG.
	Plot bool `json:"plot,omitempty"`
}

// ValidateAndSetDefaults checks option values against the outcome type of
// the input and applies defaults. An empty outcome stands for contrast input.
func (o *Options) ValidateAndSetDefaults(outcome contrast.Outcome) error {
	if o.Measure == "" {
		o.Measure = contrast.DefaultMeasure(outcome)
	}
	m, err := contrast.ParseMeasure(string(o.Measure))
	if err != nil {
		return err
	}
	o.Measure = m
	if outcome != "" && m.Outcome() != outcome {
		return errors.Validation("measure %s does not apply to %s outcomes", m, outcome)
	}
	if o.Increment < 0 {
		return errors.Validation("increment must not be negative, got %v", o.Increment)
	}
	est := o.EstimatorOptions()
	if err := est.ValidateAndSetDefaults(); err != nil {
		return err
	}
	o.Timeout, o.Level, o.SmallValues, o.Models = est.Timeout, est.Level, est.SmallValues, est.Models
	return nil
}

// EstimatorOptions returns the options of the estimation stage.
func (o *Options) EstimatorOptions() estimator.Options {
	return estimator.Options{
		Timeout:     o.Timeout,
		Level:       o.Level,
		SmallValues: o.SmallValues,
		Models:      o.Models,
	}
}

type optionsFields Options

// MarshalJSON writes Timeout as a duration string.
func (o Options) MarshalJSON() ([]byte, error) {
	w := struct {
		optionsFields
		Timeout string `json:"timeout,omitempty"`
	}{optionsFields: optionsFields(o)}
	if o.Timeout != 0 {
		w.Timeout = o.Timeout.String()
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads Timeout as seconds or a duration string and rejects
// unknown fields.
func (o *Options) UnmarshalJSON(data []byte) error {
	w := struct {
		optionsFields
		Timeout json.RawMessage `json:"timeout,omitempty"`
	}{optionsFields: optionsFields(*o)}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return err
	}
	timeout, err := parseTimeout(w.Timeout)
	if err != nil {
		return err
	}
	*o = Options(w.optionsFields)
	o.Timeout = timeout
	return nil
}

func parseTimeout(raw json.RawMessage) (time.Duration, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0, nil
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, errors.Validation("invalid timeout %s", text)
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, errors.Validation("invalid timeout %q: want seconds or a duration like \"30s\"", s)
		}
		return d, nil
	}
	var secs float64
	if err := json.Unmarshal(raw, &secs); err != nil {
		return 0, errors.Validation("invalid timeout %s: want seconds or a duration like \"30s\"", text)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// =============================================================================
// Request and Analysis
// =============================================================================

// Request is the input of one analysis: either arm-level records with their
// outcome type, or pairwise contrasts.
type Request struct {
	Records   []contrast.ArmRecord        `json:"records,omitempty"`
	Outcome   contrast.Outcome            `json:"outcome,omitempty"`
	Contrasts []contrast.PairwiseContrast `json:"contrasts,omitempty"`
	Options   Options                     `json:"options"`
}

// Validate checks that the request carries exactly one kind of input.
func (r *Request) Validate() error {
	switch {
	case len(r.Records) > 0 && len(r.Contrasts) > 0:
		return errors.Validation("provide either records or contrasts, not both")
	case len(r.Records) > 0:
		if _, err := contrast.ParseOutcome(string(r.Outcome)); err != nil {
			return err
		}
	case len(r.Contrasts) == 0:
		return errors.Validation("no records or contrasts provided")
	}
	return nil
}

// Analysis is the outcome of a pipeline run.
type Analysis struct {
	// ID identifies the run in logs and API responses.
	ID string `json:"id"`

	Options   Options                             `json:"options"`
	Contrasts []contrast.PairwiseContrast         `json:"contrasts"`
	Network   *network.Graph                      `json:"network"`
	Result    *estimator.Result                   `json:"result"`
	League    *league.Table                       `json:"league"`
	Ranking   map[estimator.Model][]ranking.Entry `json:"ranking"`
	Forest    []forest.Row                        `json:"forest"`

	// Plot is the SVG network plot when Options.Plot is set.
	Plot []byte `json:"-"`

	Stats Stats `json:"stats"`
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Studies      int           `json:"studies"`
	Contrasts    int           `json:"contrasts"`
	Nodes        int           `json:"nodes"`
	Edges        int           `json:"edges"`
	ContrastTime time.Duration `json:"contrast_time"`
	NetworkTime  time.Duration `json:"network_time"`
	EstimateTime time.Duration `json:"estimate_time"`
	AssembleTime time.Duration `json:"assemble_time"`
}
