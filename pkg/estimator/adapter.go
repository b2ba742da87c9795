package estimator

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
	"github.com/matzehuels/netmeta/pkg/observability"
)

const (
	// DefaultTimeout bounds a single solver call.
	DefaultTimeout = 60 * time.Second

	// DefaultLevel is the confidence level of reported intervals.
	DefaultLevel = 0.95

	// DefaultSmallValues ranks larger effects higher, as
	// netrank(small.values = "undesirable") does.
	DefaultSmallValues = SmallValuesUndesirable
)

// Solver performs one network meta-analysis. Implementations must honor
// ctx cancellation and must not retain the request after returning.
type Solver interface {
	Name() string
	Solve(ctx context.Context, req Request) (*Result, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, req Request) (*Result, error)

// Name implements Solver.
func (f SolverFunc) Name() string { return "func" }

// Solve implements Solver.
func (f SolverFunc) Solve(ctx context.Context, req Request) (*Result, error) { return f(ctx, req) }

// Options configures the adapter. The zero value is valid.
type Options struct {
	Timeout     time.Duration `json:"timeout,omitempty"`
	Level       float64       `json:"level,omitempty"`
	SmallValues SmallValues   `json:"small_values,omitempty"`

	// Models lists the models the result must contain. Empty requires both.
	Models []Model `json:"models,omitempty"`
}

// ValidateAndSetDefaults checks option values and fills in defaults.
func (o *Options) ValidateAndSetDefaults() error {
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Timeout < 0 {
		return errors.Validation("timeout must be positive, got %s", o.Timeout)
	}
	if o.Level == 0 {
		o.Level = DefaultLevel
	}
	if o.Level <= 0 || o.Level >= 1 {
		return errors.Validation("level must be between 0 and 1, got %v", o.Level)
	}
	if o.SmallValues == "" {
		o.SmallValues = DefaultSmallValues
	}
	if _, err := ParseSmallValues(string(o.SmallValues)); err != nil {
		return err
	}
	if len(o.Models) == 0 {
		o.Models = slices.Clone(Models)
	}
	for _, m := range o.Models {
		if _, err := ParseModel(string(m)); err != nil {
			return err
		}
	}
	return nil
}

// Adapter wraps a Solver with input checks, a deadline and output contract
// validation. It holds no per-call state and is safe for concurrent use.
type Adapter struct {
	Solver  Solver
	Options Options
	Logger  *log.Logger
}

// NewAdapter creates an adapter. A nil logger discards output.
func NewAdapter(s Solver, opts Options, logger *log.Logger) *Adapter {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Adapter{Solver: s, Options: opts, Logger: logger}
}

type outcome struct {
	res *Result
	err error
}

// Estimate runs the solver once on contrasts.
//
// The reference must be one of the network's treatments, otherwise an
// UNKNOWN_REFERENCE error is returned before the solver is called. Solver
// failures become ESTIMATION_FAILED and are not retried. When the deadline
// passes first the call returns ESTIMATION_TIMEOUT and no partial result;
// a result that arrives after the deadline or after ctx is cancelled is
// discarded. Results that break the output contract become INVALID_RESULT.
func (a *Adapter) Estimate(ctx context.Context, contrasts []contrast.PairwiseContrast, measure contrast.Measure, reference string) (*Result, error) {
	if a.Solver == nil {
		return nil, errors.New(errors.ErrCodeInternal, "no solver configured")
	}
	opts := a.Options
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	logger := a.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	if len(contrasts) == 0 {
		return nil, errors.Validation("no contrasts provided")
	}
	if _, err := contrast.ParseMeasure(string(measure)); err != nil {
		return nil, err
	}
	treatments := contrast.Treatments(contrasts)
	if !slices.Contains(treatments, reference) {
		return nil, errors.UnknownReference(reference)
	}

	req := Request{
		Contrasts:   contrasts,
		Measure:     measure,
		Reference:   reference,
		Treatments:  treatments,
		Level:       opts.Level,
		SmallValues: opts.SmallValues,
	}

	callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	name := a.Solver.Name()
	observability.Pipeline().OnEstimateStart(ctx, name, string(measure))
	start := time.Now()
	logger.Debug("calling solver", "solver", name, "measure", measure, "reference", reference,
		"contrasts", len(contrasts), "timeout", opts.Timeout)

	// Buffered so a solver that finishes late never blocks.
	done := make(chan outcome, 1)
	go func() {
		res, err := a.Solver.Solve(callCtx, req)
		done <- outcome{res, err}
	}()

	var res *Result
	var err error
	select {
	case o := <-done:
		res, err = o.res, o.err
		// Results that land after the deadline are discarded, even successful ones.
		if callCtx.Err() != nil {
			err = a.contextError(ctx, callCtx, opts.Timeout)
			res = nil
		}
	case <-callCtx.Done():
		err = a.contextError(ctx, callCtx, opts.Timeout)
	}

	switch {
	case err == nil:
		err = a.finish(res, req, opts.Models, name)
	case stderrors.Is(err, context.Canceled):
	case errors.GetCode(err) == "":
		err = errors.Wrap(errors.ErrCodeEstimationFailed, err, "solver %s failed", name)
	}

	elapsed := time.Since(start)
	observability.Pipeline().OnEstimateComplete(ctx, name, string(measure), elapsed, err)
	if err != nil {
		logger.Debug("solver returned error", "solver", name, "duration", elapsed, "error", err)
		return nil, err
	}
	logger.Debug("solver finished", "solver", name, "duration", elapsed)
	return res, nil
}

// finish validates res, drops models that were not requested and indexes
// the estimates for lookup.
func (a *Adapter) finish(res *Result, req Request, models []Model, name string) error {
	if err := validateResult(res, req, models); err != nil {
		return err
	}
	if !slices.Contains(models, ModelFixed) {
		res.Fixed = nil
	}
	if !slices.Contains(models, ModelRandom) {
		res.Random = nil
	}
	res.Solver = name
	for _, m := range res.Available() {
		res.Model(m).buildIndex()
	}
	return nil
}

// contextError classifies why callCtx ended. The parent's own cancellation is
// passed through unchanged so callers can detect context.Canceled.
func (a *Adapter) contextError(parent, callCtx context.Context, timeout time.Duration) error {
	if stderrors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return errors.New(errors.ErrCodeEstimationTimeout, "solver did not finish within %s", timeout)
	}
	if err := parent.Err(); err != nil {
		return err
	}
	return fmt.Errorf("estimation aborted: %w", callCtx.Err())
}
