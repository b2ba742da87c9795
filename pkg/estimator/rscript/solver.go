package rscript

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
	"github.com/matzehuels/netmeta/pkg/estimator"
	"github.com/matzehuels/netmeta/pkg/observability"
)

// DefaultCommand is the R executable looked up on PATH.
const DefaultCommand = "R"

//go:embed netmeta.R
var script string

// Solver runs the R netmeta package in a subprocess.
type Solver struct {
	// Command is the R executable. Empty selects DefaultCommand.
	Command string

	// TempDir holds the input files handed to R. Empty selects the system
	// temporary directory.
	TempDir string

	Logger *log.Logger
}

// New returns a solver running command. A nil logger discards output.
func New(command string, logger *log.Logger) *Solver {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Solver{Command: command, Logger: logger}
}

// Name implements estimator.Solver.
func (s *Solver) Name() string { return "rscript" }

// input is the document R reads from the file named on its command line.
// Passing data through a file keeps user-supplied labels out of the R
// source.
type input struct {
	Data      []contrast.PairwiseContrast `json:"data"`
	SM        contrast.Measure            `json:"sm"`
	Reference string                      `json:"reference"`
	Level     float64                     `json:"level"`
}

// output mirrors the JSON document printed by netmeta.R.
type output struct {
	Error         string    `json:"error"`
	Treatments    []string  `json:"treatments"`
	Studies       int       `json:"n_studies"`
	Comparisons   int       `json:"n_comparisons"`
	SM            string    `json:"sm"`
	Reference     string    `json:"reference"`
	Heterogeneity hetOutput `json:"heterogeneity"`
	Fixed         *matrices `json:"fixed"`
	Random        *matrices `json:"random"`
}

// R reports NA as null, so every number is optional.
type hetOutput struct {
	Tau2   *float64 `json:"tau2"`
	Tau    *float64 `json:"tau"`
	I2     *float64 `json:"I2"`
	Q      *float64 `json:"Q"`
	DF     *float64 `json:"df"`
	PValue *float64 `json:"pval_Q"`
}

type matrices struct {
	TE    [][]*float64 `json:"TE"`
	SE    [][]*float64 `json:"seTE"`
	Lower [][]*float64 `json:"lower"`
	Upper [][]*float64 `json:"upper"`
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

	data := Expand(req.Contrasts)
	path, err := s.writeInput(input{Data: data, SM: req.Measure, Reference: req.Reference, Level: level})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "write solver input")
	}
	defer os.Remove(path)

	logger.Debug("running R", "command", s.command(), "contrasts", len(data), "input", path)
	stdout, err := s.run(ctx, path)
	if err != nil {
		return nil, err
	}

	var out output
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &out); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidResult, err, "parse R output")
	}
	if out.Error != "" {
		return nil, errors.New(errors.ErrCodeEstimationFailed, "netmeta: %s", out.Error)
	}
	return out.result(req, level, small)
}

func (s *Solver) command() string {
	if s.Command == "" {
		return DefaultCommand
	}
	return s.Command
}

func (s *Solver) writeInput(in input) (string, error) {
	f, err := os.CreateTemp(s.TempDir, "netmeta-*.json")
	if err != nil {
		return "", err
	}
	if err := json.NewEncoder(f).Encode(in); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// run executes the script and returns its stdout. The process is killed
// when ctx ends.
func (s *Solver) run(ctx context.Context, inputPath string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.command(), "--vanilla", "--slave", "-e", script, "--args", inputPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	observability.Solver().OnProcessStart(ctx, s.command())
	err := cmd.Run()
	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	observability.Solver().OnProcessExit(ctx, s.command(), code, time.Since(start))

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		msg := lastLines(stderr.String(), 5)
		if msg == "" {
			msg = err.Error()
		}
		return nil, errors.New(errors.ErrCodeEstimationFailed, "R exited with code %d: %s", code, msg)
	}
	if stdout.Len() == 0 {
		return nil, errors.New(errors.ErrCodeEstimationFailed, "no output from R: %s", lastLines(stderr.String(), 5))
	}
	return stdout.Bytes(), nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Check verifies that R and the netmeta and jsonlite packages are
// installed.
func (s *Solver) Check(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.command(), "--vanilla", "--slave", "-e",
		`suppressPackageStartupMessages({library(netmeta); library(jsonlite)}); cat("ok")`)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrap(errors.ErrCodeUnsupported, err, "R with netmeta and jsonlite is not available: %s", lastLines(string(out), 3))
	}
	return nil
}

// result converts the R document. R orders treatments by its own collation,
// so rows are read in that order and reported in byte order.
func (o *output) result(req estimator.Request, level float64, small estimator.SmallValues) (*estimator.Result, error) {
	res := &estimator.Result{
		Measure:     contrast.Measure(o.SM),
		Reference:   o.Reference,
		Treatments:  slices.Sorted(slices.Values(o.Treatments)),
		Level:       level,
		SmallValues: small,
		Studies:     o.Studies,
		Comparisons: len(req.Contrasts),
		Heterogeneity: estimator.Heterogeneity{
			Tau2:   value(o.Heterogeneity.Tau2, 0),
			Tau:    value(o.Heterogeneity.Tau, 0),
			I2:     value(o.Heterogeneity.I2, 0),
			Q:      value(o.Heterogeneity.Q, 0),
			DF:     int(value(o.Heterogeneity.DF, 0)),
			PValue: value(o.Heterogeneity.PValue, 1),
		},
	}
	var err error
	if o.Fixed != nil {
		if res.Fixed, err = o.Fixed.model(o.Treatments, res.Treatments, small); err != nil {
			return nil, fmt.Errorf("fixed: %w", err)
		}
	}
	if o.Random != nil {
		if res.Random, err = o.Random.model(o.Treatments, res.Treatments, small); err != nil {
			return nil, fmt.Errorf("random: %w", err)
		}
	}
	return res, nil
}

func (m *matrices) model(treatments, sorted []string, small estimator.SmallValues) (*estimator.ModelResult, error) {
	n := len(treatments)
	for name, rows := range map[string][][]*float64{"TE": m.TE, "seTE": m.SE, "lower": m.Lower, "upper": m.Upper} {
		if len(rows) != n {
			return nil, errors.InvalidResult("%s matrix has %d rows, want %d", name, len(rows), n)
		}
		for _, r := range rows {
			if len(r) != n {
				return nil, errors.InvalidResult("%s matrix is not %dx%d", name, n, n)
			}
		}
	}

	mr := &estimator.ModelResult{}
	for i := range n {
		for j := range n {
			if i == j || m.TE[i][j] == nil {
				continue
			}
			mr.Estimates = append(mr.Estimates, estimator.PairEstimate{
				Treat1: treatments[i],
				Treat2: treatments[j],
				TE:     *m.TE[i][j],
				SE:     value(m.SE[i][j], -1),
				Lower:  value(m.Lower[i][j], 1),
				Upper:  value(m.Upper[i][j], 0),
			})
		}
	}
	mr.Probabilities = estimator.SuperiorityMatrix(mr, sorted, small)
	return mr, nil
}

// value dereferences an optional number. Missing values take def, which
// callers choose so that contract validation rejects them where a value is
// required.
func value(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// Ensure Solver implements estimator.Solver.
var _ estimator.Solver = (*Solver)(nil)
