package mcpserver

import (
	"context"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
	"github.com/matzehuels/netmeta/pkg/estimator"
	"github.com/matzehuels/netmeta/pkg/forest"
	"github.com/matzehuels/netmeta/pkg/ingest"
	"github.com/matzehuels/netmeta/pkg/league"
	"github.com/matzehuels/netmeta/pkg/network"
	"github.com/matzehuels/netmeta/pkg/pipeline"
	"github.com/matzehuels/netmeta/pkg/ranking"
)

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "csv_to_json",
		Description: "Parse CSV content with a header row into records for pairwise_to_netmeta (arm_binary, arm_continuous) or contrasts for runnetmeta (pairwise).",
	}, s.handleCSVToJSON)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "pairwise_to_netmeta",
		Description: "Convert arm-level records into pairwise contrasts. A study with k arms yields k-1 contrasts against its first arm.",
	}, s.handlePairwise)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "runnetmeta",
		Description: "Fit fixed and random effects network meta-analysis models to pairwise contrasts.",
	}, s.handleRun)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_network_graph",
		Description: "Get the comparison network of the contrasts: treatments, edges with study counts, and connected components.",
	}, s.handleNetworkGraph)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_league_table",
		Description: "Get the league table: the effect of every row treatment relative to every column treatment with confidence limits.",
	}, s.handleLeagueTable)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_ranking",
		Description: "Rank treatments by P-score (0-1, higher is better; rank 1 is best).",
	}, s.handleRanking)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_forest_data",
		Description: "Get forest plot data: the effect of every treatment relative to a reference.",
	}, s.handleForestData)
}

// --- Tool input/output types ---

type csvInput struct {
	CSVContent string `json:"csv_content" jsonschema:"CSV content with a header row"`
	DataFormat string `json:"data_format,omitempty" jsonschema:"pairwise, arm_binary or arm_continuous (default pairwise)"`
}

type csvOutput struct {
	Format    ingest.Format               `json:"format"`
	Columns   []string                    `json:"columns"`
	NRecords  int                         `json:"n_records"`
	Records   []contrast.ArmRecord        `json:"records,omitempty"`
	Contrasts []contrast.PairwiseContrast `json:"contrasts,omitempty"`
	NextStep  string                      `json:"next_step"`
}

type pairwiseInput struct {
	Data        []contrast.ArmRecord `json:"data" jsonschema:"study arms with study, treatment, n and either events or mean and sd"`
	OutcomeType string               `json:"outcome_type,omitempty" jsonschema:"binary or continuous (default binary)"`
	SM          string               `json:"sm,omitempty" jsonschema:"summary measure: OR, RR, RD for binary; MD, SMD for continuous"`
	Increment   float64              `json:"increment,omitempty" jsonschema:"continuity correction for zero cells (default 0.5)"`
}

type pairwiseOutput struct {
	Measure    contrast.Measure            `json:"sm"`
	NContrasts int                         `json:"n_contrasts"`
	Data       []contrast.PairwiseContrast `json:"data"`
	NextStep   string                      `json:"next_step"`
}

type runInput struct {
	Data        []contrast.PairwiseContrast `json:"data" jsonschema:"pairwise contrasts with study, treat1, treat2, TE and seTE"`
	SM          string                      `json:"sm,omitempty" jsonschema:"summary measure: OR, RR, RD, MD or SMD (default OR)"`
	Reference   string                      `json:"reference,omitempty" jsonschema:"reference treatment (default first in sorted order)"`
	CombFixed   *bool                       `json:"comb_fixed,omitempty" jsonschema:"fit the fixed effects model (default true)"`
	CombRandom  *bool                       `json:"comb_random,omitempty" jsonschema:"fit the random effects model (default true)"`
	Level       float64                     `json:"level,omitempty" jsonschema:"confidence level (default 0.95)"`
	SmallValues string                      `json:"small_values,omitempty" jsonschema:"undesirable or desirable (default undesirable)"`
	Timeout     float64                     `json:"timeout_seconds,omitempty" jsonschema:"estimation time limit in seconds"`
}

type runOutput struct {
	ID            string                  `json:"id"`
	Solver        string                  `json:"solver"`
	Measure       contrast.Measure        `json:"sm"`
	Reference     string                  `json:"reference"`
	Treatments    []string                `json:"treatments"`
	Studies       int                     `json:"n_studies"`
	Comparisons   int                     `json:"n_comparisons"`
	Heterogeneity estimator.Heterogeneity `json:"heterogeneity"`
	Fixed         *estimator.ModelResult  `json:"fixed_effects,omitempty"`
	Random        *estimator.ModelResult  `json:"random_effects,omitempty"`
	Network       network.Graph           `json:"network"`
}

type graphInput struct {
	Data []contrast.PairwiseContrast `json:"data" jsonschema:"pairwise contrasts"`
}

type graphOutput struct {
	Nodes      []string       `json:"nodes"`
	Edges      []network.Edge `json:"edges"`
	Connected  bool           `json:"connected"`
	Components [][]string     `json:"components"`
}

// modelInput selects one model of an analysis over data.
type modelInput struct {
	Data        []contrast.PairwiseContrast `json:"data" jsonschema:"pairwise contrasts"`
	SM          string                      `json:"sm,omitempty" jsonschema:"summary measure (default OR)"`
	Reference   string                      `json:"reference,omitempty" jsonschema:"reference treatment (default first in sorted order)"`
	Random      *bool                       `json:"random,omitempty" jsonschema:"use the random effects model (default true) or the fixed effect model"`
	SmallValues string                      `json:"small_values,omitempty" jsonschema:"undesirable or desirable (default undesirable)"`
}

type leagueInput struct {
	Data         []contrast.PairwiseContrast `json:"data" jsonschema:"pairwise contrasts"`
	SM           string                      `json:"sm,omitempty" jsonschema:"summary measure (default OR)"`
	Reference    string                      `json:"reference,omitempty" jsonschema:"reference treatment (default first in sorted order)"`
	Random       *bool                       `json:"random,omitempty" jsonschema:"use the random effects model (default true) or the fixed effect model"`
	NaturalScale bool                        `json:"natural_scale,omitempty" jsonschema:"back-transform ratio measures with exp"`
}

type leagueOutput struct {
	Model        estimator.Model  `json:"model"`
	Measure      contrast.Measure `json:"sm"`
	NaturalScale bool             `json:"natural_scale"`
	Treatments   []string         `json:"treatments"`
	Effects      [][]*float64     `json:"effects"`
	SE           [][]*float64     `json:"seTE"`
	CILower      [][]*float64     `json:"ci_lower"`
	CIUpper      [][]*float64     `json:"ci_upper"`
}

type rankingOutput struct {
	Model       estimator.Model       `json:"model"`
	SmallValues estimator.SmallValues `json:"small_values"`
	Ranking     []ranking.Entry       `json:"ranking"`
}

type forestOutput struct {
	Model       estimator.Model  `json:"model"`
	Measure     contrast.Measure `json:"sm"`
	Reference   string           `json:"reference"`
	Comparisons []forest.Row     `json:"comparisons"`
}

// --- Tool handlers ---

func (s *Server) handleCSVToJSON(_ context.Context, _ *sdkmcp.CallToolRequest, input csvInput) (*sdkmcp.CallToolResult, csvOutput, error) {
	format := ingest.FormatPairwise
	if input.DataFormat != "" {
		f, err := ingest.ParseFormat(input.DataFormat)
		if err != nil {
			return nil, csvOutput{}, s.fail("csv_to_json", err)
		}
		format = f
	}
	tbl, err := ingest.ReadCSV(strings.NewReader(strings.TrimSpace(input.CSVContent)), format)
	if err != nil {
		return nil, csvOutput{}, s.fail("csv_to_json", err)
	}

	out := csvOutput{
		Format:    tbl.Format,
		Columns:   tbl.Columns,
		NRecords:  tbl.Len(),
		Records:   tbl.Records,
		Contrasts: tbl.Contrasts,
	}
	switch format {
	case ingest.FormatPairwise:
		out.NextStep = "call runnetmeta with data set to contrasts"
	default:
		out.NextStep = "call pairwise_to_netmeta with data set to records and outcome_type " + string(format.Outcome())
	}
	return nil, out, nil
}

func (s *Server) handlePairwise(_ context.Context, _ *sdkmcp.CallToolRequest, input pairwiseInput) (*sdkmcp.CallToolResult, pairwiseOutput, error) {
	outcome := contrast.OutcomeBinary
	if input.OutcomeType != "" {
		o, err := contrast.ParseOutcome(input.OutcomeType)
		if err != nil {
			return nil, pairwiseOutput{}, s.fail("pairwise_to_netmeta", err)
		}
		outcome = o
	}
	opts := pipeline.Options{Measure: contrast.Measure(input.SM), Increment: input.Increment}
	if err := opts.ValidateAndSetDefaults(outcome); err != nil {
		return nil, pairwiseOutput{}, s.fail("pairwise_to_netmeta", err)
	}
	cs, err := pipeline.BuildContrasts(input.Data, outcome, nil, opts)
	if err != nil {
		return nil, pairwiseOutput{}, s.fail("pairwise_to_netmeta", err)
	}
	return nil, pairwiseOutput{
		Measure:    opts.Measure,
		NContrasts: len(cs),
		Data:       cs,
		NextStep:   "call runnetmeta with data and sm " + string(opts.Measure),
	}, nil
}

func (s *Server) handleRun(ctx context.Context, _ *sdkmcp.CallToolRequest, input runInput) (*sdkmcp.CallToolResult, runOutput, error) {
	var models []estimator.Model
	if enabled(input.CombFixed) {
		models = append(models, estimator.ModelFixed)
	}
	if enabled(input.CombRandom) {
		models = append(models, estimator.ModelRandom)
	}
	if len(models) == 0 {
		return nil, runOutput{}, s.fail("runnetmeta", errors.Validation("comb_fixed and comb_random are both false"))
	}

	a, err := s.runner.Execute(ctx, pipeline.Request{
		Contrasts: input.Data,
		Options: pipeline.Options{
			Measure:     contrast.Measure(input.SM),
			Reference:   input.Reference,
			Models:      models,
			Level:       input.Level,
			SmallValues: estimator.SmallValues(input.SmallValues),
			Timeout:     time.Duration(input.Timeout * float64(time.Second)),
		},
	})
	if err != nil {
		return nil, runOutput{}, s.fail("runnetmeta", err)
	}
	res := a.Result
	return nil, runOutput{
		ID:            a.ID,
		Solver:        res.Solver,
		Measure:       res.Measure,
		Reference:     res.Reference,
		Treatments:    res.Treatments,
		Studies:       res.Studies,
		Comparisons:   res.Comparisons,
		Heterogeneity: res.Heterogeneity,
		Fixed:         res.Fixed,
		Random:        res.Random,
		Network:       *a.Network,
	}, nil
}

func (s *Server) handleNetworkGraph(_ context.Context, _ *sdkmcp.CallToolRequest, input graphInput) (*sdkmcp.CallToolResult, graphOutput, error) {
	if err := contrast.ValidateContrasts(input.Data); err != nil {
		return nil, graphOutput{}, s.fail("get_network_graph", err)
	}
	g, err := network.FromContrasts(input.Data)
	if err != nil {
		return nil, graphOutput{}, s.fail("get_network_graph", err)
	}
	comps := g.Components()
	return nil, graphOutput{
		Nodes:      g.Nodes,
		Edges:      g.Edges,
		Connected:  len(comps) == 1,
		Components: comps,
	}, nil
}

func (s *Server) handleLeagueTable(ctx context.Context, _ *sdkmcp.CallToolRequest, input leagueInput) (*sdkmcp.CallToolResult, leagueOutput, error) {
	m := model(input.Random)
	a, err := s.analyse(ctx, modelInput{Data: input.Data, SM: input.SM, Reference: input.Reference, Random: input.Random})
	if err != nil {
		return nil, leagueOutput{}, s.fail("get_league_table", err)
	}
	tbl := a.League
	if input.NaturalScale {
		tbl = tbl.Natural()
	}
	out := leagueOutput{
		Model:        m,
		Measure:      tbl.Measure,
		NaturalScale: tbl.NaturalScale,
		Treatments:   tbl.Treatments,
	}
	out.Effects = project(tbl.Model(m), func(c *league.Cell) float64 { return c.TE })
	out.SE = project(tbl.Model(m), func(c *league.Cell) float64 { return c.SE })
	out.CILower = project(tbl.Model(m), func(c *league.Cell) float64 { return c.Lower })
	out.CIUpper = project(tbl.Model(m), func(c *league.Cell) float64 { return c.Upper })
	return nil, out, nil
}

func (s *Server) handleRanking(ctx context.Context, _ *sdkmcp.CallToolRequest, input modelInput) (*sdkmcp.CallToolResult, rankingOutput, error) {
	m := model(input.Random)
	a, err := s.analyse(ctx, input)
	if err != nil {
		return nil, rankingOutput{}, s.fail("get_ranking", err)
	}
	return nil, rankingOutput{
		Model:       m,
		SmallValues: a.Result.SmallValues,
		Ranking:     a.Ranking[m],
	}, nil
}

func (s *Server) handleForestData(ctx context.Context, _ *sdkmcp.CallToolRequest, input modelInput) (*sdkmcp.CallToolResult, forestOutput, error) {
	a, err := s.analyse(ctx, input)
	if err != nil {
		return nil, forestOutput{}, s.fail("get_forest_data", err)
	}
	return nil, forestOutput{
		Model:       model(input.Random),
		Measure:     a.Result.Measure,
		Reference:   a.Options.Reference,
		Comparisons: a.Forest,
	}, nil
}

// --- Helpers ---

// analyse runs the pipeline for the single model selected by input.
func (s *Server) analyse(ctx context.Context, input modelInput) (*pipeline.Analysis, error) {
	return s.runner.Execute(ctx, pipeline.Request{
		Contrasts: input.Data,
		Options: pipeline.Options{
			Measure:     contrast.Measure(input.SM),
			Reference:   input.Reference,
			Models:      []estimator.Model{model(input.Random)},
			SmallValues: estimator.SmallValues(input.SmallValues),
		},
	})
}

func (s *Server) fail(tool string, err error) error {
	s.log.Warn("tool failed", "tool", tool, "code", errors.GetCode(err), "err", errors.UserMessage(err))
	return err
}

// enabled treats an omitted flag as true.
func enabled(b *bool) bool { return b == nil || *b }

func model(random *bool) estimator.Model {
	if enabled(random) {
		return estimator.ModelRandom
	}
	return estimator.ModelFixed
}

func project(m league.Matrix, f func(*league.Cell) float64) [][]*float64 {
	out := make([][]*float64, len(m))
	for i, row := range m {
		out[i] = make([]*float64, len(row))
		for j, c := range row {
			if c != nil {
				v := f(c)
				out[i][j] = &v
			}
		}
	}
	return out
}
