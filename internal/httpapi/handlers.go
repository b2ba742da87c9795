package httpapi

import (
	"mime"
	"net/http"

	"github.com/matzehuels/netmeta/pkg/buildinfo"
	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
	"github.com/matzehuels/netmeta/pkg/ingest"
	"github.com/matzehuels/netmeta/pkg/network"
	"github.com/matzehuels/netmeta/pkg/pipeline"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "solver": s.runner.Solver.Name()})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Get())
}

// handleIngest parses an uploaded CSV or XLSX table. The format query
// parameter selects the column layout; sheet selects a worksheet.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := ingest.FormatPairwise
	if v := q.Get("format"); v != "" {
		f, err := ingest.ParseFormat(v)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		format = f
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		tbl *ingest.Table
		err error
	)
	switch mediaType {
	case "text/csv", "text/plain", "":
		tbl, err = ingest.ReadCSV(r.Body, format)
	case xlsxContentType:
		tbl, err = ingest.ReadXLSX(r.Body, q.Get("sheet"), format)
	default:
		err = errors.New(errors.ErrCodeUnsupported, "unsupported content type %q, use text/csv or %s", mediaType, xlsxContentType)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tbl)
}

type contrastsRequest struct {
	Records   []contrast.ArmRecord `json:"records"`
	Outcome   contrast.Outcome     `json:"outcome"`
	Measure   contrast.Measure     `json:"measure,omitempty"`
	Increment float64              `json:"increment,omitempty"`
}

type contrastsResponse struct {
	Measure    contrast.Measure            `json:"measure"`
	NContrasts int                         `json:"n_contrasts"`
	Contrasts  []contrast.PairwiseContrast `json:"contrasts"`
}

func (s *Server) handleContrasts(w http.ResponseWriter, r *http.Request) {
	var req contrastsRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	outcome, err := contrast.ParseOutcome(string(req.Outcome))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts := pipeline.Options{Measure: req.Measure, Increment: req.Increment}
	if err := opts.ValidateAndSetDefaults(outcome); err != nil {
		s.writeError(w, r, err)
		return
	}
	cs, err := pipeline.BuildContrasts(req.Records, outcome, nil, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contrastsResponse{Measure: opts.Measure, NContrasts: len(cs), Contrasts: cs})
}

type networkRequest struct {
	Contrasts []contrast.PairwiseContrast `json:"contrasts"`
}

type networkResponse struct {
	*network.Graph
	Connected  bool       `json:"connected"`
	Components [][]string `json:"components"`
}

// handleNetwork reports the comparison network. A disconnected network is
// described, not rejected.
func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	var req networkRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	g, err := s.graph(req.Contrasts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	comps := g.Components()
	writeJSON(w, http.StatusOK, networkResponse{Graph: g, Connected: len(comps) == 1, Components: comps})
}

type plotRequest struct {
	Contrasts []contrast.PairwiseContrast `json:"contrasts"`
	network.PlotOptions
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	var req plotRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	g, err := s.graph(req.Contrasts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Highlight != "" && !g.HasNode(req.Highlight) {
		s.writeError(w, r, errors.UnknownReference(req.Highlight))
		return
	}
	p := &network.Plotter{Cache: s.runner.Cache, Keyer: s.runner.Keyer}
	svg, err := p.Plot(r.Context(), g, req.PlotOptions)
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInternal, err, "render network plot"))
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(svg)
}

type analysisResponse struct {
	*pipeline.Analysis
	PlotSVG string `json:"plot_svg,omitempty"`
}

// handleAnalysis runs the full pipeline. With scale=natural, ratio measures
// are back-transformed in the league table.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.runner.Execute(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	switch scale := r.URL.Query().Get("scale"); scale {
	case "", "working":
	case "natural":
		a.League = a.League.Natural()
	default:
		s.writeError(w, r, errors.Validation("unknown scale %q, use working or natural", scale))
		return
	}
	writeJSON(w, http.StatusOK, analysisResponse{Analysis: a, PlotSVG: string(a.Plot)})
}

func (s *Server) graph(cs []contrast.PairwiseContrast) (*network.Graph, error) {
	if err := contrast.ValidateContrasts(cs); err != nil {
		return nil, err
	}
	return network.FromContrasts(cs)
}
