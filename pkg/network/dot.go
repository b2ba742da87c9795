package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/netmeta/pkg/cache"
	"github.com/matzehuels/netmeta/pkg/observability"
)

// PlotOptions configures network plot rendering.
type PlotOptions struct {
	// Labels prints the number of studies on every edge.
	Labels bool `json:"labels,omitempty"`

	// Highlight names a treatment drawn with a filled node, usually the
	// reference of the analysis.
	Highlight string `json:"highlight,omitempty"`

	// MaxPenWidth caps the edge width of the most-studied comparison.
	// Zero selects 6.
	MaxPenWidth float64 `json:"max_pen_width,omitempty"`
}

const defaultMaxPenWidth = 6.0

// ToDOT converts the network to Graphviz DOT source. Edge width grows with
// the number of studies behind each direct comparison.
func ToDOT(g *Graph, opts PlotOptions) string {
	maxWidth := opts.MaxPenWidth
	if maxWidth <= 0 {
		maxWidth = defaultMaxPenWidth
	}
	maxStudies := 1
	for _, e := range g.Edges {
		maxStudies = max(maxStudies, e.Studies)
	}

	var buf bytes.Buffer
	buf.WriteString("graph G {\n")
	buf.WriteString("  layout=circo;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=ellipse, style=filled, fillcolor=white, fontsize=18, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [color=\"#4a6fa5\"];\n")
	buf.WriteString("\n")

	for _, n := range g.Nodes {
		attrs := fmt.Sprintf("label=%q", n)
		if n == opts.Highlight {
			attrs += ", fillcolor=\"#dbe7f5\", penwidth=2"
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", n, attrs)
	}

	buf.WriteString("\n")
	for _, e := range g.Edges {
		width := 1 + (maxWidth-1)*float64(e.Studies-1)/float64(max(maxStudies-1, 1))
		attrs := "penwidth=" + strconv.FormatFloat(width, 'f', 2, 64)
		if opts.Labels {
			attrs += fmt.Sprintf(", label=\"%d\"", e.Studies)
		}
		fmt.Fprintf(&buf, "  %q -- %q [%s];\n", e.A, e.B, attrs)
	}

	buf.WriteString("}\n")
	return buf.String()
}

// RenderSVG renders DOT source to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root element so the plot scales to its
// container.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}

// Hash returns a content hash of the graph, stable across calls.
func (g *Graph) Hash() string {
	data, _ := json.Marshal(g)
	return cache.Hash(data)
}

// Plotter renders network plots and caches the SVG output.
// The zero value renders without caching.
type Plotter struct {
	Cache cache.Cache
	Keyer cache.Keyer
}

// Plot renders g as SVG, serving repeated requests for the same graph and
// options from the cache.
func (p *Plotter) Plot(ctx context.Context, g *Graph, opts PlotOptions) ([]byte, error) {
	c, keyer := p.Cache, p.Keyer
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}

	key := keyer.PlotKey(g.Hash(), cache.PlotKeyOpts{
		Format:      "svg",
		Labels:      opts.Labels,
		Highlight:   opts.Highlight,
		MaxPenWidth: opts.MaxPenWidth,
	})
	if data, ok, err := c.Get(ctx, key); err == nil && ok {
		observability.Cache().OnCacheHit(ctx, "plot")
		return data, nil
	}
	observability.Cache().OnCacheMiss(ctx, "plot")

	svg, err := RenderSVG(ctx, ToDOT(g, opts))
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, key, svg, cache.TTLPlot); err == nil {
		observability.Cache().OnCacheSet(ctx, "plot", len(svg))
	}
	return svg, nil
}
