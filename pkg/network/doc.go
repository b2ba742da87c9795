// Package network builds the treatment comparison network of a contrast set.
//
// # Overview
//
// Nodes are treatments and edges are direct comparisons, annotated with the
// number of distinct studies behind each. A network meta-analysis can only
// combine evidence across a connected network, so [Build] rejects a
// disconnected one with an [errors.DisconnectedNetworkError] that lists
// every component.
//
// # Usage
//
//	g, err := network.Build(contrasts)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(g.Nodes, len(g.Edges))
//
// # Network Plots
//
// [ToDOT] produces Graphviz DOT source where edge width follows the number
// of studies. [RenderSVG] renders it in-process with
// [github.com/goccy/go-graphviz], and a [Plotter] caches the rendered SVG
// keyed by the graph's content hash:
//
//	p := &network.Plotter{Cache: c}
//	svg, err := p.Plot(ctx, g, network.PlotOptions{Labels: true})
package network
