package network

import (
	"cmp"
	"slices"

	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
)

// Edge is an unordered pair of treatments compared directly by at least
// one study. A is lexically smaller than B.
type Edge struct {
	A       string `json:"a"`
	B       string `json:"b"`
	Studies int    `json:"studies"`
}

// Graph is the treatment network: nodes are treatments and edges are direct
// comparisons. Nodes are sorted; edges are sorted by (A, B).
type Graph struct {
	Nodes []string `json:"nodes"`
	Edges []Edge   `json:"edges"`
}

// Build derives the treatment network from a contrast set and validates
// that it is connected.
//
// Edge weights count distinct studies, so a study contributing the same pair
// twice counts once. Build returns a VALIDATION_ERROR for an empty contrast
// set or a contrast comparing a treatment with itself, and a
// [errors.DisconnectedNetworkError] when the network has more than one
// component.
func Build(contrasts []contrast.PairwiseContrast) (*Graph, error) {
	g, err := FromContrasts(contrasts)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// FromContrasts builds the graph without checking connectivity.
func FromContrasts(contrasts []contrast.PairwiseContrast) (*Graph, error) {
	if len(contrasts) == 0 {
		return nil, errors.Validation("no contrasts provided")
	}

	type pair struct{ a, b string }
	studies := make(map[pair]map[string]struct{})
	for i, c := range contrasts {
		if c.Treat1 == "" || c.Treat2 == "" {
			return nil, errors.Validation("contrast %d (study %q) has an empty treatment", i+1, c.Study)
		}
		if c.Treat1 == c.Treat2 {
			return nil, errors.Validation("contrast %d (study %q) compares %q with itself", i+1, c.Study, c.Treat1)
		}
		a, b := c.Treat1, c.Treat2
		if b < a {
			a, b = b, a
		}
		k := pair{a, b}
		if studies[k] == nil {
			studies[k] = make(map[string]struct{})
		}
		studies[k][c.Study] = struct{}{}
	}

	g := &Graph{Nodes: contrast.Treatments(contrasts)}
	for k, s := range studies {
		g.Edges = append(g.Edges, Edge{A: k.a, B: k.b, Studies: len(s)})
	}
	slices.SortFunc(g.Edges, func(x, y Edge) int {
		if c := cmp.Compare(x.A, y.A); c != 0 {
			return c
		}
		return cmp.Compare(x.B, y.B)
	})
	return g, nil
}

// Validate returns a [errors.DisconnectedNetworkError] listing every
// component when the graph is not connected.
func (g *Graph) Validate() error {
	if len(g.Nodes) == 0 {
		return errors.Validation("network has no treatments")
	}
	comps := g.Components()
	if len(comps) > 1 {
		return &errors.DisconnectedNetworkError{Components: comps}
	}
	return nil
}

// Components returns the connected components found by breadth-first
// traversal. Each component is sorted and components are ordered by their
// first member.
func (g *Graph) Components() [][]string {
	adj := g.adjacency()
	visited := make(map[string]bool, len(g.Nodes))
	var comps [][]string

	for _, start := range g.Nodes {
		if visited[start] {
			continue
		}
		visited[start] = true
		queue := []string{start}
		var comp []string
		for len(queue) > 0 {
			n := queue[0]
			queue = queue[1:]
			comp = append(comp, n)
			for _, m := range adj[n] {
				if !visited[m] {
					visited[m] = true
					queue = append(queue, m)
				}
			}
		}
		slices.Sort(comp)
		comps = append(comps, comp)
	}

	slices.SortFunc(comps, func(x, y []string) int { return cmp.Compare(x[0], y[0]) })
	return comps
}

// Connected reports whether every treatment is reachable from every other.
func (g *Graph) Connected() bool {
	return len(g.Nodes) > 0 && len(g.Components()) == 1
}

// Degree returns the number of direct comparators of a treatment.
func (g *Graph) Degree(treatment string) int {
	return len(g.adjacency()[treatment])
}

// HasNode reports whether treatment is part of the network.
func (g *Graph) HasNode(treatment string) bool {
	_, ok := slices.BinarySearch(g.Nodes, treatment)
	return ok
}

// Edge returns the edge between a and b in either orientation.
func (g *Graph) Edge(a, b string) (Edge, bool) {
	if b < a {
		a, b = b, a
	}
	for _, e := range g.Edges {
		if e.A == a && e.B == b {
			return e, true
		}
	}
	return Edge{}, false
}

func (g *Graph) adjacency() map[string][]string {
	adj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		adj[e.A] = append(adj[e.A], e.B)
		adj[e.B] = append(adj[e.B], e.A)
	}
	return adj
}
