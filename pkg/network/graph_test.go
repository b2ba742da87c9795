package network

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/netmeta/pkg/cache"
	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
)

func pc(study, t1, t2 string) contrast.PairwiseContrast {
	return contrast.PairwiseContrast{Study: study, Treat1: t1, Treat2: t2, TE: 0.1, SeTE: 0.2}
}

func TestBuild(t *testing.T) {
	g, err := Build([]contrast.PairwiseContrast{
		pc("S1", "B", "A"),
		pc("S2", "A", "C"),
		pc("S3", "B", "C"),
		pc("S4", "A", "B"),
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if diff := cmp.Diff([]string{"A", "B", "C"}, g.Nodes); diff != "" {
		t.Errorf("Nodes mismatch (-want +got):\n%s", diff)
	}
	want := []Edge{
		{A: "A", B: "B", Studies: 2},
		{A: "A", B: "C", Studies: 1},
		{A: "B", B: "C", Studies: 1},
	}
	if diff := cmp.Diff(want, g.Edges); diff != "" {
		t.Errorf("Edges mismatch (-want +got):\n%s", diff)
	}
	if !g.Connected() {
		t.Error("Connected() = false, want true")
	}
}

func TestBuildCountsDistinctStudies(t *testing.T) {
	g, err := Build([]contrast.PairwiseContrast{
		pc("M", "A", "B"),
		pc("M", "A", "C"),
		pc("P", "A", "B"),
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	e, ok := g.Edge("B", "A")
	if !ok {
		t.Fatal("Edge(B, A) not found")
	}
	if e.Studies != 2 {
		t.Errorf("Edge(A, B).Studies = %d, want 2", e.Studies)
	}
	if got := g.Degree("A"); got != 2 {
		t.Errorf("Degree(A) = %d, want 2", got)
	}
	if got := g.Degree("Z"); got != 0 {
		t.Errorf("Degree(Z) = %d, want 0", got)
	}
}

func TestBuildDisconnected(t *testing.T) {
	_, err := Build([]contrast.PairwiseContrast{
		pc("S1", "A", "B"),
		pc("S2", "D", "C"),
		pc("S3", "E", "C"),
	})
	if err == nil {
		t.Fatal("Build() error = nil, want DisconnectedNetworkError")
	}
	if !errors.Is(err, errors.ErrCodeDisconnectedNetwork) {
		t.Fatalf("Build() error code = %v, want %v", errors.GetCode(err), errors.ErrCodeDisconnectedNetwork)
	}

	var dn *errors.DisconnectedNetworkError
	if !errors.As(err, &dn) {
		t.Fatalf("error type = %T, want *DisconnectedNetworkError", err)
	}
	want := [][]string{{"A", "B"}, {"C", "D", "E"}}
	if diff := cmp.Diff(want, dn.Components); diff != "" {
		t.Errorf("Components mismatch (-want +got):\n%s", diff)
	}
}

func TestSpanningTreeIsConnected(t *testing.T) {
	// A chain over n treatments has n-1 edges and is connected.
	names := []string{"A", "B", "C", "D", "E", "F"}
	var cs []contrast.PairwiseContrast
	for i := 1; i < len(names); i++ {
		cs = append(cs, pc("S"+names[i], names[i-1], names[i]))
	}
	g, err := Build(cs)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(g.Edges) != len(names)-1 {
		t.Errorf("len(Edges) = %d, want %d", len(g.Edges), len(names)-1)
	}
}

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		name string
		cs   []contrast.PairwiseContrast
	}{
		{"empty", nil},
		{"self loop", []contrast.PairwiseContrast{pc("S", "A", "A")}},
		{"empty treatment", []contrast.PairwiseContrast{pc("S", "", "A")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.cs)
			if !errors.Is(err, errors.ErrCodeValidation) {
				t.Errorf("Build() error = %v, want VALIDATION_ERROR", err)
			}
		})
	}
}

func TestHasNode(t *testing.T) {
	g, _ := Build([]contrast.PairwiseContrast{pc("S", "Placebo", "SSRI")})
	if !g.HasNode("Placebo") || !g.HasNode("SSRI") {
		t.Error("HasNode() = false for a network node")
	}
	if g.HasNode("CBT") {
		t.Error("HasNode(CBT) = true, want false")
	}
}

func TestToDOT(t *testing.T) {
	g, _ := Build([]contrast.PairwiseContrast{
		pc("S1", "A", "B"),
		pc("S2", "A", "B"),
		pc("S3", "B", "C"),
	})
	dot := ToDOT(g, PlotOptions{Labels: true, Highlight: "A"})

	for _, want := range []string{
		"graph G {",
		`"A" -- "B" [penwidth=6.00, label="2"];`,
		`"B" -- "C" [penwidth=1.00, label="1"];`,
		`"A" [label="A", fillcolor="#dbe7f5", penwidth=2];`,
		`"C" [label="C"];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("ToDOT() missing %q in:\n%s", want, dot)
		}
	}
}

func TestHashStable(t *testing.T) {
	cs := []contrast.PairwiseContrast{pc("S1", "A", "B"), pc("S2", "B", "C")}
	g1, _ := Build(cs)
	g2, _ := Build([]contrast.PairwiseContrast{cs[1], cs[0]})
	if g1.Hash() != g2.Hash() {
		t.Error("Hash() differs for the same network")
	}
	g3, _ := Build([]contrast.PairwiseContrast{pc("S1", "A", "B"), pc("S2", "A", "C")})
	if g1.Hash() == g3.Hash() {
		t.Error("Hash() equal for different networks")
	}
}

func TestPlotterServesFromCache(t *testing.T) {
	ctx := context.Background()
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache error: %v", err)
	}
	g, _ := Build([]contrast.PairwiseContrast{pc("S1", "A", "B")})

	p := &Plotter{Cache: c}
	key := cache.NewDefaultKeyer().PlotKey(g.Hash(), cache.PlotKeyOpts{Format: "svg"})
	if err := c.Set(ctx, key, []byte("<svg>cached</svg>"), 0); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	got, err := p.Plot(ctx, g, PlotOptions{})
	if err != nil {
		t.Fatalf("Plot() error = %v", err)
	}
	if string(got) != "<svg>cached</svg>" {
		t.Errorf("Plot() = %q, want cached entry", got)
	}
}
