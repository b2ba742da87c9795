package network_test

import (
	"fmt"

	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/errors"
	"github.com/matzehuels/netmeta/pkg/network"
)

func ExampleBuild() {
	g, err := network.Build([]contrast.PairwiseContrast{
		{Study: "S1", Treat1: "A", Treat2: "B", TE: 0.2, SeTE: 0.1},
		{Study: "S2", Treat1: "B", Treat2: "C", TE: -0.1, SeTE: 0.15},
		{Study: "S3", Treat1: "A", Treat2: "C", TE: 0.3, SeTE: 0.2},
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(g.Nodes)
	for _, e := range g.Edges {
		fmt.Printf("%s-%s studies=%d\n", e.A, e.B, e.Studies)
	}
	// Output:
	// [A B C]
	// A-B studies=1
	// A-C studies=1
	// B-C studies=1
}

func ExampleBuild_disconnected() {
	_, err := network.Build([]contrast.PairwiseContrast{
		{Study: "S1", Treat1: "A", Treat2: "B", TE: 0.2, SeTE: 0.1},
		{Study: "S2", Treat1: "C", Treat2: "D", TE: 0.1, SeTE: 0.1},
	})
	fmt.Println(errors.UserMessage(err))
	// Output:
	// network is not connected: 2 components {A, B} {C, D}
}
