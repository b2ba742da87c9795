package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/netmeta/pkg/errors"
	"github.com/matzehuels/netmeta/pkg/network"
)

// networkOutput is the --json document of the network command.
type networkOutput struct {
	*network.Graph
	Connected  bool       `json:"connected"`
	Components [][]string `json:"components"`
}

// networkCommand creates the network command for inspecting the treatment
// network.
func (c *CLI) networkCommand() *cobra.Command {
	var (
		in        inputFlags
		of        optionFlags
		plotPath  string
		highlight string
		noLabels  bool
		noCache   bool
		jsonOut   bool
		markdown  bool
	)

	cmd := &cobra.Command{
		Use:   "network <file>",
		Short: "Show the treatment network of a data set",
		Long: `Show the treatment network: treatments, direct comparisons and the number
of studies behind each comparison. A disconnected network is reported with
its components; it cannot be analysed until the components are linked.`,
		Example: `  netmeta network trials.csv --format arm_binary
  netmeta network pairs.csv --plot network.svg --highlight Placebo`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts, err := c.options()
			if err != nil {
				return err
			}
			if err := of.apply(cmd, &opts); err != nil {
				return err
			}
			cs, _, err := in.contrasts(cmd.InOrStdin(), args[0], opts)
			if err != nil {
				return err
			}
			g, err := network.FromContrasts(cs)
			if err != nil {
				return err
			}
			if highlight != "" && !g.HasNode(highlight) {
				return errors.UnknownReference(highlight)
			}

			out := cmd.OutOrStdout()
			p := printer{w: out, quiet: jsonOut}
			if plotPath != "" {
				runner, err := c.newRunner(ctx, noCache)
				if err != nil {
					return err
				}
				defer runner.Close()

				plotter := &network.Plotter{Cache: runner.Cache, Keyer: runner.Keyer}
				svg, err := plotter.Plot(ctx, g, network.PlotOptions{Labels: !noLabels, Highlight: highlight})
				if err != nil {
					return err
				}
				if err := os.WriteFile(plotPath, svg, 0o644); err != nil {
					return fmt.Errorf("write plot: %w", err)
				}
			}

			components := g.Components()
			if jsonOut {
				return writeJSON(out, networkOutput{Graph: g, Connected: len(components) <= 1, Components: components})
			}

			tableWriter{w: out, markdown: markdown}.network(g)
			if len(components) > 1 {
				p.warning("Network is disconnected: %d components", len(components))
				for i, comp := range components {
					p.detail("%d: %s", i+1, strings.Join(comp, ", "))
				}
			} else {
				p.success("Network is connected: %d treatments, %d comparisons", len(g.Nodes), len(g.Edges))
			}
			if plotPath != "" {
				p.file(plotPath)
			}
			return nil
		},
	}

	in.register(cmd)
	of.registerContrast(cmd)
	cmd.Flags().StringVar(&plotPath, "plot", "", "write an SVG network plot to this file")
	cmd.Flags().StringVar(&highlight, "highlight", "", "treatment to highlight in the plot")
	cmd.Flags().BoolVar(&noLabels, "no-labels", false, "omit study counts on plot edges")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the plot cache")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the network as JSON")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "render tables as Markdown")

	return cmd
}
