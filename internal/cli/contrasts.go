package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/netmeta/pkg/contrast"
)

// contrastsCommand creates the contrasts command for converting study data.
func (c *CLI) contrastsCommand() *cobra.Command {
	var (
		in       inputFlags
		of       optionFlags
		jsonOut  bool
		markdown bool
	)

	cmd := &cobra.Command{
		Use:   "contrasts <file>",
		Short: "Convert study data into pairwise contrasts",
		Long: `Convert arm-level or pairwise study data into pairwise contrasts.

Binary arms (events, n) become log odds ratios, log risk ratios or risk
differences; continuous arms (mean, sd, n) become mean differences or
standardized mean differences. Multi-arm studies yield one contrast per
non-reference arm, sharing the reference arm's covariance.`,
		Example: `  netmeta contrasts trials.csv --format arm_binary --sm RR
  netmeta contrasts data.xlsx --format arm_continuous --sheet Outcomes --json
  cat pairs.csv | netmeta contrasts -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.options()
			if err != nil {
				return err
			}
			if err := of.apply(cmd, &opts); err != nil {
				return err
			}
			cs, opts, err := in.contrasts(cmd.InOrStdin(), args[0], opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, cs)
			}
			tableWriter{w: out, markdown: markdown}.contrasts(cs)

			p := printer{w: out}
			corrected := 0
			for _, pc := range cs {
				if pc.Corrected {
					corrected++
				}
			}
			p.success("%d contrasts from %d studies (%s)", len(cs), len(contrast.Studies(cs)), opts.Measure.Scale())
			if corrected > 0 {
				p.detail("%d contrasts received a continuity correction of %g", corrected, opts.Increment)
			}
			p.nextStep("Run the analysis", fmt.Sprintf("%s analyze %s --format %s", appName, args[0], in.format))
			return nil
		},
	}

	in.register(cmd)
	of.registerContrast(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print contrasts as JSON")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "render tables as Markdown")

	return cmd
}
