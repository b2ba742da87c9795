package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/estimator"
	"github.com/matzehuels/netmeta/pkg/pipeline"
)

// optionFlags are the analysis options settable on the command line. Only
// flags the user sets override the configuration.
type optionFlags struct {
	measure     string
	increment   float64
	reference   string
	models      string
	level       float64
	smallValues string
	timeout     time.Duration
}

// registerContrast adds the options of the contrast stage.
func (f *optionFlags) registerContrast(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.measure, "sm", "", "summary measure: OR, RR, RD, MD, SMD")
	cmd.Flags().Float64Var(&f.increment, "increment", contrast.DefaultIncrement, "continuity correction for zero cells")
}

// registerAnalysis adds every analysis option.
func (f *optionFlags) registerAnalysis(cmd *cobra.Command) {
	f.registerContrast(cmd)
	cmd.Flags().StringVarP(&f.reference, "reference", "r", "", "reference treatment (default: first in sorted order)")
	cmd.Flags().StringVar(&f.models, "models", "", "comma-separated models to fit: fixed, random")
	cmd.Flags().Float64Var(&f.level, "level", estimator.DefaultLevel, "confidence level")
	cmd.Flags().StringVar(&f.smallValues, "small-values", string(estimator.DefaultSmallValues), "whether small effects are good or bad: desirable, undesirable")
	cmd.Flags().DurationVar(&f.timeout, "timeout", estimator.DefaultTimeout, "estimation timeout")
}

// apply overlays the flags the user set onto opts.
func (f *optionFlags) apply(cmd *cobra.Command, opts *pipeline.Options) error {
	changed := cmd.Flags().Changed
	if changed("sm") {
		m, err := contrast.ParseMeasure(f.measure)
		if err != nil {
			return err
		}
		opts.Measure = m
	}
	if changed("increment") {
		opts.Increment = f.increment
	}
	if changed("reference") {
		opts.Reference = f.reference
	}
	if changed("models") {
		opts.Models = nil
		for _, s := range strings.Split(f.models, ",") {
			m, err := estimator.ParseModel(strings.TrimSpace(s))
			if err != nil {
				return err
			}
			opts.Models = append(opts.Models, m)
		}
	}
	if changed("level") {
		opts.Level = f.level
	}
	if changed("small-values") {
		opts.SmallValues = estimator.SmallValues(f.smallValues)
	}
	if changed("timeout") {
		opts.Timeout = f.timeout
	}
	return nil
}

// overlay copies the options set in src onto dst.
func overlay(dst *pipeline.Options, src pipeline.Options) {
	if src.Measure != "" {
		dst.Measure = src.Measure
	}
	if src.Reference != "" {
		dst.Reference = src.Reference
	}
	if len(src.Models) > 0 {
		dst.Models = src.Models
	}
	if src.Increment != 0 {
		dst.Increment = src.Increment
	}
	if src.Timeout != 0 {
		dst.Timeout = src.Timeout
	}
	if src.Level != 0 {
		dst.Level = src.Level
	}
	if src.SmallValues != "" {
		dst.SmallValues = src.SmallValues
	}
	dst.Plot = dst.Plot || src.Plot
}
