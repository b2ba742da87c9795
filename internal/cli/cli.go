// Package cli implements the netmeta command-line interface.
package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/netmeta/pkg/buildinfo"
	"github.com/matzehuels/netmeta/pkg/cache"
	"github.com/matzehuels/netmeta/pkg/config"
	"github.com/matzehuels/netmeta/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for display.
const appName = "netmeta"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	verbose    bool
	cfg        *config.Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Netmeta runs frequentist network meta-analyses",
		Long: `Netmeta turns arm-level or pairwise study data into a network meta-analysis:
pairwise contrasts, the treatment network, fixed and random effects
estimates, league tables, P-score rankings and forest plot data.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			if c.verbose {
				c.SetLogLevel(LogDebug)
			} else {
				c.SetLogLevel(cfg.LogLevel())
			}
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "TOML configuration file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(c.contrastsCommand())
	root.AddCommand(c.networkCommand())
	root.AddCommand(c.analyzeCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.mcpCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.versionCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// config returns the loaded configuration, falling back to the defaults
// for commands executed without the root's pre-run hook.
func (c *CLI) config() *config.Config {
	if c.cfg == nil {
		c.cfg = config.Default()
	}
	return c.cfg
}

// newRunner creates a pipeline runner from the configuration. The solver
// and pipeline log at warning level unless --verbose is set.
func (c *CLI) newRunner(ctx context.Context, noCache bool) (*pipeline.Runner, error) {
	cfg := c.config()
	logger := quietLogger(c.Logger, c.verbose)
	if noCache {
		return pipeline.NewRunner(cfg.NewSolver(logger), cache.NewNullCache(), nil, logger), nil
	}
	store, keyer, err := cfg.NewCache(ctx)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(cfg.NewSolver(logger), store, keyer, logger), nil
}

// options returns the configured analysis defaults.
func (c *CLI) options() (pipeline.Options, error) {
	return c.config().PipelineOptions()
}
