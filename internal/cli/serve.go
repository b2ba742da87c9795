package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/netmeta/internal/httpapi"
	"github.com/matzehuels/netmeta/internal/mcpserver"
)

// serveCommand creates the serve command for the HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr    string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the MCP endpoint",
		Long: `Serve the JSON API under /v1 and the MCP Streamable HTTP endpoint under
/mcp. The server shuts down gracefully on interrupt.`,
		Example: `  netmeta serve
  netmeta serve --addr 127.0.0.1:9000
  NETMETA_SOLVER=rscript netmeta serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := c.config()
			if addr == "" {
				addr = cfg.Server.Addr
			}

			runner, err := c.newRunner(ctx, noCache)
			if err != nil {
				return err
			}
			defer runner.Close()

			mcp := mcpserver.New(runner, c.Logger)
			srv := httpapi.New(runner, mcp.Handler(), c.Logger)
			srv.ReadHeaderTimeout = cfg.Server.ReadTimeout.Duration
			srv.ShutdownTimeout = cfg.Server.ShutdownTimeout.Duration

			c.Logger.Info("serving", "addr", addr, "solver", runner.Solver.Name(), "cache", cfg.Cache.Backend)
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the plot cache")

	return cmd
}

// mcpCommand creates the mcp command for serving MCP over stdio.
func (c *CLI) mcpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		Long: `Serve the network meta-analysis tools to an MCP client over stdin and
stdout. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runner, err := c.newRunner(ctx, false)
			if err != nil {
				return err
			}
			defer runner.Close()

			return mcpserver.New(runner, c.Logger).RunStdio(ctx)
		},
	}
}
