// Package mcpserver exposes the analysis pipeline as Model Context Protocol
// tools.
//
// Every tool is stateless: it receives the data it works on and re-runs the
// pipeline stages it needs. Nothing is retained between calls, so a client
// that wants a league table after runnetmeta passes the same contrasts
// again.
package mcpserver

import (
	"context"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/matzehuels/netmeta/pkg/buildinfo"
	"github.com/matzehuels/netmeta/pkg/pipeline"
)

// Name is the implementation name announced to clients.
const Name = "netmeta"

const instructions = `Network meta-analysis tools.

Typical flow:
  1. csv_to_json parses a CSV table (pairwise, arm_binary or arm_continuous).
  2. pairwise_to_netmeta converts arm-level records into pairwise contrasts.
  3. runnetmeta fits fixed and random effects models to the contrasts.
  4. get_network_graph, get_league_table, get_ranking and get_forest_data
     derive the individual outputs from the same contrasts.

Contrasts carry study, treat1, treat2, TE and seTE. TE is on the log scale
for OR and RR. Tools keep no state between calls.`

// Server wraps the MCP SDK server and the pipeline runner its tools use.
type Server struct {
	MCPServer *sdkmcp.Server

	runner *pipeline.Runner
	log    *log.Logger
}

// New creates a server with every tool registered. A nil logger discards
// output.
func New(runner *pipeline.Runner, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if runner == nil {
		runner = pipeline.NewRunner(nil, nil, nil, logger)
	}
	s := &Server{
		MCPServer: sdkmcp.NewServer(
			&sdkmcp.Implementation{Name: Name, Version: buildinfo.Version},
			&sdkmcp.ServerOptions{Instructions: instructions},
		),
		runner: runner,
		log:    logger.With("component", "mcp"),
	}
	s.registerTools()
	return s
}

// RunStdio serves one client over stdin and stdout until ctx ends or the
// client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	s.log.Info("serving MCP over stdio")
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

// Handler returns a Streamable HTTP handler serving the same tools.
func (s *Server) Handler() http.Handler {
	return sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server {
		return s.MCPServer
	}, nil)
}
