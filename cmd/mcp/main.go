// Command basemcp serves Base blockchain tools to LLM hosts over the Model
// Context Protocol, on stdio by default or over streamable HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	mcpgo "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/mbd888/basemcp/internal/config"
	"github.com/mbd888/basemcp/internal/logging"
	"github.com/mbd888/basemcp/internal/mcpserver"
	"github.com/mbd888/basemcp/internal/server"
	"github.com/mbd888/basemcp/internal/traces"
)

// Build info, set by ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

var (
	cfg    *config.Config
	logger *slog.Logger

	mcpPath string
)

var rootCmd = &cobra.Command{
	Use:          "basemcp",
	Short:        "MCP server for wallets, tokens and data on Base",
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		logger = logging.New(cfg.LogLevel, cfg.LogFormat)
		slog.SetDefault(logger)
		return nil
	},
	RunE: runStdio,
}

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve MCP over stdin/stdout (default)",
	RunE:  runStdio,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over streamable HTTP with health and metrics endpoints",
	RunE:  runServe,
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the current configuration registers",
	RunE:  runTools,
}

func init() {
	serveCmd.Flags().StringVar(&mcpPath, "path", server.DefaultMCPPath, "HTTP path of the MCP endpoint")
	rootCmd.AddCommand(stdioCmd, serveCmd, toolsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup starts tracing and builds the services. The returned func releases
// both.
func setup(ctx context.Context) (*runtime, func(), error) {
	shutdownTraces, err := traces.Init(ctx, mcpserver.ServerName, Version, cfg.OTLPEndpoint, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init tracing: %w", err)
	}
	rt, err := build(ctx, cfg, logger)
	if err != nil {
		_ = shutdownTraces(context.Background())
		return nil, nil, err
	}
	logger.Info("starting basemcp", "version", Version, "commit", Commit, "chain_id", cfg.ChainID, "env", cfg.Env)
	return rt, func() {
		rt.Close()
		if err := shutdownTraces(context.Background()); err != nil {
			logger.Warn("trace shutdown failed", "error", err)
		}
	}, nil
}

func runStdio(cmd *cobra.Command, _ []string) error {
	rt, cleanup, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	return mcpgo.ServeStdio(mcpserver.NewMCPServer(rt.deps))
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	s := mcpserver.NewMCPServer(rt.deps)
	opts := append([]server.Option{
		server.WithLogger(logger),
		server.WithMCP(mcpPath, mcpserver.NewHTTPHandler(s, mcpPath)),
	}, rt.checks...)
	server.Version = Version
	return server.New(cfg, opts...).Run(ctx)
}

func runTools(cmd *cobra.Command, _ []string) error {
	rt, cleanup, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	tools := mcpserver.NewHandlers(rt.deps).Tools()
	sort.Slice(tools, func(i, j int) bool { return tools[i].Tool.Name < tools[j].Tool.Name })

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, t := range tools {
		fmt.Fprintf(w, "%s\t%s\n", t.Tool.Name, firstLine(t.Tool.Description))
	}
	return w.Flush()
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' || r == '.' {
			return s[:i]
		}
	}
	return s
}
