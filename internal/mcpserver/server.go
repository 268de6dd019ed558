package mcpserver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/basemcp/internal/logging"
	"github.com/mbd888/basemcp/internal/metrics"
	"github.com/mbd888/basemcp/internal/traces"
)

const (
	ServerName    = "basemcp"
	ServerVersion = "1.0.0"
)

// NewMCPServer creates a configured MCP server with every tool whose
// service is present in d.
func NewMCPServer(d Deps) *server.MCPServer {
	s := server.NewMCPServer(ServerName, ServerVersion,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.AddTools(NewHandlers(d).Tools()...)
	return s
}

// NewHTTPHandler serves s over the streamable HTTP transport at path.
func NewHTTPHandler(s *server.MCPServer, path string) *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s, server.WithEndpointPath(path))
}

// Tools returns the registered tools, each wrapped with metrics, tracing
// and a log line.
func (h *Handlers) Tools() []server.ServerTool {
	var tools []server.ServerTool
	add := func(t mcp.Tool, fn server.ToolHandlerFunc) {
		tools = append(tools, server.ServerTool{Tool: t, Handler: instrument(t.Name, h.Logger, fn)})
	}

	if h.Wallet != nil {
		add(ToolGetAddress, h.HandleGetAddress)
		add(ToolListBalances, h.HandleListBalances)
		add(ToolGetTestnetETH, h.HandleGetTestnetETH)
		add(ToolTransferFunds, h.HandleTransferFunds)
		add(ToolERC20Balance, h.HandleERC20Balance)
		add(ToolERC20Transfer, h.HandleERC20Transfer)
		add(ToolERC20BatchTransfer, h.HandleERC20BatchTransfer)
		add(ToolERC721Balance, h.HandleERC721Balance)
		add(ToolERC721Transfer, h.HandleERC721Transfer)
		add(ToolCallContract, h.HandleCallContract)
		add(ToolDeployContract, h.HandleDeployContract)
	}
	if h.Prices != nil {
		add(ToolAssetPrice, h.HandleAssetPrice)
	}
	if h.Dexscreener != nil {
		add(ToolTokenPrice, h.HandleTokenPrice)
		add(ToolTokenInfo, h.HandleTokenInfo)
	}
	if h.Etherscan != nil {
		add(ToolAddressTransactions, h.HandleAddressTransactions)
		add(ToolContractInfo, h.HandleContractInfo)
		add(ToolRecentTransactions, h.HandleRecentTransactions)
		add(ToolListNFTs, h.HandleListNFTs)
	}
	if h.TxStatus != nil {
		add(ToolTransactionStatus, h.HandleTransactionStatus)
	}
	if h.ENS != nil {
		add(ToolResolveENS, h.HandleResolveENS)
		add(ToolLookupENS, h.HandleLookupENS)
	}
	if h.Neynar != nil {
		add(ToolFarcasterUsername, h.HandleFarcasterUsername)
	}
	if h.Talent != nil {
		add(ToolBuilderScore, h.HandleBuilderScore)
	}
	if h.Morpho != nil {
		add(ToolMorphoVaults, h.HandleMorphoVaults)
	}
	if h.Gas != nil {
		add(ToolOptimizeGas, h.HandleOptimizeGas)
	}
	if h.Events != nil {
		add(ToolContractEvents, h.HandleContractEvents)
	}
	if h.NFT != nil {
		add(ToolAnalyzeNFTCollection, h.HandleAnalyzeNFTCollection)
		add(ToolMintNFT, h.HandleMintNFT)
	}
	if h.Heurist != nil {
		add(ToolBuyHeuristCredits, h.HandleBuyHeuristCredits)
	}
	if h.DAO != nil {
		add(ToolCreateDAO, h.HandleCreateDAO)
		add(ToolCreateProposal, h.HandleCreateProposal)
		add(ToolListProposals, h.HandleListProposals)
		add(ToolProposalDetails, h.HandleProposalDetails)
		add(ToolCastVote, h.HandleCastVote)
	}
	add(ToolValidateABI, h.HandleValidateABI)
	add(ToolValidateClankerToken, h.HandleValidateClankerToken)
	return tools
}

func instrument(name string, logger *slog.Logger, next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := traces.StartSpan(ctx, "tool."+name, traces.Tool(name))
		ctx = logging.WithLogger(ctx, logger.With("tool", name))
		start := time.Now()

		res, err := next(ctx, req)

		d := time.Since(start)
		failed := err != nil || (res != nil && res.IsError)
		metrics.ObserveTool(name, failed, d)

		spanErr := err
		if spanErr == nil && failed {
			spanErr = errors.New(firstText(res))
		}
		traces.End(span, spanErr)

		if failed {
			logger.Warn("tool call failed", "tool", name, "duration_ms", d.Milliseconds(), "error", spanErr)
		} else {
			logger.Info("tool call", "tool", name, "duration_ms", d.Milliseconds())
		}
		return res, err
	}
}

func firstText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return "tool error"
}
