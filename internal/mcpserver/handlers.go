package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/basemcp/internal/clanker"
	"github.com/mbd888/basemcp/internal/contracts"
	"github.com/mbd888/basemcp/internal/dao"
	"github.com/mbd888/basemcp/internal/dexscreener"
	"github.com/mbd888/basemcp/internal/ens"
	"github.com/mbd888/basemcp/internal/etherscan"
	"github.com/mbd888/basemcp/internal/gas"
	"github.com/mbd888/basemcp/internal/heurist"
	"github.com/mbd888/basemcp/internal/morpho"
	"github.com/mbd888/basemcp/internal/neynar"
	"github.com/mbd888/basemcp/internal/nft"
	"github.com/mbd888/basemcp/internal/prices"
	"github.com/mbd888/basemcp/internal/talent"
	"github.com/mbd888/basemcp/internal/txstatus"
	"github.com/mbd888/basemcp/internal/wallet"
	"github.com/mbd888/basemcp/internal/watcher"
)

// Deps are the services behind the tools. A nil service leaves its tools
// unregistered.
type Deps struct {
	Wallet      *wallet.Wallet
	Prices      *prices.Service
	Dexscreener *dexscreener.Client
	Etherscan   *etherscan.Client
	TxStatus    *txstatus.Checker
	ENS         *ens.Resolver
	Neynar      *neynar.Client
	Talent      *talent.Client
	Morpho      *morpho.Client
	Gas         *gas.Optimizer
	Events      watcher.LogReader
	NFT         *nft.Service
	Heurist     *heurist.Service
	DAO         *dao.Service
	Logger      *slog.Logger
}

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	Deps
	receiptTimeout time.Duration
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(d Deps) *Handlers {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handlers{Deps: d, receiptTimeout: wallet.DefaultReceiptTimeout}
}

// HandleAssetPrice quotes one or more symbols.
func (h *Handlers) HandleAssetPrice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	symbols, err := stringSlice(req, "assetSymbols")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := h.Prices.Lookup(ctx, prices.Request{
		AssetSymbols:    symbols,
		Currency:        req.GetString("currency", "USD"),
		IncludeMetadata: req.GetBool("includeMetadata", false),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(resp)
}

// HandleTokenPrice returns the Dexscreener USD price of a token.
func (h *Handlers) HandleTokenPrice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := h.Dexscreener.Price(ctx, req.GetString("contractAddress", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(p)
}

// HandleTokenInfo returns the main trading pair of a token.
func (h *Handlers) HandleTokenInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info, err := h.Dexscreener.Info(ctx, req.GetString("contractAddress", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(info)
}

// HandleAddressTransactions lists an address's transactions with their
// token transfers.
func (h *Handlers) HandleAddressTransactions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	txs, err := h.Etherscan.AddressTransactions(ctx, etherscan.TxQuery{
		Address:    req.GetString("address", ""),
		ChainID:    int64(req.GetFloat("chainId", 0)),
		StartBlock: int64(req.GetFloat("startblock", 0)),
		EndBlock:   int64(req.GetFloat("endblock", 0)),
		Page:       req.GetInt("page", 1),
		Offset:     req.GetInt("offset", 5),
		Sort:       req.GetString("sort", "desc"),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(txs)
}

// HandleContractInfo returns a contract's verification metadata.
func (h *Handlers) HandleContractInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info, err := h.Etherscan.ContractInfo(ctx, req.GetString("address", ""), int64(req.GetFloat("chainId", 0)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(info)
}

// HandleRecentTransactions returns the five newest transactions of an address.
func (h *Handlers) HandleRecentTransactions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recent, err := h.Etherscan.RecentTransactions(ctx, req.GetString("address", ""), int64(req.GetFloat("chainId", 0)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(recent)
}

// HandleListNFTs lists the NFTs an address holds.
func (h *Handlers) HandleListNFTs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner := req.GetString("address", "")
	if owner == "" {
		if h.Wallet == nil {
			return mcp.NewToolResultError("address is required"), nil
		}
		addr, err := h.Wallet.Address()
		if err != nil {
			return mcp.NewToolResultError("address is required: " + err.Error()), nil
		}
		owner = addr.Hex()
	}
	holdings, err := h.Etherscan.NFTs(ctx, owner, req.GetString("contractAddress", ""), int64(req.GetFloat("chainId", 0)))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list NFTs: %v", err)), nil
	}
	return jsonResult(holdings)
}

// HandleTransactionStatus reports whether a transaction is mined.
func (h *Handlers) HandleTransactionStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := h.TxStatus.Check(ctx, req.GetString("txHash", ""), int64(req.GetFloat("chainId", 0)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

// HandleResolveENS resolves a name to an address.
func (h *Handlers) HandleResolveENS(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := strings.TrimSpace(req.GetString("name", ""))
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}
	chainID := int64(req.GetFloat("chainId", 1))
	addr, err := h.ENS.ResolveName(ctx, name, chainID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"name": name, "address": addr.Hex(), "chainId": chainID})
}

// HandleLookupENS returns the primary name of an address.
func (h *Handlers) HandleLookupENS(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	addr, err := wallet.ParseAddress(req.GetString("address", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid address: %s", req.GetString("address", ""))), nil
	}
	chainID := int64(req.GetFloat("chainId", 1))
	name, err := h.ENS.LookupAddress(ctx, addr, chainID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"address": addr.Hex(), "name": name, "chainId": chainID})
}

// HandleFarcasterUsername finds a Farcaster user's verified address. Lookups
// that find nothing return {success:false} as text, not a tool error.
func (h *Handlers) HandleFarcasterUsername(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.Neynar.Username(ctx, req.GetString("username", ""))
	if err != nil {
		return jsonResult(map[string]any{"success": false, "error": err.Error()})
	}
	return jsonResult(res)
}

// HandleBuilderScore returns a Talent Protocol passport summary.
func (h *Handlers) HandleBuilderScore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := h.Talent.BuilderScore(ctx, req.GetString("builderAddress", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

// HandleMorphoVaults lists Morpho vaults on the configured chain.
func (h *Handlers) HandleMorphoVaults(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vaults, err := h.Morpho.Vaults(ctx, h.chainID(), req.GetString("assetSymbol", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(vaults)
}

// HandleValidateABI checks an ABI's shape.
func (h *Handlers) HandleValidateABI(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res := contracts.ValidateABI(req.GetArguments()["abi"], contracts.ValidateOptions{
		Bytecode:            req.GetString("bytecode", ""),
		ValidateConstructor: req.GetBool("validateConstructor", true),
		ValidateFunctions:   req.GetBool("validateFunctions", true),
		ValidateEvents:      req.GetBool("validateEvents", true),
	})
	return jsonResult(res)
}

// HandleOptimizeGas recommends a gas price.
func (h *Handlers) HandleOptimizeGas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rec, err := h.Gas.Optimize(ctx, gas.Request{
		Strategy:    req.GetString("strategy", gas.Medium),
		MaxGasPrice: numberString(req, "maxGasPrice"),
		GasLimit:    uint64(req.GetFloat("gasLimit", 0)),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to optimize gas: %v", err)), nil
	}
	return jsonResult(rec)
}

// HandleContractEvents fetches one event's logs from a contract.
func (h *Handlers) HandleContractEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contract, err := wallet.ParseAddress(req.GetString("contractAddress", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid contract address: %s", req.GetString("contractAddress", ""))), nil
	}
	events, err := watcher.Events(ctx, h.Events, watcher.EventQuery{
		Contract:  contract,
		Signature: req.GetString("event", ""),
		FromBlock: optionalBlock(req, "fromBlock"),
		ToBlock:   optionalBlock(req, "toBlock"),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get contract events: %v", err)), nil
	}
	return jsonResult(events)
}

// HandleAnalyzeNFTCollection reads a collection's metadata.
func (h *Handlers) HandleAnalyzeNFTCollection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := h.NFT.Analyze(ctx, req.GetString("contractAddress", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(c)
}

// HandleValidateClankerToken checks launch parameters.
func (h *Handlers) HandleValidateClankerToken(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(clanker.Validate(clanker.Token{
		Name:   req.GetString("name", ""),
		Symbol: req.GetString("symbol", ""),
		Image:  req.GetString("image", ""),
	}))
}

func (h *Handlers) chainID() int64 {
	if h.Wallet != nil {
		return h.Wallet.ChainID()
	}
	return 0
}

// --- Argument helpers ---

// stringSlice reads a required array of strings.
func stringSlice(req mcp.CallToolRequest, key string) ([]string, error) {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		if s, isStrings := req.GetArguments()[key].([]string); isStrings {
			return s, nil
		}
		return nil, nil
	}
	out := make([]string, 0, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string", key, i)
		}
		out = append(out, s)
	}
	return out, nil
}

// anySlice reads an optional array argument.
func anySlice(req mcp.CallToolRequest, key string) ([]any, error) {
	v, present := req.GetArguments()[key]
	if !present || v == nil {
		return nil, nil
	}
	s, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array", key)
	}
	return s, nil
}

// numberString reads a string-or-number argument as a decimal string.
func numberString(req mcp.CallToolRequest, key string) string {
	switch v := req.GetArguments()[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return trimFloat(v)
	case json.Number:
		return v.String()
	}
	return ""
}

func optionalBlock(req mcp.CallToolRequest, key string) *uint64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok || v < 0 {
		return nil
	}
	b := uint64(v)
	return &b
}

func trimFloat(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.18f", v), "0"), ".")
}

// decodeArg converts a decoded JSON argument into out.
func decodeArg(req mcp.CallToolRequest, key string, out any) error {
	v, present := req.GetArguments()[key]
	if !present || v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	return nil
}

// --- Formatting helpers ---

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorText unwraps a wallet TxError down to its cause for display while
// keeping the hash, when there is one.
func errorText(err error) string {
	var txErr *wallet.TxError
	if errors.As(err, &txErr) && txErr.TxHash != "" {
		return fmt.Sprintf("%v (tx: %s)", txErr.Err, txErr.TxHash)
	}
	return err.Error()
}
