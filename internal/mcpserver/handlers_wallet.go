package mcpserver

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/mbd888/basemcp/internal/chains"
	"github.com/mbd888/basemcp/internal/contracts"
	"github.com/mbd888/basemcp/internal/units"
	"github.com/mbd888/basemcp/internal/wallet"
)

const (
	faucetListURL = "https://docs.base.org/chain/network-faucets"
	batchLimit    = 4
)

// HandleGetAddress returns the wallet address and network.
func (h *Handlers) HandleGetAddress(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	addr, err := h.Wallet.Address()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get address: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"address": addr.Hex(),
		"chainId": h.Wallet.ChainID(),
		"network": chains.Name(h.Wallet.ChainID()),
	})
}

// Balance is one list_balances entry.
type Balance struct {
	Asset           string `json:"asset"`
	ContractAddress string `json:"contractAddress,omitempty"`
	Balance         string `json:"balance"`
	Decimals        uint8  `json:"decimals"`
}

// HandleListBalances reads ETH, USDC and any extra token balances
// concurrently.
func (h *Handlers) HandleListBalances(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	addr, err := h.Wallet.Address()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list balances: %v", err)), nil
	}
	extra, err := stringSlice(req, "tokens")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tokens := []common.Address{h.Wallet.USDC()}
	for _, t := range extra {
		a, err := wallet.ParseAddress(t)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid token address: %s", t)), nil
		}
		if a != h.Wallet.USDC() {
			tokens = append(tokens, a)
		}
	}

	balances := make([]Balance, len(tokens)+1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		wei, err := h.Wallet.NativeBalance(gctx, addr)
		if err != nil {
			return err
		}
		balances[0] = Balance{Asset: "ETH", Balance: units.FormatEther(wei), Decimals: units.EtherDecimals}
		return nil
	})
	for i, token := range tokens {
		g.Go(func() error {
			meta, err := h.Wallet.TokenMetadata(gctx, token)
			if err != nil {
				return fmt.Errorf("%s: %w", token.Hex(), err)
			}
			bal, err := h.Wallet.TokenBalance(gctx, token, addr)
			if err != nil {
				return fmt.Errorf("%s: %w", token.Hex(), err)
			}
			balances[i+1] = Balance{
				Asset:           meta.Symbol,
				ContractAddress: token.Hex(),
				Balance:         units.Format(bal, int(meta.Decimals)),
				Decimals:        meta.Decimals,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list balances: %v", err)), nil
	}
	return jsonResult(map[string]any{"address": addr.Hex(), "balances": balances})
}

// HandleGetTestnetETH points at the Base Sepolia faucets.
func (h *Handlers) HandleGetTestnetETH(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := chains.RequireSupported(h.Wallet.ChainID(), chains.BaseSepolia); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	addr, err := h.Wallet.Address()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get testnet ETH: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"address": addr.Hex(),
		"faucets": faucetListURL,
		"message": "Request Base Sepolia ETH for " + addr.Hex() + " from one of the faucets listed at " + faucetListURL,
	})
}

// HandleTransferFunds sends ETH, USDC or a token and waits for the receipt.
func (h *Handlers) HandleTransferFunds(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	to, err := wallet.ParseAddress(req.GetString("recipient", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid recipient address: %s", req.GetString("recipient", ""))), nil
	}
	amount := numberString(req, "amount")
	asset := strings.TrimSpace(req.GetString("assetId", ""))

	var hash common.Hash
	switch strings.ToLower(asset) {
	case "eth":
		wei, perr := units.ParseEther(amount)
		if perr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid amount: %s", amount)), nil
		}
		hash, err = h.Wallet.TransferNative(ctx, to, wei)
	case "usdc":
		value, perr := units.Parse(amount, units.USDCDecimals)
		if perr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid amount: %s", amount)), nil
		}
		hash, err = h.Wallet.TransferToken(ctx, h.Wallet.USDC(), to, value)
	default:
		token, perr := wallet.ParseAddress(asset)
		if perr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid assetId: %s (use eth, usdc or a token address)", asset)), nil
		}
		hash, err = h.transferToken(ctx, token, to, amount)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to transfer funds: %s", errorText(err))), nil
	}

	status := "success"
	if _, err := h.Wallet.WaitForReceipt(ctx, hash, h.receiptTimeout); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to transfer funds: %s", errorText(err))), nil
	}
	return jsonResult(map[string]any{"hash": hash.Hex(), "url": h.txURL(hash), "status": status})
}

// transferToken converts a whole-token amount with the token's decimals.
func (h *Handlers) transferToken(ctx context.Context, token, to common.Address, amount string) (common.Hash, error) {
	meta, err := h.Wallet.TokenMetadata(ctx, token)
	if err != nil {
		return common.Hash{}, err
	}
	value, err := units.Parse(amount, int(meta.Decimals))
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %s", wallet.ErrInvalidAmount, amount)
	}
	return h.Wallet.TransferToken(ctx, token, to, value)
}

// HandleERC20Balance reads one token balance.
func (h *Handlers) HandleERC20Balance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := wallet.ParseAddress(req.GetString("contractAddress", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid contract address: %s", req.GetString("contractAddress", ""))), nil
	}
	holder, res := h.holder(req)
	if res != nil {
		return res, nil
	}
	meta, err := h.Wallet.TokenMetadata(ctx, token)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get token balance: %v", err)), nil
	}
	bal, err := h.Wallet.TokenBalance(ctx, token, holder)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get token balance: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"contractAddress": token.Hex(),
		"address":         holder.Hex(),
		"balance":         units.Format(bal, int(meta.Decimals)),
		"symbol":          meta.Symbol,
		"decimals":        meta.Decimals,
	})
}

// HandleERC20Transfer sends whole-token amounts.
func (h *Handlers) HandleERC20Transfer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := wallet.ParseAddress(req.GetString("contractAddress", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid contract address: %s", req.GetString("contractAddress", ""))), nil
	}
	to, err := wallet.ParseAddress(req.GetString("toAddress", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid recipient address: %s", req.GetString("toAddress", ""))), nil
	}
	hash, err := h.transferToken(ctx, token, to, numberString(req, "amount"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to transfer tokens: %s", errorText(err))), nil
	}
	return jsonResult(map[string]any{"hash": hash.Hex(), "url": h.txURL(hash)})
}

// BatchRecipient is one erc20_batch_transfer target. Amount is in base units.
type BatchRecipient struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// BatchResult is one completed transfer.
type BatchResult struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
	TxHash  string `json:"txHash"`
}

// HandleERC20BatchTransfer validates every recipient, then sends up to
// batchLimit transfers at a time. The wallet serialises nonces.
func (h *Handlers) HandleERC20BatchTransfer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := wallet.ParseAddress(req.GetString("tokenAddress", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid token address: %s", req.GetString("tokenAddress", ""))), nil
	}
	var recipients []BatchRecipient
	if err := decodeArg(req, "recipients", &recipients); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(recipients) == 0 {
		return mcp.NewToolResultError("At least one recipient is required"), nil
	}

	addrs := make([]common.Address, len(recipients))
	amounts := make([]*big.Int, len(recipients))
	total := new(big.Int)
	for i, r := range recipients {
		a, err := wallet.ParseAddress(r.Address)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid recipient address: %s", r.Address)), nil
		}
		v, ok := units.ParseBig(r.Amount)
		if !ok || v.Sign() <= 0 {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid amount for %s: %s", r.Address, r.Amount)), nil
		}
		addrs[i], amounts[i] = a, v
		total.Add(total, v)
	}

	from, err := h.Wallet.Address()
	if err != nil {
		return batchError(err)
	}
	bal, err := h.Wallet.TokenBalance(ctx, token, from)
	if err != nil {
		return batchError(err)
	}
	if bal.Cmp(total) < 0 {
		return batchError(fmt.Errorf("%w: have %s, need %s", wallet.ErrInsufficientBalance, bal, total))
	}

	results := make([]BatchResult, len(recipients))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchLimit)
	for i := range recipients {
		g.Go(func() error {
			hash, err := h.Wallet.TransferToken(gctx, token, addrs[i], amounts[i])
			if err != nil {
				return fmt.Errorf("transfer to %s: %s", addrs[i].Hex(), errorText(err))
			}
			results[i] = BatchResult{Address: addrs[i].Hex(), Amount: amounts[i].String(), TxHash: hash.Hex()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return batchError(err)
	}
	return jsonResult(map[string]any{"message": "Batch transfer completed", "transactions": results})
}

func batchError(err error) (*mcp.CallToolResult, error) {
	res, _ := jsonResult(map[string]any{"error": errorText(err)})
	res.IsError = true
	return res, nil
}

// HandleERC721Balance counts the holder's tokens in a collection.
func (h *Handlers) HandleERC721Balance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contract, err := wallet.ParseAddress(req.GetString("contractAddress", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid contract address: %s", req.GetString("contractAddress", ""))), nil
	}
	holder, res := h.holder(req)
	if res != nil {
		return res, nil
	}
	bal, err := h.Wallet.NFTBalance(ctx, contract, holder)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get NFT balance: %v", err)), nil
	}
	return mcp.NewToolResultText(bal.String()), nil
}

// HandleERC721Transfer sends one token of a collection.
func (h *Handlers) HandleERC721Transfer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contract, err := wallet.ParseAddress(req.GetString("contractAddress", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid contract address: %s", req.GetString("contractAddress", ""))), nil
	}
	to, err := wallet.ParseAddress(req.GetString("toAddress", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid recipient address: %s", req.GetString("toAddress", ""))), nil
	}
	id, ok := units.ParseBig(numberString(req, "tokenId"))
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid token ID: %s", numberString(req, "tokenId"))), nil
	}
	hash, err := h.Wallet.TransferNFT(ctx, contract, to, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to transfer NFT: %s", errorText(err))), nil
	}
	return jsonResult(map[string]any{"hash": hash.Hex(), "url": h.txURL(hash)})
}

// HandleCallContract reads view functions and sends everything else.
func (h *Handlers) HandleCallContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	to, err := wallet.ParseAddress(req.GetString("contractAddress", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid contract address: %s", req.GetString("contractAddress", ""))), nil
	}
	parsed, err := contracts.ParseABI(req.GetArguments()["abi"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to call contract: %v", err)), nil
	}
	method, err := contracts.Method(parsed, req.GetString("functionName", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to call contract: %v", err)), nil
	}
	rawArgs, err := anySlice(req, "functionArgs")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args, err := contracts.CoerceArgs(method.Inputs, rawArgs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to call contract: %v", err)), nil
	}

	if contracts.IsReadOnly(method) {
		out, err := h.Wallet.Read(ctx, parsed, to, method.Name, args...)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to call contract: %v", err)), nil
		}
		return jsonResult(contracts.DecodeOutputs(out))
	}

	var value *big.Int
	if v := numberString(req, "value"); v != "" {
		if value, err = units.ParseEther(v); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid value: %s", v)), nil
		}
	}
	data, err := parsed.Pack(method.Name, args...)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to call contract: %v", err)), nil
	}
	tx, err := h.Wallet.Send(ctx, "call_contract", wallet.TxRequest{To: &to, Value: value, Data: data})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to call contract: %s", errorText(err))), nil
	}
	receipt, err := h.Wallet.WaitForReceipt(ctx, tx.Hash(), h.receiptTimeout)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to call contract: %s", errorText(err))), nil
	}
	return jsonResult(receiptResult(h, tx.Hash(), receipt))
}

func receiptResult(h *Handlers, hash common.Hash, r *types.Receipt) map[string]any {
	out := map[string]any{"hash": hash.Hex(), "url": h.txURL(hash), "gasUsed": r.GasUsed}
	if r.BlockNumber != nil {
		out["blockNumber"] = r.BlockNumber.Uint64()
	}
	return out
}

// HandleDeployContract deploys creation code and waits for it to be mined.
func (h *Handlers) HandleDeployContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	parsed, err := contracts.ParseABI(req.GetArguments()["abi"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to deploy contract: %v", err)), nil
	}
	code, err := contracts.ParseBytecode(req.GetString("bytecode", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to deploy contract: %v", err)), nil
	}
	rawArgs, err := anySlice(req, "constructorArgs")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args, err := contracts.CoerceArgs(parsed.Constructor.Inputs, rawArgs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to deploy contract: %v", err)), nil
	}

	addr, hash, err := h.Wallet.Deploy(ctx, parsed, code, args...)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to deploy contract: %s", errorText(err))), nil
	}
	if _, err := h.Wallet.WaitForReceipt(ctx, hash, h.receiptTimeout); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to deploy contract: %s", errorText(err))), nil
	}
	return jsonResult(map[string]any{"contractAddress": addr.Hex(), "hash": hash.Hex(), "url": h.txURL(hash)})
}

// HandleMintNFT mints from the configured collection.
func (h *Handlers) HandleMintNFT(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uri := strings.TrimSpace(req.GetString("tokenURI", ""))
	if uri == "" {
		return mcp.NewToolResultError("tokenURI is required"), nil
	}
	minted, err := h.NFT.Mint(ctx, req.GetString("to", ""), uri)
	if err != nil {
		return mcp.NewToolResultError(errorText(err)), nil
	}
	return jsonResult(minted)
}

// HandleBuyHeuristCredits buys Heurist credits. Failures come back as the
// explanatory text BuyCredits produces.
func (h *Handlers) HandleBuyHeuristCredits(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msg, err := h.Heurist.BuyCredits(ctx, req.GetString("tokenSymbol", ""), req.GetFloat("amount", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(msg), nil
}

// holder reads the optional address argument, defaulting to the wallet.
func (h *Handlers) holder(req mcp.CallToolRequest) (common.Address, *mcp.CallToolResult) {
	if s := req.GetString("address", ""); s != "" {
		a, err := wallet.ParseAddress(s)
		if err != nil {
			return common.Address{}, mcp.NewToolResultError(fmt.Sprintf("Invalid address: %s", s))
		}
		return a, nil
	}
	a, err := h.Wallet.Address()
	if err != nil {
		return common.Address{}, mcp.NewToolResultError("address is required: " + err.Error())
	}
	return a, nil
}

func (h *Handlers) txURL(hash common.Hash) string {
	return chains.TxURL(h.Wallet.ChainID(), hash.Hex())
}
