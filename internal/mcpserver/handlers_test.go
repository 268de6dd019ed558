package mcpserver

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mark3labs/mcp-go/mcp"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/basemcp/internal/dao"
	"github.com/mbd888/basemcp/internal/metrics"
	"github.com/mbd888/basemcp/internal/prices"
	"github.com/mbd888/basemcp/internal/retry"
	"github.com/mbd888/basemcp/internal/testutil"
	"github.com/mbd888/basemcp/internal/upstream"
	"github.com/mbd888/basemcp/internal/wallet"
)

const (
	testKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

	tokenABI = `[
		{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`
)

var (
	usdc      = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	recipient = common.HexToAddress("0x000000000000000000000000000000000000bEEF")
)

// --- Test helpers ---

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent")
	return tc.Text
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	return out
}

func mustABI(t *testing.T, s string) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(s))
	require.NoError(t, err)
	return parsed
}

// newWalletHandlers wires a signing wallet on a fake Base chain holding
// 1 ETH and 1,000 USDC.
func newWalletHandlers(t *testing.T, chainID int64) (*Handlers, *testutil.FakeEthClient) {
	t.Helper()
	fake := testutil.NewFakeEthClient(chainID)
	w, err := wallet.New(wallet.Config{ChainID: chainID, PrivateKey: testKey, USDCContract: usdc.Hex()},
		wallet.WithClient(fake), wallet.WithPollInterval(time.Millisecond))
	require.NoError(t, err)

	fake.SetBalance(common.HexToAddress(testAddress), big.NewInt(1e18))
	erc20 := mustABI(t, tokenABI)
	fake.Stub(usdc, erc20, "balanceOf", func([]any) ([]any, error) { return []any{big.NewInt(1_000_000_000)}, nil })
	fake.Stub(usdc, erc20, "decimals", func([]any) ([]any, error) { return []any{uint8(6)}, nil })
	fake.Stub(usdc, erc20, "symbol", func([]any) ([]any, error) { return []any{"USDC"}, nil })
	fake.Stub(usdc, erc20, "name", func([]any) ([]any, error) { return []any{"USD Coin"}, nil })

	h := NewHandlers(Deps{Wallet: w})
	h.receiptTimeout = time.Second
	return h, fake
}

// --- Registration ---

func TestTools_RegisteredByDeps(t *testing.T) {
	var names []string
	for _, st := range NewHandlers(Deps{}).Tools() {
		names = append(names, st.Tool.Name)
	}
	assert.ElementsMatch(t, []string{"validate_abi", "validate_clanker_token"}, names)

	h, _ := newWalletHandlers(t, 8453)
	h.DAO = dao.NewService(dao.NewMemoryStore())
	registered := map[string]bool{}
	for _, st := range h.Tools() {
		registered[st.Tool.Name] = true
	}
	for _, name := range []string{"get_address", "list_balances", "transfer_funds", "erc20_batch_transfer", "call_contract", "deploy_contract", "create_dao", "cast_dao_vote"} {
		assert.True(t, registered[name], name)
	}
	assert.False(t, registered["asset_price"], "price tools need a price service")
}

func TestNewMCPServer_ListsTools(t *testing.T) {
	s := NewMCPServer(Deps{})
	msg := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "validate_abi")
	assert.Contains(t, string(data), "validate_clanker_token")
}

func TestInstrument_CountsFailures(t *testing.T) {
	failing := instrument("test_failing_tool", NewHandlers(Deps{}).Logger,
		func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("boom"), nil
		})
	before := promtest.ToFloat64(metrics.ToolCallsTotal.WithLabelValues("test_failing_tool", "error"))

	res, err := failing(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "boom", resultText(t, res))
	assert.Equal(t, before+1, promtest.ToFloat64(metrics.ToolCallsTotal.WithLabelValues("test_failing_tool", "error")))
}

// --- Wallet tools ---

func TestHandleGetAddress(t *testing.T) {
	h, _ := newWalletHandlers(t, 8453)
	res, err := h.HandleGetAddress(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	out := resultJSON(t, res)
	assert.Equal(t, testAddress, out["address"])
	assert.Equal(t, float64(8453), out["chainId"])
}

func TestHandleListBalances(t *testing.T) {
	h, _ := newWalletHandlers(t, 8453)
	res, err := h.HandleListBalances(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var out struct {
		Address  string    `json:"address"`
		Balances []Balance `json:"balances"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	require.Len(t, out.Balances, 2)
	assert.Equal(t, "ETH", out.Balances[0].Asset)
	assert.Equal(t, "1", out.Balances[0].Balance)
	assert.Equal(t, "USDC", out.Balances[1].Asset)
	assert.Equal(t, "1000", out.Balances[1].Balance)
	assert.Equal(t, uint8(6), out.Balances[1].Decimals)
}

func TestHandleListBalances_BadToken(t *testing.T) {
	h, _ := newWalletHandlers(t, 8453)
	res, err := h.HandleListBalances(context.Background(), makeRequest(map[string]any{"tokens": []any{"nope"}}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Invalid token address: nope")
}

func TestHandleGetTestnetETH(t *testing.T) {
	t.Run("mainnet rejected", func(t *testing.T) {
		h, _ := newWalletHandlers(t, 8453)
		res, err := h.HandleGetTestnetETH(context.Background(), makeRequest(nil))
		require.NoError(t, err)
		assert.True(t, res.IsError)
	})

	t.Run("sepolia", func(t *testing.T) {
		h, _ := newWalletHandlers(t, 84532)
		res, err := h.HandleGetTestnetETH(context.Background(), makeRequest(nil))
		require.NoError(t, err)
		require.False(t, res.IsError, resultText(t, res))
		assert.Equal(t, faucetListURL, resultJSON(t, res)["faucets"])
	})
}

func TestHandleTransferFunds(t *testing.T) {
	h, fake := newWalletHandlers(t, 8453)

	res, err := h.HandleTransferFunds(context.Background(), makeRequest(map[string]any{
		"recipient": recipient.Hex(),
		"amount":    "0.25",
		"assetId":   "eth",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	out := resultJSON(t, res)
	assert.Equal(t, "success", out["status"])
	require.Equal(t, 1, fake.SentCount())
	tx := fake.Sent[0]
	assert.Equal(t, recipient, *tx.To())
	assert.Equal(t, "250000000000000000", tx.Value().String())
	assert.Equal(t, tx.Hash().Hex(), out["hash"])
	assert.True(t, strings.HasSuffix(out["url"].(string), tx.Hash().Hex()))
}

func TestHandleTransferFunds_Errors(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"bad recipient", map[string]any{"recipient": "0x123", "amount": "1", "assetId": "eth"}, "Invalid recipient address"},
		{"bad amount", map[string]any{"recipient": recipient.Hex(), "amount": "abc", "assetId": "eth"}, "Invalid amount"},
		{"bad asset", map[string]any{"recipient": recipient.Hex(), "amount": "1", "assetId": "doge"}, "Invalid assetId"},
		{"insufficient eth", map[string]any{"recipient": recipient.Hex(), "amount": "5", "assetId": "eth"}, "Failed to transfer funds"},
		{"insufficient usdc", map[string]any{"recipient": recipient.Hex(), "amount": "5000", "assetId": "usdc"}, "Failed to transfer funds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, fake := newWalletHandlers(t, 8453)
			res, err := h.HandleTransferFunds(context.Background(), makeRequest(tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, resultText(t, res), tt.want)
			assert.Zero(t, fake.SentCount())
		})
	}
}

func TestHandleTransferFunds_Reverted(t *testing.T) {
	h, fake := newWalletHandlers(t, 8453)
	fake.RevertSends = true

	res, err := h.HandleTransferFunds(context.Background(), makeRequest(map[string]any{
		"recipient": recipient.Hex(), "amount": "10", "assetId": "usdc",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), fake.Sent[0].Hash().Hex())
}

func TestHandleERC20Balance(t *testing.T) {
	h, _ := newWalletHandlers(t, 8453)
	res, err := h.HandleERC20Balance(context.Background(), makeRequest(map[string]any{"contractAddress": usdc.Hex()}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	out := resultJSON(t, res)
	assert.Equal(t, "1000", out["balance"])
	assert.Equal(t, "USDC", out["symbol"])
	assert.Equal(t, testAddress, out["address"])
}

func TestHandleERC20Transfer(t *testing.T) {
	h, fake := newWalletHandlers(t, 8453)
	res, err := h.HandleERC20Transfer(context.Background(), makeRequest(map[string]any{
		"contractAddress": usdc.Hex(),
		"toAddress":       recipient.Hex(),
		"amount":          "1.5",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	args, err := mustABI(t, tokenABI).Methods["transfer"].Inputs.Unpack(fake.Sent[0].Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, recipient, args[0].(common.Address))
	assert.Equal(t, int64(1_500_000), args[1].(*big.Int).Int64())
}

func TestHandleERC20BatchTransfer(t *testing.T) {
	h, fake := newWalletHandlers(t, 8453)
	other := common.HexToAddress("0x000000000000000000000000000000000000cafE")

	res, err := h.HandleERC20BatchTransfer(context.Background(), makeRequest(map[string]any{
		"tokenAddress": usdc.Hex(),
		"recipients": []any{
			map[string]any{"address": recipient.Hex(), "amount": "1000"},
			map[string]any{"address": other.Hex(), "amount": "2000"},
		},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var out struct {
		Message      string        `json:"message"`
		Transactions []BatchResult `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Equal(t, "Batch transfer completed", out.Message)
	require.Len(t, out.Transactions, 2)
	assert.Equal(t, recipient.Hex(), out.Transactions[0].Address)
	assert.Equal(t, "2000", out.Transactions[1].Amount)
	assert.Equal(t, 2, fake.SentCount())

	nonces := map[uint64]bool{}
	for _, tx := range fake.Sent {
		nonces[tx.Nonce()] = true
	}
	assert.Len(t, nonces, 2, "each transfer gets its own nonce")
}

func TestHandleERC20BatchTransfer_Errors(t *testing.T) {
	tests := []struct {
		name       string
		recipients []any
		want       string
	}{
		{"empty", []any{}, "At least one recipient is required"},
		{"bad address", []any{map[string]any{"address": "0xnope", "amount": "1"}}, "Invalid recipient address: 0xnope"},
		{"bad amount", []any{map[string]any{"address": recipient.Hex(), "amount": "-3"}}, "Invalid amount"},
		{"over balance", []any{
			map[string]any{"address": recipient.Hex(), "amount": "600000000"},
			map[string]any{"address": recipient.Hex(), "amount": "600000000"},
		}, "insufficient"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, fake := newWalletHandlers(t, 8453)
			res, err := h.HandleERC20BatchTransfer(context.Background(), makeRequest(map[string]any{
				"tokenAddress": usdc.Hex(),
				"recipients":   tt.recipients,
			}))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, strings.ToLower(resultText(t, res)), strings.ToLower(tt.want))
			assert.Zero(t, fake.SentCount(), "nothing is sent when validation fails")
		})
	}
}

func TestHandleCallContract(t *testing.T) {
	t.Run("view function is read", func(t *testing.T) {
		h, fake := newWalletHandlers(t, 8453)
		res, err := h.HandleCallContract(context.Background(), makeRequest(map[string]any{
			"contractAddress": usdc.Hex(),
			"functionName":    "balanceOf",
			"functionArgs":    []any{recipient.Hex()},
			"abi":             tokenABI,
		}))
		require.NoError(t, err)
		require.False(t, res.IsError, resultText(t, res))
		assert.Contains(t, resultText(t, res), "1000000000")
		assert.Zero(t, fake.SentCount())
	})

	t.Run("state change is sent", func(t *testing.T) {
		h, fake := newWalletHandlers(t, 8453)
		res, err := h.HandleCallContract(context.Background(), makeRequest(map[string]any{
			"contractAddress": usdc.Hex(),
			"functionName":    "transfer",
			"functionArgs":    []any{recipient.Hex(), "25"},
			"abi":             tokenABI,
		}))
		require.NoError(t, err)
		require.False(t, res.IsError, resultText(t, res))
		require.Equal(t, 1, fake.SentCount())

		out := resultJSON(t, res)
		assert.Equal(t, fake.Sent[0].Hash().Hex(), out["hash"])
		assert.Equal(t, float64(fake.Head), out["blockNumber"])
	})

	t.Run("unknown function", func(t *testing.T) {
		h, _ := newWalletHandlers(t, 8453)
		res, err := h.HandleCallContract(context.Background(), makeRequest(map[string]any{
			"contractAddress": usdc.Hex(),
			"functionName":    "mint",
			"abi":             tokenABI,
		}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(t, res), "mint")
	})
}

func TestHandleDeployContract(t *testing.T) {
	h, fake := newWalletHandlers(t, 8453)
	res, err := h.HandleDeployContract(context.Background(), makeRequest(map[string]any{
		"abi":             `[{"type":"constructor","inputs":[{"name":"supply","type":"uint256"}]}]`,
		"bytecode":        "0x6080",
		"constructorArgs": []any{"1000"},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	out := resultJSON(t, res)
	want := crypto.CreateAddress(common.HexToAddress(testAddress), 0)
	assert.Equal(t, want.Hex(), out["contractAddress"])
	assert.Nil(t, fake.Sent[0].To())
}

// --- Data tools ---

func TestHandleAssetPrice(t *testing.T) {
	binance := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]string{{"symbol": "BTCUSD", "price": "65000.10"}})
	}))
	defer binance.Close()
	coingecko := httptest.NewServer(http.NotFoundHandler())
	defer coingecko.Close()

	opts := upstream.Options{Timeout: 2 * time.Second, Retry: retry.Policy{MaxAttempts: 1}}
	h := NewHandlers(Deps{Prices: prices.NewService(
		upstream.New("binance", binance.URL, opts),
		upstream.New("coingecko", coingecko.URL, opts),
		nil,
	)})

	res, err := h.HandleAssetPrice(context.Background(), makeRequest(map[string]any{"assetSymbols": []any{"BTC"}}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	assert.Contains(t, resultText(t, res), "BTC")

	res, err = h.HandleAssetPrice(context.Background(), makeRequest(map[string]any{"assetSymbols": []any{}}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "Failed to get asset prices: At least one asset symbol must be provided", resultText(t, res))
}

func TestHandleValidateABI(t *testing.T) {
	h := NewHandlers(Deps{})
	res, err := h.HandleValidateABI(context.Background(), makeRequest(map[string]any{"abi": tokenABI}))
	require.NoError(t, err)
	assert.Equal(t, true, resultJSON(t, res)["isValid"])

	res, err = h.HandleValidateABI(context.Background(), makeRequest(map[string]any{"abi": "not json"}))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, false, out["isValid"])
	assert.NotEmpty(t, out["errors"])
}

func TestHandleValidateClankerToken(t *testing.T) {
	h := NewHandlers(Deps{})
	res, err := h.HandleValidateClankerToken(context.Background(), makeRequest(map[string]any{
		"name": "", "symbol": "TKN", "image": "https://example.com/logo.png",
	}))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, false, out["valid"])
	assert.NotEmpty(t, out["errors"])
}

// --- DAO tools ---

func TestDAOFlow(t *testing.T) {
	h, _ := newWalletHandlers(t, 8453)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h.DAO = dao.NewService(dao.NewMemoryStore(), dao.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	res, err := h.HandleCreateDAO(ctx, makeRequest(map[string]any{
		"name":    "Builders",
		"members": []any{map[string]any{"address": testAddress, "votingPower": float64(10)}},
	}))
	require.NoError(t, err)
	created := resultJSON(t, res)
	require.Equal(t, true, created["success"], resultText(t, res))
	daoAddr := created["dao"].(map[string]any)["daoAddress"].(string)

	res, err = h.HandleCreateProposal(ctx, makeRequest(map[string]any{
		"daoAddress": daoAddr,
		"title":      "Fund the grants round",
		"options":    []any{"For", "Against"},
		"endTime":    float64(now.Add(time.Hour).Unix()),
	}))
	require.NoError(t, err)
	proposal := resultJSON(t, res)
	require.Equal(t, true, proposal["success"], resultText(t, res))
	id := proposal["proposal"].(map[string]any)["id"].(string)

	res, err = h.HandleCastVote(ctx, makeRequest(map[string]any{
		"daoAddress": daoAddr, "proposalId": id, "optionIndex": float64(0),
	}))
	require.NoError(t, err)
	vote := resultJSON(t, res)
	require.Equal(t, true, vote["success"], resultText(t, res))
	assert.Equal(t, "For", vote["vote"])
	assert.Equal(t, float64(10), vote["weight"])

	res, err = h.HandleCastVote(ctx, makeRequest(map[string]any{
		"daoAddress": daoAddr, "proposalId": id, "optionIndex": float64(1),
	}))
	require.NoError(t, err)
	again := resultJSON(t, res)
	assert.Equal(t, false, again["success"])
	assert.Contains(t, again["error"], "already voted")

	res, err = h.HandleListProposals(ctx, makeRequest(map[string]any{"daoAddress": daoAddr}))
	require.NoError(t, err)
	list := resultJSON(t, res)
	assert.Equal(t, true, list["success"])
	assert.Equal(t, float64(1), list["total"])

	res, err = h.HandleProposalDetails(ctx, makeRequest(map[string]any{"daoAddress": daoAddr, "proposalId": id}))
	require.NoError(t, err)
	details := resultJSON(t, res)
	require.Equal(t, true, details["success"], resultText(t, res))
	assert.Equal(t, true, details["proposal"].(map[string]any)["quorumReached"])
}

func TestDAO_UnknownDAO(t *testing.T) {
	h, _ := newWalletHandlers(t, 8453)
	h.DAO = dao.NewService(dao.NewMemoryStore())

	res, err := h.HandleProposalDetails(context.Background(), makeRequest(map[string]any{
		"daoAddress": "0x0000000000000000000000000000000000000001", "proposalId": "0x1",
	}))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "DAO not found")
}
