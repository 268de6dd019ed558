package etherscan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/basemcp/internal/retry"
	"github.com/mbd888/basemcp/internal/upstream"
)

const (
	walletAddr = "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045"
	hashA      = "0xaaaa000000000000000000000000000000000000000000000000000000000001"
	hashB      = "0xbbbb000000000000000000000000000000000000000000000000000000000002"
)

// fakeEtherscan routes on the action query parameter.
func fakeEtherscan(t *testing.T, responses map[string]string, seen func(q map[string]string)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/api", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		if seen != nil {
			seen(q)
		}
		body, ok := responses[q["action"]]
		if !ok {
			body = `{"status":"0","message":"No transactions found","result":[]}`
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	api := upstream.New("etherscan", srv.URL, upstream.Options{Timeout: time.Second, Retry: retry.Policy{MaxAttempts: 1}})
	return New(api, "test-key", 8453)
}

const txlistJSON = `{"status":"1","message":"OK","result":[
 {"blockNumber":"200","timeStamp":"1700000000","hash":"` + hashA + `","nonce":"7","from":"` + walletAddr + `","to":"0x1111111111111111111111111111111111111111","value":"1500000000000000000","gasPrice":"1500000000","gasUsed":"21000","isError":"0","txreceipt_status":"1","input":"0x","contractAddress":"","methodId":"0x","functionName":""},
 {"blockNumber":"150","timeStamp":"1699990000","hash":"` + hashB + `","nonce":"6","from":"` + walletAddr + `","to":"0x833589fcd6edb6e08f4c7c32d4f71b54bda02913","value":"0","gasPrice":"1000000000","gasUsed":"50000","isError":"0","txreceipt_status":"1","input":"0xa9059cbb","contractAddress":"","methodId":"0xa9059cbb","functionName":"transfer(address,uint256)"}
]}`

const tokentxJSON = `{"status":"1","message":"OK","result":[
 {"hash":"` + hashB + `","from":"` + walletAddr + `","to":"0x2222222222222222222222222222222222222222","contractAddress":"0x833589fcd6edb6e08f4c7c32d4f71b54bda02913","value":"2500000","tokenName":"USD Coin","tokenSymbol":"USDC","tokenDecimal":"6"},
 {"hash":"0xffff","from":"x","to":"y","contractAddress":"z","value":"1","tokenName":"Other","tokenSymbol":"OTH","tokenDecimal":"0"}
]}`

func TestAddressTransactions(t *testing.T) {
	var tokenQuery map[string]string
	c := fakeEtherscan(t, map[string]string{"txlist": txlistJSON, "tokentx": tokentxJSON}, func(q map[string]string) {
		if q["action"] == "tokentx" {
			tokenQuery = q
		}
		if q["action"] == "txlist" {
			assert.Equal(t, "latest", q["endblock"])
			assert.Equal(t, "5", q["offset"])
			assert.Equal(t, "desc", q["sort"])
			assert.Equal(t, "8453", q["chainid"])
		}
	})

	txs, err := c.AddressTransactions(context.Background(), TxQuery{Address: walletAddr})
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, "149", tokenQuery["startblock"])
	assert.Equal(t, "201", tokenQuery["endblock"])
	assert.Equal(t, "100", tokenQuery["offset"])

	first := txs[0]
	assert.Equal(t, "2023-11-14T22:13:20.000Z UTC", first.TimeStamp)
	assert.Equal(t, "1.5 ETH", first.Value)
	assert.Equal(t, "1.5 gwei", first.GasPrice)
	assert.Equal(t, "0.0000315 ETH", first.FeeInEth)
	assert.Empty(t, first.TokenTransfers)
	assert.NotNil(t, first.TokenTransfers)

	second := txs[1]
	require.Len(t, second.TokenTransfers, 1)
	assert.Equal(t, "2.5 USDC", second.TokenTransfers[0].Value)
	assert.Equal(t, "USD Coin", second.TokenTransfers[0].TokenName)
	assert.Equal(t, "transfer(address,uint256)", second.FunctionName)
}

func TestAddressTransactions_Empty(t *testing.T) {
	calls := 0
	c := fakeEtherscan(t, nil, func(map[string]string) { calls++ })
	txs, err := c.AddressTransactions(context.Background(), TxQuery{Address: walletAddr, Sort: "asc", Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.Equal(t, 1, calls, "tokentx is skipped without transactions")
}

func TestAddressTransactions_Validation(t *testing.T) {
	c := fakeEtherscan(t, nil, nil)
	_, err := c.AddressTransactions(context.Background(), TxQuery{Address: walletAddr, Offset: 1001})
	assert.EqualError(t, err, "offset must be between 1 and 1000")
	_, err = c.AddressTransactions(context.Background(), TxQuery{Address: walletAddr, Sort: "up"})
	assert.EqualError(t, err, "sort must be asc or desc")
}

func TestCall_Errors(t *testing.T) {
	c := fakeEtherscan(t, map[string]string{
		"txlist": `{"status":"0","message":"NOTOK","result":"Invalid API Key"}`,
	}, nil)
	_, err := c.AddressTransactions(context.Background(), TxQuery{Address: walletAddr})
	assert.EqualError(t, err, "Etherscan API error: Invalid API Key")

	noKey := New(c.api, "", 8453)
	_, err = noKey.RecentTransactions(context.Background(), walletAddr, 0)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestRecentTransactions(t *testing.T) {
	c := fakeEtherscan(t, map[string]string{"txlist": txlistJSON}, func(q map[string]string) {
		assert.Equal(t, "84532", q["chainid"])
	})
	got, err := c.RecentTransactions(context.Background(), walletAddr, 84532)
	require.NoError(t, err)
	require.Len(t, got.Transactions, 2)
	assert.Equal(t, "1500000000000000000", got.Transactions[0].Value)
	assert.Equal(t, "1700000000", got.Transactions[0].Timestamp)
	assert.Equal(t, "https://sepolia.basescan.org/tx/"+hashA, got.Transactions[0].ExplorerURL)
}

func TestContractInfo(t *testing.T) {
	c := fakeEtherscan(t, map[string]string{
		"getsourcecode": `{"status":"1","message":"OK","result":[{"SourceCode":"contract X {}","ABI":"[{\"type\":\"function\"}]","ContractName":"FiatTokenProxy","CompilerVersion":"v0.4.24","OptimizationUsed":"1","Runs":"10000000","EVMVersion":"Default","LicenseType":"MIT","Proxy":"1","Implementation":"0x2ce6311ddae708829bc0784c967b7d77d19fd779"}]}`,
	}, nil)
	info, err := c.ContractInfo(context.Background(), "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", 0)
	require.NoError(t, err)
	assert.True(t, info.Verified)
	assert.True(t, info.Proxy)
	assert.True(t, info.OptimizationUsed)
	assert.Equal(t, "FiatTokenProxy", info.ContractName)
	assert.NotEmpty(t, info.ABI)
}

func TestContractInfo_Unverified(t *testing.T) {
	c := fakeEtherscan(t, map[string]string{
		"getsourcecode": `{"status":"1","message":"OK","result":[{"SourceCode":"","ABI":"Contract source code not verified","ContractName":"","Proxy":"0"}]}`,
	}, nil)
	info, err := c.ContractInfo(context.Background(), walletAddr, 0)
	require.NoError(t, err)
	assert.False(t, info.Verified)
	assert.Empty(t, info.ABI)
}

func TestNFTs(t *testing.T) {
	other := "0x9999999999999999999999999999999999999999"
	c := fakeEtherscan(t, map[string]string{
		"tokennfttx": `{"status":"1","message":"OK","result":[
			{"from":"` + other + `","to":"` + walletAddr + `","contractAddress":"0xAAA","tokenID":"1","tokenName":"Punks","tokenSymbol":"PNK"},
			{"from":"` + other + `","to":"` + walletAddr + `","contractAddress":"0xAAA","tokenID":"2","tokenName":"Punks","tokenSymbol":"PNK"},
			{"from":"` + walletAddr + `","to":"` + other + `","contractAddress":"0xAAA","tokenID":"1","tokenName":"Punks","tokenSymbol":"PNK"}
		]}`,
		"token1155tx": `{"status":"1","message":"OK","result":[
			{"from":"` + other + `","to":"` + walletAddr + `","contractAddress":"0xBBB","tokenID":"7","tokenValue":"5","tokenName":"Items","tokenSymbol":"ITM"},
			{"from":"` + walletAddr + `","to":"` + other + `","contractAddress":"0xBBB","tokenID":"7","tokenValue":"2","tokenName":"Items","tokenSymbol":"ITM"}
		]}`,
	}, nil)

	got, err := c.NFTs(context.Background(), walletAddr, "", 0)
	require.NoError(t, err)
	require.Len(t, got.NFTs, 2)
	assert.Equal(t, NFT{ContractAddress: "0xaaa", TokenID: "2", TokenName: "Punks", TokenSymbol: "PNK", Standard: "ERC721"}, got.NFTs[0])
	assert.Equal(t, "ERC1155", got.NFTs[1].Standard)
	assert.Equal(t, "3", got.NFTs[1].Amount)
}

func TestNFTs_ContractFilter(t *testing.T) {
	var mu sync.Mutex
	var filtered []string
	c := fakeEtherscan(t, nil, func(q map[string]string) {
		mu.Lock()
		filtered = append(filtered, q["contractaddress"])
		mu.Unlock()
	})
	got, err := c.NFTs(context.Background(), walletAddr, "0xAAA", 0)
	require.NoError(t, err)
	assert.Empty(t, got.NFTs)
	assert.Equal(t, []string{"0xAAA", "0xAAA"}, filtered)
}
