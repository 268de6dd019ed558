package morpho

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/basemcp/internal/retry"
	"github.com/mbd888/basemcp/internal/upstream"
)

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(upstream.New("morpho", srv.URL+"/graphql", upstream.Options{Timeout: time.Second, Retry: retry.Policy{MaxAttempts: 1}}))
}

func TestVaults(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/graphql", r.URL.Path)

		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "assetSymbol_in")
		assert.Equal(t, "USDC", req.Variables["assetSymbol"])
		assert.Equal(t, float64(8453), req.Variables["chainId"])

		_, _ = w.Write([]byte(`{"data":{"vaults":{"items":[{
			"address":"0xbeeF","name":"Steakhouse USDC","symbol":"steakUSDC",
			"asset":{"address":"0x8335","symbol":"USDC","decimals":6},
			"state":{"totalAssets":"1500000000000","totalAssetsUsd":1500000.5,"apy":0.051,"netApy":0.047}
		},{"address":"0xcafe","name":"Idle","symbol":"iUSDC","asset":{"address":"0x8335","symbol":"USDC","decimals":6},"state":null}]}}}`))
	})

	vaults, err := c.Vaults(context.Background(), 8453, "usdc")
	require.NoError(t, err)
	require.Len(t, vaults, 2)

	v := vaults[0]
	assert.Equal(t, "Steakhouse USDC", v.Name)
	assert.Equal(t, 6, v.Asset.Decimals)
	assert.Equal(t, "1500000000000", v.TotalAssets)
	assert.InDelta(t, 0.047, *v.NetAPY, 1e-9)
	assert.Nil(t, vaults[1].APY)
}

func TestVaults_NoFilter(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotContains(t, req.Query, "assetSymbol_in")
		_, _ = w.Write([]byte(`{"data":{"vaults":{"items":[]}}}`))
	})
	vaults, err := c.Vaults(context.Background(), 8453, " ")
	require.NoError(t, err)
	assert.Empty(t, vaults)
	assert.NotNil(t, vaults)
}

func TestVaults_Errors(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad filter"}]}`))
	})

	_, err := c.Vaults(context.Background(), 84532, "")
	assert.EqualError(t, err, "Not implemented on Base Sepolia")

	_, err = c.Vaults(context.Background(), 8453, "")
	assert.EqualError(t, err, "Failed to fetch Morpho vaults: bad filter")
}
