package neynar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/basemcp/internal/retry"
	"github.com/mbd888/basemcp/internal/upstream"
)

func newClient(t *testing.T, key string, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	api := upstream.New("neynar", srv.URL, upstream.Options{Timeout: time.Second, Retry: retry.Policy{MaxAttempts: 1}})
	return New(api, key)
}

const usersJSON = `{"result":{"users":[
	{"fid":1,"username":"dwr","verified_addresses":{"eth_addresses":["0xaaa"],"primary":{"eth_address":""}}},
	{"fid":3,"username":"Vitalik.eth","verified_addresses":{"eth_addresses":["0xbbb","0xccc"],"primary":{"eth_address":"0xccc"}}},
	{"fid":9,"username":"ghost","verified_addresses":{"eth_addresses":[]}}
]}}`

func TestUsername(t *testing.T) {
	c := newClient(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/farcaster/user/search", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(usersJSON))
	})

	tests := []struct {
		name     string
		username string
		want     Result
	}{
		{"primary address wins", "vitalik.eth", Result{Success: true, Username: "Vitalik.eth", FID: 3, EthAddress: "0xccc"}},
		{"first verified fallback", "DWR", Result{Success: true, Username: "dwr", FID: 1, EthAddress: "0xaaa"}},
		{"no verified address", "ghost", Result{Message: "User ghost has no verified Ethereum addresses"}},
		{"not found", "nobody", Result{Message: "No Farcaster user found with username: nobody"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Username(context.Background(), tt.username)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestUsername_NoKey(t *testing.T) {
	c := newClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := c.Username(context.Background(), "dwr")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestUsername_UpstreamError(t *testing.T) {
	c := newClient(t, "k", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid key"}`))
	})
	got, err := c.Username(context.Background(), "dwr")
	require.NoError(t, err)
	assert.False(t, got.Success)
	assert.Equal(t, "Error resolving Farcaster username: API error (401): invalid key", got.Message)
}
