// Package morpho lists Morpho vaults from the Morpho Blue GraphQL API.
package morpho

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mbd888/basemcp/internal/chains"
	"github.com/mbd888/basemcp/internal/upstream"
)

const vaultFields = `items {
      address
      name
      symbol
      asset { address symbol decimals }
      state { totalAssets totalAssetsUsd apy netApy }
    }`

const vaultsQuery = `query Vaults($chainId: Int!) {
  vaults(first: 100, where: { chainId_in: [$chainId] }) {
    ` + vaultFields + `
  }
}`

const vaultsBySymbolQuery = `query VaultsBySymbol($chainId: Int!, $assetSymbol: String!) {
  vaults(first: 100, where: { chainId_in: [$chainId], assetSymbol_in: [$assetSymbol] }) {
    ` + vaultFields + `
  }
}`

// Asset is the token a vault accepts.
type Asset struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Vault is one Morpho vault.
type Vault struct {
	Address        string   `json:"address"`
	Name           string   `json:"name"`
	Symbol         string   `json:"symbol"`
	Asset          Asset    `json:"asset"`
	TotalAssets    string   `json:"totalAssets"`
	TotalAssetsUSD *float64 `json:"totalAssetsUsd"`
	APY            *float64 `json:"apy"`
	NetAPY         *float64 `json:"netApy"`
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlResponse struct {
	Data struct {
		Vaults struct {
			Items []struct {
				Address string `json:"address"`
				Name    string `json:"name"`
				Symbol  string `json:"symbol"`
				Asset   Asset  `json:"asset"`
				State   *struct {
					TotalAssets    json.RawMessage `json:"totalAssets"`
					TotalAssetsUSD *float64        `json:"totalAssetsUsd"`
					APY            *float64        `json:"apy"`
					NetAPY         *float64        `json:"netApy"`
				} `json:"state"`
			} `json:"items"`
		} `json:"vaults"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Client queries the Morpho API.
type Client struct {
	api *upstream.Client
}

// New creates a client; api's base URL is the GraphQL endpoint itself.
func New(api *upstream.Client) *Client {
	return &Client{api: api}
}

// Vaults lists vaults on chainID, optionally filtered by asset symbol.
func (c *Client) Vaults(ctx context.Context, chainID int64, assetSymbol string) ([]Vault, error) {
	if err := chains.RequireSupported(chainID, chains.BaseMainnet); err != nil {
		return nil, err
	}

	req := gqlRequest{Query: vaultsQuery, Variables: map[string]any{"chainId": chainID}}
	if symbol := strings.TrimSpace(assetSymbol); symbol != "" {
		req.Query = vaultsBySymbolQuery
		req.Variables["assetSymbol"] = strings.ToUpper(symbol)
	}

	var resp gqlResponse
	if err := c.api.PostJSON(ctx, "", req, &resp); err != nil {
		return nil, fmt.Errorf("Failed to fetch Morpho vaults: %w", err)
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, len(resp.Errors))
		for i, e := range resp.Errors {
			msgs[i] = e.Message
		}
		return nil, fmt.Errorf("Failed to fetch Morpho vaults: %w", errors.New(strings.Join(msgs, "; ")))
	}

	vaults := make([]Vault, 0, len(resp.Data.Vaults.Items))
	for _, it := range resp.Data.Vaults.Items {
		v := Vault{Address: it.Address, Name: it.Name, Symbol: it.Symbol, Asset: it.Asset}
		if it.State != nil {
			if raw := string(it.State.TotalAssets); raw != "null" {
				v.TotalAssets = strings.Trim(raw, `"`)
			}
			v.TotalAssetsUSD = it.State.TotalAssetsUSD
			v.APY = it.State.APY
			v.NetAPY = it.State.NetAPY
		}
		vaults = append(vaults, v)
	}
	return vaults, nil
}
