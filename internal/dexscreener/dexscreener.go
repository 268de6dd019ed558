// Package dexscreener reads token prices and pair data from the Dexscreener API.
package dexscreener

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mbd888/basemcp/internal/upstream"
	"github.com/mbd888/basemcp/internal/validation"
)

// ErrNoPairs is returned when the API lists no pairs for a token.
var ErrNoPairs = errors.New("Invalid data format received")

// Client wraps the Dexscreener REST API.
type Client struct {
	api *upstream.Client
}

// New creates a Dexscreener client.
func New(api *upstream.Client) *Client {
	return &Client{api: api}
}

type token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// Link is a website or social entry attached to a pair.
type Link struct {
	Label string `json:"label,omitempty"`
	Type  string `json:"type,omitempty"`
	URL   string `json:"url"`
}

type pair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   token  `json:"baseToken"`
	QuoteToken  token  `json:"quoteToken"`
	PriceUSD    string `json:"priceUsd"`
	Volume      struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	MarketCap     float64 `json:"marketCap"`
	PairCreatedAt int64   `json:"pairCreatedAt"`
	Info          *struct {
		Websites []Link `json:"websites"`
		Socials  []Link `json:"socials"`
	} `json:"info"`
}

// TokenPrice is the token_price result.
type TokenPrice struct {
	Price        *float64 `json:"price"`
	TokenAddress string   `json:"tokenAddress"`
	Chain        string   `json:"chain"`
}

// Price returns the USD price of the first pair listed for a token.
func (c *Client) Price(ctx context.Context, contractAddress string) (*TokenPrice, error) {
	if !validation.IsValidEthAddress(contractAddress) {
		return nil, fmt.Errorf("Invalid contract address: %s", contractAddress)
	}

	var resp struct {
		Pairs []pair `json:"pairs"`
	}
	if err := c.api.GetJSON(ctx, "/latest/dex/tokens/"+contractAddress, nil, &resp); err != nil {
		return nil, fmt.Errorf("Failed to fetch token price: %w", err)
	}

	out := &TokenPrice{TokenAddress: contractAddress, Chain: "base"}
	if len(resp.Pairs) > 0 && resp.Pairs[0].PriceUSD != "" {
		if p, err := strconv.ParseFloat(resp.Pairs[0].PriceUSD, 64); err == nil {
			out.Price = &p
		}
	}
	return out, nil
}

// Socials groups a pair's links.
type Socials struct {
	Websites    []Link `json:"websites"`
	SocialLinks []Link `json:"socialLinks"`
}

// TokenInfo is the token_info_query result.
type TokenInfo struct {
	Dex           string  `json:"dex"`
	PairName      string  `json:"pairName"`
	PairAddress   string  `json:"pairAddress"`
	PriceUSD      string  `json:"priceUsd"`
	Volume24h     float64 `json:"volume24h"`
	MarketCap     float64 `json:"marketCap"`
	PairCreatedAt string  `json:"pairCreatedAt"`
	Socials       Socials `json:"socials"`
}

// Info returns pair data for a token on Base.
func (c *Client) Info(ctx context.Context, contractAddress string) (*TokenInfo, error) {
	if !validation.IsValidEthAddress(contractAddress) {
		return nil, fmt.Errorf("Invalid contract address: %s", contractAddress)
	}

	var pairs []pair
	if err := c.api.GetJSON(ctx, "/token-pairs/v1/base/"+contractAddress, nil, &pairs); err != nil {
		return nil, fmt.Errorf("Failed to fetch token info: %w", err)
	}
	return extract(pairs)
}

func extract(pairs []pair) (*TokenInfo, error) {
	if len(pairs) == 0 {
		return nil, ErrNoPairs
	}
	p := pairs[0]
	price, _ := strconv.ParseFloat(p.PriceUSD, 64)

	info := &TokenInfo{
		Dex:           p.DexID,
		PairName:      p.BaseToken.Symbol + "/" + p.QuoteToken.Symbol,
		PairAddress:   p.PairAddress,
		PriceUSD:      fmt.Sprintf("$%.6f", price),
		Volume24h:     p.Volume.H24,
		MarketCap:     p.MarketCap,
		PairCreatedAt: time.UnixMilli(p.PairCreatedAt).UTC().Format("2006-01-02T15:04:05.000Z"),
		Socials:       Socials{Websites: []Link{}, SocialLinks: []Link{}},
	}
	if p.Info != nil {
		if p.Info.Websites != nil {
			info.Socials.Websites = p.Info.Websites
		}
		if p.Info.Socials != nil {
			info.Socials.SocialLinks = p.Info.Socials
		}
	}
	return info, nil
}
