package etherscan

import (
	"context"
	"math/big"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"
)

type rawNFTTx struct {
	From            string `json:"from"`
	To              string `json:"to"`
	ContractAddress string `json:"contractAddress"`
	TokenID         string `json:"tokenID"`
	TokenValue      string `json:"tokenValue"` // ERC-1155 only
	TokenName       string `json:"tokenName"`
	TokenSymbol     string `json:"tokenSymbol"`
}

// NFT is one token currently held.
type NFT struct {
	ContractAddress string `json:"contractAddress"`
	TokenID         string `json:"tokenId"`
	TokenName       string `json:"tokenName"`
	TokenSymbol     string `json:"tokenSymbol"`
	Standard        string `json:"standard"`
	Amount          string `json:"amount,omitempty"` // ERC-1155 balance
}

// Holdings is the list_nfts result.
type Holdings struct {
	Address string `json:"address"`
	NFTs    []NFT  `json:"nfts"`
}

// NFTs reconstructs the NFTs an address holds by replaying its ERC-721 and
// ERC-1155 transfer history: received minus sent per (contract, token id).
// contract optionally restricts the listing to one collection.
func (c *Client) NFTs(ctx context.Context, owner, contract string, chainID int64) (*Holdings, error) {
	params := func(action string) url.Values {
		v := url.Values{
			"module":  {"account"},
			"action":  {action},
			"address": {owner},
			"page":    {"1"},
			"offset":  {"1000"},
			"sort":    {"asc"},
		}
		if contract != "" {
			v.Set("contractaddress", contract)
		}
		return v
	}

	var erc721, erc1155 []rawNFTTx
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.call(gctx, chainID, params("tokennfttx"), &erc721) })
	g.Go(func() error { return c.call(gctx, chainID, params("token1155tx"), &erc1155) })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	owner = strings.ToLower(owner)
	out := &Holdings{Address: owner, NFTs: []NFT{}}
	out.NFTs = append(out.NFTs, replay(owner, erc721, "ERC721")...)
	out.NFTs = append(out.NFTs, replay(owner, erc1155, "ERC1155")...)
	return out, nil
}

// replay nets transfers in history order and returns positive balances in
// order of first acquisition.
func replay(owner string, txs []rawNFTTx, standard string) []NFT {
	type holding struct {
		nft     NFT
		balance *big.Int
	}
	var order []string
	held := make(map[string]*holding)

	for _, tx := range txs {
		key := strings.ToLower(tx.ContractAddress) + "/" + tx.TokenID
		h, ok := held[key]
		if !ok {
			h = &holding{
				nft: NFT{
					ContractAddress: strings.ToLower(tx.ContractAddress),
					TokenID:         tx.TokenID,
					TokenName:       tx.TokenName,
					TokenSymbol:     tx.TokenSymbol,
					Standard:        standard,
				},
				balance: new(big.Int),
			}
			held[key] = h
			order = append(order, key)
		}

		amount := big.NewInt(1)
		if standard == "ERC1155" {
			amount = bigOrZero(tx.TokenValue)
		}
		if strings.EqualFold(tx.To, owner) {
			h.balance.Add(h.balance, amount)
		}
		if strings.EqualFold(tx.From, owner) {
			h.balance.Sub(h.balance, amount)
		}
	}

	var out []NFT
	for _, key := range order {
		h := held[key]
		if h.balance.Sign() <= 0 {
			continue
		}
		n := h.nft
		if standard == "ERC1155" {
			n.Amount = h.balance.String()
		}
		out = append(out, n)
	}
	return out
}
