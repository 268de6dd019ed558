// Package nft reads ERC-721 collection metadata and mints through a
// safeMint(address,string) contract.
package nft

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mbd888/basemcp/internal/chains"
	"github.com/mbd888/basemcp/internal/wallet"
)

const collectionABI = `[
	{"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"tokenId","type":"uint256"}],"name":"tokenURI","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"to","type":"address"},{"name":"uri","type":"string"}],"name":"safeMint","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// ABI is the collection interface used for reads and minting.
var ABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(collectionABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// Collection is the analyze_nft_collection result. Methods the contract
// does not implement are nil.
type Collection struct {
	ContractAddress string  `json:"contractAddress"`
	Name            *string `json:"name"`
	Symbol          *string `json:"symbol"`
	TotalSupply     *string `json:"totalSupply"`
	HasCode         bool    `json:"hasCode"`
	ExplorerURL     string  `json:"explorerUrl"`
}

// Minted is the mint_nft result.
type Minted struct {
	Hash      string `json:"hash"`
	URL       string `json:"url"`
	Recipient string `json:"recipient"`
	TokenURI  string `json:"tokenURI"`
	Contract  string `json:"contract"`
}

// Service reads and mints on Base.
type Service struct {
	w            *wallet.Wallet
	mintContract common.Address
}

// New creates a service minting on mintContract.
func New(w *wallet.Wallet, mintContract common.Address) *Service {
	return &Service{w: w, mintContract: mintContract}
}

// Analyze reads name, symbol and totalSupply from a collection.
func (s *Service) Analyze(ctx context.Context, contract string) (*Collection, error) {
	addr, err := wallet.ParseAddress(contract)
	if err != nil {
		return nil, fmt.Errorf("Invalid contract address: %s", contract)
	}
	if err := chains.RequireSupported(s.w.ChainID(), chains.BaseMainnet); err != nil {
		return nil, err
	}

	code, err := s.w.Client().CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("Failed to analyze NFT collection: %w", err)
	}

	c := &Collection{
		ContractAddress: addr.Hex(),
		HasCode:         len(code) > 0,
		ExplorerURL:     chains.AddressURL(s.w.ChainID(), addr.Hex()),
	}
	if out, err := s.w.Read(ctx, ABI, addr, "name"); err == nil {
		c.Name = ptr(out[0].(string))
	}
	if out, err := s.w.Read(ctx, ABI, addr, "symbol"); err == nil {
		c.Symbol = ptr(out[0].(string))
	}
	if out, err := s.w.Read(ctx, ABI, addr, "totalSupply"); err == nil {
		c.TotalSupply = ptr(out[0].(*big.Int).String())
	}
	return c, nil
}

// Mint calls safeMint(to, tokenURI). An empty to mints to the signer.
func (s *Service) Mint(ctx context.Context, to, tokenURI string) (*Minted, error) {
	if err := chains.RequireSupported(s.w.ChainID(), chains.BaseMainnet); err != nil {
		return nil, err
	}
	if strings.TrimSpace(tokenURI) == "" {
		return nil, fmt.Errorf("tokenURI is required")
	}

	var recipient common.Address
	if to == "" {
		self, err := s.w.Address()
		if err != nil {
			return nil, err
		}
		recipient = self
	} else {
		addr, err := wallet.ParseAddress(to)
		if err != nil {
			return nil, fmt.Errorf("Invalid recipient address: %s", to)
		}
		recipient = addr
	}

	data, err := ABI.Pack("safeMint", recipient, tokenURI)
	if err != nil {
		return nil, err
	}
	tx, err := s.w.Send(ctx, "mint_nft", wallet.TxRequest{To: &s.mintContract, Data: data})
	if err != nil {
		return nil, fmt.Errorf("Failed to mint NFT: %w", err)
	}
	hash := tx.Hash().Hex()
	return &Minted{
		Hash:      hash,
		URL:       chains.TxURL(s.w.ChainID(), hash),
		Recipient: recipient.Hex(),
		TokenURI:  tokenURI,
		Contract:  s.mintContract.Hex(),
	}, nil
}

func ptr(s string) *string { return &s }
