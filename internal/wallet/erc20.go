package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const erc20ABI = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}
]`

// TokenMetadata describes an ERC-20 token.
type TokenMetadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// TokenBalance returns the ERC-20 balance of owner in base units.
func (w *Wallet) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := w.Read(ctx, w.erc20, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// TokenMetadata reads name, symbol and decimals. Tokens that omit name or
// symbol get empty strings; decimals is required.
func (w *Wallet) TokenMetadata(ctx context.Context, token common.Address) (*TokenMetadata, error) {
	md := &TokenMetadata{}
	out, err := w.Read(ctx, w.erc20, token, "decimals")
	if err != nil {
		return nil, err
	}
	md.Decimals = out[0].(uint8)

	if out, err := w.Read(ctx, w.erc20, token, "symbol"); err == nil {
		md.Symbol = out[0].(string)
	}
	if out, err := w.Read(ctx, w.erc20, token, "name"); err == nil {
		md.Name = out[0].(string)
	}
	return md, nil
}

// Allowance returns how much spender may move on behalf of owner.
func (w *Wallet) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := w.Read(ctx, w.erc20, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// TransferToken sends amount base units of token to to, after checking
// the signer holds enough.
func (w *Wallet) TransferToken(ctx context.Context, token, to common.Address, amount *big.Int) (common.Hash, error) {
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, ErrInvalidAmount
	}
	if w.key == nil {
		return common.Hash{}, ErrNoSigner
	}

	bal, err := w.TokenBalance(ctx, token, w.address)
	if err != nil {
		return common.Hash{}, err
	}
	if bal.Cmp(amount) < 0 {
		return common.Hash{}, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, bal, amount)
	}

	data, err := w.erc20.Pack("transfer", to, amount)
	if err != nil {
		return common.Hash{}, &TxError{Op: "transfer_erc20", Err: err}
	}
	tx, err := w.Send(ctx, "transfer_erc20", TxRequest{To: &token, Data: data})
	if err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

// Approve lets spender move amount of token.
func (w *Wallet) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := w.erc20.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, &TxError{Op: "approve", Err: err}
	}
	tx, err := w.Send(ctx, "approve", TxRequest{To: &token, Data: data})
	if err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}
