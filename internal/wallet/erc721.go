package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const erc721ABI = `[
	{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"tokenId","type":"uint256"}],"name":"ownerOf","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"name":"transferFrom","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// NFTBalance returns how many tokens of an ERC-721 collection owner holds.
func (w *Wallet) NFTBalance(ctx context.Context, contract, owner common.Address) (*big.Int, error) {
	out, err := w.Read(ctx, w.erc721, contract, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// NFTOwner returns the owner of tokenID.
func (w *Wallet) NFTOwner(ctx context.Context, contract common.Address, tokenID *big.Int) (common.Address, error) {
	out, err := w.Read(ctx, w.erc721, contract, "ownerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// TransferNFT moves tokenID from the signer to to with transferFrom.
func (w *Wallet) TransferNFT(ctx context.Context, contract, to common.Address, tokenID *big.Int) (common.Hash, error) {
	if w.key == nil {
		return common.Hash{}, ErrNoSigner
	}
	data, err := w.erc721.Pack("transferFrom", w.address, to, tokenID)
	if err != nil {
		return common.Hash{}, &TxError{Op: "transfer_erc721", Err: err}
	}
	tx, err := w.Send(ctx, "transfer_erc721", TxRequest{To: &contract, Data: data})
	if err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}
