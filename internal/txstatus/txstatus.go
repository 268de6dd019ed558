// Package txstatus reports whether a transaction is pending, mined or
// reverted, with its confirmations.
package txstatus

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mbd888/basemcp/internal/chains"
)

var txHashRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ErrNotFound means the node does not know the transaction.
var ErrNotFound = errors.New("transaction not found")

const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Reader is the RPC surface needed to inspect a transaction.
type Reader interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Status is the transaction_status result. Unknown values are nil.
type Status struct {
	Hash          string  `json:"hash"`
	Status        string  `json:"status"`
	From          *string `json:"from"`
	To            *string `json:"to"`
	BlockNumber   *string `json:"blockNumber"`
	Value         *string `json:"value"`
	GasUsed       *string `json:"gasUsed"`
	GasFee        *string `json:"gasFee"`
	Nonce         *string `json:"nonce"`
	Confirmations *string `json:"confirmations"`
	ExplorerURL   string  `json:"explorerUrl"`
}

// Checker looks up transactions on one RPC endpoint.
type Checker struct {
	rpc          Reader
	defaultChain int64
}

// New returns a checker. defaultChain names the explorer when a call
// passes chain 0.
func New(rpc Reader, defaultChain int64) *Checker {
	return &Checker{rpc: rpc, defaultChain: defaultChain}
}

// ValidHash reports whether s is a 0x-prefixed 32-byte hash.
func ValidHash(s string) bool { return txHashRegex.MatchString(s) }

// Check returns the current status of txHash.
func (c *Checker) Check(ctx context.Context, txHash string, chainID int64) (*Status, error) {
	if chainID == 0 {
		chainID = c.defaultChain
	}
	if _, ok := chains.Lookup(chainID); !ok {
		return nil, fmt.Errorf("Invalid chain ID: %d", chainID)
	}
	if !ValidHash(txHash) {
		return nil, fmt.Errorf("Invalid transaction hash: %s", txHash)
	}

	st, err := c.check(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, fmt.Errorf("Failed to get transaction status: %w", err)
	}
	st.Hash = txHash
	st.ExplorerURL = chains.TxURL(chainID, txHash)
	return st, nil
}

func (c *Checker) check(ctx context.Context, hash common.Hash) (*Status, error) {
	tx, _, err := c.rpc.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, hash.Hex())
		}
		return nil, err
	}

	receipt, err := c.rpc.TransactionReceipt(ctx, hash)
	if err != nil {
		// a missing receipt means the tx is still in the mempool
		receipt = nil
	}

	head, err := c.rpc.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{Status: StatusPending}
	if from, err := types.Sender(signerFor(tx), tx); err == nil {
		st.From = ptr(from.Hex())
	}
	if to := tx.To(); to != nil {
		st.To = ptr(to.Hex())
	}
	st.Value = ptr(tx.Value().String())
	st.Nonce = ptr(strconv.FormatUint(tx.Nonce(), 10))

	if receipt != nil {
		st.Status = StatusSuccess
		if receipt.Status == types.ReceiptStatusFailed {
			st.Status = StatusFailed
		}
		if receipt.BlockNumber != nil {
			st.BlockNumber = ptr(receipt.BlockNumber.String())
			confirmations := int64(head) - receipt.BlockNumber.Int64()
			if confirmations < 0 {
				confirmations = 0
			}
			st.Confirmations = ptr(strconv.FormatInt(confirmations, 10))
		}
		st.GasUsed = ptr(strconv.FormatUint(receipt.GasUsed, 10))
		if receipt.EffectiveGasPrice != nil {
			fee := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.EffectiveGasPrice)
			st.GasFee = ptr(fee.String())
		}
	}
	return st, nil
}

func signerFor(tx *types.Transaction) types.Signer {
	if id := tx.ChainId(); id != nil && id.Sign() > 0 {
		return types.LatestSignerForChainID(id)
	}
	return types.HomesteadSigner{}
}

func ptr(s string) *string { return &s }
