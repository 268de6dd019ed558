package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mbd888/basemcp/internal/metrics"
)

// TxRequest describes a transaction to sign. A nil To deploys a contract.
type TxRequest struct {
	To       *common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64 // 0 = estimate
}

// Fees is an EIP-1559 fee suggestion.
type Fees struct {
	BaseFee  *big.Int // latest block base fee
	TipCap   *big.Int // suggested priority fee
	MaxFee   *big.Int // 2*BaseFee + TipCap
	GasPrice *big.Int // legacy eth_gasPrice
}

// SuggestFees reads the current base fee, tip and legacy gas price.
func (w *Wallet) SuggestFees(ctx context.Context) (*Fees, error) {
	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	tip, err := w.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get priority fee: %w", err)
	}
	head, err := w.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest block: %w", err)
	}

	base := head.BaseFee
	if base == nil {
		// pre-London chain: treat gas price as the whole fee
		base = new(big.Int).Sub(gasPrice, tip)
		if base.Sign() < 0 {
			base = new(big.Int)
		}
	}
	maxFee := new(big.Int).Mul(base, big.NewInt(2))
	maxFee.Add(maxFee, tip)

	return &Fees{BaseFee: base, TipCap: tip, MaxFee: maxFee, GasPrice: gasPrice}, nil
}

// Send signs and broadcasts req as an EIP-1559 transaction. Sends from the
// same address are serialised so each gets a distinct pending nonce.
func (w *Wallet) Send(ctx context.Context, op string, req TxRequest) (tx *types.Transaction, err error) {
	defer func() { metrics.ObserveTx(op, err) }()

	if w.key == nil {
		return nil, ErrNoSigner
	}

	unlock, err := w.nonces.LockContext(ctx, w.address.Hex())
	if err != nil {
		return nil, &TxError{Op: op, Err: err}
	}
	defer unlock()

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := w.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return nil, &TxError{Op: op, Err: fmt.Errorf("nonce: %w", err)}
	}

	fees, err := w.SuggestFees(ctx)
	if err != nil {
		return nil, &TxError{Op: op, Err: err}
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit, err = w.client.EstimateGas(ctx, ethereum.CallMsg{
			From:  w.address,
			To:    req.To,
			Value: value,
			Data:  req.Data,
		})
		if err != nil {
			return nil, &TxError{Op: op, Err: fmt.Errorf("estimate gas: %w", err)}
		}
	}

	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   w.chainID,
		Nonce:     nonce,
		GasTipCap: fees.TipCap,
		GasFeeCap: fees.MaxFee,
		Gas:       gasLimit,
		To:        req.To,
		Value:     value,
		Data:      req.Data,
	})

	signed, err := types.SignTx(unsigned, types.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return nil, &TxError{Op: op, Err: fmt.Errorf("sign: %w", err)}
	}

	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return nil, &TxError{Op: op, TxHash: signed.Hash().Hex(), Err: err}
	}
	return signed, nil
}

// TransferNative sends amount wei of ETH to to.
func (w *Wallet) TransferNative(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error) {
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, ErrInvalidAmount
	}
	if w.key != nil {
		bal, err := w.NativeBalance(ctx, w.address)
		if err != nil {
			return common.Hash{}, err
		}
		if bal.Cmp(amount) < 0 {
			return common.Hash{}, fmt.Errorf("%w: have %s wei, need %s wei", ErrInsufficientBalance, bal, amount)
		}
	}
	tx, err := w.Send(ctx, "transfer_eth", TxRequest{To: &to, Value: amount, GasLimit: 21000})
	if err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

// Deploy sends a contract creation transaction and returns the address the
// contract will live at.
func (w *Wallet) Deploy(ctx context.Context, parsed abi.ABI, bytecode []byte, args ...any) (common.Address, common.Hash, error) {
	if len(bytecode) == 0 {
		return common.Address{}, common.Hash{}, fmt.Errorf("bytecode is required")
	}
	ctorArgs, err := parsed.Pack("", args...)
	if err != nil {
		return common.Address{}, common.Hash{}, fmt.Errorf("failed to encode constructor arguments: %w", err)
	}
	data := append(append([]byte{}, bytecode...), ctorArgs...)

	tx, err := w.Send(ctx, "deploy", TxRequest{Data: data})
	if err != nil {
		return common.Address{}, common.Hash{}, err
	}
	return crypto.CreateAddress(w.address, tx.Nonce()), tx.Hash(), nil
}

// WaitForReceipt polls until hash is mined or timeout elapses. A reverted
// transaction returns its receipt together with ErrTransactionFailed.
func (w *Wallet) WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	if timeout <= 0 {
		timeout = DefaultReceiptTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, &TxError{Op: "confirm", TxHash: hash.Hex(), Err: ErrTransactionFailed}
			}
			return receipt, nil
		}
		// not yet mined, or a transient RPC error: keep polling

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: waiting for tx %s", ErrTimeout, hash.Hex())
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
