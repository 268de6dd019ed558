// Package testutil provides shared test fakes and database helpers.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrReverted is returned by CallContract when no stub matches.
var ErrReverted = errors.New("execution reverted")

// StubFunc answers a contract call with its decoded inputs.
type StubFunc func(args []any) ([]any, error)

type stub struct {
	method abi.Method
	fn     StubFunc
}

// FakeEthClient is an in-memory chain satisfying wallet.EthClient. Fields
// may be set directly before use; methods are safe for concurrent calls.
type FakeEthClient struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	Head         uint64
	BaseFee      *big.Int // nil means a pre-London header
	GasPrice     *big.Int
	TipCap       *big.Int
	GasEstimate  uint64

	Balances map[common.Address]*big.Int
	Nonces   map[common.Address]uint64
	Code     map[common.Address][]byte
	Txs      map[common.Hash]*types.Transaction
	Receipts map[common.Hash]*types.Receipt
	Logs     []types.Log
	Sent     []*types.Transaction
	Calls    []ethereum.CallMsg

	// AutoMine writes a receipt for every sent transaction.
	AutoMine bool
	// RevertSends makes mined receipts carry a failed status.
	RevertSends bool
	// OnSend runs after a transaction is accepted, with the sender.
	OnSend func(from common.Address, tx *types.Transaction)

	EstimateErr error
	SendErr     error
	HeadErr     error

	stubs map[common.Address]map[[4]byte]stub
}

// NewFakeEthClient returns a mining fake at block 100 with 1 gwei base fee.
func NewFakeEthClient(chainID int64) *FakeEthClient {
	return &FakeEthClient{
		ChainIDValue: big.NewInt(chainID),
		Head:         100,
		BaseFee:      big.NewInt(1_000_000_000),
		GasPrice:     big.NewInt(1_500_000_000),
		TipCap:       big.NewInt(100_000_000),
		GasEstimate:  50_000,
		Balances:     make(map[common.Address]*big.Int),
		Nonces:       make(map[common.Address]uint64),
		Code:         make(map[common.Address][]byte),
		Txs:          make(map[common.Hash]*types.Transaction),
		Receipts:     make(map[common.Hash]*types.Receipt),
		AutoMine:     true,
		stubs:        make(map[common.Address]map[[4]byte]stub),
	}
}

// Stub registers fn as the implementation of method on contract to.
func (f *FakeEthClient) Stub(to common.Address, parsed abi.ABI, method string, fn StubFunc) {
	m, ok := parsed.Methods[method]
	if !ok {
		panic(fmt.Sprintf("testutil: method %q not in ABI", method))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stubs[to] == nil {
		f.stubs[to] = make(map[[4]byte]stub)
	}
	var sel [4]byte
	copy(sel[:], m.ID)
	f.stubs[to][sel] = stub{method: m, fn: fn}
}

// SetBalance sets the native balance of addr.
func (f *FakeEthClient) SetBalance(addr common.Address, wei *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Balances[addr] = wei
}

// SentCount returns how many transactions were accepted.
func (f *FakeEthClient) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

func (f *FakeEthClient) ChainID(context.Context) (*big.Int, error) {
	return f.ChainIDValue, nil
}

func (f *FakeEthClient) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.HeadErr != nil {
		return 0, f.HeadErr
	}
	return f.Head, nil
}

func (f *FakeEthClient) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.HeadErr != nil {
		return nil, f.HeadErr
	}
	n := new(big.Int).SetUint64(f.Head)
	if number != nil {
		n = new(big.Int).Set(number)
	}
	return &types.Header{Number: n, BaseFee: f.BaseFee, Time: 1_700_000_000 + n.Uint64()*2}, nil
}

func (f *FakeEthClient) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.Balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *FakeEthClient) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Code[account], nil
}

func (f *FakeEthClient) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Nonces[account], nil
}

func (f *FakeEthClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return f.GasPrice, nil
}

func (f *FakeEthClient) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return f.TipCap, nil
}

func (f *FakeEthClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.EstimateErr != nil {
		return 0, f.EstimateErr
	}
	return f.GasEstimate, nil
}

func (f *FakeEthClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.SendErr != nil {
		return f.SendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.Sent = append(f.Sent, tx)
	f.Txs[tx.Hash()] = tx
	f.Nonces[from] = tx.Nonce() + 1
	if f.AutoMine {
		status := types.ReceiptStatusSuccessful
		if f.RevertSends {
			status = types.ReceiptStatusFailed
		}
		r := &types.Receipt{
			Type:              tx.Type(),
			Status:            status,
			TxHash:            tx.Hash(),
			GasUsed:           tx.Gas(),
			EffectiveGasPrice: f.GasPrice,
			BlockNumber:       new(big.Int).SetUint64(f.Head),
		}
		if tx.To() == nil {
			r.ContractAddress = crypto.CreateAddress(from, tx.Nonce())
		}
		f.Receipts[tx.Hash()] = r
	}
	hook := f.OnSend
	f.mu.Unlock()

	if hook != nil {
		hook(from, tx)
	}
	return nil
}

func (f *FakeEthClient) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.Txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	_, mined := f.Receipts[hash]
	return tx, !mined, nil
}

func (f *FakeEthClient) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.Receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *FakeEthClient) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, call)
	var s stub
	var ok bool
	if call.To != nil && len(call.Data) >= 4 {
		var sel [4]byte
		copy(sel[:], call.Data[:4])
		s, ok = f.stubs[*call.To][sel]
	}
	f.mu.Unlock()
	if !ok {
		return nil, ErrReverted
	}

	args, err := s.method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("testutil: unpack %s: %w", s.method.Name, err)
	}
	out, err := s.fn(args)
	if err != nil {
		return nil, err
	}
	return s.method.Outputs.Pack(out...)
}

func (f *FakeEthClient) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	from := uint64(0)
	if q.FromBlock != nil {
		from = q.FromBlock.Uint64()
	}
	to := f.Head
	if q.ToBlock != nil {
		to = q.ToBlock.Uint64()
	}

	var out []types.Log
	for _, l := range f.Logs {
		if l.BlockNumber < from || l.BlockNumber > to {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddr(q.Addresses, l.Address) {
			continue
		}
		if !topicsMatch(q.Topics, l.Topics) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *FakeEthClient) Close() {}

func containsAddr(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if bytes.Equal(x[:], a[:]) {
			return true
		}
	}
	return false
}

// topicsMatch applies the positional OR-sets of an eth_getLogs filter.
func topicsMatch(filter [][]common.Hash, topics []common.Hash) bool {
	for i, set := range filter {
		if len(set) == 0 {
			continue
		}
		if i >= len(topics) {
			return false
		}
		hit := false
		for _, h := range set {
			if h == topics[i] {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}
