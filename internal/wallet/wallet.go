// Package wallet signs and sends transactions on Base and reads chain
// state: native and ERC-20 balances, ERC-721 ownership, arbitrary calls.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mbd888/basemcp/internal/syncutil"
)

var (
	ErrNoSigner            = errors.New("wallet not configured: set PRIVATE_KEY or SEED_PHRASE")
	ErrInvalidPrivateKey   = errors.New("wallet: invalid private key")
	ErrInvalidAddress      = errors.New("wallet: invalid address")
	ErrInvalidAmount       = errors.New("wallet: invalid amount")
	ErrInsufficientBalance = errors.New("wallet: insufficient balance")
	ErrTransactionFailed   = errors.New("wallet: transaction failed")
	ErrTimeout             = errors.New("wallet: operation timed out")
	ErrRPCConnection       = errors.New("wallet: RPC connection failed")
)

// TxError wraps a failed transaction step with the hash, when one exists.
type TxError struct {
	Op     string
	TxHash string
	Err    error
}

func (e *TxError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("wallet: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("wallet: %s failed: %v", e.Op, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// EthClient is the subset of *ethclient.Client the tools use.
type EthClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	Close()
}

var _ EthClient = (*ethclient.Client)(nil)

const (
	// DefaultReceiptTimeout bounds WaitForReceipt when the caller passes 0.
	DefaultReceiptTimeout = 2 * time.Minute

	// DefaultPollInterval between receipt checks
	DefaultPollInterval = 2 * time.Second
)

// Config for creating a new wallet
type Config struct {
	RPCURL       string
	ChainID      int64
	PrivateKey   string // hex, optional 0x prefix
	SeedPhrase   string // used when PrivateKey is empty
	USDCContract string
}

// Option configures the wallet
type Option func(*Wallet)

// WithClient sets a custom Ethereum client (useful for testing)
func WithClient(client EthClient) Option {
	return func(w *Wallet) {
		w.client = client
	}
}

// WithPollInterval overrides how often WaitForReceipt polls.
func WithPollInterval(d time.Duration) Option {
	return func(w *Wallet) {
		w.pollInterval = d
	}
}

// Wallet reads chain state and, when a key is configured, sends transactions.
type Wallet struct {
	client       EthClient
	key          *ecdsa.PrivateKey // nil for a read-only wallet
	address      common.Address
	chainID      *big.Int
	usdc         common.Address
	erc20        abi.ABI
	erc721       abi.ABI
	nonces       *syncutil.ContextShardedMutex
	pollInterval time.Duration
}

// New creates a wallet. Without PrivateKey or SeedPhrase the wallet is
// read-only and signing operations return ErrNoSigner.
func New(cfg Config, opts ...Option) (*Wallet, error) {
	if cfg.ChainID == 0 {
		return nil, fmt.Errorf("chain ID required")
	}

	key, err := loadKey(cfg.PrivateKey, cfg.SeedPhrase)
	if err != nil {
		return nil, err
	}

	w := &Wallet{
		key:          key,
		chainID:      big.NewInt(cfg.ChainID),
		usdc:         common.HexToAddress(cfg.USDCContract),
		erc20:        mustABI(erc20ABI),
		erc721:       mustABI(erc721ABI),
		nonces:       syncutil.NewContextShardedMutex(),
		pollInterval: DefaultPollInterval,
	}
	if key != nil {
		w.address = crypto.PubkeyToAddress(key.PublicKey)
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.client == nil {
		if cfg.RPCURL == "" {
			return nil, fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
		}
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		w.client = client
	}

	return w, nil
}

// HasSigner reports whether the wallet can sign.
func (w *Wallet) HasSigner() bool { return w.key != nil }

// Address returns the signer address.
func (w *Wallet) Address() (common.Address, error) {
	if w.key == nil {
		return common.Address{}, ErrNoSigner
	}
	return w.address, nil
}

// ChainID returns the configured chain id.
func (w *Wallet) ChainID() int64 { return w.chainID.Int64() }

// USDC returns the configured USDC contract.
func (w *Wallet) USDC() common.Address { return w.usdc }

// Client exposes the underlying RPC client for read-only packages.
func (w *Wallet) Client() EthClient { return w.client }

// Close closes the client connection
func (w *Wallet) Close() error {
	if w.client != nil {
		w.client.Close()
	}
	return nil
}

// NativeBalance returns the ETH balance of addr in wei.
func (w *Wallet) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := w.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return bal, nil
}

// ParseAddress validates and converts a 0x address string.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) || len(s) != 42 {
		return common.Address{}, fmt.Errorf("%w: %s", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// Read packs method(args) against parsed, calls to, and unpacks the outputs.
func (w *Wallet) Read(ctx context.Context, parsed abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}
	out, err := w.Call(ctx, to, data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return values, nil
}

// Call performs a read-only eth_call from the signer address (if any).
func (w *Wallet) Call(ctx context.Context, to common.Address, data []byte, value *big.Int) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data, Value: value}
	if w.key != nil {
		msg.From = w.address
	}
	return w.client.CallContract(ctx, msg, nil)
}

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("wallet: bad built-in ABI: %v", err))
	}
	return parsed
}
