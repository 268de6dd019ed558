package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mbd888/basemcp/internal/units"
)

// Payment is an incoming USDC transfer to a watched address.
type Payment struct {
	From        common.Address
	To          common.Address
	Amount      *big.Int
	TxHash      common.Hash
	BlockNumber uint64
}

// AmountUSDC formats Amount with six decimals trimmed.
func (p Payment) AmountUSDC() string {
	return units.Format(p.Amount, units.USDCDecimals)
}

// Notifier receives each payment once.
type Notifier interface {
	NotifyPayment(ctx context.Context, p Payment) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, p Payment) error

func (f NotifierFunc) NotifyPayment(ctx context.Context, p Payment) error { return f(ctx, p) }

// PaymentConfig configures a PaymentWatcher.
type PaymentConfig struct {
	USDC         common.Address
	PollInterval time.Duration
	StartBlock   uint64 // 0 = current head
	MaxRange     uint64 // blocks per poll, 0 = 2000
}

// PaymentWatcher polls USDC Transfer logs addressed to registered wallets.
type PaymentWatcher struct {
	rpc      LogReader
	cfg      PaymentConfig
	notifier Notifier
	logger   *slog.Logger

	mu        sync.Mutex
	watched   map[common.Address]struct{}
	notified  map[string]uint64 // tx:recipient -> block
	lastBlock uint64
	started   bool

	stop chan struct{}
	done chan struct{}
}

// NewPaymentWatcher creates a watcher; call Start to begin polling.
func NewPaymentWatcher(rpc LogReader, cfg PaymentConfig, notifier Notifier, logger *slog.Logger) *PaymentWatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.MaxRange == 0 {
		cfg.MaxRange = 2000
	}
	return &PaymentWatcher{
		rpc:      rpc,
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		watched:  make(map[common.Address]struct{}),
		notified: make(map[string]uint64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Watch adds addr to the set of recipients.
func (w *PaymentWatcher) Watch(addr common.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched[addr] = struct{}{}
}

// Unwatch removes addr.
func (w *PaymentWatcher) Unwatch(addr common.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.watched, addr)
}

// Watching reports whether addr is registered.
func (w *PaymentWatcher) Watching(addr common.Address) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.watched[addr]
	return ok
}

// Start positions the watcher and launches the poll loop.
func (w *PaymentWatcher) Start(ctx context.Context) error {
	start := w.cfg.StartBlock
	if start == 0 {
		head, err := w.rpc.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to get block number: %w", err)
		}
		start = head
	}
	w.mu.Lock()
	w.lastBlock = start
	w.started = true
	w.mu.Unlock()

	w.logger.Info("payment watcher started", "usdc", w.cfg.USDC.Hex(), "start_block", start)
	go w.loop(ctx)
	return nil
}

// Stop ends the poll loop and waits for it to exit.
func (w *PaymentWatcher) Stop() {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		return
	}
	close(w.stop)
	<-w.done
}

func (w *PaymentWatcher) loop(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			if err := w.Poll(ctx); err != nil {
				w.logger.Warn("payment poll failed", "error", err)
			}
		}
	}
}

// Poll checks blocks after the last processed one. A failed notification
// leaves its block unprocessed so the next poll retries it.
func (w *PaymentWatcher) Poll(ctx context.Context) error {
	w.mu.Lock()
	targets := make([]common.Hash, 0, len(w.watched))
	for a := range w.watched {
		targets = append(targets, common.BytesToHash(a.Bytes()))
	}
	last := w.lastBlock
	w.mu.Unlock()

	head, err := w.rpc.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}
	if head <= last {
		return nil
	}
	to := head
	if to-last > w.cfg.MaxRange {
		to = last + w.cfg.MaxRange
	}
	if len(targets) == 0 {
		w.advance(to)
		return nil
	}

	logs, err := w.rpc.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(last + 1),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{w.cfg.USDC},
		Topics:    [][]common.Hash{{TransferTopic}, nil, targets},
	})
	if err != nil {
		return fmt.Errorf("failed to filter logs: %w", err)
	}

	done := to
	for _, l := range logs {
		if err := w.handle(ctx, l); err != nil {
			w.logger.Warn("payment notification failed", "tx", l.TxHash.Hex(), "error", err)
			if l.BlockNumber > 0 && l.BlockNumber-1 < done {
				done = l.BlockNumber - 1
			}
		}
	}
	w.advance(done)
	return nil
}

func (w *PaymentWatcher) handle(ctx context.Context, l types.Log) error {
	if len(l.Topics) < 3 || l.Removed {
		return nil
	}
	p := Payment{
		From:        common.BytesToAddress(l.Topics[1].Bytes()),
		To:          common.BytesToAddress(l.Topics[2].Bytes()),
		Amount:      new(big.Int).SetBytes(l.Data),
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
	}
	key := p.TxHash.Hex() + ":" + p.To.Hex()

	w.mu.Lock()
	if _, seen := w.notified[key]; seen {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if err := w.notifier.NotifyPayment(ctx, p); err != nil {
		return err
	}

	w.mu.Lock()
	w.notified[key] = p.BlockNumber
	w.mu.Unlock()
	w.logger.Info("payment received", "to", p.To.Hex(), "amount", p.AmountUSDC(), "tx", p.TxHash.Hex())
	return nil
}

func (w *PaymentWatcher) advance(block uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if block <= w.lastBlock {
		return
	}
	w.lastBlock = block
	for k, b := range w.notified {
		if b <= block {
			delete(w.notified, k)
		}
	}
}

// LastBlock returns the highest fully processed block.
func (w *PaymentWatcher) LastBlock() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastBlock
}
