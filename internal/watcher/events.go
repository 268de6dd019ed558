// Package watcher reads contract event logs: one-off queries for the
// get_contract_events tool and a polling watcher for incoming USDC.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TransferTopic is keccak256("Transfer(address,address,uint256)").
var TransferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

const (
	// DefaultLookback is used when no fromBlock is given.
	DefaultLookback = 1000
	// MaxBlockRange bounds a single query.
	MaxBlockRange = 5000
)

var (
	ErrInvalidEvent = errors.New("invalid event signature")
	ErrRangeTooWide = fmt.Errorf("block range exceeds %d blocks", MaxBlockRange)
	ErrBadRange     = errors.New("fromBlock must not exceed toBlock")
)

var signatureRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*\(([A-Za-z0-9_\[\],()]*)\)$`)

// LogReader is the RPC surface for log queries.
type LogReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// EventQuery selects logs of one event on one contract.
type EventQuery struct {
	Contract  common.Address
	Signature string  // e.g. Transfer(address,address,uint256)
	FromBlock *uint64 // nil = head - DefaultLookback
	ToBlock   *uint64 // nil = head
}

// Event is one decoded log.
type Event struct {
	BlockNumber uint64   `json:"blockNumber"`
	TxHash      string   `json:"txHash"`
	LogIndex    uint     `json:"logIndex"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Removed     bool     `json:"removed,omitempty"`
}

// Topic returns the topic0 hash of an event signature. Spaces are ignored.
func Topic(signature string) (common.Hash, error) {
	sig := strings.ReplaceAll(signature, " ", "")
	if !signatureRegex.MatchString(sig) {
		return common.Hash{}, fmt.Errorf("%w: %q", ErrInvalidEvent, signature)
	}
	return crypto.Keccak256Hash([]byte(sig)), nil
}

// Events returns the logs matching q in block order.
func Events(ctx context.Context, r LogReader, q EventQuery) ([]Event, error) {
	topic, err := Topic(q.Signature)
	if err != nil {
		return nil, err
	}

	var from, to uint64
	if q.ToBlock != nil {
		to = *q.ToBlock
	} else {
		head, err := r.BlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get block number: %w", err)
		}
		to = head
	}
	if q.FromBlock != nil {
		from = *q.FromBlock
	} else if to > DefaultLookback {
		from = to - DefaultLookback
	}
	if from > to {
		return nil, ErrBadRange
	}
	if to-from > MaxBlockRange {
		return nil, ErrRangeTooWide
	}

	logs, err := r.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{q.Contract},
		Topics:    [][]common.Hash{{topic}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs: %w", err)
	}

	events := make([]Event, 0, len(logs))
	for _, l := range logs {
		topics := make([]string, len(l.Topics))
		for i, t := range l.Topics {
			topics[i] = t.Hex()
		}
		events = append(events, Event{
			BlockNumber: l.BlockNumber,
			TxHash:      l.TxHash.Hex(),
			LogIndex:    l.Index,
			Topics:      topics,
			Data:        hexutil.Encode(l.Data),
			Removed:     l.Removed,
		})
	}
	return events, nil
}
