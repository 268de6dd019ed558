package etherscan

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"time"

	"github.com/mbd888/basemcp/internal/chains"
	"github.com/mbd888/basemcp/internal/units"
)

// rawTx is one txlist entry. Etherscan returns every field as a string.
type rawTx struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	Nonce           string `json:"nonce"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	GasPrice        string `json:"gasPrice"`
	GasUsed         string `json:"gasUsed"`
	IsError         string `json:"isError"`
	TxReceiptStatus string `json:"txreceipt_status"`
	Input           string `json:"input"`
	ContractAddress string `json:"contractAddress"`
	MethodID        string `json:"methodId"`
	FunctionName    string `json:"functionName"`
}

type rawTokenTx struct {
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	ContractAddress string `json:"contractAddress"`
	Value           string `json:"value"`
	TokenName       string `json:"tokenName"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
}

// TxQuery is the etherscan_address_transactions input.
type TxQuery struct {
	Address    string `json:"address"`
	ChainID    int64  `json:"chainId,omitempty"`
	StartBlock int64  `json:"startblock,omitempty"`
	EndBlock   int64  `json:"endblock,omitempty"` // 0 = latest
	Page       int    `json:"page,omitempty"`
	Offset     int    `json:"offset,omitempty"`
	Sort       string `json:"sort,omitempty"`
}

func (q *TxQuery) normalize() error {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Offset == 0 {
		q.Offset = 5
	}
	if q.Sort == "" {
		q.Sort = "desc"
	}
	switch {
	case q.Address == "":
		return fmt.Errorf("address is required")
	case q.Page < 1:
		return fmt.Errorf("page must be at least 1")
	case q.Offset < 1 || q.Offset > 1000:
		return fmt.Errorf("offset must be between 1 and 1000")
	case q.Sort != "asc" && q.Sort != "desc":
		return fmt.Errorf("sort must be asc or desc")
	}
	return nil
}

// TokenTransfer is an ERC-20 movement inside a transaction.
type TokenTransfer struct {
	From            string `json:"from"`
	ContractAddress string `json:"contractAddress"`
	To              string `json:"to"`
	Value           string `json:"value"`
	TokenName       string `json:"tokenName"`
}

// Transaction is one formatted etherscan_address_transactions entry.
type Transaction struct {
	TimeStamp       string          `json:"timeStamp"`
	Hash            string          `json:"hash"`
	Nonce           string          `json:"nonce"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	Value           string          `json:"value"`
	GasPrice        string          `json:"gasPrice"`
	IsError         string          `json:"isError"`
	TxReceiptStatus string          `json:"txreceipt_status"`
	Input           string          `json:"input"`
	ContractAddress string          `json:"contractAddress"`
	FeeInEth        string          `json:"feeInEth"`
	MethodID        string          `json:"methodId"`
	FunctionName    string          `json:"functionName"`
	TokenTransfers  []TokenTransfer `json:"tokenTransfers"`
}

// AddressTransactions lists normal transactions for an address and attaches
// the ERC-20 transfers that happened in each of them.
func (c *Client) AddressTransactions(ctx context.Context, q TxQuery) ([]Transaction, error) {
	if err := q.normalize(); err != nil {
		return nil, err
	}

	endBlock := "latest"
	if q.EndBlock > 0 {
		endBlock = strconv.FormatInt(q.EndBlock, 10)
	}
	var txs []rawTx
	err := c.call(ctx, q.ChainID, url.Values{
		"module":     {"account"},
		"action":     {"txlist"},
		"address":    {q.Address},
		"startblock": {strconv.FormatInt(q.StartBlock, 10)},
		"endblock":   {endBlock},
		"page":       {strconv.Itoa(q.Page)},
		"offset":     {strconv.Itoa(q.Offset)},
		"sort":       {q.Sort},
	}, &txs)
	if err != nil {
		return nil, err
	}

	transfers := map[string][]TokenTransfer{}
	if len(txs) > 0 {
		transfers, err = c.tokenTransfersFor(ctx, q, txs)
		if err != nil {
			return nil, err
		}
	}

	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		out = append(out, formatTx(tx, transfers[tx.Hash]))
	}
	return out, nil
}

// tokenTransfersFor fetches tokentx over the block span of txs (widened by
// one block each side) and groups the transfers by transaction hash.
func (c *Client) tokenTransfersFor(ctx context.Context, q TxQuery, txs []rawTx) (map[string][]TokenTransfer, error) {
	minBlock, maxBlock := int64(-1), int64(0)
	hashes := make(map[string]bool, len(txs))
	for _, tx := range txs {
		hashes[tx.Hash] = true
		n, err := strconv.ParseInt(tx.BlockNumber, 10, 64)
		if err != nil {
			continue
		}
		if minBlock < 0 || n < minBlock {
			minBlock = n
		}
		if n > maxBlock {
			maxBlock = n
		}
	}
	if minBlock < 1 {
		minBlock = 1
	}

	var tokenTxs []rawTokenTx
	err := c.call(ctx, q.ChainID, url.Values{
		"module":     {"account"},
		"action":     {"tokentx"},
		"address":    {q.Address},
		"startblock": {strconv.FormatInt(minBlock-1, 10)},
		"endblock":   {strconv.FormatInt(maxBlock+1, 10)},
		"page":       {"1"},
		"offset":     {"100"},
		"sort":       {q.Sort},
	}, &tokenTxs)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]TokenTransfer)
	for _, tt := range tokenTxs {
		if !hashes[tt.Hash] {
			continue
		}
		decimals, _ := strconv.Atoi(tt.TokenDecimal)
		value := bigOrZero(tt.Value)
		grouped[tt.Hash] = append(grouped[tt.Hash], TokenTransfer{
			From:            tt.From,
			ContractAddress: tt.ContractAddress,
			To:              tt.To,
			Value:           units.Format(value, decimals) + " " + tt.TokenSymbol,
			TokenName:       tt.TokenName,
		})
	}
	return grouped, nil
}

func formatTx(tx rawTx, transfers []TokenTransfer) Transaction {
	ts, _ := strconv.ParseInt(tx.TimeStamp, 10, 64)
	value := bigOrZero(tx.Value)
	gasPrice := bigOrZero(tx.GasPrice)
	fee := new(big.Int).Mul(bigOrZero(tx.GasUsed), gasPrice)
	if transfers == nil {
		transfers = []TokenTransfer{}
	}

	return Transaction{
		TimeStamp:       isoMillis(time.Unix(ts, 0)) + " UTC",
		Hash:            tx.Hash,
		Nonce:           tx.Nonce,
		From:            tx.From,
		To:              tx.To,
		Value:           units.FormatEther(value) + " ETH",
		GasPrice:        units.FormatGwei(gasPrice) + " gwei",
		IsError:         tx.IsError,
		TxReceiptStatus: tx.TxReceiptStatus,
		Input:           tx.Input,
		ContractAddress: tx.ContractAddress,
		FeeInEth:        units.FormatEther(fee) + " ETH",
		MethodID:        tx.MethodID,
		FunctionName:    tx.FunctionName,
		TokenTransfers:  transfers,
	}
}

// RecentTransaction is one recent_transactions entry.
type RecentTransaction struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	BlockNumber string `json:"blockNumber"`
	Timestamp   string `json:"timestamp"`
	ExplorerURL string `json:"explorerUrl"`
}

// Recent is the recent_transactions result.
type Recent struct {
	Address      string              `json:"address"`
	Transactions []RecentTransaction `json:"transactions"`
}

// RecentTransactions returns the five latest transactions of an address.
func (c *Client) RecentTransactions(ctx context.Context, address string, chainID int64) (*Recent, error) {
	var txs []rawTx
	err := c.call(ctx, chainID, url.Values{
		"module":  {"account"},
		"action":  {"txlist"},
		"address": {address},
		"sort":    {"desc"},
		"page":    {"1"},
		"offset":  {"5"},
	}, &txs)
	if err != nil {
		return nil, fmt.Errorf("Failed to fetch recent transactions: %w", err)
	}
	if len(txs) > 5 {
		txs = txs[:5]
	}

	chainID = c.chain(chainID)
	out := &Recent{Address: address, Transactions: make([]RecentTransaction, 0, len(txs))}
	for _, tx := range txs {
		out.Transactions = append(out.Transactions, RecentTransaction{
			Hash:        tx.Hash,
			From:        tx.From,
			To:          tx.To,
			Value:       tx.Value,
			BlockNumber: tx.BlockNumber,
			Timestamp:   tx.TimeStamp,
			ExplorerURL: chains.TxURL(chainID, tx.Hash),
		})
	}
	return out, nil
}

func bigOrZero(s string) *big.Int {
	if v, ok := units.ParseBig(s); ok {
		return v
	}
	return new(big.Int)
}

func isoMillis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
