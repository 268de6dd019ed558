// Package gas recommends a gas price for a speed strategy and prices the
// resulting transaction in ETH and USD.
package gas

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mbd888/basemcp/internal/units"
)

// Strategies accepted by Optimize.
const (
	Fast   = "fast"
	Medium = "medium"
	Slow   = "slow"
)

// DefaultGasLimit is a plain ETH transfer.
const DefaultGasLimit = 21000

var (
	ErrInvalidStrategy = errors.New("strategy must be one of fast, medium, slow")
	ErrInvalidMaxPrice = errors.New("invalid maxGasPrice")
)

// FeeReader is the RPC surface needed to read current fees.
type FeeReader interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// PriceSource returns ETH/USD.
type PriceSource interface {
	ETHUSD(ctx context.Context) float64
}

// Request is the optimize_gas input.
type Request struct {
	Strategy    string
	MaxGasPrice string // gwei, optional
	GasLimit    uint64 // 0 means DefaultGasLimit
}

// Recommendation is the optimize_gas result.
type Recommendation struct {
	Strategy         string `json:"strategy"`
	GasPrice         string `json:"gasPrice"`
	GasPriceGwei     string `json:"gasPriceGwei"`
	GasLimit         uint64 `json:"gasLimit"`
	BaseFee          string `json:"baseFee"`
	PriorityFee      string `json:"priorityFee"`
	MaxFeePerGas     string `json:"maxFeePerGas"`
	Capped           bool   `json:"capped"`
	EstimatedCostEth string `json:"estimatedCostEth"`
	EstimatedCostUsd string `json:"estimatedCostUsd"`
	ETHPriceUsd      string `json:"ethPriceUsd"`
}

// Optimizer reads fees from one chain.
type Optimizer struct {
	fees   FeeReader
	prices PriceSource
}

// NewOptimizer creates an optimizer. prices may be nil to skip USD costs.
func NewOptimizer(fees FeeReader, prices PriceSource) *Optimizer {
	return &Optimizer{fees: fees, prices: prices}
}

// Optimize picks a gas price for req.Strategy, caps it at req.MaxGasPrice
// and prices req.GasLimit units of gas.
func (o *Optimizer) Optimize(ctx context.Context, req Request) (*Recommendation, error) {
	strategy := strings.ToLower(strings.TrimSpace(req.Strategy))
	if strategy == "" {
		strategy = Medium
	}
	if strategy != Fast && strategy != Medium && strategy != Slow {
		return nil, ErrInvalidStrategy
	}

	var maxPrice *big.Int
	if req.MaxGasPrice != "" {
		p, err := units.ParseGwei(req.MaxGasPrice)
		if err != nil || p.Sign() <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidMaxPrice, req.MaxGasPrice)
		}
		maxPrice = p
	}

	gasPrice, err := o.fees.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	tip, err := o.fees.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get priority fee: %w", err)
	}
	head, err := o.fees.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest block: %w", err)
	}

	base := head.BaseFee
	if base == nil {
		base = new(big.Int).Sub(gasPrice, tip)
		if base.Sign() < 0 {
			base = new(big.Int)
		}
	}
	maxFee := new(big.Int).Add(new(big.Int).Lsh(base, 1), tip)

	var price *big.Int
	switch strategy {
	case Fast:
		price = new(big.Int).Set(maxFee)
	case Medium:
		price = new(big.Int).Add(base, tip)
	case Slow:
		price = new(big.Int).Set(gasPrice)
	}

	capped := false
	if maxPrice != nil && price.Cmp(maxPrice) > 0 {
		price, capped = maxPrice, true
	}

	limit := req.GasLimit
	if limit == 0 {
		limit = DefaultGasLimit
	}
	costWei := new(big.Int).Mul(price, new(big.Int).SetUint64(limit))

	rec := &Recommendation{
		Strategy:         strategy,
		GasPrice:         price.String(),
		GasPriceGwei:     units.FormatGwei(price),
		GasLimit:         limit,
		BaseFee:          base.String(),
		PriorityFee:      tip.String(),
		MaxFeePerGas:     maxFee.String(),
		Capped:           capped,
		EstimatedCostEth: units.FormatEther(costWei),
	}

	if o.prices != nil {
		if ethUSD := o.prices.ETHUSD(ctx); ethUSD > 0 {
			costETH, _ := strconv.ParseFloat(rec.EstimatedCostEth, 64)
			rec.ETHPriceUsd = fmt.Sprintf("%.2f", ethUSD)
			rec.EstimatedCostUsd = fmt.Sprintf("%.6f", costETH*ethUSD)
		}
	}
	return rec, nil
}
