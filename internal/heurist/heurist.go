// Package heurist buys Heurist API credits on Base with an accepted ERC-20.
package heurist

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mbd888/basemcp/internal/chains"
	"github.com/mbd888/basemcp/internal/units"
	"github.com/mbd888/basemcp/internal/wallet"
)

// ContractAddress is the Heurist credits purchase contract on Base.
var ContractAddress = common.HexToAddress("0x59d944b7ff8c432ff395683f5c95d97ca0237986")

// CreditsURL is where buyers manage their credits.
const CreditsURL = "https://www.heurist.ai/credits"

const receiptTimeout = 2 * time.Minute

// Token is a payment token accepted for credits.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals int
	Minimum  string // decimal units
}

// Tokens lists the supported payment tokens by symbol.
var Tokens = map[string]Token{
	"USDC": {Symbol: "USDC", Address: common.HexToAddress("0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"), Decimals: 6, Minimum: "1"},
	"HEU":  {Symbol: "HEU", Address: common.HexToAddress("0xef22cb48b8483df6152e1423b19df5553bbd818b"), Decimals: 18, Minimum: "10"},
	"WETH": {Symbol: "WETH", Address: common.HexToAddress("0x4200000000000000000000000000000000000006"), Decimals: 18, Minimum: "0.001"},
}

const contractABI = `[
	{"inputs":[{"name":"token","type":"address"}],"name":"isAcceptedToken","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"token","type":"address"},{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"name":"purchaseCredits","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// ABI is the purchase contract interface.
var ABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// Service performs credit purchases from the configured wallet.
type Service struct {
	w       *wallet.Wallet
	timeout time.Duration
}

// New creates a purchase service.
func New(w *wallet.Wallet) *Service {
	return &Service{w: w, timeout: receiptTimeout}
}

// BuyCredits approves and purchases credits for amount of symbol. The
// amount is raised to the token minimum. It returns a human readable
// confirmation.
func (s *Service) BuyCredits(ctx context.Context, symbol string, amount float64) (string, error) {
	if err := chains.RequireSupported(s.w.ChainID(), chains.BaseMainnet); err != nil {
		return "", err
	}
	token, ok := Tokens[strings.ToUpper(symbol)]
	if !ok {
		return "", fmt.Errorf("Unsupported token: %s. Supported tokens are USDC, HEU, WETH", symbol)
	}
	if amount <= 0 {
		return "", fmt.Errorf("Amount must be greater than 0")
	}
	self, err := s.w.Address()
	if err != nil {
		return "", err
	}

	// a failed read is not a rejection; the purchase itself will tell
	if out, err := s.w.Read(ctx, ABI, ContractAddress, "isAcceptedToken", token.Address); err == nil {
		if accepted, _ := out[0].(bool); !accepted {
			return "", fmt.Errorf("%s (%s) is not currently accepted by the Heurist contract. Please try another token.",
				token.Symbol, strings.ToLower(token.Address.Hex()))
		}
	}

	want, err := units.Parse(strconv.FormatFloat(amount, 'f', -1, 64), token.Decimals)
	if err != nil {
		return "", fmt.Errorf("Invalid amount: %w", err)
	}
	minimum, _ := units.Parse(token.Minimum, token.Decimals)
	if want.Cmp(minimum) < 0 {
		want = minimum
	}

	balance, err := s.w.TokenBalance(ctx, token.Address, self)
	if err != nil {
		return "", fmt.Errorf("Transaction failed: %w", err)
	}
	if balance.Cmp(want) < 0 {
		return "", fmt.Errorf("Insufficient %s balance. You have %s %s, but %s %s is required.",
			token.Symbol, units.Format(balance, token.Decimals), token.Symbol,
			units.Format(want, token.Decimals), token.Symbol)
	}

	if err := s.ensureAllowance(ctx, token, self, want); err != nil {
		return "", explain(err)
	}

	data, err := ABI.Pack("purchaseCredits", token.Address, self, want)
	if err != nil {
		return "", err
	}
	tx, err := s.w.Send(ctx, "buy_heurist_credits", wallet.TxRequest{To: &ContractAddress, Data: data})
	if err != nil {
		return "", explain(err)
	}
	if _, err := s.w.WaitForReceipt(ctx, tx.Hash(), s.timeout); err != nil {
		return "", explain(err)
	}

	return fmt.Sprintf("Successfully purchased Heurist API credits with %s %s. Transaction: %s\n\n"+
		"You can check your credits balance and manage your API keys by visiting %s "+
		"and connecting with the same wallet address (%s) that you used for this purchase.",
		units.Format(want, token.Decimals), token.Symbol,
		chains.TxURL(s.w.ChainID(), tx.Hash().Hex()), CreditsURL, self.Hex()), nil
}

func (s *Service) ensureAllowance(ctx context.Context, token Token, owner common.Address, want *big.Int) error {
	allowance, err := s.w.Allowance(ctx, token.Address, owner, ContractAddress)
	if err != nil {
		return err
	}
	if allowance.Cmp(want) >= 0 {
		return nil
	}
	hash, err := s.w.Approve(ctx, token.Address, ContractAddress, want)
	if err != nil {
		return err
	}
	_, err = s.w.WaitForReceipt(ctx, hash, s.timeout)
	return err
}

func explain(err error) error {
	msg := err.Error()
	switch {
	case errors.Is(err, wallet.ErrTransactionFailed) || strings.Contains(msg, "execution reverted"):
		return errors.New("Transaction failed: The contract rejected the transaction. This might be due to:\n" +
			"1. The contract not accepting this specific token currently\n" +
			"2. The amount being too small or too large (try at least 1 USDC or equivalent)\n" +
			"3. A temporary issue with the contract\n\n" +
			"Please try again with a different token or larger amount.")
	case strings.Contains(msg, "insufficient funds"):
		return errors.New("Transaction failed: Insufficient funds for gas. Please ensure you have enough ETH for transaction fees.")
	default:
		return fmt.Errorf("Transaction failed: %s", msg)
	}
}
