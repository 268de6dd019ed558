// Package receipts renders, signs and stores PDF receipts for verified
// on-chain payments.
package receipts

import (
	"context"
	"errors"
	"time"
)

var (
	ErrReceiptNotFound = errors.New("receipts: not found")
	ErrSigningDisabled = errors.New("receipts: signing disabled (no HMAC secret configured)")
	ErrInvalidTx       = errors.New("receipts: transaction details incomplete")
)

// DefaultBusinessName heads receipts for users without a business name.
const DefaultBusinessName = "Base Network"

// Receipt records one generated PDF.
type Receipt struct {
	ID           string    `json:"id"`
	ChatID       int64     `json:"chatId"`
	TxHash       string    `json:"txHash"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	AmountEth    string    `json:"amountEth"`
	BlockNumber  uint64    `json:"blockNumber"`
	Buyer        string    `json:"buyer"`
	Product      string    `json:"product"`
	BusinessName string    `json:"businessName"`
	PDFPath      string    `json:"pdfPath"`
	Signature    string    `json:"signature,omitempty"` // HMAC-SHA256, empty when signing is off
	CreatedAt    time.Time `json:"createdAt"`
}

// Tx is the verified transaction a receipt is issued for.
type Tx struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	AmountEth   string `json:"amountEth"`
	BlockNumber uint64 `json:"blockNumber"`
}

// IssueRequest is the input for generating a receipt. Details holds the
// free-text reply: buyer on the first line, product on the second.
type IssueRequest struct {
	ChatID       int64
	Tx           Tx
	Details      string
	BusinessName string
	LogoPath     string
}

// VerifyResponse is the result of receipt verification.
type VerifyResponse struct {
	Valid     bool   `json:"valid"`
	ReceiptID string `json:"receiptId"`
	Error     string `json:"error,omitempty"`
}

// Store persists receipt records.
type Store interface {
	Create(ctx context.Context, r *Receipt) error
	Get(ctx context.Context, id string) (*Receipt, error)
	// ListByChat returns the chat's receipts, newest first.
	ListByChat(ctx context.Context, chatID int64, limit int) ([]*Receipt, error)
	// GetByTx matches hash by prefix so the short form used in file names
	// and button data resolves.
	GetByTx(ctx context.Context, chatID int64, hash string) (*Receipt, error)
}

// receiptPayload is the canonical signed struct; field order is the
// marshalled order.
type receiptPayload struct {
	AmountEth   string `json:"amountEth"`
	BlockNumber uint64 `json:"blockNumber"`
	Buyer       string `json:"buyer"`
	ChatID      int64  `json:"chatId"`
	From        string `json:"from"`
	Product     string `json:"product"`
	To          string `json:"to"`
	TxHash      string `json:"txHash"`
}

func payloadOf(r *Receipt) receiptPayload {
	return receiptPayload{
		AmountEth:   r.AmountEth,
		BlockNumber: r.BlockNumber,
		Buyer:       r.Buyer,
		ChatID:      r.ChatID,
		From:        r.From,
		Product:     r.Product,
		To:          r.To,
		TxHash:      r.TxHash,
	}
}
