package receipts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mbd888/basemcp/internal/idgen"
	"github.com/mbd888/basemcp/internal/metrics"
)

const (
	notSpecified = "Not specified"
	recentLimit  = 5
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Service implements receipt business logic.
type Service struct {
	store  Store
	signer *Signer
	dir    string
	now    func() time.Time
}

// NewService creates a receipt service writing PDFs under dir. A nil signer
// issues unsigned receipts.
func NewService(store Store, signer *Signer, dir string) *Service {
	return &Service{
		store:  store,
		signer: signer,
		dir:    dir,
		now:    time.Now,
	}
}

// ParseDetails splits the buyer/product reply. Blank lines are skipped and
// missing fields become "Not specified".
func ParseDetails(details string) (buyer, product string) {
	buyer, product = notSpecified, notSpecified
	var lines []string
	for _, l := range strings.Split(strings.ReplaceAll(details, "\r\n", "\n"), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) >= 1 {
		buyer = lines[0]
	}
	if len(lines) >= 2 {
		product = lines[1]
	}
	return buyer, product
}

// FileName is the PDF name for a transaction hash.
func FileName(txHash string) string {
	short := txHash
	if len(short) > 16 {
		short = short[:16]
	}
	return "receipt-" + short + ".pdf"
}

// Issue renders, signs and records a receipt.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*Receipt, error) {
	if !txHashPattern.MatchString(req.Tx.Hash) || req.Tx.From == "" {
		return nil, ErrInvalidTx
	}
	buyer, product := ParseDetails(req.Details)
	business := strings.TrimSpace(req.BusinessName)
	if business == "" {
		business = DefaultBusinessName
	}

	now := s.now().UTC()
	r := &Receipt{
		ID:           idgen.WithPrefix("rcpt_"),
		ChatID:       req.ChatID,
		TxHash:       req.Tx.Hash,
		From:         req.Tx.From,
		To:           req.Tx.To,
		AmountEth:    req.Tx.AmountEth,
		BlockNumber:  req.Tx.BlockNumber,
		Buyer:        buyer,
		Product:      product,
		BusinessName: business,
		CreatedAt:    now,
	}

	sig, err := s.signer.Sign(payloadOf(r))
	if err != nil {
		return nil, fmt.Errorf("receipts: failed to sign: %w", err)
	}
	r.Signature = sig

	userDir := filepath.Join(s.dir, "user_"+strconv.FormatInt(req.ChatID, 10))
	if err := os.MkdirAll(userDir, 0o750); err != nil {
		return nil, fmt.Errorf("receipts: create %s: %w", userDir, err)
	}
	r.PDFPath = filepath.Join(userDir, FileName(req.Tx.Hash))

	doc := Document{
		BusinessName:     business,
		LogoPath:         req.LogoPath,
		Tx:               req.Tx,
		Status:           "Success",
		Buyer:            buyer,
		Product:          product,
		VerificationCode: VerificationCode(sig),
		GeneratedAt:      now,
	}
	if err := writePDF(r.PDFPath, doc); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("receipts: failed to record: %w", err)
	}
	metrics.ReceiptsGeneratedTotal.Inc()
	return r, nil
}

func writePDF(path string, doc Document) (err error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp) // #nosec G304 -- path built from data dir and a validated hash
	if err != nil {
		return fmt.Errorf("receipts: create pdf: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if err = Render(f, doc); err != nil {
		_ = f.Close()
		return fmt.Errorf("receipts: render pdf: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("receipts: write pdf: %w", err)
	}
	return os.Rename(tmp, path)
}

// Get returns a receipt by ID.
func (s *Service) Get(ctx context.Context, id string) (*Receipt, error) {
	return s.store.Get(ctx, id)
}

// Recent returns the chat's five most recent receipts.
func (s *Service) Recent(ctx context.Context, chatID int64) ([]*Receipt, error) {
	return s.store.ListByChat(ctx, chatID, recentLimit)
}

// ByTx finds the chat's receipt for a (possibly shortened) tx hash.
func (s *Service) ByTx(ctx context.Context, chatID int64, hash string) (*Receipt, error) {
	return s.store.GetByTx(ctx, chatID, hash)
}

// Verify checks whether a receipt's signature matches its contents.
func (s *Service) Verify(ctx context.Context, receiptID string) (*VerifyResponse, error) {
	if s.signer == nil {
		return &VerifyResponse{
			Valid:     false,
			ReceiptID: receiptID,
			Error:     ErrSigningDisabled.Error(),
		}, nil
	}

	receipt, err := s.store.Get(ctx, receiptID)
	if err != nil {
		return &VerifyResponse{
			Valid:     false,
			ReceiptID: receiptID,
			Error:     ErrReceiptNotFound.Error(),
		}, nil
	}

	resp := &VerifyResponse{
		Valid:     s.signer.Verify(payloadOf(receipt), receipt.Signature),
		ReceiptID: receiptID,
	}
	if !resp.Valid {
		resp.Error = "signature verification failed"
	}
	return resp, nil
}
