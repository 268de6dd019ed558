package receipts

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// PostgresStore persists receipt records in PostgreSQL. PDFs stay on disk;
// only their path is stored.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed receipt store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const receiptColumns = `id, chat_id, tx_hash, from_addr, to_addr,
	amount_eth, block_number, buyer, product, business_name,
	pdf_path, signature, created_at`

func (p *PostgresStore) Create(ctx context.Context, r *Receipt) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO receipts (`+receiptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, r.ChatID, strings.ToLower(r.TxHash), r.From, r.To,
		r.AmountEth, int64(r.BlockNumber), r.Buyer, r.Product, r.BusinessName,
		r.PDFPath, nullString(r.Signature), r.CreatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Receipt, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1`, id)
	r, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReceiptNotFound
	}
	return r, err
}

func (p *PostgresStore) ListByChat(ctx context.Context, chatID int64, limit int) ([]*Receipt, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+receiptColumns+`
		FROM receipts
		WHERE chat_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanReceipts(rows)
}

func (p *PostgresStore) GetByTx(ctx context.Context, chatID int64, hash string) (*Receipt, error) {
	if hash == "" {
		return nil, ErrReceiptNotFound
	}
	row := p.db.QueryRowContext(ctx, `SELECT `+receiptColumns+`
		FROM receipts
		WHERE chat_id = $1 AND tx_hash LIKE $2
		ORDER BY created_at DESC
		LIMIT 1`, chatID, escapeLike(strings.ToLower(hash))+"%")
	r, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReceiptNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(sc scanner) (*Receipt, error) {
	r := &Receipt{}
	var (
		block     int64
		signature sql.NullString
	)
	err := sc.Scan(
		&r.ID, &r.ChatID, &r.TxHash, &r.From, &r.To,
		&r.AmountEth, &block, &r.Buyer, &r.Product, &r.BusinessName,
		&r.PDFPath, &signature, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.BlockNumber = uint64(block)
	r.Signature = signature.String
	return r, nil
}

func scanReceipts(rows *sql.Rows) ([]*Receipt, error) {
	var result []*Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var _ Store = (*PostgresStore)(nil)
