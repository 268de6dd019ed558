package receipts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const indexFile = "index.json"

// FileStore keeps receipt records in a JSON index beside the PDFs. The
// whole index is rewritten on each Create.
type FileStore struct {
	mem  *MemoryStore
	path string
	mu   sync.Mutex
}

// NewFileStore opens (or creates) the index in dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("receipts: create %s: %w", dir, err)
	}
	fs := &FileStore{mem: NewMemoryStore(), path: filepath.Join(dir, indexFile)}

	data, err := os.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("receipts: read index: %w", err)
	}
	var records []*Receipt
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("receipts: parse index: %w", err)
	}
	for _, r := range records {
		fs.mem.receipts[r.ID] = r
	}
	return fs, nil
}

func (f *FileStore) Create(ctx context.Context, r *Receipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.mem.Create(ctx, r); err != nil {
		return err
	}
	if err := f.flush(); err != nil {
		f.mem.mu.Lock()
		delete(f.mem.receipts, r.ID)
		f.mem.mu.Unlock()
		return err
	}
	return nil
}

func (f *FileStore) flush() error {
	f.mem.mu.RLock()
	records := make([]*Receipt, 0, len(f.mem.receipts))
	for _, r := range f.mem.receipts {
		records = append(records, r)
	}
	f.mem.mu.RUnlock()
	records = newestFirst(records, 0)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("receipts: write index: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Get(ctx context.Context, id string) (*Receipt, error) {
	return f.mem.Get(ctx, id)
}

func (f *FileStore) ListByChat(ctx context.Context, chatID int64, limit int) ([]*Receipt, error) {
	return f.mem.ListByChat(ctx, chatID, limit)
}

func (f *FileStore) GetByTx(ctx context.Context, chatID int64, hash string) (*Receipt, error) {
	return f.mem.GetByTx(ctx, chatID, hash)
}

var _ Store = (*FileStore)(nil)
