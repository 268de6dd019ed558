package receipts

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory receipt store for tests and development.
type MemoryStore struct {
	receipts map[string]*Receipt
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory receipt store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		receipts: make(map[string]*Receipt),
	}
}

func (m *MemoryStore) Create(_ context.Context, r *Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.receipts[r.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.receipts[id]
	if !ok {
		return nil, ErrReceiptNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ListByChat(_ context.Context, chatID int64, limit int) ([]*Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Receipt
	for _, r := range m.receipts {
		if r.ChatID == chatID {
			cp := *r
			result = append(result, &cp)
		}
	}
	return newestFirst(result, limit), nil
}

func (m *MemoryStore) GetByTx(_ context.Context, chatID int64, hash string) (*Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []*Receipt
	for _, r := range m.receipts {
		if r.ChatID == chatID && matchesHash(r.TxHash, hash) {
			cp := *r
			matches = append(matches, &cp)
		}
	}
	if len(matches) == 0 {
		return nil, ErrReceiptNotFound
	}
	return newestFirst(matches, 1)[0], nil
}

func newestFirst(rs []*Receipt, limit int) []*Receipt {
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].CreatedAt.After(rs[j].CreatedAt)
	})
	if limit > 0 && len(rs) > limit {
		rs = rs[:limit]
	}
	return rs
}

func matchesHash(full, prefix string) bool {
	return prefix != "" && strings.HasPrefix(strings.ToLower(full), strings.ToLower(prefix))
}

var _ Store = (*MemoryStore)(nil)
