package dao

import (
	"context"
	"sort"
	"sync"
)

type voteKey struct {
	dao, proposal, voter string
}

// MemoryStore keeps the registry in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	daos      map[string]*DAO
	proposals map[string]map[string]*Proposal // dao -> id -> proposal
	votes     map[voteKey]*Vote
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		daos:      make(map[string]*DAO),
		proposals: make(map[string]map[string]*Proposal),
		votes:     make(map[voteKey]*Vote),
	}
}

func (m *MemoryStore) CreateDAO(_ context.Context, d *DAO) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.daos[d.Address]; ok {
		return ErrDuplicate
	}
	cp := *d
	cp.Members = append([]Member(nil), d.Members...)
	m.daos[d.Address] = &cp
	return nil
}

func (m *MemoryStore) GetDAO(_ context.Context, address string) (*DAO, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.daos[address]
	if !ok {
		return nil, ErrDAONotFound
	}
	cp := *d
	cp.Members = append([]Member(nil), d.Members...)
	return &cp, nil
}

func (m *MemoryStore) CreateProposal(_ context.Context, p *Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := m.proposals[p.DAOAddress]
	if byID == nil {
		byID = make(map[string]*Proposal)
		m.proposals[p.DAOAddress] = byID
	}
	if _, ok := byID[p.ID]; ok {
		return ErrDuplicate
	}
	cp := *p
	byID[p.ID] = &cp
	return nil
}

func (m *MemoryStore) GetProposal(_ context.Context, daoAddress, id string) (*Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.proposals[daoAddress][id]
	if !ok {
		return nil, ErrProposalNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) ListProposals(_ context.Context, daoAddress string) ([]*Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Proposal, 0, len(m.proposals[daoAddress]))
	for _, p := range m.proposals[daoAddress] {
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) AddVote(_ context.Context, v *Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := voteKey{v.DAOAddress, v.ProposalID, v.Voter}
	if _, ok := m.votes[key]; ok {
		return ErrAlreadyVoted
	}
	cp := *v
	m.votes[key] = &cp
	return nil
}

func (m *MemoryStore) ListVotes(_ context.Context, daoAddress, proposalID string) ([]*Vote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Vote
	for k, v := range m.votes {
		if k.dao == daoAddress && k.proposal == proposalID {
			cp := *v
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

var _ Store = (*MemoryStore)(nil)
