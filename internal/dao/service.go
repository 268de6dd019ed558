package dao

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mbd888/basemcp/internal/syncutil"
)

const defaultListLimit = 10

// Service implements the governance rules on top of a Store.
type Service struct {
	store Store
	votes syncutil.ShardedMutex
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a governance service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDAORequest is the create_dao input. Zero settings take the defaults.
type CreateDAORequest struct {
	Name             string
	TokenAddress     string
	Members          []Member
	VotingPeriod     int64
	VotingDelay      int64
	QuorumPercentage float64
	ExecutionDelay   int64
}

// CreateDAO registers a DAO owned by creator.
func (s *Service) CreateDAO(ctx context.Context, creator string, req CreateDAORequest) (*DAO, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.New("DAO name is required")
	}

	d := &DAO{
		Name:    name,
		Members: []Member{},
		Settings: Settings{
			VotingPeriod:     orDefault(req.VotingPeriod, DefaultVotingPeriod),
			VotingDelay:      orDefault(req.VotingDelay, DefaultVotingDelay),
			QuorumPercentage: req.QuorumPercentage,
			ExecutionDelay:   orDefault(req.ExecutionDelay, DefaultExecutionDelay),
		},
		Creator:   normalize(creator),
		CreatedAt: s.now().UTC(),
	}
	if d.Settings.QuorumPercentage == 0 {
		d.Settings.QuorumPercentage = DefaultQuorumPercentage
	}
	if d.Settings.VotingPeriod < 0 || d.Settings.VotingDelay < 0 || d.Settings.ExecutionDelay < 0 {
		return nil, errors.New("Voting period, voting delay and execution delay cannot be negative")
	}
	if err := checkPercentage(d.Settings.QuorumPercentage); err != nil {
		return nil, err
	}

	if req.TokenAddress != "" {
		if !common.IsHexAddress(req.TokenAddress) {
			return nil, fmt.Errorf("Invalid token address: %s", req.TokenAddress)
		}
		token := normalize(req.TokenAddress)
		d.TokenAddress = &token
	}

	seen := make(map[string]bool, len(req.Members))
	for _, m := range req.Members {
		if !common.IsHexAddress(m.Address) {
			return nil, fmt.Errorf("Invalid member address: %s", m.Address)
		}
		if m.VotingPower <= 0 {
			return nil, fmt.Errorf("Voting power for %s must be positive", m.Address)
		}
		addr := normalize(m.Address)
		if seen[addr] {
			return nil, fmt.Errorf("Duplicate member address: %s", m.Address)
		}
		seen[addr] = true
		d.Members = append(d.Members, Member{Address: addr, VotingPower: m.VotingPower})
	}

	switch {
	case d.TokenAddress != nil:
		d.GovernanceType = GovernanceToken
	case len(d.Members) > 0:
		d.GovernanceType = GovernanceMembership
	default:
		d.GovernanceType = GovernanceMultisig
	}

	seed := name + "|" + d.Creator + "|" + strconv.FormatInt(s.now().UnixNano(), 10)
	d.Address = hexutil.Encode(crypto.Keccak256([]byte(seed))[:common.AddressLength])

	if err := s.store.CreateDAO(ctx, d); err != nil {
		return nil, fmt.Errorf("Failed to create DAO: %w", err)
	}
	return d, nil
}

// GetDAO returns a registered DAO.
func (s *Service) GetDAO(ctx context.Context, address string) (*DAO, error) {
	if strings.TrimSpace(address) == "" {
		return nil, errors.New("DAO address is required")
	}
	d, err := s.store.GetDAO(ctx, normalize(address))
	if errors.Is(err, ErrDAONotFound) {
		return nil, fmt.Errorf("DAO not found: %s", address)
	}
	if err != nil {
		return nil, fmt.Errorf("Failed to load DAO: %w", err)
	}
	return d, nil
}

// CreateProposalRequest is the create_dao_proposal input. Times are unix
// seconds; a zero StartTime means now and a nil Quorum takes the DAO's.
type CreateProposalRequest struct {
	DAOAddress       string
	Title            string
	Description      string
	Options          []string
	StartTime        int64
	EndTime          int64
	Quorum           *float64
	SnapshotBlock    *uint64
	ExecutionActions []Action
}

// CreateProposal opens a proposal on an existing DAO.
func (s *Service) CreateProposal(ctx context.Context, proposer string, req CreateProposalRequest) (*Proposal, error) {
	d, err := s.GetDAO(ctx, req.DAOAddress)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, errors.New("Proposal title is required")
	}
	if len(req.Options) < 2 {
		return nil, errors.New("At least 2 options are required")
	}
	seen := make(map[string]bool, len(req.Options))
	for _, opt := range req.Options {
		if strings.TrimSpace(opt) == "" {
			return nil, errors.New("Options cannot be empty")
		}
		if seen[opt] {
			return nil, fmt.Errorf("Duplicate option: %s", opt)
		}
		seen[opt] = true
	}

	now := s.now()
	start := req.StartTime
	if start == 0 {
		start = now.Unix()
	}
	if req.EndTime <= start {
		return nil, errors.New("End time must be after start time")
	}

	quorum := d.Settings.QuorumPercentage
	if req.Quorum != nil {
		quorum = *req.Quorum
		if err := checkPercentage(quorum); err != nil {
			return nil, err
		}
	}

	actions := []Action{}
	for _, a := range req.ExecutionActions {
		if !common.IsHexAddress(a.Target) {
			return nil, fmt.Errorf("Invalid action target: %s", a.Target)
		}
		a.Target = normalize(a.Target)
		actions = append(actions, a)
	}

	body := fmt.Sprintf("# %s\n\n%s\n\nOptions: %s", req.Title, req.Description, strings.Join(req.Options, ", "))
	id := hexutil.Encode(crypto.Keccak256([]byte(body + strconv.FormatInt(now.UnixNano(), 10))))[:10]

	p := &Proposal{
		ID:               id,
		DAOAddress:       d.Address,
		Title:            req.Title,
		Description:      req.Description,
		Options:          append([]string(nil), req.Options...),
		StartTime:        start,
		EndTime:          req.EndTime,
		Quorum:           quorum,
		Proposer:         normalize(proposer),
		SnapshotBlock:    req.SnapshotBlock,
		ExecutionActions: actions,
		CreatedAt:        now.UTC(),
	}
	if err := s.store.CreateProposal(ctx, p); err != nil {
		return nil, fmt.Errorf("Failed to create proposal: %w", err)
	}
	return p, nil
}

// ProposalSummary is a proposal with its current status.
type ProposalSummary struct {
	*Proposal
	Status string `json:"status"`
}

// ProposalPage is one page of list_dao_proposals.
type ProposalPage struct {
	Proposals  []ProposalSummary `json:"proposals"`
	Total      int               `json:"total"`
	DAOAddress string            `json:"daoAddress"`
}

// ListRequest filters and pages proposals. Limit 0 means 10.
type ListRequest struct {
	DAOAddress string
	Status     string
	Limit      int
	Skip       int
}

// ListProposals returns proposals matching the status filter, newest first.
func (s *Service) ListProposals(ctx context.Context, req ListRequest) (*ProposalPage, error) {
	status := req.Status
	if status == "" {
		status = StatusAll
	}
	switch status {
	case StatusActive, StatusPending, StatusClosed, StatusAll:
	default:
		return nil, fmt.Errorf("Invalid status: %s", req.Status)
	}
	if req.Limit < 0 || req.Skip < 0 {
		return nil, errors.New("limit and skip cannot be negative")
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultListLimit
	}

	d, err := s.GetDAO(ctx, req.DAOAddress)
	if err != nil {
		return nil, err
	}
	all, err := s.store.ListProposals(ctx, d.Address)
	if err != nil {
		return nil, fmt.Errorf("Failed to fetch proposals: %w", err)
	}

	now := s.now()
	matched := make([]ProposalSummary, 0, len(all))
	for _, p := range all {
		st := p.StatusAt(now)
		if status == StatusAll || st == status {
			matched = append(matched, ProposalSummary{Proposal: p, Status: st})
		}
	}

	page := &ProposalPage{Proposals: []ProposalSummary{}, Total: len(matched), DAOAddress: d.Address}
	if req.Skip < len(matched) {
		end := min(req.Skip+limit, len(matched))
		page.Proposals = matched[req.Skip:end]
	}
	return page, nil
}

// Voter is one entry of a proposal's voter list.
type Voter struct {
	Address string  `json:"address"`
	Weight  float64 `json:"weight"`
	Vote    string  `json:"vote"`
	Reason  string  `json:"reason,omitempty"`
}

// ProposalDetails is a proposal with its tally.
type ProposalDetails struct {
	*Proposal
	Status             string             `json:"status"`
	Votes              map[string]float64 `json:"votes"`
	Voters             []Voter            `json:"voters"`
	TotalWeight        float64            `json:"totalWeight"`
	VoterParticipation *float64           `json:"voterParticipation,omitempty"`
	QuorumReached      bool               `json:"quorumReached"`
	LeadingOption      string             `json:"leadingOption,omitempty"`
	Result             string             `json:"result,omitempty"`
}

// ProposalDetails tallies a proposal. Result is set once voting has closed.
func (s *Service) ProposalDetails(ctx context.Context, daoAddress, id string) (*ProposalDetails, error) {
	d, err := s.GetDAO(ctx, daoAddress)
	if err != nil {
		return nil, err
	}
	p, err := s.getProposal(ctx, d.Address, id)
	if err != nil {
		return nil, err
	}
	votes, err := s.store.ListVotes(ctx, d.Address, p.ID)
	if err != nil {
		return nil, fmt.Errorf("Failed to fetch votes: %w", err)
	}
	return tally(d, p, votes, s.now()), nil
}

func tally(d *DAO, p *Proposal, votes []*Vote, now time.Time) *ProposalDetails {
	det := &ProposalDetails{
		Proposal: p,
		Status:   p.StatusAt(now),
		Votes:    make(map[string]float64, len(p.Options)),
		Voters:   make([]Voter, 0, len(votes)),
	}
	for _, opt := range p.Options {
		det.Votes[opt] = 0
	}
	for _, v := range votes {
		opt := p.Options[v.OptionIndex]
		det.Votes[opt] += v.Weight
		det.TotalWeight += v.Weight
		det.Voters = append(det.Voters, Voter{Address: v.Voter, Weight: v.Weight, Vote: opt, Reason: v.Reason})
	}

	if total := d.TotalPower(); total > 0 {
		participation := det.TotalWeight / total
		det.VoterParticipation = &participation
		det.QuorumReached = participation*100 >= p.Quorum
	} else {
		// no fixed electorate: any participation meets quorum
		det.QuorumReached = det.TotalWeight > 0
	}

	ranked := append([]string(nil), p.Options...)
	sort.SliceStable(ranked, func(i, j int) bool { return det.Votes[ranked[i]] > det.Votes[ranked[j]] })
	if det.TotalWeight > 0 && det.Votes[ranked[0]] > det.Votes[ranked[1]] {
		det.LeadingOption = ranked[0]
	}

	if det.Status == StatusClosed {
		switch {
		case !det.QuorumReached:
			det.Result = ResultQuorumNotReached
		case det.LeadingOption == p.Options[0]:
			det.Result = ResultPassed
		default:
			det.Result = ResultRejected
		}
	}
	return det
}

// CastVoteRequest is the cast_dao_vote input.
type CastVoteRequest struct {
	DAOAddress  string
	ProposalID  string
	OptionIndex int
	Reason      string
}

// VoteReceipt confirms a recorded vote.
type VoteReceipt struct {
	ProposalID string  `json:"proposalId"`
	Vote       string  `json:"vote"`
	Voter      string  `json:"voter"`
	Weight     float64 `json:"weight"`
	DAOAddress string  `json:"daoAddress"`
	Message    string  `json:"message"`
}

// CastVote records voter's choice on an active proposal. Each address votes
// once; its weight is its member voting power, or 1.
func (s *Service) CastVote(ctx context.Context, voter string, req CastVoteRequest) (*VoteReceipt, error) {
	if !common.IsHexAddress(voter) {
		return nil, errors.New("A valid voter address is required")
	}
	d, err := s.GetDAO(ctx, req.DAOAddress)
	if err != nil {
		return nil, err
	}

	unlock := s.votes.Lock(d.Address + "/" + req.ProposalID)
	defer unlock()

	p, err := s.getProposal(ctx, d.Address, req.ProposalID)
	if err != nil {
		return nil, err
	}
	if st := p.StatusAt(s.now()); st != StatusActive {
		return nil, fmt.Errorf("Proposal %s is not open for voting (status: %s)", p.ID, st)
	}
	if req.OptionIndex < 0 || req.OptionIndex >= len(p.Options) {
		return nil, fmt.Errorf("Invalid option index: %d (proposal has %d options)", req.OptionIndex, len(p.Options))
	}

	v := &Vote{
		DAOAddress:  d.Address,
		ProposalID:  p.ID,
		Voter:       normalize(voter),
		OptionIndex: req.OptionIndex,
		Weight:      d.PowerOf(voter),
		Reason:      req.Reason,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.AddVote(ctx, v); err != nil {
		if errors.Is(err, ErrAlreadyVoted) {
			return nil, fmt.Errorf("Address %s has already voted on proposal %s", v.Voter, p.ID)
		}
		return nil, fmt.Errorf("Failed to cast vote: %w", err)
	}

	option := p.Options[req.OptionIndex]
	msg := "Vote cast successfully: " + option
	if req.Reason != "" {
		msg += fmt.Sprintf(" - %q", req.Reason)
	}
	return &VoteReceipt{
		ProposalID: p.ID,
		Vote:       option,
		Voter:      v.Voter,
		Weight:     v.Weight,
		DAOAddress: d.Address,
		Message:    msg,
	}, nil
}

func (s *Service) getProposal(ctx context.Context, daoAddress, id string) (*Proposal, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("Proposal ID is required")
	}
	p, err := s.store.GetProposal(ctx, daoAddress, strings.ToLower(id))
	if errors.Is(err, ErrProposalNotFound) {
		return nil, fmt.Errorf("Proposal with ID %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("Failed to fetch proposal: %w", err)
	}
	return p, nil
}

func checkPercentage(v float64) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("Quorum percentage must be between 0 and 100, got %g", v)
	}
	return nil
}

func orDefault(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func equalAddr(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
