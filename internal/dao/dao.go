// Package dao is an off-chain governance registry: DAOs, proposals and
// weighted votes.
package dao

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDAONotFound      = errors.New("dao: not found")
	ErrProposalNotFound = errors.New("dao: proposal not found")
	ErrAlreadyVoted     = errors.New("dao: already voted")
	ErrDuplicate        = errors.New("dao: already exists")
)

// Governance types, derived from how the DAO was created.
const (
	GovernanceToken      = "Token-based"
	GovernanceMembership = "Membership-based"
	GovernanceMultisig   = "Multisig"
)

// Proposal statuses, derived from the clock.
const (
	StatusPending = "pending"
	StatusActive  = "active"
	StatusClosed  = "closed"
	StatusAll     = "all"
)

// Outcomes of a closed proposal.
const (
	ResultPassed           = "passed"
	ResultRejected         = "rejected"
	ResultQuorumNotReached = "quorum not reached"
)

// Defaults applied by CreateDAO, in seconds and percent.
const (
	DefaultVotingPeriod     = 3 * 86400
	DefaultVotingDelay      = 86400
	DefaultQuorumPercentage = 4.0
	DefaultExecutionDelay   = 2 * 86400
)

// Member is a voter with a fixed weight.
type Member struct {
	Address     string  `json:"address"`
	VotingPower float64 `json:"votingPower"`
}

// Settings holds the governance timing and quorum defaults.
type Settings struct {
	VotingPeriod     int64   `json:"votingPeriod"`
	VotingDelay      int64   `json:"votingDelay"`
	QuorumPercentage float64 `json:"quorumPercentage"`
	ExecutionDelay   int64   `json:"executionDelay"`
}

// DAO is a registered organisation.
type DAO struct {
	Address        string    `json:"daoAddress"`
	Name           string    `json:"name"`
	GovernanceType string    `json:"governanceType"`
	TokenAddress   *string   `json:"tokenAddress"`
	Members        []Member  `json:"members"`
	Settings       Settings  `json:"settings"`
	Creator        string    `json:"creator"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TotalPower is the summed voting power of all members.
func (d *DAO) TotalPower() float64 {
	var total float64
	for _, m := range d.Members {
		total += m.VotingPower
	}
	return total
}

// PowerOf returns the member's voting power, or 1 for non-members.
func (d *DAO) PowerOf(addr string) float64 {
	for _, m := range d.Members {
		if equalAddr(m.Address, addr) {
			return m.VotingPower
		}
	}
	return 1
}

// Action is a call to run if the proposal passes.
type Action struct {
	Target    string `json:"target"`
	Value     string `json:"value"`
	Signature string `json:"signature"`
	CallData  string `json:"callData"`
}

// Proposal is a vote over a fixed list of options. Times are unix seconds.
type Proposal struct {
	ID               string    `json:"id"`
	DAOAddress       string    `json:"daoAddress"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Options          []string  `json:"options"`
	StartTime        int64     `json:"startTime"`
	EndTime          int64     `json:"endTime"`
	Quorum           float64   `json:"quorum"`
	Proposer         string    `json:"proposer"`
	SnapshotBlock    *uint64   `json:"snapshotBlock,omitempty"`
	ExecutionActions []Action  `json:"executionActions"`
	CreatedAt        time.Time `json:"createdAt"`
}

// StatusAt derives the proposal status at now.
func (p *Proposal) StatusAt(now time.Time) string {
	ts := now.Unix()
	switch {
	case ts < p.StartTime:
		return StatusPending
	case ts >= p.EndTime:
		return StatusClosed
	default:
		return StatusActive
	}
}

// Vote is one voter's weighted choice.
type Vote struct {
	DAOAddress  string    `json:"daoAddress"`
	ProposalID  string    `json:"proposalId"`
	Voter       string    `json:"voter"`
	OptionIndex int       `json:"optionIndex"`
	Weight      float64   `json:"weight"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store persists the registry.
type Store interface {
	CreateDAO(ctx context.Context, d *DAO) error
	GetDAO(ctx context.Context, address string) (*DAO, error)
	CreateProposal(ctx context.Context, p *Proposal) error
	GetProposal(ctx context.Context, daoAddress, id string) (*Proposal, error)
	// ListProposals returns the DAO's proposals, newest first.
	ListProposals(ctx context.Context, daoAddress string) ([]*Proposal, error)
	// AddVote returns ErrAlreadyVoted if the voter has a vote recorded.
	AddVote(ctx context.Context, v *Vote) error
	ListVotes(ctx context.Context, daoAddress, proposalID string) ([]*Vote, error)
}
